package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"contractforge/internal/contract"
	"contractforge/internal/orchestrator"
)

type wizardSession struct {
	wizard *orchestrator.Wizard

	mu    sync.Mutex
	saved *contract.Template
}

type wizardRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*wizardSession
}

func newWizardRegistry() *wizardRegistry {
	return &wizardRegistry{sessions: make(map[string]*wizardSession)}
}

func (r *wizardRegistry) add(w *orchestrator.Wizard) *wizardSession {
	sess := &wizardSession{wizard: w}
	r.mu.Lock()
	r.sessions[w.ID] = sess
	r.mu.Unlock()
	return sess
}

func (r *wizardRegistry) get(id string) (*wizardSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

func (r *wizardRegistry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// wizardResponse is the session state plus the library copy of the
// generated template once it has been saved.
type wizardResponse struct {
	orchestrator.WizardState
	Saved *contract.Template `json:"saved,omitempty"`
}

// persist stores the generated template in the library exactly once.
func (s *Server) persist(sess *wizardSession) error {
	snap := sess.wizard.Snapshot()
	if snap.Template == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.saved != nil {
		return nil
	}
	tpl, err := s.library.Create(*snap.Template)
	if err != nil {
		return err
	}
	sess.saved = &tpl
	s.logger.Info("wizard template saved", zap.String("wizard", snap.ID), zap.String("template", tpl.ID))
	return nil
}

func (s *Server) respondWizard(w http.ResponseWriter, sess *wizardSession) {
	sess.mu.Lock()
	saved := sess.saved
	sess.mu.Unlock()
	jsonResp(w, wizardResponse{WizardState: sess.wizard.Snapshot(), Saved: saved})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*wizardSession, bool) {
	sess, ok := s.wizards.get(chi.URLParam(r, "id"))
	if !ok {
		jsonErr(w, "Wizard session not found", http.StatusNotFound)
	}
	return sess, ok
}

// ========== Wizard Endpoints ==========

func (s *Server) handleNewWizard(w http.ResponseWriter, r *http.Request) {
	orch, ok := s.requireBackend(w)
	if !ok {
		return
	}
	sess := s.wizards.add(orch.NewWizard())
	jsonStatus(w, http.StatusCreated, wizardResponse{WizardState: sess.wizard.Snapshot()})
}

func (s *Server) handleWizardFormats(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, orchestrator.Formats)
}

func (s *Server) handleWizardState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respondWizard(w, sess)
}

func (s *Server) handleDiscardWizard(w http.ResponseWriter, r *http.Request) {
	if !s.wizards.remove(chi.URLParam(r, "id")) {
		jsonErr(w, "Wizard session not found", http.StatusNotFound)
		return
	}
	jsonResp(w, map[string]string{"status": "deleted"})
}

func (s *Server) handleWizardField(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := sess.wizard.SetField(req.Key, req.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondWizard(w, sess)
}

func (s *Server) handleWizardAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := sess.wizard.Answer(req.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondWizard(w, sess)
}

func (s *Server) handleWizardBack(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.wizard.Back(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondWizard(w, sess)
}

// handleWizardNext may call the backend: leaving the last fixed step fetches
// follow-up questions and leaving the last follow-up generates the template.
func (s *Server) handleWizardNext(w http.ResponseWriter, r *http.Request) {
	s.advanceWizard(w, r, func(ctx context.Context, wz *orchestrator.Wizard) error {
		return wz.Next(ctx)
	})
}

func (s *Server) handleWizardFinalize(w http.ResponseWriter, r *http.Request) {
	s.advanceWizard(w, r, func(ctx context.Context, wz *orchestrator.Wizard) error {
		_, err := wz.Finalize(ctx)
		return err
	})
}

func (s *Server) advanceWizard(w http.ResponseWriter, r *http.Request, step func(context.Context, *orchestrator.Wizard) error) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := step(r.Context(), sess.wizard); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.persist(sess); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondWizard(w, sess)
}
