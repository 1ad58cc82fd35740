package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"contractforge/internal/apperr"
	"contractforge/internal/library"
	"contractforge/internal/orchestrator"
)

// OrchestratorBuilder creates an orchestrator for the given settings. It is
// called at startup and whenever settings change.
type OrchestratorBuilder func(ctx context.Context, s Settings) (*orchestrator.Orchestrator, error)

// Server holds all shared state.
type Server struct {
	mu       sync.RWMutex
	orch     *orchestrator.Orchestrator
	orchErr  error
	settings Settings

	build OrchestratorBuilder
	saved *settingsStore

	library *library.Store
	logger  *zap.Logger

	// baseCtx outlives requests; import jobs run under it and stop on shutdown.
	baseCtx   context.Context
	jobs      *jobRegistry
	wizards   *wizardRegistry
	maxUpload int64
}

type serverDeps struct {
	Library   *library.Store
	Settings  *settingsStore
	Build     OrchestratorBuilder
	Logger    *zap.Logger
	MaxUpload int64
}

func newServer(ctx context.Context, deps serverDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := deps.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	s := &Server{
		build:     deps.Build,
		saved:     deps.Settings,
		library:   deps.Library,
		logger:    logger,
		baseCtx:   ctx,
		jobs:      newJobRegistry(),
		wizards:   newWizardRegistry(),
		maxUpload: maxUpload,
	}
	if deps.Settings != nil {
		s.settings = deps.Settings.Current()
	}
	s.rebuild()
	return s
}

// rebuild replaces the orchestrator from the current settings. A failure
// is remembered and reported by every handler that needs the backend.
func (s *Server) rebuild() {
	if s.build == nil {
		return
	}
	s.mu.RLock()
	settings := s.settings
	s.mu.RUnlock()

	orch, err := s.build(s.baseCtx, settings)

	s.mu.Lock()
	s.orch, s.orchErr = orch, err
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("generative backend unavailable", zap.String("backend", settings.Backend), zap.Error(err))
		return
	}
	s.logger.Info("generative backend ready", zap.String("backend", settings.Backend))
}

// activeOrchestrator returns the active orchestrator or an error explaining why
// none is configured.
func (s *Server) activeOrchestrator() (*orchestrator.Orchestrator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.orch == nil {
		if s.orchErr != nil {
			return nil, s.orchErr
		}
		return nil, errors.New("no generative backend configured")
	}
	return s.orch, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		jsonResp(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/imports", func(r chi.Router) {
			r.Post("/", s.handleStartImport)
			r.Get("/{id}", s.handleImportStatus)
			r.Get("/{id}/ws", s.handleImportStream)
			r.Delete("/{id}", s.handleCancelImport)
		})

		r.Post("/edit", s.handleEdit)
		r.Post("/synthesize", s.handleSynthesize)

		r.Route("/wizard", func(r chi.Router) {
			r.Post("/", s.handleNewWizard)
			r.Get("/formats", s.handleWizardFormats)
			r.Get("/{id}", s.handleWizardState)
			r.Delete("/{id}", s.handleDiscardWizard)
			r.Put("/{id}/field", s.handleWizardField)
			r.Post("/{id}/answer", s.handleWizardAnswer)
			r.Post("/{id}/next", s.handleWizardNext)
			r.Post("/{id}/back", s.handleWizardBack)
			r.Post("/{id}/finalize", s.handleWizardFinalize)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/", s.handleCreateTemplate)
			r.Get("/search", s.handleSearchTemplates)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
			r.Patch("/{id}/pin", s.handlePinTemplate)
			r.Patch("/{id}/rename", s.handleRenameTemplate)
			r.Post("/{id}/duplicate", s.handleDuplicateTemplate)
			r.Post("/{id}/prefill", s.handlePrefillTemplate)
			r.Get("/{id}/markdown", s.handleTemplateMarkdown)
		})

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)
	})

	return r
}

// ========== Middleware ==========

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ========== Helpers ==========

func jsonResp(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// statusFor maps an error kind to the HTTP status reported to clients.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindMalformed:
		return http.StatusBadGateway
	case apperr.KindUnsupported:
		return http.StatusUnsupportedMediaType
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRateLimited, apperr.KindQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err),
		)
	}
	jsonErr(w, err.Error(), code)
}

// requireBackend writes a 503 when no backend is configured.
func (s *Server) requireBackend(w http.ResponseWriter) (*orchestrator.Orchestrator, bool) {
	orch, err := s.activeOrchestrator()
	if err != nil {
		jsonErr(w, err.Error(), http.StatusServiceUnavailable)
		return nil, false
	}
	return orch, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonErr(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}
