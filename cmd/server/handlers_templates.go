package main

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"contractforge/internal/contract"
)

// ========== Template Library Endpoints ==========

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, s.library.List())
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl contract.Template
	if !decodeJSON(w, r, &tpl) {
		return
	}
	created, err := s.library.Create(tpl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonStatus(w, http.StatusCreated, created)
}

func (s *Server) handleSearchTemplates(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	found, err := s.library.Search(r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if found == nil {
		found = []contract.Template{}
	}
	jsonResp(w, found)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.library.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResp(w, tpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl contract.Template
	if !decodeJSON(w, r, &tpl) {
		return
	}
	tpl.ID = chi.URLParam(r, "id")
	updated, err := s.library.Update(tpl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResp(w, updated)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.library.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResp(w, map[string]string{"status": "deleted"})
}

func (s *Server) handlePinTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.library.TogglePin(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResp(w, tpl)
}

func (s *Server) handleRenameTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	tpl, err := s.library.Rename(chi.URLParam(r, "id"), req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResp(w, tpl)
}

func (s *Server) handleDuplicateTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.library.Duplicate(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonStatus(w, http.StatusCreated, tpl)
}

// handlePrefillTemplate renders the content with the supplied placeholder
// values highlighted. Missing values leave the token visible.
func (s *Server) handlePrefillTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.library.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Values map[string]string `json:"values"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	labels := make(map[string]string, len(tpl.Placeholders))
	for _, p := range tpl.Placeholders {
		labels[p] = contract.Label(p)
	}
	jsonResp(w, map[string]any{
		"html":         contract.Prefill(tpl.Content, req.Values),
		"placeholders": tpl.Placeholders,
		"labels":       labels,
	})
}

func (s *Server) handleTemplateMarkdown(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.library.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	md, err := contract.Markdown(tpl.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(md))
}
