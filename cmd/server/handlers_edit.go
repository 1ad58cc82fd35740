package main

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"contractforge/internal/apperr"
	"contractforge/internal/extractor"
	"contractforge/internal/llm"
)

// ========== Editor Endpoint ==========

type editRequest struct {
	HTML        string `json:"html"`
	Instruction string `json:"instruction"`
	Selection   string `json:"selection,omitempty"`
	// TemplateID, when set, edits the stored template's current content and
	// saves the result; HTML is ignored.
	TemplateID string `json:"templateId,omitempty"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	orch, ok := s.requireBackend(w)
	if !ok {
		return
	}
	var req editRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	html := req.HTML
	if req.TemplateID != "" {
		tpl, err := s.library.Get(req.TemplateID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		html = tpl.Content
	}
	if strings.TrimSpace(html) == "" {
		s.writeError(w, r, apperr.New(apperr.KindInvalid, "edit", "html is required"))
		return
	}

	updated, err := orch.Edit(r.Context(), html, req.Instruction, req.Selection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.TemplateID == "" {
		jsonResp(w, map[string]string{"html": updated})
		return
	}
	tpl, err := s.library.SetContent(req.TemplateID, updated)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("template edited", zap.String("template", tpl.ID), zap.Bool("scoped", req.Selection != ""))
	jsonResp(w, map[string]any{"html": updated, "template": tpl})
}

// ========== Single-image Synthesis ==========

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	orch, ok := s.requireBackend(w)
	if !ok {
		return
	}
	src, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if extractor.DetectFormat(src.Name, src.MIMEType) != extractor.FormatImage {
		s.writeError(w, r, apperr.New(apperr.KindUnsupported, "synthesize", "an image file is required"))
		return
	}

	doc, err := orch.ProcessOCR(r.Context(), llm.Image{
		Data:     src.Data,
		MIMEType: extractor.ImageMIMEType(src.Name, src.MIMEType),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResp(w, doc)
}
