package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"contractforge/internal/config"
	"contractforge/internal/crypto"
	"contractforge/internal/extractor"
)

// Settings are the user-changeable backend options. Keys are plaintext in
// memory and sealed on disk.
type Settings struct {
	Backend   string `json:"backend"`
	GeminiKey string `json:"gemini_key"`
	OpenAIKey string `json:"openai_key"`
}

// APIKey returns the key for the selected backend.
func (s Settings) APIKey() string {
	if s.Backend == "openai" {
		return s.OpenAIKey
	}
	return s.GeminiKey
}

// ========== Settings Persistence ==========

type settingsStore struct {
	mu      sync.Mutex
	path    string
	sealer  *crypto.Sealer
	current Settings
	logger  *zap.Logger
}

// openSettings seeds settings from cfg, then overrides them with
// dataDir/settings.json when present.
func openSettings(dataDir string, cfg *config.Config, sealer *crypto.Sealer, logger *zap.Logger) (*settingsStore, error) {
	st := &settingsStore{
		path:   filepath.Join(dataDir, "settings.json"),
		sealer: sealer,
		current: Settings{
			Backend:   cfg.LLM.Backend,
			GeminiKey: cfg.LLM.GeminiAPIKey,
			OpenAIKey: cfg.LLM.OpenAIAPIKey,
		},
		logger: logger,
	}

	data, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", st.path, err)
	}
	var saved Settings
	if err := json.Unmarshal(data, &saved); err != nil {
		logger.Warn("could not parse saved settings", zap.String("path", st.path), zap.Error(err))
		return st, nil
	}

	logger.Info("loading saved settings", zap.String("path", st.path))
	if saved.Backend != "" {
		st.current.Backend = saved.Backend
	}
	if key := st.open(saved.GeminiKey); key != "" {
		st.current.GeminiKey = key
	}
	if key := st.open(saved.OpenAIKey); key != "" {
		st.current.OpenAIKey = key
	}
	return st, nil
}

// open unseals a stored key; a value that cannot be opened is dropped.
func (st *settingsStore) open(v string) string {
	key, err := st.sealer.Open(v)
	if err != nil {
		st.logger.Warn("discarding saved key that could not be unsealed", zap.Error(err))
		return ""
	}
	return key
}

func (st *settingsStore) Current() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.current
}

// Save persists s with every key sealed.
func (st *settingsStore) Save(s Settings) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	toSave := s
	var err error
	if toSave.GeminiKey, err = st.sealer.Seal(s.GeminiKey); err != nil {
		return fmt.Errorf("seal gemini key: %w", err)
	}
	if toSave.OpenAIKey, err = st.sealer.Seal(s.OpenAIKey); err != nil {
		return fmt.Errorf("seal openai key: %w", err)
	}

	data, err := json.MarshalIndent(toSave, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(st.path, data, 0600); err != nil {
		return err
	}
	st.current = s
	return nil
}

// ========== Settings Endpoint ==========

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cur := s.settings
	ready := s.orch != nil
	s.mu.RUnlock()

	jsonResp(w, map[string]any{
		"backend":       cur.Backend,
		"gemini_key":    crypto.Mask(cur.GeminiKey),
		"openai_key":    crypto.Mask(cur.OpenAIKey),
		"backend_ready": ready,
		"rasterizer":    extractor.DetectRasterizer(),
	})
}

// isMasked reports whether v is a value echoed back by GET /api/settings.
func isMasked(v string) bool {
	return strings.HasPrefix(v, "****")
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req Settings
	if !decodeJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	next := s.settings
	if b := strings.ToLower(strings.TrimSpace(req.Backend)); b != "" {
		if b != "gemini" && b != "openai" {
			s.mu.Unlock()
			jsonErr(w, fmt.Sprintf("unknown backend %q (want gemini or openai)", req.Backend), http.StatusBadRequest)
			return
		}
		next.Backend = b
	}
	if req.GeminiKey != "" && !isMasked(req.GeminiKey) {
		next.GeminiKey = req.GeminiKey
	}
	if req.OpenAIKey != "" && !isMasked(req.OpenAIKey) {
		next.OpenAIKey = req.OpenAIKey
	}
	s.settings = next
	s.mu.Unlock()

	if s.saved != nil {
		if err := s.saved.Save(next); err != nil {
			s.logger.Error("failed to persist settings", zap.Error(err))
		}
	}
	s.rebuild()

	s.logger.Info("settings updated", zap.String("backend", next.Backend))
	jsonResp(w, map[string]string{"status": "saved"})
}
