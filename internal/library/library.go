// Package library persists contract templates as a JSON file and keeps an
// optional full-text index in step with every change.
package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contractforge/internal/apperr"
	"contractforge/internal/contract"
)

// Index is the search side of the library.
type Index interface {
	Index(tpl contract.Template) error
	Delete(id string) error
	Search(q string, limit int) ([]string, error)
}

// Store manages persistence of templates in dataDir/templates.json.
type Store struct {
	mu        sync.RWMutex
	templates []contract.Template
	filePath  string
	index     Index
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Store)

// WithIndex keeps idx in sync with the store. Existing templates are
// indexed when the store opens.
func WithIndex(idx Index) Option {
	return func(s *Store) { s.index = idx }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open initialises the store, creating dataDir and loading any saved
// templates. Loaded templates are re-canonicalized.
func Open(dataDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	s := &Store{
		filePath: filepath.Join(dataDir, "templates.json"),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(s.filePath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.templates); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", s.filePath, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read %s: %w", s.filePath, err)
	}

	for i := range s.templates {
		s.templates[i].Canonicalize()
		s.reindex(s.templates[i])
	}
	s.logger.Info("template library loaded", zap.Int("templates", len(s.templates)), zap.String("path", s.filePath))
	return s, nil
}

// save writes the file atomically; callers hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.templates, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

func (s *Store) reindex(tpl contract.Template) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(tpl); err != nil {
		s.logger.Warn("failed to index template", zap.String("id", tpl.ID), zap.Error(err))
	}
}

func (s *Store) unindex(id string) {
	if s.index == nil {
		return
	}
	if err := s.index.Delete(id); err != nil {
		s.logger.Warn("failed to remove template from index", zap.String("id", id), zap.Error(err))
	}
}

func notFound(op, id string) error {
	return apperr.New(apperr.KindNotFound, op, "template not found: "+id)
}

func validate(op string, tpl contract.Template) error {
	if strings.TrimSpace(tpl.Title) == "" {
		return apperr.New(apperr.KindInvalid, op, "title is required")
	}
	if strings.TrimSpace(tpl.Content) == "" {
		return apperr.New(apperr.KindInvalid, op, "content is required")
	}
	return nil
}

// find returns the slice position of id or -1; callers hold s.mu.
func (s *Store) find(id string) int {
	return slices.IndexFunc(s.templates, func(t contract.Template) bool { return t.ID == id })
}

// ==================== CRUD ====================

// Create stores tpl under a new id. Category defaults to General and the
// placeholder list is derived from the content.
func (s *Store) Create(tpl contract.Template) (contract.Template, error) {
	if err := validate("library.create", tpl); err != nil {
		return contract.Template{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	tpl.ID = uuid.NewString()
	tpl.Title = strings.TrimSpace(tpl.Title)
	if strings.TrimSpace(tpl.Category) == "" {
		tpl.Category = contract.CategoryGeneral
	}
	tpl.Canonicalize()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	s.templates = append(s.templates, tpl)
	if err := s.save(); err != nil {
		s.templates = s.templates[:len(s.templates)-1]
		return contract.Template{}, fmt.Errorf("failed to save template: %w", err)
	}
	s.reindex(tpl)
	return tpl, nil
}

// List returns all templates, pinned first, then newest first.
func (s *Store) List() []contract.Template {
	s.mu.RLock()
	result := slices.Clone(s.templates)
	s.mu.RUnlock()

	sortTemplates(result)
	return result
}

func sortTemplates(ts []contract.Template) {
	slices.SortStableFunc(ts, func(a, b contract.Template) int {
		if a.IsPinned != b.IsPinned {
			if a.IsPinned {
				return -1
			}
			return 1
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

func (s *Store) Get(id string) (contract.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.find(id)
	if i < 0 {
		return contract.Template{}, notFound("library.get", id)
	}
	return s.templates[i], nil
}

// Update replaces the editable fields of an existing template. Placeholders
// are recomputed from the new content; id, pin state and creation time are
// kept.
func (s *Store) Update(tpl contract.Template) (contract.Template, error) {
	if err := validate("library.update", tpl); err != nil {
		return contract.Template{}, err
	}
	return s.mutate("library.update", tpl.ID, func(cur *contract.Template) {
		cur.Title = strings.TrimSpace(tpl.Title)
		cur.Description = tpl.Description
		if strings.TrimSpace(tpl.Category) != "" {
			cur.Category = tpl.Category
		}
		cur.SetContent(tpl.Content)
	})
}

// SetContent replaces only the content, as the editor does.
func (s *Store) SetContent(id, content string) (contract.Template, error) {
	if strings.TrimSpace(content) == "" {
		return contract.Template{}, apperr.New(apperr.KindInvalid, "library.set_content", "content is required")
	}
	return s.mutate("library.set_content", id, func(cur *contract.Template) {
		cur.SetContent(content)
	})
}

// TogglePin flips the pinned flag.
func (s *Store) TogglePin(id string) (contract.Template, error) {
	return s.mutate("library.pin", id, func(cur *contract.Template) {
		cur.IsPinned = !cur.IsPinned
	})
}

// Rename changes only the title.
func (s *Store) Rename(id, title string) (contract.Template, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return contract.Template{}, apperr.New(apperr.KindInvalid, "library.rename", "title is required")
	}
	return s.mutate("library.rename", id, func(cur *contract.Template) {
		cur.Title = title
	})
}

func (s *Store) mutate(op, id string, fn func(*contract.Template)) (contract.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(id)
	if i < 0 {
		return contract.Template{}, notFound(op, id)
	}
	prev := s.templates[i]
	fn(&s.templates[i])
	s.templates[i].UpdatedAt = s.now()
	if err := s.save(); err != nil {
		s.templates[i] = prev
		return contract.Template{}, fmt.Errorf("failed to save template: %w", err)
	}
	s.reindex(s.templates[i])
	return s.templates[i], nil
}

// Duplicate copies a template under a new id with " - Copy" appended to the
// title. The copy is never pinned.
func (s *Store) Duplicate(id string) (contract.Template, error) {
	src, err := s.Get(id)
	if err != nil {
		return contract.Template{}, err
	}
	dup := src
	dup.Title = src.Title + " - Copy"
	dup.IsPinned = false
	dup.Placeholders = slices.Clone(src.Placeholders)
	return s.Create(dup)
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(id)
	if i < 0 {
		return notFound("library.delete", id)
	}
	prev := s.templates
	s.templates = slices.Delete(slices.Clone(s.templates), i, i+1)
	if err := s.save(); err != nil {
		s.templates = prev
		return fmt.Errorf("failed to save library: %w", err)
	}
	s.unindex(id)
	return nil
}

// ==================== Search ====================

// Search returns templates matching q, best match first. Without an index
// it falls back to a case-insensitive substring match on title, category
// and description, in List order.
func (s *Store) Search(q string, limit int) ([]contract.Template, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.List(), nil
	}

	if s.index != nil {
		ids, err := s.index.Search(q, limit)
		if err != nil {
			return nil, err
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make([]contract.Template, 0, len(ids))
		for _, id := range ids {
			if i := s.find(id); i >= 0 {
				out = append(out, s.templates[i])
			}
		}
		return out, nil
	}

	needle := strings.ToLower(q)
	var out []contract.Template
	for _, t := range s.List() {
		hay := strings.ToLower(t.Title + " " + t.Category + " " + t.Description)
		if strings.Contains(hay, needle) {
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
