// Package indexer keeps a BM25 full-text index over the template library.
package indexer

import (
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"

	"contractforge/internal/contract"
)

// TemplateIndex indexes title, description, category, placeholder labels
// and the visible text of each template's content. bleve indexes are safe
// for concurrent use.
type TemplateIndex struct {
	idx bleve.Index
}

// indexedTemplate is the document stored per template id.
type indexedTemplate struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Text         string `json:"text"`
	Placeholders string `json:"placeholders"`
}

// Open opens the index at path, creating it when missing. An empty path
// gives an in-memory index.
func Open(path string) (*TemplateIndex, error) {
	mapping := bleve.NewIndexMapping()
	if path == "" {
		idx, err := bleve.NewMemOnly(mapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return &TemplateIndex{idx: idx}, nil
	}

	var idx bleve.Index
	var err error
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		idx, err = bleve.New(path, mapping)
	} else {
		idx, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open template index %s: %w", path, err)
	}
	return &TemplateIndex{idx: idx}, nil
}

// Index adds or replaces tpl.
func (t *TemplateIndex) Index(tpl contract.Template) error {
	labels := make([]string, len(tpl.Placeholders))
	for i, p := range tpl.Placeholders {
		labels[i] = contract.Label(p)
	}
	doc := indexedTemplate{
		Title:        tpl.Title,
		Description:  tpl.Description,
		Category:     tpl.Category,
		Text:         contract.PlainText(tpl.Content),
		Placeholders: strings.Join(labels, ", "),
	}
	if err := t.idx.Index(tpl.ID, doc); err != nil {
		return fmt.Errorf("index template %s: %w", tpl.ID, err)
	}
	return nil
}

// Delete removes id; deleting an unknown id is not an error.
func (t *TemplateIndex) Delete(id string) error {
	return t.idx.Delete(id)
}

// Search returns up to limit template ids ordered by relevance.
func (t *TemplateIndex) Search(q string, limit int) ([]string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	match := bleve.NewMatchQuery(q)
	match.SetFuzziness(1)
	prefix := bleve.NewPrefixQuery(strings.ToLower(q))
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(match, prefix))
	req.Size = limit

	res, err := t.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("template search error: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Count reports the number of indexed templates.
func (t *TemplateIndex) Count() (uint64, error) {
	return t.idx.DocCount()
}

// Close closes the underlying index.
func (t *TemplateIndex) Close() error {
	return t.idx.Close()
}
