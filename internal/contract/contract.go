// Package contract defines the Contract Template record and the placeholder
// rules every producer of template content must follow.
package contract

import (
	"regexp"
	"strings"
	"time"
)

// PlaceholderPrefix starts every placeholder token.
const PlaceholderPrefix = "xxxx_"

// PlaceholderRe matches one placeholder token.
var PlaceholderRe = regexp.MustCompile(`xxxx_[A-Z0-9_]+`)

// Categories used by the producers in this module.
const (
	CategoryImported = "Imported"
	CategoryGeneral  = "General"
)

// DefaultImportTitle is used when the model returns no title for an import.
const DefaultImportTitle = "Imported Document"

// Template is the persisted unit. Placeholders is always derived from
// Content; use SetContent or Canonicalize rather than assigning it.
type Template struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Content      string    `json:"content"`
	Placeholders []string  `json:"placeholders"`
	IsPinned     bool      `json:"isPinned"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Placeholders returns the distinct placeholder tokens in content, in order
// of first occurrence. The result is never nil.
func Placeholders(content string) []string {
	matches := PlaceholderRe.FindAllString(content, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// SetContent replaces the content and recomputes the placeholder list.
func (t *Template) SetContent(content string) {
	t.Content = content
	t.Canonicalize()
}

// Canonicalize recomputes Placeholders from Content.
func (t *Template) Canonicalize() {
	t.Placeholders = Placeholders(t.Content)
}

// New builds a canonical template from produced content.
func New(title, description, category, content string) Template {
	t := Template{
		Title:       title,
		Description: description,
		Category:    category,
	}
	t.SetContent(content)
	return t
}

// Label turns a token into a form label: "xxxx_CLIENT_NAME" -> "CLIENT NAME".
func Label(token string) string {
	return strings.ReplaceAll(strings.TrimPrefix(token, PlaceholderPrefix), "_", " ")
}

// Source type tags as reported by the importer.
const (
	SourceWord       = "docx"
	SourceTextPDF    = "pdf-text"
	SourceScannedPDF = "pdf-scanned"
	SourceImage      = "image"
)

// ImportDescription is the description recorded on imported templates.
func ImportDescription(sourceType string) string {
	switch sourceType {
	case SourceWord:
		return "Imported from Word document with text extraction."
	case SourceTextPDF:
		return "Imported from text-based PDF with format reconstruction."
	case SourceScannedPDF:
		return "Imported from scanned PDF using AI vision."
	case SourceImage:
		return "Imported from image using AI vision OCR."
	default:
		return "Imported document."
	}
}
