package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"contractforge/internal/apperr"
)

// ReadPDFText returns the embedded text layer of every page, in page
// order. Pages without a text layer yield an empty string so the slice
// length always equals the page count. Unreadable input is Invalid.
func ReadPDFText(data []byte) (pages []string, err error) {
	// The pdf package panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, &apperr.Error{Kind: apperr.KindInvalid, Op: "read_pdf", Message: fmt.Sprintf("unreadable pdf: %v", r)}
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInvalid, Op: "read_pdf", Message: "unreadable pdf", Cause: err}
	}

	numPages := r.NumPage()
	pages = make([]string, 0, numPages)
	for pageIndex := 1; pageIndex <= numPages; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}

// JoinPages concatenates page texts with 1-based page boundary markers.
func JoinPages(pages []string) string {
	parts := make([]string, len(pages))
	for i, text := range pages {
		parts[i] = fmt.Sprintf("<!-- PAGE %d -->\n%s", i+1, text)
	}
	return strings.Join(parts, "\n\n")
}
