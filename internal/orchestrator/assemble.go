package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"contractforge/internal/apperr"
	"contractforge/internal/llm"
)

// Layout class names the editor stylesheet understands.
const (
	classContainer = "document-container"
	classPage      = "a4-page"
)

// presentationPolicy keeps structure and the layout classes but drops
// style elements, style attributes and comments.
var presentationPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class", "id").Globally()
	return p
}()

func stripPresentation(s string) string {
	return strings.TrimSpace(presentationPolicy.Sanitize(s))
}

// hasLayout reports whether any element already carries the page or
// container class.
func hasLayout(s string) bool {
	nodes, err := html.ParseFragment(strings.NewReader(s), &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body})
	if err != nil {
		return false
	}
	var found bool
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key != "class" {
					continue
				}
				for _, c := range strings.Fields(a.Val) {
					if c == classPage || c == classContainer {
						found = true
						return
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return found
}

// finishLayout strips presentation and wraps the result in the document
// container when the model produced no layout for a multi-page document.
func finishLayout(s string, totalPages int) string {
	clean := stripPresentation(s)
	if hasLayout(clean) || totalPages <= 1 {
		return clean
	}
	return `<div class="` + classContainer + `">` + clean + `</div>`
}

// Reconstruct rebuilds extracted Word or PDF text into semantic HTML with
// placeholders. info is the file name or page count shown to the model.
func (o *Orchestrator) Reconstruct(ctx context.Context, raw string, source SourceType, info string) (Document, error) {
	var doc Document
	err := o.inv.JSON(ctx, llm.Request{
		Task:   llm.TaskDocument,
		Prompt: reconstructRequest(raw, source, info),
		Shape:  llm.DocumentShape,
	}, &doc)
	if err != nil {
		return Document{}, fmt.Errorf("reconstruct %s: %w", source, err)
	}
	doc.HTML = finishLayout(doc.HTML, 1)
	return doc, nil
}

// ExtractPage transcribes one page image into an HTML fragment.
func (o *Orchestrator) ExtractPage(ctx context.Context, img llm.Image, page, total int) (string, error) {
	frag, err := o.inv.Text(ctx, llm.Request{
		Task:   llm.TaskVision,
		Prompt: extractPageRequest(page, total),
		Image:  &img,
	})
	if err != nil {
		return "", fmt.Errorf("extract page %d of %d: %w", page, total, err)
	}
	return frag, nil
}

// Assemble merges page fragments, in the order given, into one document.
func (o *Orchestrator) Assemble(ctx context.Context, fragments []string, total int) (Document, error) {
	if len(fragments) == 0 {
		return Document{}, apperr.New(apperr.KindInvalid, "assemble", "no pages to assemble")
	}
	if total < len(fragments) {
		total = len(fragments)
	}

	var doc Document
	err := o.inv.JSON(ctx, llm.Request{
		Task:   llm.TaskDocument,
		Prompt: assembleRequest(fragments, total),
		Shape:  llm.DocumentShape,
	}, &doc)
	if err != nil {
		return Document{}, fmt.Errorf("assemble %d pages: %w", total, err)
	}
	doc.HTML = finishLayout(doc.HTML, total)
	o.logger.Debug("assembled document", zap.Int("pages", total), zap.Int("html_bytes", len(doc.HTML)))
	return doc, nil
}

// AnalyzeChunk transcribes one part of a legacy contract. index is 0-based.
func (o *Orchestrator) AnalyzeChunk(ctx context.Context, img llm.Image, index int) (string, error) {
	chunk, err := o.inv.Text(ctx, llm.Request{
		Task:   llm.TaskVision,
		Prompt: analyzeChunkRequest(index),
		Image:  &img,
	})
	if err != nil {
		return "", fmt.Errorf("analyze chunk %d: %w", index+1, err)
	}
	return chunk, nil
}

// Synthesize stitches independently analyzed chunks into one branded,
// de-duplicated template. The output keeps its brand styling.
func (o *Orchestrator) Synthesize(ctx context.Context, chunks []string) (Document, error) {
	if len(chunks) == 0 {
		return Document{}, apperr.New(apperr.KindInvalid, "synthesize", "no chunks to synthesize")
	}
	var doc Document
	err := o.inv.JSON(ctx, llm.Request{
		Task:   llm.TaskDocument,
		Prompt: synthesizeRequest(chunks),
		Shape:  llm.DocumentShape,
	}, &doc)
	if err != nil {
		return Document{}, fmt.Errorf("synthesize %d chunks: %w", len(chunks), err)
	}
	return doc, nil
}

// ProcessOCR is the single-chunk path: one vision pass, then synthesis.
func (o *Orchestrator) ProcessOCR(ctx context.Context, img llm.Image) (Document, error) {
	chunk, err := o.AnalyzeChunk(ctx, img, 0)
	if err != nil {
		return Document{}, err
	}
	return o.Synthesize(ctx, []string{chunk})
}
