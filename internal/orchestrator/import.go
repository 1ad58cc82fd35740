package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"contractforge/internal/contract"
	"contractforge/internal/extractor"
	"contractforge/internal/llm"
)

// Stage is a step of an import run.
type Stage string

const (
	StageClassifying    Stage = "classifying"
	StageExtracting     Stage = "extracting"
	StageReconstructing Stage = "reconstructing"
	StageAssembling     Stage = "assembling"
	StageDone           Stage = "done"
)

// Progress is one status update emitted while an import runs. Page and
// Total are set while scanning pages.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Page    int    `json:"page,omitempty"`
	Total   int    `json:"total,omitempty"`
	Message string `json:"message"`
}

// ProgressFunc receives progress updates synchronously on the import's
// goroutine.
type ProgressFunc func(Progress)

// Import classifies src, runs the matching extraction path and returns a
// canonical template in the Imported category. Any failure aborts the
// whole import; no page is ever skipped.
func (o *Orchestrator) Import(ctx context.Context, src extractor.Source, progress ProgressFunc) (contract.Template, error) {
	report := func(p Progress) {
		o.logger.Info("import progress",
			zap.String("file", src.Name),
			zap.String("stage", string(p.Stage)),
			zap.Int("page", p.Page),
			zap.Int("total", p.Total),
		)
		if progress != nil {
			progress(p)
		}
	}

	report(Progress{Stage: StageClassifying, Message: "Analyzing document type..."})
	cls, err := extractor.Classify(src, o.threshold)
	if err != nil {
		return contract.Template{}, err
	}

	var doc Document
	switch cls.Kind {
	case extractor.KindWord:
		report(Progress{Stage: StageExtracting, Message: "Extracting text from Word document..."})
		raw, err := extractor.WordToHTML(src.Data)
		if err != nil {
			return contract.Template{}, fmt.Errorf("import %s: %w", src.Name, err)
		}
		report(Progress{Stage: StageReconstructing, Message: "Reconstructing document format with AI..."})
		doc, err = o.Reconstruct(ctx, raw, SourceWord, src.Name)
		if err != nil {
			return contract.Template{}, err
		}

	case extractor.KindTextPDF:
		report(Progress{
			Stage:   StageExtracting,
			Total:   cls.PageCount,
			Message: fmt.Sprintf("Extracting text from PDF (%d pages)...", cls.PageCount),
		})
		raw := extractor.JoinPages(cls.PageTexts)
		report(Progress{Stage: StageReconstructing, Message: "Reconstructing document format with AI..."})
		doc, err = o.Reconstruct(ctx, raw, SourcePDF, fmt.Sprintf("%d pages", cls.PageCount))
		if err != nil {
			return contract.Template{}, err
		}

	case extractor.KindScannedPDF:
		doc, err = o.importScanned(ctx, src.Data, cls.PageCount, report)
		if err != nil {
			return contract.Template{}, err
		}

	case extractor.KindImage:
		img := llm.Image{Data: src.Data, MIMEType: extractor.ImageMIMEType(src.Name, src.MIMEType)}
		report(Progress{Stage: StageExtracting, Page: 1, Total: 1, Message: "Scanning image with AI vision..."})
		frag, err := o.ExtractPage(ctx, img, 1, 1)
		if err != nil {
			return contract.Template{}, err
		}
		report(Progress{Stage: StageAssembling, Message: "Formatting document..."})
		doc, err = o.Assemble(ctx, []string{frag}, 1)
		if err != nil {
			return contract.Template{}, err
		}
	}

	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = contract.DefaultImportTitle
	}
	tpl := contract.New(title, contract.ImportDescription(cls.Kind.String()), contract.CategoryImported, doc.HTML)

	report(Progress{Stage: StageDone, Message: "Document imported successfully!"})
	return tpl, nil
}

// importScanned renders and transcribes pages strictly in order, one vision
// call at a time, then assembles them. Each bitmap is dropped as soon as its
// page has been transcribed.
func (o *Orchestrator) importScanned(ctx context.Context, data []byte, total int, report ProgressFunc) (Document, error) {
	renderer, err := o.newRenderer(data)
	if err != nil {
		return Document{}, fmt.Errorf("prepare page rendering: %w", err)
	}
	defer renderer.Close()

	pace := o.newPacer()
	fragments := make([]string, 0, total)
	for page := 1; page <= total; page++ {
		report(Progress{
			Stage:   StageExtracting,
			Page:    page,
			Total:   total,
			Message: fmt.Sprintf("Scanning page %d of %d with AI vision...", page, total),
		})

		bitmap, mimeType, err := renderer.RenderPage(ctx, page)
		if err != nil {
			return Document{}, fmt.Errorf("render page %d of %d: %w", page, total, err)
		}
		if err := pace.Wait(ctx); err != nil {
			return Document{}, fmt.Errorf("waiting to scan page %d: %w", page, err)
		}
		frag, err := o.ExtractPage(ctx, llm.Image{Data: bitmap, MIMEType: mimeType}, page, total)
		pace.Done()
		if err != nil {
			return Document{}, err
		}
		fragments = append(fragments, frag)
	}

	report(Progress{
		Stage:   StageAssembling,
		Total:   total,
		Message: fmt.Sprintf("Assembling %d pages into document...", total),
	})
	return o.Assemble(ctx, fragments, total)
}
