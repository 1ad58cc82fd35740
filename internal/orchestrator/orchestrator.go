// Package orchestrator turns document sources and user intents into
// placeholder-annotated HTML contracts. Every backend call goes through a
// single llm.Invoker, which is the only place retries happen.
package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"contractforge/internal/extractor"
	"contractforge/internal/llm"
	"contractforge/internal/pacer"
)

// SourceType names the origin of text handed to Reconstruct.
type SourceType int

const (
	SourceWord SourceType = iota
	SourcePDF
)

func (s SourceType) String() string {
	if s == SourceWord {
		return "docx"
	}
	return "pdf"
}

// Label is the human description used in prompts.
func (s SourceType) Label() string {
	if s == SourceWord {
		return "Microsoft Word document"
	}
	return "Text-based PDF"
}

// Document is a titled HTML document produced by the backend.
type Document struct {
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// PageRenderer rasterizes pages of one PDF, 1-based.
type PageRenderer interface {
	RenderPage(ctx context.Context, page int) (data []byte, mimeType string, err error)
	Close() error
}

// RendererFactory opens a renderer over PDF bytes.
type RendererFactory func(data []byte) (PageRenderer, error)

// Orchestrator runs the extraction, assembly, editing and wizard flows.
// It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	inv         *llm.Invoker
	logger      *zap.Logger
	threshold   float64
	renderScale float64
	newPacer    pacer.Factory
	newRenderer RendererFactory
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTextThreshold sets the average characters per page above which a PDF
// takes the text path. Zero sends any PDF with a text layer down the text
// path; negative values are ignored.
func WithTextThreshold(chars float64) Option {
	return func(o *Orchestrator) {
		if chars >= 0 {
			o.threshold = chars
		}
	}
}

// WithPacer sets the pacing policy for vision calls during scanned imports.
// A fresh pacer is built for every import.
func WithPacer(f pacer.Factory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newPacer = f
		}
	}
}

func WithRenderScale(scale float64) Option {
	return func(o *Orchestrator) {
		if scale > 0 {
			o.renderScale = scale
		}
	}
}

// WithRenderer replaces the PDF page rasterizer.
func WithRenderer(f RendererFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newRenderer = f
		}
	}
}

func New(inv *llm.Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		inv:         inv,
		logger:      zap.NewNop(),
		threshold:   extractor.DefaultTextThreshold,
		renderScale: extractor.DefaultRenderScale,
		newPacer:    pacer.IntervalFactory(pacer.DefaultInterval),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.newRenderer == nil {
		o.newRenderer = func(data []byte) (PageRenderer, error) {
			return extractor.NewRasterizer(data, o.renderScale, o.logger.Named("render"))
		}
	}
	return o
}
