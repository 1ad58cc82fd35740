// Package app wires configuration into the long-lived components shared by
// the server and the CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"contractforge/internal/config"
	"contractforge/internal/indexer"
	"contractforge/internal/library"
	"contractforge/internal/llm"
	"contractforge/internal/orchestrator"
	"contractforge/internal/pacer"
)

// NewLogger builds a production logger, or a development logger when level
// is "debug".
func NewLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Backend names the generative backend and the credential used for it.
type Backend struct {
	Name   string
	APIKey string
}

// NewOrchestrator builds backend, invoker and orchestrator from cfg. The
// backend selection is passed separately so saved settings can override it.
func NewOrchestrator(ctx context.Context, cfg *config.Config, b Backend, logger *zap.Logger) (*orchestrator.Orchestrator, error) {
	backend, err := llm.NewBackend(ctx, llm.BackendConfig{
		Name:   b.Name,
		APIKey: b.APIKey,
		Models: llm.Models{
			Reasoning: cfg.LLM.ModelReasoning,
			Document:  cfg.LLM.ModelDocument,
			Vision:    cfg.LLM.ModelVision,
		},
		Logger: logger.Named("llm"),
	})
	if err != nil {
		return nil, err
	}

	inv := llm.NewInvoker(backend,
		llm.WithRetryPolicy(llm.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxJitter:   cfg.Retry.MaxJitter,
		}),
		llm.WithLogger(logger.Named("llm")),
	)
	return orchestrator.New(inv,
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithTextThreshold(cfg.Import.TextThreshold),
		orchestrator.WithPacer(pacer.IntervalFactory(cfg.Import.PageInterval)),
		orchestrator.WithRenderScale(cfg.Import.RenderScale),
	), nil
}

// Library is the template store together with its search index.
type Library struct {
	*library.Store
	index *indexer.TemplateIndex
}

// Close releases the search index.
func (l *Library) Close() error {
	return l.index.Close()
}

// OpenLibrary opens DATA_DIR/templates and its bleve index.
func OpenLibrary(cfg *config.Config, logger *zap.Logger) (*Library, error) {
	dir := filepath.Join(cfg.Server.DataDir, "templates")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create library dir: %w", err)
	}
	idx, err := indexer.Open(filepath.Join(dir, "templates.bleve"))
	if err != nil {
		return nil, fmt.Errorf("open template index: %w", err)
	}
	store, err := library.Open(dir,
		library.WithIndex(idx),
		library.WithLogger(logger.Named("library")),
	)
	if err != nil {
		idx.Close()
		return nil, err
	}
	return &Library{Store: store, index: idx}, nil
}
