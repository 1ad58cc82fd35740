package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Task selects which configured model serves a request.
type Task int

const (
	TaskReasoning Task = iota // short structured answers (follow-up questions)
	TaskDocument              // long-form HTML generation and reconstruction
	TaskVision                // page images to HTML
)

func (t Task) String() string {
	switch t {
	case TaskReasoning:
		return "reasoning"
	case TaskDocument:
		return "document"
	case TaskVision:
		return "vision"
	default:
		return fmt.Sprintf("task(%d)", int(t))
	}
}

// Image is inline binary content sent alongside a prompt.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request is one call to the generative backend.
type Request struct {
	Task   Task
	Prompt string
	Image  *Image
	// Shape, when set, asks the backend for JSON matching it and is used to
	// validate the decoded response.
	Shape *Shape
}

// Backend defines the interface for different generative backends.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Models maps each task to a concrete model name.
type Models struct {
	Reasoning string
	Document  string
	Vision    string
}

func (m Models) For(t Task) string {
	switch t {
	case TaskVision:
		return m.Vision
	case TaskReasoning:
		return m.Reasoning
	default:
		return m.Document
	}
}

// BackendConfig is everything needed to construct a Backend. The credential
// is injected here once; backends never read it from the environment.
type BackendConfig struct {
	Name   string // "gemini" or "openai"
	APIKey string
	Models Models
	Logger *zap.Logger
}

// NewBackend creates the backend named in cfg.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s backend requires an API key", cfg.Name)
	}
	switch strings.ToLower(cfg.Name) {
	case "gemini", "":
		return NewGeminiBackend(ctx, cfg.APIKey, cfg.Models, cfg.Logger)
	case "openai":
		return NewOpenAIBackend(cfg.APIKey, cfg.Models, cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unknown LLM backend: %s", cfg.Name)
	}
}
