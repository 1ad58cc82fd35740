package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiBackend calls the Gemini API through the genai SDK.
type GeminiBackend struct {
	client *genai.Client
	models Models
	logger *zap.Logger
}

func NewGeminiBackend(ctx context.Context, apiKey string, models Models, logger *zap.Logger) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiBackend{client: client, models: models, logger: logger}, nil
}

func (g *GeminiBackend) Name() string { return "gemini" }

func (g *GeminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	model := g.models.For(req.Task)

	var contents []*genai.Content
	if req.Image != nil {
		parts := []*genai.Part{
			genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType),
			genai.NewPartFromText(req.Prompt),
		}
		contents = []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	} else {
		contents = genai.Text(req.Prompt)
	}

	var config *genai.GenerateContentConfig
	if req.Shape != nil {
		config = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   toGenaiSchema(req.Shape.Schema),
		}
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", err
	}
	g.logger.Debug("gemini call complete",
		zap.String("model", model),
		zap.Stringer("task", req.Task),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: empty response from %s", model)
	}
	return text, nil
}

// toGenaiSchema converts the JSON Schema subset used by Shape into the
// SDK's structured-output schema.
func toGenaiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(pm)
			}
		}
	}
	switch req := m["required"].(type) {
	case []string:
		s.Required = req
		s.PropertyOrdering = req
	case []any:
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
		s.PropertyOrdering = s.Required
	}
	if n, ok := intValue(m["minItems"]); ok {
		s.MinItems = genai.Ptr(n)
	}
	if n, ok := intValue(m["maxItems"]); ok {
		s.MaxItems = genai.Ptr(n)
	}
	return s
}

func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
