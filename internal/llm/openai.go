package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultOpenAIModels is used when the configured model names are Gemini
// names or empty.
var DefaultOpenAIModels = Models{
	Reasoning: openai.GPT4oMini,
	Document:  openai.GPT4o,
	Vision:    openai.GPT4o,
}

// OpenAIBackend calls the chat completions API. Images are sent as base64
// data URLs in a multi-part user message.
type OpenAIBackend struct {
	client *openai.Client
	models Models
	logger *zap.Logger
}

func NewOpenAIBackend(apiKey string, models Models, logger *zap.Logger) *OpenAIBackend {
	return &OpenAIBackend{
		client: openai.NewClient(apiKey),
		models: openAIModels(models),
		logger: logger,
	}
}

func openAIModels(m Models) Models {
	pick := func(name, fallback string) string {
		if name == "" || isGeminiModel(name) {
			return fallback
		}
		return name
	}
	return Models{
		Reasoning: pick(m.Reasoning, DefaultOpenAIModels.Reasoning),
		Document:  pick(m.Document, DefaultOpenAIModels.Document),
		Vision:    pick(m.Vision, DefaultOpenAIModels.Vision),
	}
}

func isGeminiModel(name string) bool {
	return strings.HasPrefix(name, "gemini")
}

func (o *OpenAIBackend) Name() string { return "openai" }

func (o *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	model := o.models.For(req.Task)

	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.Image != nil {
		dataURL := fmt.Sprintf("data:%s;base64,%s", req.Image.MIMEType, base64.StdEncoding.EncodeToString(req.Image.Data))
		msg.MultiContent = []openai.ChatMessagePart{
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailHigh},
			},
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
		}
	} else {
		msg.Content = req.Prompt
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: 0.1,
	}
	// JSON mode only accepts a top-level object; arrays rely on the prompt.
	if req.Shape != nil && !req.Shape.IsArray() {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", err
	}
	o.logger.Debug("openai call complete",
		zap.String("model", model),
		zap.Stringer("task", req.Task),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response from %s", model)
	}
	return resp.Choices[0].Message.Content, nil
}
