package llm

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

// ========== NewBackend ==========

func TestNewBackend_RequiresKey(t *testing.T) {
	if _, err := NewBackend(context.Background(), BackendConfig{Name: "openai"}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestNewBackend_UnknownName(t *testing.T) {
	if _, err := NewBackend(context.Background(), BackendConfig{Name: "mistral", APIKey: "k"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewBackend_OpenAI(t *testing.T) {
	b, err := NewBackend(context.Background(), BackendConfig{Name: "OpenAI", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != "openai" {
		t.Errorf("Name = %q, want openai", b.Name())
	}
}

func TestOpenAIModels_ReplacesGeminiNames(t *testing.T) {
	got := openAIModels(Models{Reasoning: "gemini-3-flash-preview", Document: "gpt-4.1", Vision: ""})
	want := Models{Reasoning: DefaultOpenAIModels.Reasoning, Document: "gpt-4.1", Vision: DefaultOpenAIModels.Vision}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("models mismatch (-want +got):\n%s", diff)
	}
}

func TestModelsFor(t *testing.T) {
	m := Models{Reasoning: "r", Document: "d", Vision: "v"}
	if m.For(TaskReasoning) != "r" || m.For(TaskDocument) != "d" || m.For(TaskVision) != "v" {
		t.Errorf("For returned wrong model: %+v", m)
	}
}

// ========== toGenaiSchema ==========

func TestToGenaiSchema_Object(t *testing.T) {
	got := toGenaiSchema(TemplateShape.Schema)
	if got.Type != genai.TypeObject {
		t.Errorf("type = %q, want OBJECT", got.Type)
	}
	if diff := cmp.Diff([]string{"title", "category", "html"}, got.Required); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
	for _, p := range []string{"title", "category", "html"} {
		if got.Properties[p] == nil || got.Properties[p].Type != genai.TypeString {
			t.Errorf("property %s = %+v, want STRING", p, got.Properties[p])
		}
	}
}

func TestToGenaiSchema_Array(t *testing.T) {
	got := toGenaiSchema(QuestionsShape.Schema)
	if got.Type != genai.TypeArray {
		t.Errorf("type = %q, want ARRAY", got.Type)
	}
	if got.Items == nil || got.Items.Type != genai.TypeString {
		t.Errorf("items = %+v, want STRING", got.Items)
	}
	if got.MinItems == nil || *got.MinItems != FollowUpQuestionCount {
		t.Errorf("minItems = %v, want %d", got.MinItems, FollowUpQuestionCount)
	}
}
