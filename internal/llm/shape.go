package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Shape is the expected structure of a JSON response, expressed as JSON
// Schema. It doubles as the structured-output hint sent to the backend.
type Shape struct {
	Name   string
	Schema map[string]any

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// IsArray reports whether the shape's top level is a JSON array.
func (s *Shape) IsArray() bool {
	t, _ := s.Schema["type"].(string)
	return t == "array"
}

// Validate checks a decoded JSON value against the shape.
func (s *Shape) Validate(v any) error {
	s.once.Do(s.compile)
	if s.err != nil {
		return s.err
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("response does not match %s shape: %w", s.Name, err)
	}
	return nil
}

func (s *Shape) compile() {
	b, err := json.Marshal(s.Schema)
	if err != nil {
		s.err = fmt.Errorf("marshal %s schema: %w", s.Name, err)
		return
	}
	url := s.Name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		s.err = fmt.Errorf("add %s schema: %w", s.Name, err)
		return
	}
	s.compiled, s.err = compiler.Compile(url)
	if s.err != nil {
		s.err = fmt.Errorf("compile %s schema: %w", s.Name, s.err)
	}
}

func stringProp() map[string]any {
	return map[string]any{"type": "string"}
}

// ArrayOfStrings describes a JSON array of exactly n non-empty strings.
func ArrayOfStrings(name string, n int) *Shape {
	return &Shape{
		Name: name,
		Schema: map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string", "minLength": 1},
			"minItems": n,
			"maxItems": n,
		},
	}
}

// ObjectOfStrings describes a JSON object whose listed properties are all
// required strings.
func ObjectOfStrings(name string, props ...string) *Shape {
	properties := make(map[string]any, len(props))
	for _, p := range props {
		properties[p] = stringProp()
	}
	return &Shape{
		Name: name,
		Schema: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   props,
		},
	}
}

// FollowUpQuestionCount is how many follow-up questions the wizard asks for.
const FollowUpQuestionCount = 5

var (
	// QuestionsShape is the dynamic follow-up question list.
	QuestionsShape = ArrayOfStrings("questions", FollowUpQuestionCount)
	// TemplateShape is a freshly generated wizard template.
	TemplateShape = ObjectOfStrings("template", "title", "category", "html")
	// DocumentShape is a reconstructed, assembled or synthesized document.
	DocumentShape = ObjectOfStrings("document", "title", "html")
)
