package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"contractforge/internal/apperr"
)

// ErrMalformedResponse matches every decode failure via errors.Is.
var ErrMalformedResponse = &apperr.Error{Kind: apperr.KindMalformed}

var (
	// A fence line: optional language tag, nothing else on the line.
	fenceLineRe = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_+-]*[ \t]*$")
	objectRe    = regexp.MustCompile(`\{[\s\S]*\}`)
	arrayRe     = regexp.MustCompile(`\[[\s\S]*\]`)
)

// CleanText strips Markdown code-fence markers and surrounding whitespace.
// A language tag is only recognized on a fence that starts its own line;
// fences glued to content lose the backticks and nothing else. It is the
// only post-processing applied to plain-text responses.
func CleanText(raw string) string {
	s := fenceLineRe.ReplaceAllString(raw, "")
	return strings.TrimSpace(strings.ReplaceAll(s, "```", ""))
}

// Decode extracts a JSON value from a model response into out. It tries
// the fence-stripped text first, then the first brace-delimited substring
// (or bracket-delimited when shape is an array). When shape is non-nil the
// parsed value must also match it. Every failure is a Malformed error.
func Decode(raw string, shape *Shape, out any) error {
	v, err := extractJSON(raw, shape)
	if err != nil {
		return err
	}
	if shape != nil {
		if err := shape.Validate(v); err != nil {
			return apperr.Wrap(apperr.KindMalformed, "decode response", err)
		}
	}

	// Round-trip through the generic value so only the accepted candidate
	// is bound to out.
	b, err := json.Marshal(v)
	if err != nil {
		return apperr.Wrap(apperr.KindMalformed, "decode response", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return apperr.Wrap(apperr.KindMalformed, "decode response", err)
	}
	return nil
}

func extractJSON(raw string, shape *Shape) (any, error) {
	var v any
	cleaned := CleanText(raw)
	directErr := json.Unmarshal([]byte(cleaned), &v)
	if directErr == nil {
		return v, nil
	}

	patterns := []*regexp.Regexp{objectRe}
	if shape != nil && shape.IsArray() {
		patterns = []*regexp.Regexp{arrayRe, objectRe}
	}

	var lastErr error = directErr
	for _, re := range patterns {
		match := re.FindString(raw)
		if match == "" {
			continue
		}
		if err := json.Unmarshal([]byte(match), &v); err != nil {
			lastErr = err
			continue
		}
		return v, nil
	}

	return nil, &apperr.Error{
		Kind:    apperr.KindMalformed,
		Op:      "decode response",
		Message: fmt.Sprintf("malformed JSON response from model (%.80q)", cleaned),
		Cause:   lastErr,
	}
}
