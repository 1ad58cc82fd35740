package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"contractforge/internal/apperr"
	"contractforge/internal/llm"
)

var (
	commentRe     = regexp.MustCompile(`<!--[\s\S]*?-->`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	betweenTagsRe = regexp.MustCompile(`>\s+<`)
)

// OptimizeHTML shrinks html before it is sent to the backend: comments are
// removed, whitespace runs become one space and whitespace between tags is
// dropped. OptimizeHTML(OptimizeHTML(s)) == OptimizeHTML(s).
func OptimizeHTML(s string) string {
	if s == "" {
		return ""
	}
	// Removing one comment can splice a new one together.
	for {
		next := commentRe.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = betweenTagsRe.ReplaceAllString(s, "><")
	return strings.TrimSpace(s)
}

// Edit applies one natural-language instruction to the current document and
// returns the new document state. With a selection the change is scoped to
// that literal text; the rest of the document is sent as context.
func (o *Orchestrator) Edit(ctx context.Context, html, instruction, selection string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", apperr.New(apperr.KindInvalid, "edit", "instruction is required")
	}
	optimized := OptimizeHTML(html)

	out, err := o.inv.Text(ctx, llm.Request{
		Task:   llm.TaskDocument,
		Prompt: editRequest(optimized, instruction, selection),
	})
	if err != nil {
		return "", fmt.Errorf("edit: %w", err)
	}

	if selection != "" && !SelectionPreserved(optimized, out, selection) {
		o.logger.Warn("scoped edit changed content outside the selection",
			zap.String("selection", selection),
			zap.Int("before_bytes", len(optimized)),
			zap.Int("after_bytes", len(out)),
		)
	}
	return out, nil
}

// SelectionPreserved reports whether the content before and after the first
// occurrence of selection in before is still present, unchanged, around
// whatever replaced it in after. When selection does not occur verbatim in
// before (for example it spans tags) nothing can be checked and the result
// is true.
func SelectionPreserved(before, after, selection string) bool {
	idx := strings.Index(before, selection)
	if selection == "" || idx < 0 {
		return true
	}
	prefix := before[:idx]
	suffix := before[idx+len(selection):]
	after = OptimizeHTML(after)
	return len(after) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(after, prefix) &&
		strings.HasSuffix(after, suffix)
}
