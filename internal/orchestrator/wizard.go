package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contractforge/internal/apperr"
	"contractforge/internal/contract"
	"contractforge/internal/llm"
)

// Formats is the fixed set of contract formats offered in the first step.
var Formats = []string{
	"Master Agreement",
	"Service Order",
	"MOU",
	"NDA",
	"SLA",
	"Distribution DTC",
	"Distribution GP",
	"Distribution Fixe",
	"Distribution POSTP",
	"Recharge",
	"Partenariat",
	"GNV",
	"Avenant",
}

// Phase-1 field keys, in step order.
const (
	FieldFormat     = "format"
	FieldClientName = "clientName"
	FieldObject     = "object"
	FieldPurpose    = "purpose"
	FieldContext    = "context"
)

var fieldOrder = []string{FieldFormat, FieldClientName, FieldObject, FieldPurpose, FieldContext}

// Answers holds the fixed phase-1 answers.
type Answers struct {
	Format     string `json:"format"`
	ClientName string `json:"clientName"`
	Object     string `json:"object"`
	Purpose    string `json:"purpose"`
	Context    string `json:"context"`
}

func (a *Answers) field(key string) *string {
	switch key {
	case FieldFormat:
		return &a.Format
	case FieldClientName:
		return &a.ClientName
	case FieldObject:
		return &a.Object
	case FieldPurpose:
		return &a.Purpose
	case FieldContext:
		return &a.Context
	}
	return nil
}

func (a Answers) complete() bool {
	for _, key := range fieldOrder {
		if strings.TrimSpace(*a.field(key)) == "" {
			return false
		}
	}
	return true
}

// Phase of a wizard run.
type Phase int

const (
	PhaseFixed    Phase = 1
	PhaseFollowUp Phase = 2
	PhaseDone     Phase = 3
)

// GeneratedTemplate is the wizard's terminal model output.
type GeneratedTemplate struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	HTML     string `json:"html"`
}

// WizardState is a point-in-time copy of a wizard run.
type WizardState struct {
	ID        string             `json:"id"`
	Phase     Phase              `json:"phase"`
	Step      int                `json:"step"`
	Field     string             `json:"field,omitempty"`
	Question  string             `json:"question,omitempty"`
	Answers   Answers            `json:"answers"`
	Questions []string           `json:"questions,omitempty"`
	FollowUps []string           `json:"followUps,omitempty"`
	Busy      bool               `json:"busy"`
	Template  *contract.Template `json:"template,omitempty"`
}

// Wizard is one two-phase interview. Backend calls happen without the lock
// held; while one is in flight every mutating call fails with Invalid.
type Wizard struct {
	ID string

	orch *Orchestrator

	mu        sync.Mutex
	phase     Phase
	step      int
	answers   Answers
	questions []string
	followUps map[int]string
	busy      bool
	result    *contract.Template
}

// NewWizard starts a run at phase 1, step 0.
func (o *Orchestrator) NewWizard() *Wizard {
	return &Wizard{
		ID:        uuid.NewString(),
		orch:      o,
		phase:     PhaseFixed,
		followUps: make(map[int]string),
	}
}

func wizardErr(op, msg string) error {
	return apperr.New(apperr.KindInvalid, "wizard."+op, msg)
}

// guard must be called with w.mu held.
func (w *Wizard) guard(op string) error {
	if w.busy {
		return wizardErr(op, "a request is already in progress")
	}
	if w.phase == PhaseDone {
		return wizardErr(op, "wizard is already complete")
	}
	return nil
}

// SetField sets a phase-1 answer by key. Choosing a format while on the
// format step advances to the next step.
func (w *Wizard) SetField(key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setField("set_field", key, value)
}

// setField must be called with w.mu held.
func (w *Wizard) setField(op, key, value string) error {
	if err := w.guard(op); err != nil {
		return err
	}
	if w.phase != PhaseFixed {
		return wizardErr(op, "fixed questions are already answered")
	}
	dst := w.answers.field(key)
	if dst == nil {
		return wizardErr(op, fmt.Sprintf("unknown field %q", key))
	}
	value = strings.TrimSpace(value)
	if key == FieldFormat && value != "" && !slices.Contains(Formats, value) {
		return wizardErr(op, fmt.Sprintf("unknown contract format %q", value))
	}
	*dst = value

	if key == FieldFormat && value != "" && w.step == 0 {
		w.step = 1
	}
	return nil
}

// Answer records value for the current step of either phase.
func (w *Wizard) Answer(value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.phase == PhaseFixed {
		return w.setField("answer", fieldOrder[w.step], value)
	}
	if err := w.guard("answer"); err != nil {
		return err
	}
	w.followUps[w.step] = strings.TrimSpace(value)
	return nil
}

// Next advances one step when the current answer is non-empty. Leaving the
// last fixed step fetches the follow-up questions; leaving the last
// follow-up step generates the template.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	if err := w.guard("next"); err != nil {
		w.mu.Unlock()
		return err
	}

	if w.phase == PhaseFixed {
		key := fieldOrder[w.step]
		if strings.TrimSpace(*w.answers.field(key)) == "" {
			w.mu.Unlock()
			return wizardErr("next", fmt.Sprintf("%s is required", key))
		}
		if w.step < len(fieldOrder)-1 {
			w.step++
			w.mu.Unlock()
			return nil
		}
		w.mu.Unlock()
		return w.fetchQuestions(ctx)
	}

	if strings.TrimSpace(w.followUps[w.step]) == "" {
		w.mu.Unlock()
		return wizardErr("next", "an answer is required")
	}
	if w.step < len(w.questions)-1 {
		w.step++
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()
	_, err := w.Finalize(ctx)
	return err
}

// Back moves one step back. From the first follow-up it returns to the last
// fixed step; at the very first step it does nothing.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guard("back"); err != nil {
		return err
	}
	switch {
	case w.step > 0:
		w.step--
	case w.phase == PhaseFollowUp:
		w.phase = PhaseFixed
		w.step = len(fieldOrder) - 1
	}
	return nil
}

// fetchQuestions performs the phase 1 -> 2 transition. On failure the run
// stays on the last fixed step so the caller can retry.
func (w *Wizard) fetchQuestions(ctx context.Context) error {
	w.mu.Lock()
	if !w.answers.complete() {
		w.mu.Unlock()
		return wizardErr("next", "all five fixed answers are required")
	}
	answers := w.answers
	w.busy = true
	w.mu.Unlock()

	var questions []string
	err := w.orch.inv.JSON(ctx, llm.Request{
		Task:   llm.TaskReasoning,
		Prompt: questionsRequest(answers, llm.FollowUpQuestionCount),
		Shape:  llm.QuestionsShape,
	}, &questions)
	if err == nil {
		for _, q := range questions {
			if strings.TrimSpace(q) == "" {
				err = &apperr.Error{Kind: apperr.KindMalformed, Op: "wizard.questions", Message: "empty follow-up question"}
				break
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if err != nil {
		w.orch.logger.Warn("follow-up question generation failed", zap.String("wizard", w.ID), zap.Error(err))
		return fmt.Errorf("generate follow-up questions: %w", err)
	}
	w.questions = questions
	w.followUps = make(map[int]string, len(questions))
	w.phase = PhaseFollowUp
	w.step = 0
	return nil
}

// Finalize generates the template from every answer. It is rejected until
// each follow-up question has a non-empty answer. A failed call leaves the
// run on the last follow-up step.
func (w *Wizard) Finalize(ctx context.Context) (contract.Template, error) {
	w.mu.Lock()
	if err := w.guard("finalize"); err != nil {
		w.mu.Unlock()
		return contract.Template{}, err
	}
	if w.phase != PhaseFollowUp {
		w.mu.Unlock()
		return contract.Template{}, wizardErr("finalize", "follow-up questions have not been generated")
	}
	for i := range w.questions {
		if strings.TrimSpace(w.followUps[i]) == "" {
			w.mu.Unlock()
			return contract.Template{}, wizardErr("finalize", fmt.Sprintf("follow-up question %d is unanswered", i+1))
		}
	}
	answers := w.answers
	questions := slices.Clone(w.questions)
	followUps := make(map[int]string, len(w.followUps))
	for k, v := range w.followUps {
		followUps[k] = v
	}
	w.busy = true
	w.mu.Unlock()

	var gen GeneratedTemplate
	err := w.orch.inv.JSON(ctx, llm.Request{
		Task:   llm.TaskDocument,
		Prompt: templateRequest(answers, questions, followUps),
		Shape:  llm.TemplateShape,
	}, &gen)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if err != nil {
		w.orch.logger.Warn("template generation failed", zap.String("wizard", w.ID), zap.Error(err))
		return contract.Template{}, fmt.Errorf("generate template: %w", err)
	}

	category := strings.TrimSpace(gen.Category)
	if category == "" {
		category = contract.CategoryGeneral
	}
	tpl := contract.New(
		gen.Title,
		fmt.Sprintf("AI-architected %s for %s.", answers.Format, answers.ClientName),
		category,
		gen.HTML,
	)
	w.result = &tpl
	w.phase = PhaseDone
	return tpl, nil
}

// Snapshot returns a copy of the current state.
func (w *Wizard) Snapshot() WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := WizardState{
		ID:        w.ID,
		Phase:     w.phase,
		Step:      w.step,
		Answers:   w.answers,
		Questions: slices.Clone(w.questions),
		Busy:      w.busy,
	}
	switch w.phase {
	case PhaseFixed:
		s.Field = fieldOrder[w.step]
	case PhaseFollowUp:
		s.Question = w.questions[w.step]
	}
	if len(w.questions) > 0 {
		s.FollowUps = make([]string, len(w.questions))
		for i := range w.questions {
			s.FollowUps[i] = w.followUps[i]
		}
	}
	if w.result != nil {
		tpl := *w.result
		s.Template = &tpl
	}
	return s
}
