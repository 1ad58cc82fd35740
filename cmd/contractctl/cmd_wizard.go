package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"contractforge/internal/app"
	"contractforge/internal/apperr"
	"contractforge/internal/contract"
	"contractforge/internal/orchestrator"
)

var wizardSave bool

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Generate a template by answering questions",
	Long: `Answer five fixed questions, then five follow-up questions written for
your answers. Type :back to return to the previous question.`,
	Args: cobra.NoArgs,
	RunE: runWizard,
}

var fieldPrompts = map[string]string{
	orchestrator.FieldFormat:     "Which contract format?",
	orchestrator.FieldClientName: "Who is the client?",
	orchestrator.FieldObject:     "What is the object of the contract?",
	orchestrator.FieldPurpose:    "What is its purpose?",
	orchestrator.FieldContext:    "Any context the drafter should know?",
}

const backCommand = ":back"

func runWizard(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	tpl, err := interview(ctx, orch.NewWizard(), cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if wizardSave {
		err := withLibrary(func(lib *app.Library) error {
			saved, err := lib.Create(tpl)
			if err != nil {
				return err
			}
			tpl = saved
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved as %s (%s)\n", saved.ID, saved.Title)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return printTemplate(cmd.OutOrStdout(), tpl, false)
}

// interview drives w from line-oriented input until a template is
// generated. Validation errors are shown and the question is asked again;
// backend errors end the run.
func interview(ctx context.Context, w *orchestrator.Wizard, in io.Reader, out io.Writer) (contract.Template, error) {
	sc := bufio.NewScanner(in)
	for {
		st := w.Snapshot()
		if st.Phase == orchestrator.PhaseDone && st.Template != nil {
			return *st.Template, nil
		}

		askQuestion(out, st)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return contract.Template{}, err
			}
			return contract.Template{}, errors.New("input ended before the wizard finished")
		}
		line := strings.TrimSpace(sc.Text())

		if line == backCommand {
			if err := w.Back(); err != nil {
				return contract.Template{}, err
			}
			continue
		}

		if st.Phase == orchestrator.PhaseFixed && st.Field == orchestrator.FieldFormat {
			if err := w.SetField(orchestrator.FieldFormat, pickFormat(line)); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			continue
		}

		if err := w.Answer(line); err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			continue
		}
		if leavesPhase(st) {
			fmt.Fprintln(out, "Thinking...")
		}
		if err := w.Next(ctx); err != nil {
			if apperr.KindOf(err) == apperr.KindInvalid {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			return contract.Template{}, err
		}
	}
}

func askQuestion(out io.Writer, st orchestrator.WizardState) {
	switch st.Phase {
	case orchestrator.PhaseFixed:
		fmt.Fprintf(out, "\n[%d/5] %s\n", st.Step+1, fieldPrompts[st.Field])
		if st.Field == orchestrator.FieldFormat {
			for i, f := range orchestrator.Formats {
				fmt.Fprintf(out, "  %2d. %s\n", i+1, f)
			}
		}
	case orchestrator.PhaseFollowUp:
		fmt.Fprintf(out, "\n[Q%d/%d] %s\n", st.Step+1, len(st.Questions), st.Question)
	}
	fmt.Fprint(out, "> ")
}

// pickFormat accepts either a list number or the format name.
func pickFormat(line string) string {
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(orchestrator.Formats) {
		return orchestrator.Formats[n-1]
	}
	return line
}

// leavesPhase reports whether Next from st will call the backend.
func leavesPhase(st orchestrator.WizardState) bool {
	if st.Phase == orchestrator.PhaseFixed {
		return st.Field == orchestrator.FieldContext
	}
	return st.Step == len(st.Questions)-1
}
