package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"contractforge/internal/app"
	"contractforge/internal/contract"
	"contractforge/internal/extractor"
	"contractforge/internal/llm"
	"contractforge/internal/orchestrator"
)

var (
	importSave     bool
	importMarkdown bool

	editInstruction string
	editSelection   string
	editWrite       bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Convert a PDF, Word document or image into a template",
	Long: `Classify the file, extract its content and reconstruct it as a template.

Text PDFs and Word documents are reconstructed in one call. Scanned PDFs are
rendered and transcribed page by page, then assembled. Images are transcribed
as a single page.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var editCmd = &cobra.Command{
	Use:   "edit <file.html>",
	Short: "Apply a natural-language edit to an HTML document",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

var ocrCmd = &cobra.Command{
	Use:   "ocr <image>",
	Short: "Analyze one image and synthesize a document from it",
	Args:  cobra.ExactArgs(1),
	RunE:  runOCR,
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}

	src := extractor.Source{Name: filepath.Base(path), Data: data}
	tpl, err := orch.Import(ctx, src, progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	if importSave {
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
	return printTemplate(cmd.OutOrStdout(), tpl, importMarkdown)
}

// progressPrinter writes one line per import stage; page updates reuse the
// same line.
func progressPrinter(w io.Writer) orchestrator.ProgressFunc {
	return func(p orchestrator.Progress) {
		if p.Total > 0 && p.Page > 0 {
			fmt.Fprintf(w, "\r[%d/%d] %s", p.Page, p.Total, p.Message)
			return
		}
		fmt.Fprintf(w, "\r%s\n", p.Message)
	}
}

func printTemplate(w io.Writer, tpl contract.Template, markdown bool) error {
	fmt.Fprintf(w, "<!-- %s | %s | %d placeholders -->\n", tpl.Title, tpl.Category, len(tpl.Placeholders))
	if !markdown {
		_, err := fmt.Fprintln(w, tpl.Content)
		return err
	}
	md, err := contract.Markdown(tpl.Content)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, md)
	return err
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}

	updated, err := orch.Edit(ctx, string(data), editInstruction, editSelection)
	if err != nil {
		return err
	}
	if editWrite {
		return os.WriteFile(path, []byte(updated), 0644)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), updated)
	return err
}

func runOCR(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	path := args[0]
	if extractor.DetectFormat(path, "") != extractor.FormatImage {
		return fmt.Errorf("%s is not an image", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}

	doc, err := orch.ProcessOCR(ctx, llm.Image{Data: data, MIMEType: extractor.ImageMIMEType(path, "")})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "<!-- %s -->\n%s\n", doc.Title, doc.HTML)
	return nil
}
