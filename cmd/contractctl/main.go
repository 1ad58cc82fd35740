// contractctl runs the contract template pipeline from a terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contractforge/internal/app"
	"contractforge/internal/config"
	"contractforge/internal/orchestrator"
)

var (
	configPath string
	verbose    bool
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "contractctl",
	Short: "Import, edit and generate contract templates",
	Long: `contractctl drives the same pipeline as the contractforge server.

  contractctl import lease.pdf --save       # classify, extract and reconstruct a file
  contractctl edit draft.html -i "Add a termination clause"
  contractctl ocr scan.png                  # one image straight to HTML
  contractctl wizard                        # interview-driven template generation
  contractctl templates list`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default: contractforge.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	importCmd.Flags().BoolVar(&importSave, "save", false, "Save the imported template to the library")
	importCmd.Flags().BoolVar(&importMarkdown, "markdown", false, "Print Markdown instead of HTML")

	editCmd.Flags().StringVarP(&editInstruction, "instruction", "i", "", "What to change (required)")
	editCmd.Flags().StringVarP(&editSelection, "selection", "s", "", "Only change this exact text")
	editCmd.Flags().BoolVarP(&editWrite, "write", "w", false, "Overwrite the file instead of printing")
	editCmd.MarkFlagRequired("instruction")

	wizardCmd.Flags().BoolVar(&wizardSave, "save", false, "Save the generated template to the library")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum results")
	templatesCmd.AddCommand(listCmd)
	templatesCmd.AddCommand(searchCmd)

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(ocrCmd)
	rootCmd.AddCommand(wizardCmd)
	rootCmd.AddCommand(templatesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c

	// Terminal output stays readable unless asked otherwise.
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err = app.NewLogger(level)
	return err
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func newOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	return app.NewOrchestrator(ctx, cfg, app.Backend{Name: cfg.LLM.Backend, APIKey: cfg.APIKey()}, logger)
}

// withLibrary opens the template library for the duration of fn.
func withLibrary(fn func(lib *app.Library) error) error {
	lib, err := app.OpenLibrary(cfg, logger)
	if err != nil {
		return err
	}
	defer lib.Close()
	return fn(lib)
}
