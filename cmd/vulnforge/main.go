package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vulnforge/internal/config"
	"vulnforge/internal/logging"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vulnforge",
	Short: "vulnforge - automated exploit refinement for smart contracts",
	Long: `vulnforge takes vulnerability hypotheses about smart contracts and tries
to turn each one into a working proof-of-concept exploit test.

Each target runs through a generate-execute-classify-adapt loop: an exploit
test is generated, executed in a sandboxed harness, its failure analyzed,
and the next attempt adapted from what was learned. Sessions for multiple
targets run in parallel with staggered starts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// initCmd writes a default workspace configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .vulnforge/config.json to the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default(workspace)
		if err := cfg.Save(workspace); err != nil {
			return err
		}
		fmt.Printf("Wrote %s/.vulnforge/config.json\n", workspace)
		fmt.Println("Set GEMINI_API_KEY (or llm.api_key) before running refine.")
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: cwd)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(refineCmd)
	rootCmd.AddCommand(opsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(attemptsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
