package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vulnforge/internal/adapt"
	"vulnforge/internal/classify"
	"vulnforge/internal/config"
	"vulnforge/internal/generation"
	"vulnforge/internal/harness"
	"vulnforge/internal/refine"
	"vulnforge/internal/store"
	"vulnforge/internal/types"
)

var (
	refineMaxCycles int
	refineJSON      bool
)

var refineCmd = &cobra.Command{
	Use:   "refine [manifest.yaml]",
	Short: "Refine every target in a manifest into a working exploit or a verdict",
	Long: `Loads a YAML target manifest and runs one refinement session per target,
in parallel with staggered starts. Each session generates an exploit test,
executes it in the harness, classifies the failure, and adapts until the
exploit works, the contract is judged secure, or the cycle budget runs out.

Attempt artifacts are kept under .vulnforge/attempts/ and every cycle is
journaled to .vulnforge/journal.db.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefine,
}

func init() {
	refineCmd.Flags().IntVar(&refineMaxCycles, "max-cycles", 0, "override the per-target cycle budget")
	refineCmd.Flags().BoolVar(&refineJSON, "json", false, "emit results as JSON")
}

func runRefine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	if refineMaxCycles > 0 {
		cfg.Refine.MaxCycles = refineMaxCycles
	}

	targets, err := config.LoadManifest(args[0])
	if err != nil {
		return err
	}
	logger.Info("manifest loaded", zap.Int("targets", len(targets)))

	llm, err := buildLLM(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	sandbox, err := harness.NewSandbox(harness.Config{
		Command: cfg.Refine.HarnessCommand,
		WorkDir: cfg.Refine.WorkDir,
		Timeout: cfg.ExecTimeout(),
	})
	if err != nil {
		return err
	}

	artifacts, err := store.NewAttemptStore(cfg.Refine.AttemptsDir)
	if err != nil {
		return err
	}
	journal, err := store.OpenJournal(cfg.Refine.JournalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	session := refine.NewSession(
		adapt.New(llm),
		sandbox,
		classify.New(llm),
		artifacts,
		refine.WithMaxCycles(cfg.Refine.MaxCycles),
		refine.WithJournal(journal),
		refine.WithStatusSink(refine.LogSink{}),
	)
	scheduler := refine.NewScheduler(session, refine.WithStagger(cfg.Stagger()))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := scheduler.RunAll(ctx, targets)

	if refineJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printRunSummary(result)
	return nil
}

func buildLLM(ctx context.Context, cfg config.Config) (types.LLMClient, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key: set GEMINI_API_KEY or llm.api_key in config")
	}
	switch cfg.LLM.Backend {
	case "genai":
		return generation.NewGenAIClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	case "", "rest":
		return generation.NewGeminiClientWithConfig(generation.GeminiConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q (want rest or genai)", cfg.LLM.Backend)
	}
}

func printRunSummary(result types.ParallelResult) {
	fmt.Printf("Run %s finished in %s\n\n", result.RunID, result.Duration.Round(timePrecision))
	for _, r := range result.Results {
		fmt.Printf("  %-30s %-18s cycles=%d  %s\n",
			r.Target.ID, r.Outcome, r.Cycles, r.Duration.Round(timePrecision))
		if r.Explanation != "" {
			fmt.Printf("    %s\n", r.Explanation)
		}
		if r.Err != nil {
			fmt.Printf("    error: %v\n", r.Err)
		}
	}

	counts := make(map[types.Outcome]int)
	for _, r := range result.Results {
		counts[r.Outcome]++
	}
	fmt.Printf("\n  confirmed=%d secure=%d inconclusive=%d error=%d\n",
		counts[types.OutcomeExploitConfirmed], counts[types.OutcomeContractSecure],
		counts[types.OutcomeInconclusive], counts[types.OutcomeError])
}
