package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vulnforge/internal/config"
	"vulnforge/internal/contract"
	"vulnforge/internal/store"
)

const timePrecision = time.Millisecond

var opsCmd = &cobra.Command{
	Use:   "ops [contract.sol | artifact.json]",
	Short: "Enumerate a contract's callable operations",
	Long: `Prints the callable surface of a contract, the same list sessions use
for prompt construction and call validation. JSON files are parsed as ABI
artifacts; anything else is scanned as Solidity source.`,
	Args: cobra.ExactArgs(1),
	RunE: runOps,
}

func runOps(cmd *cobra.Command, args []string) error {
	path := args[0]

	var ops []contract.Operation
	if strings.HasSuffix(path, ".json") {
		var err error
		ops, err = contract.LoadABIOperations(path)
		if err != nil {
			return err
		}
	} else {
		source, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		ops = contract.ScanSource(string(source))
	}

	fmt.Print(contract.Describe(ops))
	return nil
}

var historyCmd = &cobra.Command{
	Use:   "history [target-id]",
	Short: "Show the journaled refinement cycles for a target",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfgPath, err := journalPath()
	if err != nil {
		return err
	}
	journal, err := store.OpenJournal(cfgPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	records, err := journal.History(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No journaled cycles for %q\n", args[0])
		return nil
	}

	for _, rec := range records {
		fmt.Printf("  %s  run=%s attempt=%d tier=%-11s outcome=%-15s %dms\n",
			rec.CreatedAt.Format(time.RFC3339), shortID(rec.RunID), rec.Attempt,
			rec.Tier, rec.Outcome, rec.ElapsedMS)
	}

	latestRun := records[len(records)-1].RunID
	summary, err := journal.RunSummary(latestRun)
	if err != nil {
		return err
	}
	fmt.Printf("\n  run %s totals:", shortID(latestRun))
	for _, outcome := range []string{"exploit-success", "secure", "technical", "analysis", "timeout", "canceled", "error"} {
		if n := summary[outcome]; n > 0 {
			fmt.Printf(" %s=%d", outcome, n)
		}
	}
	fmt.Println()
	return nil
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts [target-id] [storage-id]",
	Short: "List a target's stored attempt artifacts, or print one",
	Long: `With one argument, lists the storage IDs of every attempt artifact kept
for the target, oldest first. With a storage ID as second argument, prints
that artifact's code.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAttempts,
}

func runAttempts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	artifacts, err := store.NewAttemptStore(cfg.Refine.AttemptsDir)
	if err != nil {
		return err
	}

	if len(args) == 2 {
		code, err := artifacts.Load(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Print(code)
		return nil
	}

	ids, err := artifacts.List(args[0])
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Printf("No stored attempts for %q\n", args[0])
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func journalPath() (string, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return "", err
	}
	return cfg.Refine.JournalPath, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
