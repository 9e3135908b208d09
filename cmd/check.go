package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"kforge/internal/registry"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check tracked patches for upstream updates",
	Long:  `Probes the source URL of every tracked patch and updates its freshness in the registry. Patches without a recorded source are skipped.`,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	store, err := registry.Load(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("loading patch registry: %w", err)
	}
	if store.Len() == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tracked patches")
		return nil
	}

	client := &http.Client{Timeout: time.Duration(cfg.Check.TimeoutSeconds) * time.Second}
	checker := registry.NewChecker(client, time.Duration(cfg.Check.TTLMinutes)*time.Minute)
	handle := checker.Sweep(store.All())

	deadline := time.Now().Add(5 * time.Minute)
	for {
		for _, msg := range handle.Drain() {
			key, _ := registry.ApplyCheck(store, msg)
			if rec, ok := store.Get(key); ok {
				line := fmt.Sprintf("%-40s %s", key, rec.Freshness())
				if rec.StatusReason != "" {
					line += "  (" + rec.StatusReason + ")"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
		}
		if handle.Exhausted() {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out checking patches")
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Skipped records still show up in the report.
	for _, rec := range store.All() {
		if rec.SourceURL == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", rec.Key(), rec.Freshness())
		}
	}

	if store.Dirty() {
		if err := store.Save(); err != nil {
			return fmt.Errorf("saving registry: %w", err)
		}
	}
	return nil
}
