package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kforge/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past build runs",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening build history: %w", err)
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no recorded builds")
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %-12s exit=%-3d %s\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04"),
			r.KernelVersion, r.Outcome, r.ExitCode, r.Command)
	}
	return nil
}
