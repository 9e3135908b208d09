package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kforge/internal/kernel"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List stable kernel releases from kernel.org",
	RunE:  runVersions,
}

func init() {
	rootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	handle := kernel.NewFetcher(nil).FetchVersions()

	deadline := time.Now().Add(60 * time.Second)
	for {
		if msg, ok := handle.TryRecv(); ok {
			switch msg := msg.(type) {
			case kernel.FetchDone:
				for _, v := range msg.Versions {
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", v.Version, v.Date)
				}
				return nil
			case kernel.FetchError:
				return fmt.Errorf("fetching versions: %s", msg.Reason)
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out fetching versions")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
