package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/tanq16/tubeq/internal/output"
	"github.com/tanq16/tubeq/internal/queue"
)

func newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "Show the queue",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			snap := eng.Snapshot()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printSnapshot(snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the queue as JSON")
	return cmd
}

func printSnapshot(snap queue.Snapshot) {
	if len(snap.Items) == 0 {
		output.PrintInfo("Queue is empty")
		return
	}
	output.JobTable(snap).PrintTable(false)
}
