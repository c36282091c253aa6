package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tanq16/tubeq/internal/output"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover temporary download files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			freed, err := eng.Clean()
			if err != nil {
				return err
			}
			output.PrintSuccess(fmt.Sprintf("Temporary files cleaned up (%s freed)", output.FormatBytes(uint64(freed))))
			return nil
		},
	}
}
