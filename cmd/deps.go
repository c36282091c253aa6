package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tanq16/tubeq/internal/deps"
	"github.com/tanq16/tubeq/internal/output"
)

func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Inspect or update the managed yt-dlp",
	}
	cmd.AddCommand(newDepsStatusCmd(), newDepsUpdateCmd())
	return cmd
}

func newDepsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the resolved tools and their versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			b := eng.Dependencies()
			t := output.NewTable([]string{"Tool", "Path", "Found"})
			for _, name := range []string{deps.YtDlp, deps.FFmpeg} {
				path, ok := b.Find(name)
				t.AddRow(name, path, fmt.Sprint(ok))
			}
			t.PrintTable(false)
			version, path, err := b.InstalledVersion(cmd.Context())
			if err != nil {
				output.PrintWarning(fmt.Sprintf("yt-dlp version unknown: %v", err))
				return nil
			}
			output.PrintInfo(fmt.Sprintf("yt-dlp %s %s", version, output.FDebug(path)))
			if latest, err := b.LatestVersion(cmd.Context()); err == nil && latest != version {
				output.PrintWarning(fmt.Sprintf("yt-dlp %s is available, run 'tubeq deps update'", latest))
			}
			return nil
		},
	}
}

func newDepsUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Download the latest yt-dlp release into the managed directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			latest, updated, err := eng.Dependencies().Update(cmd.Context())
			if err != nil {
				return err
			}
			if !updated {
				output.PrintSuccess(fmt.Sprintf("yt-dlp %s is already up to date", latest))
				return nil
			}
			output.PrintSuccess(fmt.Sprintf("yt-dlp updated to %s", latest))
			return nil
		},
	}
}
