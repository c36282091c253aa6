package cmd

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tanq16/tubeq/internal/output"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change download settings",
	}
	cmd.AddCommand(newSettingsGetCmd(), newSettingsSetCmd())
	return cmd
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current settings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(eng.Settings())
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	var (
		downloadDir string
		maxRetries  int
		language    string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			s := eng.Settings()
			flags := cmd.Flags()
			if flags.Changed("download-dir") {
				s.DownloadDir = downloadDir
			}
			if flags.Changed("max-retries") {
				s.MaxRetries = maxRetries
			}
			if flags.Changed("language") {
				s.Language = language
			}
			saved, err := eng.SetSettings(s)
			if err != nil {
				return err
			}
			output.PrintSuccess("Settings saved")
			output.PrintDetail("download dir: " + saved.DownloadDir)
			output.PrintDetail("max retries:  " + output.FDebug(strconv.Itoa(saved.MaxRetries)))
			output.PrintDetail("language:     " + saved.Language)
			return nil
		},
	}
	cmd.Flags().StringVar(&downloadDir, "download-dir", "", "Directory finished files are moved into")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Retries per job after the first attempt (0-10)")
	cmd.Flags().StringVar(&language, "language", "", "Interface language code")
	return cmd
}
