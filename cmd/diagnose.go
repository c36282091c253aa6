package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tanq16/tubeq/internal/deps"
	"github.com/tanq16/tubeq/internal/output"
)

func newDiagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check yt-dlp, ffmpeg and the download directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			output.PrintHeader("Diagnostics")
			rep := eng.Diagnose(cmd.Context())
			printCheck(deps.YtDlp, rep.YtDlp)
			printCheck(deps.FFmpeg, rep.FFmpeg)
			dir := eng.Settings().DownloadDir
			if rep.DownloadDirWritable {
				output.PrintSuccess("download dir writable " + output.FDebug(dir))
			} else {
				output.PrintError("download dir not writable " + output.FDebug(dir))
			}
			if rep.BootstrapError != "" {
				output.PrintWarning("bootstrap: " + rep.BootstrapError)
			}
			output.PrintDetail(rep.Message)
			if !rep.YtDlp.OK || !rep.FFmpeg.OK || !rep.DownloadDirWritable {
				return errors.New("diagnostics failed")
			}
			return nil
		},
	}
}

func printCheck(name string, c deps.Check) {
	if c.OK {
		output.PrintSuccess(fmt.Sprintf("%s %s", name, output.FDebug(c.Path)))
		return
	}
	output.PrintError(fmt.Sprintf("%s: %s %s", name, c.Reason, output.FDebug(c.Path)))
}
