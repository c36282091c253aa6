package cmd

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanq16/tubeq/internal/output"
	"github.com/tanq16/tubeq/internal/queue"
)

const (
	defaultVideoQuality = "bestvideo"
	defaultAudioQuality = "bestaudio"
)

func newAddCmd() *cobra.Command {
	var (
		title   string
		quality string
		audio   bool
		force   bool
		noRun   bool
	)
	cmd := &cobra.Command{
		Use:     "add [URL] [--audio] [--quality ID] [--title TITLE]",
		Short:   "Queue a video or audio download",
		Aliases: []string{"yt"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := queue.EnqueueInput{
				URL:            args[0],
				Title:          title,
				Mode:           queue.ModeVideo,
				QualityID:      quality,
				ForceDuplicate: force,
			}
			if audio {
				in.Mode = queue.ModeAudio
			}
			if in.QualityID == "" {
				in.QualityID = defaultQuality(in.Mode)
			}
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			id, _, err := eng.Enqueue(in)
			if errors.Is(err, queue.ErrDuplicate) {
				dup := eng.CheckDuplicate(in.URL, in.Mode, in.QualityID)
				if p := queue.Deref(dup.ExistingOutputPath); p != "" {
					return fmt.Errorf("already downloaded to %s (use --force to queue again)", p)
				}
				return errors.New("already in the queue (use --force to queue again)")
			}
			if err != nil {
				return err
			}
			log.Debug().Str("op", "cmd/add").Str("job", id).Msg("queued")
			output.PrintSuccess(fmt.Sprintf("Queued %s %s", id, output.FDebug(queue.CanonicalURL(in.URL))))
			if noRun {
				return nil
			}
			return runQueue(cmd.Context(), eng)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Title used for the file name (defaults to the URL)")
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "yt-dlp format id (default bestvideo or bestaudio)")
	cmd.Flags().BoolVarP(&audio, "audio", "x", false, "Extract audio as mp3")
	cmd.Flags().BoolVar(&force, "force", false, "Queue even if the same download exists")
	cmd.Flags().BoolVar(&noRun, "no-run", false, "Only queue, do not start downloading")
	return cmd
}

func defaultQuality(mode queue.Mode) string {
	if mode == queue.ModeAudio {
		return defaultAudioQuality
	}
	return defaultVideoQuality
}
