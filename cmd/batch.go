package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tanq16/tubeq/internal/output"
	"github.com/tanq16/tubeq/internal/queue"
)

// BatchFile is a YAML list of downloads:
//
//	- url: https://youtu.be/abc
//	  title: Some talk
//	  mode: audio
//	  quality: "140"
type BatchFile []queue.EnqueueInput

func readBatch(path string) ([]queue.EnqueueInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}
	var batch BatchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %w", err)
	}
	var entries []queue.EnqueueInput
	for i, entry := range batch {
		if strings.TrimSpace(entry.URL) == "" {
			log.Warn().Str("op", "cmd/batch").Msgf("entry %d has no url, skipping", i+1)
			continue
		}
		entry.Mode = queue.Mode(strings.ToLower(strings.TrimSpace(string(entry.Mode))))
		if entry.Mode == "" {
			entry.Mode = queue.ModeVideo
		}
		if !entry.Mode.Valid() {
			log.Warn().Str("op", "cmd/batch").Msgf("entry %d has unknown mode %q, skipping", i+1, entry.Mode)
			continue
		}
		if entry.QualityID == "" {
			entry.QualityID = defaultQuality(entry.Mode)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func newBatchCmd() *cobra.Command {
	var noRun bool
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Queue multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := readBatch(args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return errors.New("no valid entries found in the batch file")
			}
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			queued := 0
			for _, entry := range entries {
				if _, _, err := eng.Enqueue(entry); err != nil {
					output.PrintWarning(fmt.Sprintf("Skipping %s: %v", entry.URL, err))
					continue
				}
				queued++
			}
			output.PrintSuccess(fmt.Sprintf("Queued %d of %d", queued, len(entries)))
			if noRun || queued == 0 {
				return nil
			}
			return runQueue(cmd.Context(), eng)
		},
	}
	cmd.Flags().BoolVar(&noRun, "no-run", false, "Only queue, do not start downloading")
	return cmd
}
