package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tanq16/tubeq/internal/engine"
	"github.com/tanq16/tubeq/internal/output"
	"github.com/tanq16/tubeq/internal/queue"
)

// resolveID accepts a full job id or a unique prefix of one.
func resolveID(snap queue.Snapshot, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	var matches []string
	for _, j := range snap.Items {
		if j.ID == ref {
			return j.ID, nil
		}
		if ref != "" && strings.HasPrefix(j.ID, ref) {
			matches = append(matches, j.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", queue.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("job id prefix %q is ambiguous", ref)
	}
}

type jobAction func(eng *engine.Engine, id string) (queue.Snapshot, error)

func newJobCmd(use, short, verb string, action jobAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [JOB_ID]...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			for _, ref := range args {
				id, err := resolveID(eng.Snapshot(), ref)
				if err != nil {
					return err
				}
				snap, err := action(eng, id)
				if err != nil {
					return err
				}
				j, _ := snap.Find(id)
				output.PrintSuccess(fmt.Sprintf("%s %s %s", verb, output.ShortID(id), output.FDebug("("+string(j.Status)+")")))
			}
			return nil
		},
	}
}

func newPauseCmd() *cobra.Command {
	return newJobCmd("pause", "Pause queued or running jobs", "Paused", (*engine.Engine).Pause)
}

func newCancelCmd() *cobra.Command {
	return newJobCmd("cancel", "Cancel jobs", "Canceled", (*engine.Engine).Cancel)
}

func newResumeCmd() *cobra.Command {
	cmd := newJobCmd("resume", "Queue paused, failed or canceled jobs again", "Resumed", (*engine.Engine).Resume)
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed, failed and canceled jobs from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			before := len(eng.Snapshot().Items)
			after := len(eng.ClearTerminal().Items)
			output.PrintSuccess(fmt.Sprintf("Cleared %d job(s)", before-after))
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var keepFile bool
	cmd := &cobra.Command{
		Use:   "delete [OUTPUT_PATH]",
		Short: "Forget the jobs that produced a file and delete the file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			before := len(eng.Snapshot().Items)
			snap, err := eng.DeleteOutput(args[0], !keepFile)
			if err != nil {
				return err
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d job(s)", before-len(snap.Items)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepFile, "keep-file", false, "Only forget the jobs, keep the file on disk")
	return cmd
}
