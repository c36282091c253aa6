package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanq16/tubeq/internal/engine"
	"github.com/tanq16/tubeq/internal/output"
	"github.com/tanq16/tubeq/internal/queue"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the queue until it is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			return runQueue(cmd.Context(), eng)
		},
	}
}

// runQueue drives the engine with a live display until the queue drains or
// the user interrupts. Interrupted jobs go back to the queue on next start.
func runQueue(parent context.Context, eng *engine.Engine) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	before := failedIDs(eng.Snapshot())
	updates, unsubscribe := eng.Subscribe()
	defer unsubscribe()
	display := output.NewDisplay(os.Stdout)
	display.Start(eng.Snapshot(), updates)

	eng.Start()
	waitErr := eng.Wait(ctx)
	eng.Close()
	display.Stop()

	if waitErr != nil {
		log.Info().Str("op", "cmd/run").Msg("interrupted, unfinished jobs stay queued")
		output.PrintWarning("Interrupted, unfinished jobs stay queued")
		return nil
	}
	failed := 0
	for id := range failedIDs(eng.Snapshot()) {
		if !before[id] {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d job(s) failed", failed)
	}
	return nil
}

func failedIDs(s queue.Snapshot) map[string]bool {
	ids := map[string]bool{}
	for _, j := range s.Items {
		if j.Status == queue.StatusFailed {
			ids[j.ID] = true
		}
	}
	return ids
}
