package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanq16/tubeq/internal/deps"
	"github.com/tanq16/tubeq/internal/process"
	"github.com/tanq16/tubeq/internal/queue"
	"github.com/tanq16/tubeq/internal/store"
)

const idlePoll = 20 * time.Millisecond

type Runner interface {
	Run(ctx context.Context, jobID string, c process.Command, onLine func(string)) process.Result
}

type Toolchain interface {
	EnsureReady(ctx context.Context) error
	Environ() []string
	Resolve(name string) string
	Find(name string) (string, bool)
}

// Archiver receives every finished file. Errors are logged and never affect
// the job.
type Archiver interface {
	Archive(ctx context.Context, jobID, path string) error
}

type Config struct {
	DataDir  string
	Manager  *queue.Manager
	Runner   Runner
	Tools    Toolchain
	Archiver Archiver
	Allocate queue.Allocator
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Worker drains the queue one job at a time on a single goroutine that
// exists only while queued work remains.
type Worker struct {
	cfg  Config
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
}

func New(cfg Config) *Worker {
	if cfg.Allocate == nil {
		cfg.Allocate = store.UniquePath
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Worker{
		cfg:     cfg,
		ctx:     ctx,
		stop:    stop,
		cancels: map[string]context.CancelFunc{},
	}
}

// Kick starts the loop if it is not running and there is queued work.
func (w *Worker) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.cfg.Manager.TryStartWorker() {
		return
	}
	w.wg.Add(1)
	go w.loop()
}

// Interrupt stops whatever the worker is doing for jobID: the running
// process, a retry backoff or the dependency wait.
func (w *Worker) Interrupt(jobID string) {
	w.mu.Lock()
	cancel := w.cancels[jobID]
	w.mu.Unlock()
	if cancel != nil {
		log.Debug().Str("op", "worker/interrupt").Str("job", jobID).Msg("interrupting job")
		cancel()
	}
}

// Wait blocks until the loop has gone idle or ctx is done.
func (w *Worker) Wait(ctx context.Context) error {
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()
	for w.cfg.Manager.WorkerActive() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops the loop after terminating the active process and waits for
// it, and any pending archive upload, to return.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.stop()
	w.wg.Wait()
}

func (w *Worker) closing() bool {
	return w.ctx.Err() != nil
}

func (w *Worker) attempt(jobID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(w.ctx)
	w.mu.Lock()
	w.cancels[jobID] = cancel
	w.mu.Unlock()
	return ctx, func() {
		w.mu.Lock()
		delete(w.cancels, jobID)
		w.mu.Unlock()
		cancel()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	m := w.cfg.Manager
	log.Debug().Str("op", "worker/loop").Msg("worker started")
	for {
		if w.closing() {
			m.ReleaseWorker()
			log.Debug().Str("op", "worker/loop").Msg("worker stopped on close")
			return
		}
		job, ok := m.ClaimNext()
		if !ok {
			log.Debug().Str("op", "worker/loop").Msg("queue drained, worker idle")
			return
		}
		w.safeProcess(job)
	}
}

func (w *Worker) safeProcess(job queue.Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("op", "worker/process").Str("job", job.ID).Interface("panic", r).
				Bytes("stack", debug.Stack()).Msg("recovered panic while processing job")
			w.cfg.Manager.Fail(job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()
	w.process(job)
}

func (w *Worker) process(job queue.Job) {
	m := w.cfg.Manager
	logger := log.With().Str("op", "worker/process").Str("job", job.ID).Logger()
	logger.Info().Str("url", job.URL).Str("mode", string(job.Mode)).Msg("processing job")

	ctx, release := w.attempt(job.ID)
	err := w.cfg.Tools.EnsureReady(ctx)
	release()
	if err != nil {
		if w.closing() || m.Stopped(job.ID) {
			return
		}
		m.Fail(job.ID, err.Error())
		return
	}

	dest, _, err := m.ReserveTarget(job.ID, w.cfg.Allocate)
	if err != nil {
		if !errors.Is(err, queue.ErrNotFound) {
			m.Fail(job.ID, fmt.Sprintf("error preparing destination: %v", err))
		}
		return
	}
	scratch := store.ScratchDir(w.cfg.DataDir, job.ID)
	defer store.RemoveDir(scratch)
	if err := os.MkdirAll(scratch, 0755); err != nil {
		m.Fail(job.ID, fmt.Sprintf("error creating scratch directory: %v", err))
		return
	}

	ffmpeg, _ := w.cfg.Tools.Find(deps.FFmpeg)
	cmd := process.Command{
		Path: w.cfg.Tools.Resolve(deps.YtDlp),
		Args: BuildArgs(job, scratch, ffmpeg),
		Env:  w.cfg.Tools.Environ(),
	}

	attempt := job.RetryCount
	for {
		ctx, release := w.attempt(job.ID)
		if !m.BeginAttempt(job.ID) {
			release()
			logger.Debug().Msg("job stopped before attempt")
			return
		}
		var lastErrorLine atomic.Value
		res := w.cfg.Runner.Run(ctx, job.ID, cmd, func(line string) {
			if info := queue.ParseLine(line); info.IsError {
				lastErrorLine.Store(info.Line)
			}
			m.ApplyOutput(job.ID, line)
		})

		if res.Terminated() {
			release()
			if w.closing() || m.Stopped(job.ID) {
				logger.Debug().Msg("attempt terminated on request")
				return
			}
			// resumed while terminating; ClaimNext picks it up in queue order
			logger.Debug().Msg("job resumed while terminating, requeued")
			return
		}
		if res.Err == nil {
			release()
			w.finalize(job, scratch, dest)
			return
		}

		errLine, _ := lastErrorLine.Load().(string)
		msg := FailureText(res.LastStderr, errLine, res.Code)
		if !queue.ShouldRetry(attempt, m.Settings().MaxRetries) {
			release()
			m.Fail(job.ID, msg)
			return
		}
		if !m.Retry(job.ID, attempt+1, msg) {
			release()
			return
		}
		delay := queue.RetryDelay(attempt)
		attempt++
		logger.Info().Int("retry", attempt).Dur("delay", delay).Msg("attempt failed, retrying")
		err := w.cfg.Sleep(ctx, delay)
		release()
		if err != nil && w.closing() {
			return
		}
	}
}

// finalize moves the artifact into place. The marker next to the
// destination lets a later start clean up after a crash mid-move.
func (w *Worker) finalize(job queue.Job, scratch, dest string) {
	m := w.cfg.Manager
	src, err := store.LocateArtifact(scratch, job.Mode.Extension())
	if err != nil {
		m.Fail(job.ID, err.Error())
		return
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		m.Fail(job.ID, fmt.Sprintf("error creating download directory: %v", err))
		return
	}
	if err := store.WriteMarker(dest, job.ID); err != nil {
		m.Fail(job.ID, err.Error())
		return
	}
	if err := store.MoveFile(src, dest); err != nil {
		os.Remove(dest)
		store.RemoveMarker(dest)
		m.Fail(job.ID, fmt.Sprintf("error moving finished file: %v", err))
		return
	}
	if !m.Complete(job.ID, dest) {
		log.Warn().Str("op", "worker/finalize").Str("job", job.ID).Msg("job left the queue during finalize, discarding file")
		os.Remove(dest)
		store.RemoveMarker(dest)
		return
	}
	store.RemoveMarker(dest)

	if w.cfg.Archiver != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.cfg.Archiver.Archive(w.ctx, job.ID, dest); err != nil {
				log.Warn().Str("op", "worker/archive").Str("job", job.ID).Err(err).Msg("archive upload failed")
			}
		}()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
