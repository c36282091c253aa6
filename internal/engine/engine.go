package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanq16/tubeq/internal/archive"
	"github.com/tanq16/tubeq/internal/deps"
	"github.com/tanq16/tubeq/internal/process"
	"github.com/tanq16/tubeq/internal/queue"
	"github.com/tanq16/tubeq/internal/store"
	"github.com/tanq16/tubeq/internal/worker"
)

var ErrBusy = errors.New("a download is in progress")

type Options struct {
	DataDir string
	BinDir  string
	Deps    deps.Options
	Archive archive.Config

	// Tools and Runner replace the real bootstrapper and supervisor.
	Tools  worker.Toolchain
	Runner worker.Runner
	Sleep  func(ctx context.Context, d time.Duration) error
}

// Engine owns the queue, its persistence and the single download worker.
type Engine struct {
	dataDir string
	store   *store.Store
	manager *queue.Manager
	boot    *deps.Bootstrapper
	worker  *worker.Worker
	managed bool
	started atomic.Bool

	startOnce sync.Once
	closeOnce sync.Once
}

// Open loads persisted state from the data dir and wires the engine. Nothing
// runs until Start.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	if opts.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	st, err := store.New(opts.DataDir)
	if err != nil {
		return nil, err
	}
	binDir := opts.BinDir
	if binDir == "" {
		binDir = store.BinDir(opts.DataDir)
	}
	boot := deps.NewBootstrapper(deps.NewResolver(binDir), opts.Deps)

	items := st.LoadQueue()
	settings := st.LoadSettings()
	m := queue.NewManager(items, settings, st, queue.NewBroadcaster())
	log.Debug().Str("op", "engine/open").Int("jobs", len(items)).Str("dir", opts.DataDir).Msg("state loaded")

	cfg := worker.Config{
		DataDir: opts.DataDir,
		Manager: m,
		Runner:  opts.Runner,
		Tools:   opts.Tools,
		Sleep:   opts.Sleep,
	}
	if cfg.Runner == nil {
		cfg.Runner = process.NewSupervisor()
	}
	managed := cfg.Tools == nil
	if managed {
		cfg.Tools = boot
	}
	if opts.Archive.Enabled() {
		arch, err := archive.NewS3Archiver(ctx, opts.Archive)
		if err != nil {
			log.Warn().Str("op", "engine/open").Err(err).Msg("archive disabled")
		} else {
			cfg.Archiver = arch
		}
	}

	return &Engine{
		dataDir: opts.DataDir,
		store:   st,
		manager: m,
		boot:    boot,
		worker:  worker.New(cfg),
		managed: managed,
	}, nil
}

// Start settles anything a previous run left behind, begins the dependency
// bootstrap and resumes queued work. Jobs added before Start stay queued
// until it runs.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.recover()
		if e.managed {
			e.boot.Start()
		}
		e.started.Store(true)
	})
	e.worker.Kick()
}

func (e *Engine) kick() {
	if e.started.Load() {
		e.worker.Kick()
	}
}

func (e *Engine) recover() {
	n := store.Recover(e.dataDir, e.manager.OutputDirs(), func(jobID, dest string) bool {
		prev, found := e.manager.ForceFail(jobID, dest, store.InterruptedMessage)
		return found && prev != queue.StatusCompleted
	})
	if n > 0 {
		log.Info().Str("op", "engine/recover").Int("markers", n).Msg("recovered interrupted finalize steps")
	}
}

func (e *Engine) Enqueue(in queue.EnqueueInput) (string, queue.Snapshot, error) {
	id, snap, err := e.manager.Enqueue(in)
	if err != nil {
		return "", snap, err
	}
	e.kick()
	return id, snap, nil
}

func (e *Engine) CheckDuplicate(url string, mode queue.Mode, qualityID string) queue.DuplicateResult {
	return e.manager.FindDuplicate(url, mode, qualityID)
}

// Pause and Cancel change the job state immediately; the process belonging
// to the job is stopped in the background.
func (e *Engine) Pause(id string) (queue.Snapshot, error) {
	snap, changed, err := e.manager.Pause(id)
	if changed {
		go e.worker.Interrupt(id)
	}
	return snap, err
}

func (e *Engine) Cancel(id string) (queue.Snapshot, error) {
	snap, changed, err := e.manager.Cancel(id)
	if changed {
		go e.worker.Interrupt(id)
	}
	return snap, err
}

func (e *Engine) Resume(id string) (queue.Snapshot, error) {
	snap, changed, err := e.manager.Resume(id)
	if changed {
		e.kick()
	}
	return snap, err
}

func (e *Engine) ClearTerminal() queue.Snapshot {
	return e.manager.ClearTerminal()
}

// DeleteOutput forgets every job that produced path and, when removeFile is
// set, deletes the file itself.
func (e *Engine) DeleteOutput(path string, removeFile bool) (queue.Snapshot, error) {
	snap, n := e.manager.RemoveByOutputPath(path)
	log.Debug().Str("op", "engine/delete").Int("removed", n).Str("path", path).Msg("removed jobs for output")
	if removeFile {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return snap, fmt.Errorf("error deleting %s: %w", path, err)
		}
	}
	return snap, nil
}

func (e *Engine) Snapshot() queue.Snapshot {
	return e.manager.Snapshot()
}

func (e *Engine) Get(id string) (queue.Job, error) {
	return e.manager.Get(id)
}

func (e *Engine) Settings() queue.Settings {
	return e.manager.Settings()
}

func (e *Engine) SetSettings(s queue.Settings) (queue.Settings, error) {
	return e.manager.SetSettings(s)
}

func (e *Engine) Subscribe() (<-chan queue.Snapshot, func()) {
	return e.manager.Broadcaster().Subscribe()
}

func (e *Engine) DependencyStatus() deps.Status {
	return e.boot.Status()
}

func (e *Engine) Dependencies() *deps.Bootstrapper {
	return e.boot
}

func (e *Engine) Diagnose(ctx context.Context) deps.Report {
	return e.boot.Diagnose(ctx, e.manager.Settings().DownloadDir)
}

// Clean removes the scratch root and reports how many bytes it held.
func (e *Engine) Clean() (int64, error) {
	if e.manager.WorkerActive() {
		return 0, ErrBusy
	}
	root := store.ScratchRoot(e.dataDir)
	size := DirSize(root)
	if err := os.RemoveAll(root); err != nil {
		return 0, fmt.Errorf("error removing %s: %w", root, err)
	}
	return size, nil
}

// Wait blocks until the worker has nothing left to do.
func (e *Engine) Wait(ctx context.Context) error {
	return e.worker.Wait(ctx)
}

// Close terminates the active download, stops the worker and closes every
// subscription. Jobs interrupted here are queued again on the next Open.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.worker.Close()
		e.manager.Broadcaster().Close()
		log.Debug().Str("op", "engine/close").Msg("engine closed")
	})
}

// DirSize sums the sizes of all regular files below dir.
func DirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	return total
}
