package queue

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const CanceledMessage = "canceled by user"

type Persister interface {
	SaveQueue(items []Job) error
	SaveSettings(s Settings) error
}

type Manager struct {
	mu           sync.Mutex
	items        []*Job
	settings     Settings
	workerActive bool
	store        Persister
	hub          *Broadcaster
	now          func() time.Time
}

func NewManager(items []Job, settings Settings, store Persister, hub *Broadcaster) *Manager {
	if hub == nil {
		hub = NewBroadcaster()
	}
	m := &Manager{
		settings: settings.Normalize(),
		store:    store,
		hub:      hub,
		now:      time.Now,
	}
	for i := range items {
		j := items[i].Clone()
		if j.DownloadLog == nil {
			j.DownloadLog = []string{}
		}
		m.items = append(m.items, &j)
	}
	return m
}

func (m *Manager) Broadcaster() *Broadcaster {
	return m.hub
}

// commit persists the collection and then publishes it. Callers hold m.mu.
func (m *Manager) commit(op string) Snapshot {
	if m.store != nil {
		items := make([]Job, len(m.items))
		for i, j := range m.items {
			items[i] = j.Clone()
		}
		if err := m.store.SaveQueue(items); err != nil {
			log.Error().Str("op", op).Err(err).Msg("failed to persist queue")
		}
	}
	snap := m.snapshotLocked()
	m.hub.Publish(snap)
	return snap
}

func (m *Manager) snapshotLocked() Snapshot {
	out := Snapshot{Items: make([]Job, len(m.items))}
	for i, j := range m.items {
		out.Items[i] = j.Clone()
	}
	return out
}

func (m *Manager) find(id string) *Job {
	for _, j := range m.items {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (m *Manager) Snapshot() Snapshot {
	var snap Snapshot
	fill := func() { snap = m.snapshotLocked() }
	guardedOr(&m.mu, "queue/snapshot", fill, fill)
	return snap
}

func (m *Manager) Get(id string) (Job, error) {
	var (
		job   Job
		found bool
	)
	guarded(&m.mu, "queue/get", func() {
		if j := m.find(id); j != nil {
			job, found = j.Clone(), true
		}
	})
	if !found {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, nil
}

func (m *Manager) duplicateLocked(url string, mode Mode, qualityID string) *Job {
	for _, j := range m.items {
		if j.URL == url && j.Mode == mode && j.QualityID == qualityID && j.Status.IsLive() {
			return j
		}
	}
	return nil
}

func (m *Manager) FindDuplicate(url string, mode Mode, qualityID string) DuplicateResult {
	url = CanonicalURL(url)
	var res DuplicateResult
	guarded(&m.mu, "queue/duplicate", func() {
		if j := m.duplicateLocked(url, mode, qualityID); j != nil {
			res.IsDuplicate = true
			res.ExistingOutputPath = cloneString(j.OutputPath)
		}
	})
	return res
}

func (m *Manager) Enqueue(in EnqueueInput) (string, Snapshot, error) {
	url := CanonicalURL(in.URL)
	if url == "" {
		return "", m.Snapshot(), fmt.Errorf("url is required")
	}
	if !in.Mode.Valid() {
		return "", m.Snapshot(), fmt.Errorf("unknown mode %q", in.Mode)
	}
	if strings.TrimSpace(in.QualityID) == "" {
		return "", m.Snapshot(), fmt.Errorf("quality id is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = url
	}
	var (
		id   string
		snap Snapshot
		err  error
	)
	guardedOr(&m.mu, "queue/enqueue", func() {
		if !in.ForceDuplicate && m.duplicateLocked(url, in.Mode, in.QualityID) != nil {
			err = fmt.Errorf("%w: %s", ErrDuplicate, url)
			snap = m.snapshotLocked()
			return
		}
		job := &Job{
			ID:           uuid.NewString(),
			Title:        title,
			ThumbnailURL: cloneString(in.ThumbnailURL),
			URL:          url,
			Mode:         in.Mode,
			QualityID:    strings.TrimSpace(in.QualityID),
			Status:       StatusQueued,
			DownloadLog:  []string{},
			CreatedAt:    m.now().UTC(),
		}
		m.items = append(m.items, job)
		id = job.ID
		log.Info().Str("op", "queue/enqueue").Str("job", id).Str("url", url).Msg("job queued")
		snap = m.commit("queue/enqueue")
	}, func() {
		id, snap = "", m.snapshotLocked()
		err = fmt.Errorf("%w: enqueue %s", ErrInternal, url)
	})
	return id, snap, err
}

// Transition moves a job to next when the transition table allows it and
// runs mutate on the job before persisting. A transition not in the table
// leaves everything untouched and reports changed=false.
func (m *Manager) Transition(id string, next Status, mutate func(j *Job, from Status)) (Snapshot, bool, error) {
	var (
		snap    Snapshot
		changed bool
		err     error
	)
	guardedOr(&m.mu, "queue/transition", func() {
		j := m.find(id)
		if j == nil {
			err = fmt.Errorf("%w: %s", ErrNotFound, id)
			snap = m.snapshotLocked()
			return
		}
		if !j.Status.CanTransition(next) {
			log.Debug().Str("op", "queue/transition").Str("job", id).Err(ErrInvalidTransition).
				Msgf("ignoring %s -> %s", j.Status, next)
			snap = m.snapshotLocked()
			return
		}
		prev := j.Status
		j.Status = next
		if mutate != nil {
			mutate(j, prev)
		}
		changed = true
		log.Debug().Str("op", "queue/transition").Str("job", id).Msgf("%s -> %s", prev, next)
		snap = m.commit("queue/transition")
	}, func() {
		snap = m.snapshotLocked()
		err = fmt.Errorf("%w: %s -> %s", ErrInternal, id, next)
	})
	return snap, changed, err
}

func (m *Manager) Pause(id string) (Snapshot, bool, error) {
	return m.Transition(id, StatusPaused, func(j *Job, _ Status) {
		j.clearTransfer()
	})
}

func (m *Manager) Cancel(id string) (Snapshot, bool, error) {
	return m.Transition(id, StatusCanceled, func(j *Job, _ Status) {
		j.clearTransfer()
		j.TargetPath = nil
		j.ErrorMessage = StringPtr(CanceledMessage)
	})
}

// Resume puts a paused, failed or canceled job back in the queue. Failed and
// canceled jobs start over with a fresh retry budget.
func (m *Manager) Resume(id string) (Snapshot, bool, error) {
	return m.Transition(id, StatusQueued, func(j *Job, from Status) {
		if from == StatusFailed || from == StatusCanceled {
			j.RetryCount = 0
			j.ProgressPercent = 0
		}
		j.ErrorMessage = nil
		j.clearTransfer()
	})
}

func (m *Manager) ClearTerminal() Snapshot {
	var snap Snapshot
	guardedOr(&m.mu, "queue/clear", func() {
		kept := make([]*Job, 0, len(m.items))
		for _, j := range m.items {
			if !j.Status.IsTerminal() {
				kept = append(kept, j)
			}
		}
		if len(kept) == len(m.items) {
			snap = m.snapshotLocked()
			return
		}
		m.items = kept
		snap = m.commit("queue/clear")
	}, func() {
		snap = m.snapshotLocked()
	})
	return snap
}

// RemoveByOutputPath drops every job whose output is path and returns how many went.
func (m *Manager) RemoveByOutputPath(path string) (Snapshot, int) {
	var (
		snap    Snapshot
		removed int
	)
	target := filepath.Clean(path)
	guardedOr(&m.mu, "queue/remove", func() {
		kept := make([]*Job, 0, len(m.items))
		for _, j := range m.items {
			if j.OutputPath != nil && filepath.Clean(*j.OutputPath) == target {
				removed++
				continue
			}
			kept = append(kept, j)
		}
		if removed == 0 {
			snap = m.snapshotLocked()
			return
		}
		m.items = kept
		snap = m.commit("queue/remove")
	}, func() {
		snap = m.snapshotLocked()
	})
	return snap, removed
}

func (m *Manager) Settings() Settings {
	var s Settings
	guarded(&m.mu, "queue/settings", func() {
		s = m.settings
	})
	return s
}

func (m *Manager) SetSettings(s Settings) (Settings, error) {
	s = s.Normalize()
	var err error
	guarded(&m.mu, "queue/settings", func() {
		if m.store != nil {
			if err = m.store.SaveSettings(s); err != nil {
				err = fmt.Errorf("saving settings: %w", err)
				return
			}
		}
		m.settings = s
		m.hub.Publish(m.snapshotLocked())
	})
	return s, err
}

// OutputDirs lists the download dir plus every directory a recorded output lives in.
func (m *Manager) OutputDirs() []string {
	var dirs []string
	guarded(&m.mu, "queue/dirs", func() {
		seen := map[string]bool{}
		add := func(d string) {
			if d != "" && !seen[d] {
				seen[d] = true
				dirs = append(dirs, d)
			}
		}
		add(m.settings.DownloadDir)
		for _, j := range m.items {
			if j.OutputPath != nil {
				add(filepath.Dir(*j.OutputPath))
			}
			if j.TargetPath != nil {
				add(filepath.Dir(*j.TargetPath))
			}
		}
	})
	return dirs
}

// ApplyOutput folds one line of tool output into the job. It never blocks:
// when the lock is busy the line is dropped. It publishes at most once and
// does not persist; progress is transient and the next committed mutation
// writes it out.
func (m *Manager) ApplyOutput(id, line string) bool {
	info := ParseLine(line)
	if info.Line == "" {
		return false
	}
	var changed bool
	ok := tryGuarded(&m.mu, "queue/output", func() {
		j := m.find(id)
		if j == nil {
			return
		}
		if info.IsError {
			log.Warn().Str("op", "queue/output").Str("job", id).Msg(info.Line)
		}
		if changed = info.apply(j); changed {
			m.hub.Publish(m.snapshotLocked())
		}
	})
	return ok && changed
}
