package queue

import (
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Allocator picks a free destination inside dir. taken reports whether a
// candidate is already claimed by another live job.
type Allocator func(dir, title string, mode Mode, taken func(string) bool) (string, error)

// TryStartWorker flips the worker flag on when it is off and a queued job
// exists. The caller that gets true owns the worker loop.
func (m *Manager) TryStartWorker() bool {
	var start bool
	guarded(&m.mu, "queue/worker", func() {
		if m.workerActive {
			return
		}
		for _, j := range m.items {
			if j.Status == StatusQueued {
				m.workerActive = true
				start = true
				return
			}
		}
	})
	return start
}

// ClaimNext marks the earliest queued job as downloading and returns it.
// When nothing is queued the worker flag is cleared under the same lock, so
// an enqueue racing with the worker's exit always starts a new worker.
func (m *Manager) ClaimNext() (Job, bool) {
	var (
		job Job
		ok  bool
	)
	guarded(&m.mu, "queue/claim", func() {
		for _, j := range m.items {
			if j.Status != StatusQueued {
				continue
			}
			j.Status = StatusDownloading
			j.ProgressPercent = 0
			j.clearTransfer()
			job, ok = j.Clone(), true
			m.commit("queue/claim")
			return
		}
		m.workerActive = false
	})
	return job, ok
}

// ReleaseWorker clears the worker flag when the loop exits early.
func (m *Manager) ReleaseWorker() {
	guarded(&m.mu, "queue/worker", func() {
		m.workerActive = false
	})
}

func (m *Manager) WorkerActive() bool {
	var active bool
	guarded(&m.mu, "queue/worker", func() {
		active = m.workerActive
	})
	return active
}

func (m *Manager) takenLocked(self string) func(string) bool {
	claimed := map[string]bool{}
	for _, j := range m.items {
		if j.ID == self || !j.Status.IsLive() {
			continue
		}
		if j.OutputPath != nil {
			claimed[filepath.Clean(*j.OutputPath)] = true
		}
		if j.TargetPath != nil {
			claimed[filepath.Clean(*j.TargetPath)] = true
		}
	}
	return func(p string) bool {
		return claimed[filepath.Clean(p)]
	}
}

// ReserveTarget allocates and records the destination for a job against the
// current settings.
func (m *Manager) ReserveTarget(id string, alloc Allocator) (string, Settings, error) {
	var (
		path     string
		settings Settings
		err      error
	)
	guarded(&m.mu, "queue/reserve", func() {
		settings = m.settings
		j := m.find(id)
		if j == nil {
			err = ErrNotFound
			return
		}
		path, err = alloc(settings.DownloadDir, j.Title, j.Mode, m.takenLocked(id))
		if err != nil {
			return
		}
		j.TargetPath = StringPtr(path)
		m.commit("queue/reserve")
	})
	return path, settings, err
}

// BeginAttempt readies a job for another run. It returns false when the job
// was paused, canceled or removed since the last attempt.
func (m *Manager) BeginAttempt(id string) bool {
	var ok bool
	guarded(&m.mu, "queue/attempt", func() {
		j := m.find(id)
		if j == nil {
			return
		}
		switch j.Status {
		case StatusDownloading:
			ok = true
		case StatusQueued:
			j.Status = StatusDownloading
			ok = true
			m.commit("queue/attempt")
		}
	})
	return ok
}

// Stopped reports whether the user paused or canceled the job, or it is gone.
func (m *Manager) Stopped(id string) bool {
	stopped := true
	guarded(&m.mu, "queue/stopped", func() {
		if j := m.find(id); j != nil {
			stopped = j.Status == StatusPaused || j.Status == StatusCanceled
		}
	})
	return stopped
}

func (m *Manager) Complete(id, outputPath string) bool {
	var ok bool
	guarded(&m.mu, "queue/complete", func() {
		j := m.find(id)
		if j == nil || !j.Status.CanTransition(StatusCompleted) {
			return
		}
		j.Status = StatusCompleted
		j.ProgressPercent = 100
		j.OutputPath = StringPtr(outputPath)
		j.TargetPath = nil
		j.ErrorMessage = nil
		j.clearTransfer()
		ok = true
		log.Info().Str("op", "queue/complete").Str("job", id).Str("path", outputPath).Msg("job completed")
		m.commit("queue/complete")
	})
	return ok
}

func (m *Manager) Fail(id, message string) bool {
	var ok bool
	guarded(&m.mu, "queue/fail", func() {
		j := m.find(id)
		if j == nil || !j.Status.CanTransition(StatusFailed) {
			return
		}
		j.Status = StatusFailed
		j.ErrorMessage = StringPtr(message)
		j.TargetPath = nil
		j.clearTransfer()
		ok = true
		log.Warn().Str("op", "queue/fail").Str("job", id).Msg(message)
		m.commit("queue/fail")
	})
	return ok
}

// Retry requeues a running job after a failed attempt, recording the
// consumed retries.
func (m *Manager) Retry(id string, retryCount int, message string) bool {
	var ok bool
	guarded(&m.mu, "queue/retry", func() {
		j := m.find(id)
		if j == nil || j.Status != StatusDownloading {
			return
		}
		j.Status = StatusQueued
		j.RetryCount = retryCount
		j.ProgressPercent = 0
		j.ErrorMessage = StringPtr(message)
		j.clearTransfer()
		ok = true
		log.Info().Str("op", "queue/retry").Str("job", id).Int("retry", retryCount).Msg(message)
		m.commit("queue/retry")
	})
	return ok
}

// ForceFail marks the job matching id, or failing that whose recorded
// destination is dest, as failed regardless of its status. Completed jobs
// are left alone. It returns the job's status before the change.
func (m *Manager) ForceFail(id, dest, message string) (Status, bool) {
	var (
		prev  Status
		found bool
	)
	clean := filepath.Clean(dest)
	guarded(&m.mu, "queue/recover", func() {
		j := m.find(id)
		if j == nil && dest != "" {
			for _, cand := range m.items {
				if (cand.TargetPath != nil && filepath.Clean(*cand.TargetPath) == clean) ||
					(cand.OutputPath != nil && filepath.Clean(*cand.OutputPath) == clean) {
					j = cand
					break
				}
			}
		}
		if j == nil {
			return
		}
		prev, found = j.Status, true
		if j.Status == StatusCompleted {
			return
		}
		j.Status = StatusFailed
		j.ErrorMessage = StringPtr(message)
		j.TargetPath = nil
		j.clearTransfer()
		m.commit("queue/recover")
	})
	return prev, found
}
