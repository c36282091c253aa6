package queue

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// Drives the manager the way the worker and the user do and checks that at
// most one job is ever downloading and retry counts stay in budget.
func TestSingleDownloaderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		settings := DefaultSettings()
		settings.MaxRetries = rapid.IntRange(0, 4).Draw(t, "maxRetries")
		m := NewManager(nil, settings, nil, nil)
		var (
			ids     []string
			current string
			attempt int
		)
		pick := func(label string) string {
			if len(ids) == 0 {
				return ""
			}
			return rapid.SampledFrom(ids).Draw(t, label)
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := range steps {
			switch rapid.IntRange(0, 7).Draw(t, "op") {
			case 0:
				id, _, err := m.Enqueue(EnqueueInput{
					URL:            fmt.Sprintf("https://example.com/%d", i),
					Mode:           ModeAudio,
					QualityID:      "bestaudio",
					ForceDuplicate: true,
				})
				if err != nil {
					t.Fatalf("enqueue: %v", err)
				}
				ids = append(ids, id)
			case 1:
				if id := pick("pause"); id != "" {
					_, _, _ = m.Pause(id)
				}
			case 2:
				if id := pick("resume"); id != "" {
					_, _, _ = m.Resume(id)
				}
			case 3:
				if id := pick("cancel"); id != "" {
					_, _, _ = m.Cancel(id)
				}
			case 4:
				if current == "" && m.TryStartWorker() {
					if job, ok := m.ClaimNext(); ok {
						current, attempt = job.ID, job.RetryCount
					}
				}
			case 5:
				if current != "" {
					m.Complete(current, "/out/"+current+".mp3")
					current = ""
					m.ReleaseWorker()
				}
			case 6:
				if current != "" {
					if ShouldRetry(attempt, settings.MaxRetries) && m.Retry(current, attempt+1, "exit status 1") {
						attempt++
						if !m.BeginAttempt(current) {
							current = ""
							m.ReleaseWorker()
						}
					} else {
						m.Fail(current, "exit status 1")
						current = ""
						m.ReleaseWorker()
					}
				}
			case 7:
				if current != "" && m.Stopped(current) {
					current = ""
					m.ReleaseWorker()
				}
			}

			snap := m.Snapshot()
			if n := snap.Downloading(); n > 1 {
				t.Fatalf("%d jobs downloading", n)
			}
			for _, j := range snap.Items {
				if j.RetryCount > settings.MaxRetries {
					t.Fatalf("job %s retryCount %d > %d", j.ID, j.RetryCount, settings.MaxRetries)
				}
				if (j.OutputPath != nil) != (j.Status == StatusCompleted) {
					t.Fatalf("job %s status %s outputPath %v", j.ID, j.Status, j.OutputPath)
				}
			}
		}
	})
}
