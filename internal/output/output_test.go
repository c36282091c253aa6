package output

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanq16/tubeq/internal/queue"
)

func sampleSnapshot() queue.Snapshot {
	return queue.Snapshot{Items: []queue.Job{
		{ID: "1", Title: "Done", Status: queue.StatusCompleted, OutputPath: queue.StringPtr("/dl/Done.mp4")},
		{ID: "2", Title: "Running", Status: queue.StatusDownloading, ProgressPercent: 42,
			SpeedText: queue.StringPtr("1.00MiB/s"), ETAText: queue.StringPtr("00:10"),
			DownloadLog: []string{"[download]  42.0% of 10MiB"}},
		{ID: "3", Title: "Waiting", Status: queue.StatusQueued, RetryCount: 1, ErrorMessage: queue.StringPtr("ERROR: flaky")},
		{ID: "4", Title: "Broken", Status: queue.StatusFailed, ErrorMessage: queue.StringPtr("ERROR: gone")},
	}}
}

func TestRenderOrdersGroups(t *testing.T) {
	out := strings.Join(Render(sampleSnapshot(), 100, 40), "\n")
	running := strings.Index(out, "Running")
	waiting := strings.Index(out, "Waiting")
	done := strings.Index(out, "Done")
	require.True(t, running >= 0 && waiting >= 0 && done >= 0, out)
	assert.Less(t, running, waiting)
	assert.Less(t, waiting, done)

	assert.Contains(t, out, "42.0%")
	assert.Contains(t, out, "1.00MiB/s")
	assert.Contains(t, out, "ETA 00:10")
	assert.Contains(t, out, "(retry 1)")
	assert.Contains(t, out, "/dl/Done.mp4")
	assert.Contains(t, out, "ERROR: gone")
}

func TestRenderRespectsHeight(t *testing.T) {
	var items []queue.Job
	for i := range 30 {
		items = append(items, queue.Job{ID: fmt.Sprint(i), Title: fmt.Sprintf("job-%d", i), Status: queue.StatusQueued})
	}
	lines := Render(queue.Snapshot{Items: items}, 80, 13)
	assert.Len(t, lines, 10)
}

func TestRenderHidesOldFinishedJobs(t *testing.T) {
	var items []queue.Job
	for i := range 12 {
		items = append(items, queue.Job{ID: fmt.Sprint(i), Title: fmt.Sprintf("job-%d", i), Status: queue.StatusCanceled})
	}
	out := strings.Join(Render(queue.Snapshot{Items: items}, 80, 100), "\n")
	assert.Contains(t, out, "4 finished jobs hidden")
	assert.NotContains(t, out, "job-3\n")
	assert.Contains(t, out, "job-4\n")
	assert.Contains(t, out, "job-11")
}

func TestSummary(t *testing.T) {
	out := strings.Join(Summary(sampleSnapshot()), "\n")
	assert.Contains(t, out, "Completed 1 of 4")
	assert.Contains(t, out, "Failed 1 of 4")
	assert.Contains(t, out, "Error: ERROR: gone")

	out = strings.Join(Summary(queue.Snapshot{}), "\n")
	assert.Contains(t, out, "Completed 0 of 0")
	assert.NotContains(t, out, "Failed")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"short"}, wrapText("short", 6, 80))
	lines := wrapText(strings.Repeat("x", 50), 6, 26)
	require.Len(t, lines, 3)
	assert.Len(t, lines[0], 18)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 MB", FormatBytes(2*1024*1024))
}

func TestDisplayPrintsSummaryWhenUpdatesEnd(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf)
	d.displayTick = 5 * time.Millisecond
	d.size = func() (int, int) { return 80, 40 }
	updates := make(chan queue.Snapshot, 1)
	d.Start(queue.Snapshot{}, updates)
	updates <- sampleSnapshot()
	close(updates)
	d.wg.Wait()
	d.Stop()

	assert.Contains(t, buf.String(), "Completed 1 of 4")
	assert.Contains(t, buf.String(), "Running")
}

func TestJobTable(t *testing.T) {
	snap := sampleSnapshot()
	snap.Items[0].ID = "0123456789abcdef"
	out := JobTable(snap).FormatTable(true)
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789")
	assert.Contains(t, out, "42.0%")
	assert.Contains(t, out, "0.0% r1")
	assert.Contains(t, out, "ERROR: gone")
	assert.Contains(t, out, "/dl/Done.mp4")
}
