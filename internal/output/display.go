package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/tubeq/internal/queue"
)

const (
	indent        = 2
	streamIndent  = 2 + 4
	maxCompleted  = 8
	defaultTick   = 300 * time.Millisecond
	progressWidth = 30
)

func statusIndicator(s queue.Status) string {
	switch s {
	case queue.StatusCompleted:
		return successStyle.Render(StyleSymbols["pass"])
	case queue.StatusFailed:
		return errorStyle.Render(StyleSymbols["fail"])
	case queue.StatusCanceled:
		return warningStyle.Render(StyleSymbols["warning"])
	case queue.StatusPaused:
		return warningStyle.Render(StyleSymbols["paused"])
	case queue.StatusQueued:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["arrow"])
	}
}

func group(s queue.Snapshot) (active, pending, done []queue.Job) {
	for _, j := range s.Items {
		switch {
		case j.Status == queue.StatusDownloading:
			active = append(active, j)
		case j.Status.IsTerminal():
			done = append(done, j)
		default:
			pending = append(pending, j)
		}
	}
	return active, pending, done
}

func jobLine(j queue.Job) string {
	head := fmt.Sprintf("%s%s %s %s", strings.Repeat(" ", indent), statusIndicator(j.Status),
		debugStyle.Render(string(j.Status)), j.Title)
	if j.Status == queue.StatusFailed || j.Status == queue.StatusCanceled {
		return head
	}
	if j.RetryCount > 0 {
		head += " " + warningStyle.Render(fmt.Sprintf("(retry %d)", j.RetryCount))
	}
	return head
}

func detailLines(j queue.Job, width int) []string {
	pad := strings.Repeat(" ", streamIndent)
	var lines []string
	switch j.Status {
	case queue.StatusDownloading:
		line := progressBar(j.ProgressPercent, progressWidth)
		if speed := queue.Deref(j.SpeedText); speed != "" {
			line += " " + StyleSymbols["bullet"] + " " + debugStyle.Render(speed)
		}
		if eta := queue.Deref(j.ETAText); eta != "" {
			line += " " + StyleSymbols["bullet"] + " " + debugStyle.Render("ETA "+eta)
		}
		lines = append(lines, pad+line)
		if n := len(j.DownloadLog); n > 0 {
			for _, l := range wrapText(j.DownloadLog[n-1], streamIndent, width) {
				lines = append(lines, pad+streamStyle.Render(l))
			}
		}
	case queue.StatusCompleted:
		lines = append(lines, pad+successStyle.Render(StyleSymbols["arrow"]+" "+queue.Deref(j.OutputPath)))
	case queue.StatusFailed, queue.StatusCanceled:
		if msg := queue.Deref(j.ErrorMessage); msg != "" {
			for _, l := range wrapText(msg, streamIndent, width) {
				lines = append(lines, pad+errorStyle.Render(l))
			}
		}
	case queue.StatusQueued:
		if msg := queue.Deref(j.ErrorMessage); msg != "" {
			lines = append(lines, pad+warningStyle.Render(msg))
		}
	}
	return lines
}

// Render lays a snapshot out for a terminal of the given size: running jobs
// with their progress first, then waiting ones, then the most recent
// finished ones as far as the height allows.
func Render(s queue.Snapshot, width, height int) []string {
	available := max(height-3, 1)
	active, pending, done := group(s)

	var lines []string
	add := func(ls ...string) bool {
		for _, l := range ls {
			if len(lines) >= available {
				return false
			}
			lines = append(lines, l)
		}
		return true
	}
	for _, j := range active {
		if !add(jobLine(j)) || !add(detailLines(j, width)...) {
			return lines
		}
	}
	for _, j := range pending {
		if !add(jobLine(j)) || !add(detailLines(j, width)...) {
			return lines
		}
	}
	if len(done) > maxCompleted {
		if !add(infoStyle.Render(fmt.Sprintf("%s%d finished jobs hidden ...", strings.Repeat(" ", indent), len(done)-maxCompleted))) {
			return lines
		}
		done = done[len(done)-maxCompleted:]
	}
	for _, j := range done {
		if !add(jobLine(j)) || !add(detailLines(j, width)...) {
			return lines
		}
	}
	return lines
}

// Summary counts outcomes and lists every failure.
func Summary(s queue.Snapshot) []string {
	var completed, failed int
	var errs []queue.Job
	for _, j := range s.Items {
		switch j.Status {
		case queue.StatusCompleted:
			completed++
		case queue.StatusFailed:
			failed++
			errs = append(errs, j)
		}
	}
	pad := strings.Repeat(" ", indent)
	lines := []string{pad + success2Style.Render(fmt.Sprintf("Completed %d of %d", completed, len(s.Items)))}
	if failed == 0 {
		return lines
	}
	lines = append(lines, pad+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failed, len(s.Items))))
	lines = append(lines, "", pad+errorStyle.Bold(true).Render("Errors:"))
	for i, j := range errs {
		lines = append(lines,
			fmt.Sprintf("%s%s %s", strings.Repeat(" ", indent+2), errorStyle.Render(fmt.Sprintf("%d.", i+1)), errorStyle.Render(j.Title)),
			fmt.Sprintf("%s%s", strings.Repeat(" ", streamIndent), errorStyle.Render("Error: "+queue.Deref(j.ErrorMessage))))
	}
	return lines
}

// Display redraws the latest snapshot in place until stopped.
type Display struct {
	out         io.Writer
	mu          sync.Mutex
	last        queue.Snapshot
	numLines    int
	displayTick time.Duration
	doneCh      chan struct{}
	wg          sync.WaitGroup
	size        func() (int, int)
}

func NewDisplay(out io.Writer) *Display {
	return &Display{
		out:         out,
		displayTick: defaultTick,
		doneCh:      make(chan struct{}),
		size:        terminalSize,
	}
}

// Start consumes updates until the channel closes or Stop is called.
func (d *Display) Start(initial queue.Snapshot, updates <-chan queue.Snapshot) {
	d.mu.Lock()
	d.last = initial
	d.mu.Unlock()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.displayTick)
		defer ticker.Stop()
		for {
			select {
			case s, ok := <-updates:
				if !ok {
					d.finish()
					return
				}
				d.mu.Lock()
				d.last = s
				d.mu.Unlock()
			case <-ticker.C:
				d.redraw()
			case <-d.doneCh:
				d.finish()
				return
			}
		}
	}()
}

func (d *Display) Stop() {
	select {
	case <-d.doneCh:
	default:
		close(d.doneCh)
	}
	d.wg.Wait()
}

func (d *Display) redraw() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.numLines > 0 {
		fmt.Fprintf(d.out, "\033[%dA\033[J", d.numLines)
	}
	width, height := d.size()
	lines := Render(d.last, width, height)
	for _, l := range lines {
		fmt.Fprintln(d.out, l)
	}
	d.numLines = len(lines)
}

func (d *Display) finish() {
	d.redraw()
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.out)
	for _, l := range Summary(d.last) {
		fmt.Fprintln(d.out, l)
	}
	fmt.Fprintln(d.out)
}
