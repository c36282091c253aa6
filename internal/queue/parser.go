package queue

import (
	"math"
	"strconv"
	"strings"
)

const progressEpsilon = 1e-9

// LineInfo is what a single line of tool output says about the transfer.
type LineInfo struct {
	Line       string
	IsError    bool
	Percent    float64
	HasPercent bool
	Speed      string
	ETA        string
}

func ParseLine(raw string) LineInfo {
	line := strings.TrimSpace(raw)
	info := LineInfo{Line: line}
	if line == "" {
		return info
	}
	info.IsError = strings.Contains(line, "ERROR:") || strings.Contains(line, "HTTP Error")
	info.Percent, info.HasPercent = parsePercent(line)
	info.Speed = parseSpeed(line)
	info.ETA = parseETA(line)
	return info
}

// parsePercent reads the run of digits and dots right before the first '%'.
func parsePercent(line string) (float64, bool) {
	idx := strings.IndexByte(line, '%')
	if idx <= 0 {
		return 0, false
	}
	start := idx
	for start > 0 {
		c := line[start-1]
		if (c < '0' || c > '9') && c != '.' {
			break
		}
		start--
	}
	if start == idx {
		return 0, false
	}
	v, err := strconv.ParseFloat(line[start:idx], 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func parseSpeed(line string) string {
	at := strings.Index(line, " at ")
	eta := strings.Index(line, " ETA")
	if at < 0 || eta <= at+4 {
		return ""
	}
	return strings.TrimSpace(line[at+4 : eta])
}

func parseETA(line string) string {
	eta := strings.Index(line, " ETA ")
	if eta < 0 {
		return ""
	}
	return strings.TrimSpace(line[eta+5:])
}

// apply folds a parsed line into the job and reports whether anything visible changed.
func (info LineInfo) apply(j *Job) bool {
	if j.Status != StatusQueued && j.Status != StatusDownloading {
		return false
	}
	changed := j.appendLog(info.Line)
	if info.IsError && Deref(j.ErrorMessage) != info.Line {
		j.ErrorMessage = StringPtr(info.Line)
		changed = true
	}
	if info.HasPercent {
		pct := max(0, min(info.Percent, 100))
		regress := j.Status == StatusDownloading && pct < j.ProgressPercent
		if !regress && math.Abs(j.ProgressPercent-pct) > progressEpsilon {
			j.ProgressPercent = pct
			changed = true
		}
		if j.Status != StatusDownloading {
			j.Status = StatusDownloading
			changed = true
		}
	}
	if info.Speed != "" && Deref(j.SpeedText) != info.Speed {
		j.SpeedText = StringPtr(info.Speed)
		changed = true
	}
	if info.ETA != "" && Deref(j.ETAText) != info.ETA {
		j.ETAText = StringPtr(info.ETA)
		changed = true
	}
	return changed
}
