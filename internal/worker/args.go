package worker

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tanq16/tubeq/internal/queue"
	"github.com/tanq16/tubeq/internal/store"
)

// FormatExpression turns a quality id into a yt-dlp -f selector. Video ids
// without an explicit audio stream get the best audio merged in.
func FormatExpression(mode queue.Mode, qualityID string) string {
	if mode == queue.ModeAudio || strings.Contains(qualityID, "+") {
		return qualityID
	}
	return qualityID + "+bestaudio/best"
}

// BuildArgs assembles the yt-dlp command line for one job. The artifact is
// written into scratch as media.<ext>.
func BuildArgs(job queue.Job, scratch, ffmpegLocation string) []string {
	args := []string{
		"--no-playlist",
		"--newline",
		"--progress",
		"-f", FormatExpression(job.Mode, job.QualityID),
		"-o", filepath.Join(scratch, store.ArtifactName+".%(ext)s"),
	}
	if job.Mode == queue.ModeAudio {
		args = append(args, "-x", "--audio-format", "mp3")
	} else {
		args = append(args, "--merge-output-format", "mp4", "--recode-video", "mp4")
	}
	if ffmpegLocation != "" {
		args = append(args, "--ffmpeg-location", ffmpegLocation)
	}
	return append(args, job.URL)
}

// FailureText picks the message recorded on a failed attempt.
func FailureText(lastStderr, lastErrorLine string, code int) string {
	switch {
	case lastStderr != "":
		return lastStderr
	case lastErrorLine != "":
		return lastErrorLine
	default:
		return "exit status " + strconv.Itoa(code)
	}
}
