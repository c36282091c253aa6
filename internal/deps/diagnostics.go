package deps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tanq16/tubeq/internal/process"
)

const (
	diagnosticsTimeout = 10 * time.Second
	maxReasonRunes     = 120
)

type Check struct {
	OK     bool
	Path   string
	Reason string
}

type Report struct {
	YtDlp               Check
	FFmpeg              Check
	DownloadDirWritable bool
	BootstrapError      string
	Message             string
}

// Diagnose waits for the bootstrap (bounded), then probes both tools and
// the download directory in parallel.
func (b *Bootstrapper) Diagnose(ctx context.Context, downloadDir string) Report {
	var rep Report
	if err := b.EnsureReady(ctx); err != nil {
		rep.BootstrapError = err.Error()
	}

	env := b.Environ()
	rep.YtDlp.Path = b.resolver.Resolve(YtDlp)
	rep.FFmpeg.Path = b.resolver.Resolve(FFmpeg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rep.YtDlp = probe(gctx, rep.YtDlp.Path, "--version", env)
		return nil
	})
	g.Go(func() error {
		rep.FFmpeg = probe(gctx, rep.FFmpeg.Path, "-version", env)
		return nil
	})
	g.Go(func() error {
		os.MkdirAll(downloadDir, 0755)
		rep.DownloadDirWritable = CanWriteDir(downloadDir)
		return nil
	})
	g.Wait()

	rep.Message = rep.format()
	log.Debug().Str("op", "deps/diagnose").Msg(rep.Message)
	return rep
}

func probe(ctx context.Context, path, flag string, env []string) Check {
	res := process.RunCapture(ctx, path, []string{flag}, env, diagnosticsTimeout)
	c := Check{OK: res.OK(), Path: path}
	if c.OK {
		return c
	}
	if res.TimedOut {
		c.Reason = "timeout"
	} else {
		c.Reason = strings.TrimSpace(res.Stderr)
	}
	return c
}

func (r Report) format() string {
	msg := fmt.Sprintf("yt-dlp: %s, ffmpeg: %s, download-dir writable: %s",
		r.YtDlp.summary(), r.FFmpeg.summary(), okFail(r.DownloadDirWritable))
	if r.BootstrapError != "" {
		msg += ", bootstrap: " + r.BootstrapError
	}
	return msg
}

func (c Check) summary() string {
	if c.OK {
		return fmt.Sprintf("OK (%s)", c.Path)
	}
	return fmt.Sprintf("FAIL (%s) (%s)", TruncateReason(c.Reason), c.Path)
}

func okFail(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAIL"
}

// TruncateReason keeps the first 120 characters of a failure reason.
func TruncateReason(reason string) string {
	runes := []rune(reason)
	if len(runes) <= maxReasonRunes {
		return reason
	}
	return string(runes[:maxReasonRunes])
}

// CanWriteDir creates and removes a probe file in dir.
func CanWriteDir(dir string) bool {
	probe := filepath.Join(dir, fmt.Sprintf("tubeq_write_test_%d.tmp", time.Now().UnixMilli()))
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return false
	}
	os.Remove(probe)
	return true
}
