package deps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tanq16/tubeq/internal/process"
)

const (
	DefaultReleaseBaseURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download"
	DefaultLatestAPIURL   = "https://api.github.com/repos/yt-dlp/yt-dlp/releases/latest"
)

var ErrNotReady = errors.New("dependencies are not ready")

type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseCheckingYtDlp    Phase = "checking-yt-dlp"
	PhaseDownloadingYtDlp Phase = "downloading-yt-dlp"
	PhaseCheckingFFmpeg   Phase = "checking-ffmpeg"
	PhaseReady            Phase = "ready"
	PhaseFailed           Phase = "failed"
)

type Status struct {
	Phase   Phase
	Message string
	Err     string
}

type Options struct {
	VersionTimeout  time.Duration
	FFmpegTimeout   time.Duration
	WaitTimeout     time.Duration
	DownloadTimeout time.Duration
	ReleaseBaseURL  string
	LatestAPIURL    string
	ProxyURL        string
	ProxyUsername   string
	ProxyPassword   string
	UserAgent       string
}

func DefaultOptions() Options {
	return Options{
		VersionTimeout:  5 * time.Second,
		FFmpegTimeout:   10 * time.Second,
		WaitTimeout:     60 * time.Second,
		DownloadTimeout: 180 * time.Second,
		ReleaseBaseURL:  DefaultReleaseBaseURL,
		LatestAPIURL:    DefaultLatestAPIURL,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.VersionTimeout <= 0 {
		o.VersionTimeout = d.VersionTimeout
	}
	if o.FFmpegTimeout <= 0 {
		o.FFmpegTimeout = d.FFmpegTimeout
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = d.WaitTimeout
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = d.DownloadTimeout
	}
	if o.ReleaseBaseURL == "" {
		o.ReleaseBaseURL = d.ReleaseBaseURL
	}
	if o.LatestAPIURL == "" {
		o.LatestAPIURL = d.LatestAPIURL
	}
	return o
}

// Bootstrapper makes sure yt-dlp and ffmpeg can be executed, downloading a
// managed yt-dlp build when none works. Concurrent callers share a single
// bootstrap run; a successful run is remembered, a failed one is retried by
// the next caller.
type Bootstrapper struct {
	resolver *Resolver
	opts     Options
	client   *HTTPClient
	group    singleflight.Group

	mu     sync.Mutex
	status Status
}

func NewBootstrapper(r *Resolver, opts Options) *Bootstrapper {
	opts = opts.withDefaults()
	return &Bootstrapper{
		resolver: r,
		opts:     opts,
		client: NewHTTPClient(HTTPClientConfig{
			Timeout:       opts.DownloadTimeout,
			ProxyURL:      opts.ProxyURL,
			ProxyUsername: opts.ProxyUsername,
			ProxyPassword: opts.ProxyPassword,
			UserAgent:     opts.UserAgent,
		}),
		status:   Status{Phase: PhaseIdle},
	}
}

func (b *Bootstrapper) Resolver() *Resolver {
	return b.resolver
}

func (b *Bootstrapper) Resolve(name string) string {
	return b.resolver.Resolve(name)
}

func (b *Bootstrapper) Find(name string) (string, bool) {
	return b.resolver.Find(name)
}

// Environ is the environment external tools are started with.
func (b *Bootstrapper) Environ() []string {
	return process.Environ(b.resolver.ManagedDir)
}

func (b *Bootstrapper) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Bootstrapper) Ready() bool {
	return b.Status().Phase == PhaseReady
}

func (b *Bootstrapper) setStatus(phase Phase, msg string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = Status{Phase: phase, Message: msg}
	if err != nil {
		b.status.Err = err.Error()
	}
}

// Start kicks off a background bootstrap without waiting for it.
func (b *Bootstrapper) Start() {
	if b.Ready() {
		return
	}
	b.group.DoChan("bootstrap", b.bootstrap)
}

// EnsureReady blocks until the tools are usable, the wait bound elapses or
// ctx is done. The bootstrap keeps running in the background when the
// caller gives up.
func (b *Bootstrapper) EnsureReady(ctx context.Context) error {
	if b.Ready() {
		return nil
	}
	ch := b.group.DoChan("bootstrap", b.bootstrap)
	timer := time.NewTimer(b.opts.WaitTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: still %s after %s", ErrNotReady, b.Status().Phase, b.opts.WaitTimeout)
	}
}

func (b *Bootstrapper) bootstrap() (any, error) {
	ctx := context.Background()
	env := b.Environ()

	b.setStatus(PhaseCheckingYtDlp, "checking yt-dlp", nil)
	ytdlp := b.resolver.Resolve(YtDlp)
	res := process.RunCapture(ctx, ytdlp, []string{"--version"}, env, b.opts.VersionTimeout)
	if res.OK() {
		log.Debug().Str("op", "deps/bootstrap").Msgf("yt-dlp %s at %s", strings.TrimSpace(res.Stdout), ytdlp)
	} else {
		log.Info().Str("op", "deps/bootstrap").Msgf("yt-dlp unusable at %s, installing managed copy", ytdlp)
		b.setStatus(PhaseDownloadingYtDlp, "downloading yt-dlp", nil)
		path, err := b.installYtDlp(ctx)
		if err != nil {
			err = fmt.Errorf("error installing yt-dlp: %w", err)
			b.setStatus(PhaseFailed, "yt-dlp unavailable", err)
			return nil, err
		}
		res = process.RunCapture(ctx, path, []string{"--version"}, process.Environ(b.resolver.ManagedDir), b.opts.VersionTimeout)
		if !res.OK() {
			err := fmt.Errorf("downloaded yt-dlp does not run: %s", failureReason(res))
			b.setStatus(PhaseFailed, "yt-dlp unavailable", err)
			return nil, err
		}
	}

	b.setStatus(PhaseCheckingFFmpeg, "checking ffmpeg", nil)
	ffmpeg := b.resolver.Resolve(FFmpeg)
	res = process.RunCapture(ctx, ffmpeg, []string{"-version"}, env, b.opts.FFmpegTimeout)
	if !res.OK() {
		err := fmt.Errorf("ffmpeg is not available (%s), please install it", failureReason(res))
		b.setStatus(PhaseFailed, "ffmpeg unavailable", err)
		return nil, err
	}

	b.setStatus(PhaseReady, "ready", nil)
	log.Info().Str("op", "deps/bootstrap").Msg("dependencies ready")
	return nil, nil
}

// AssetName is the release file for the running platform.
func AssetName() (string, error) {
	goos := runtime.GOOS
	goarch := runtime.GOARCH
	switch {
	case goos == "windows" && goarch == "arm64":
		return "yt-dlp_arm64.exe", nil
	case goos == "windows":
		return "yt-dlp.exe", nil
	case goos == "linux" && goarch == "arm64":
		return "yt-dlp_linux_aarch64", nil
	case goos == "linux" && goarch == "amd64":
		return "yt-dlp_linux", nil
	case goos == "darwin":
		return "yt-dlp_macos", nil
	default:
		return "", fmt.Errorf("unsupported OS/arch: %s/%s", goos, goarch)
	}
}

func (b *Bootstrapper) installYtDlp(ctx context.Context) (string, error) {
	asset, err := AssetName()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.resolver.ManagedDir, 0755); err != nil {
		return "", fmt.Errorf("error creating bin directory: %w", err)
	}
	target := b.resolver.ManagedPath(YtDlp)
	downloadURL := strings.TrimRight(b.opts.ReleaseBaseURL, "/") + "/" + asset
	if err := b.downloadFile(ctx, downloadURL, target); err != nil {
		return "", err
	}
	log.Info().Str("op", "deps/install").Msgf("installed %s to %s", asset, target)
	return target, nil
}

func (b *Bootstrapper) downloadFile(ctx context.Context, url, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmp.Name(), 0755); err != nil {
			return fmt.Errorf("error setting permissions: %w", err)
		}
	}
	return os.Rename(tmp.Name(), target)
}

// LatestVersion asks the release API for the newest yt-dlp tag.
func (b *Bootstrapper) LatestVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.LatestAPIURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error checking latest release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}
	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("error decoding release: %w", err)
	}
	if release.TagName == "" {
		return "", errors.New("release has no tag")
	}
	return strings.TrimSpace(release.TagName), nil
}

// InstalledVersion reports the version of the yt-dlp that would be used.
func (b *Bootstrapper) InstalledVersion(ctx context.Context) (string, string, error) {
	path := b.resolver.Resolve(YtDlp)
	res := process.RunCapture(ctx, path, []string{"--version"}, b.Environ(), b.opts.VersionTimeout)
	if !res.OK() {
		return "", path, fmt.Errorf("yt-dlp --version failed: %s", failureReason(res))
	}
	return strings.TrimSpace(res.Stdout), path, nil
}

// Update installs the latest yt-dlp into the managed bin directory unless
// the managed copy already has that version.
func (b *Bootstrapper) Update(ctx context.Context) (string, bool, error) {
	latest, err := b.LatestVersion(ctx)
	if err != nil {
		return "", false, err
	}
	managed := b.resolver.ManagedPath(YtDlp)
	if isFile(managed) {
		res := process.RunCapture(ctx, managed, []string{"--version"}, b.Environ(), b.opts.VersionTimeout)
		if res.OK() && strings.TrimSpace(res.Stdout) == latest {
			return latest, false, nil
		}
	}
	if _, err := b.installYtDlp(ctx); err != nil {
		return "", false, err
	}
	b.setStatus(PhaseIdle, "updated", nil)
	return latest, true, nil
}

func failureReason(res process.CaptureResult) string {
	if res.TimedOut {
		return "timeout"
	}
	if s := strings.TrimSpace(res.Stderr); s != "" {
		return s
	}
	return fmt.Sprintf("exit code %d", res.Code)
}
