package deps

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

const (
	YtDlp  = "yt-dlp"
	FFmpeg = "ffmpeg"
)

var commonBinaryDirs = map[bool][]string{
	false: {"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin", "/bin"},
	true:  {`C:\Program Files\yt-dlp`, `C:\Program Files\ffmpeg\bin`, `C:\Windows\System32`},
}

// ExecutableName adds the platform suffix to a bare tool name.
func ExecutableName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// Resolver locates external tools. Lookup order is the managed bin
// directory, a bin directory next to the running executable, PATH, then a
// fixed list of well-known install locations.
type Resolver struct {
	ManagedDir string
	BundledDir string
	CommonDirs []string
}

func NewResolver(managedDir string) *Resolver {
	r := &Resolver{
		ManagedDir: managedDir,
		CommonDirs: commonBinaryDirs[runtime.GOOS == "windows"],
	}
	if exe, err := os.Executable(); err == nil {
		r.BundledDir = filepath.Join(filepath.Dir(exe), "bin")
	}
	return r
}

// ManagedPath is where a downloaded copy of the tool lives.
func (r *Resolver) ManagedPath(name string) string {
	return filepath.Join(r.ManagedDir, ExecutableName(name))
}

// Find returns the first existing candidate for name.
func (r *Resolver) Find(name string) (string, bool) {
	file := ExecutableName(name)
	for _, dir := range []string{r.ManagedDir, r.BundledDir} {
		if dir == "" {
			continue
		}
		if p := filepath.Join(dir, file); isFile(p) {
			return p, true
		}
	}
	if p, err := exec.LookPath(file); err == nil {
		if abs, err := filepath.Abs(p); err == nil {
			return abs, true
		}
		return p, true
	}
	for _, dir := range r.CommonDirs {
		if p := filepath.Join(dir, file); isFile(p) {
			return p, true
		}
	}
	return "", false
}

// Resolve is Find falling back to the bare executable name so the OS gets a
// final chance to locate it at spawn time.
func (r *Resolver) Resolve(name string) string {
	if p, ok := r.Find(name); ok {
		return p
	}
	return ExecutableName(name)
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
