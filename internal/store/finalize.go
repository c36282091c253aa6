package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

var ErrArtifactMissing = errors.New("finished file not found in scratch directory")

// ArtifactName is the file name the tool is told to write inside the
// scratch directory, minus the extension.
const ArtifactName = "media"

var renameFile = os.Rename

// LocateArtifact returns media.<ext> when present, otherwise the most
// recently modified *.<ext> in dir.
func LocateArtifact(dir, ext string) (string, error) {
	preferred := filepath.Join(dir, ArtifactName+"."+ext)
	if fi, err := os.Stat(preferred); err == nil && fi.Mode().IsRegular() {
		return preferred, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArtifactMissing, err)
	}
	var (
		best     string
		bestTime time.Time
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(strings.TrimPrefix(filepath.Ext(entry.Name()), "."), ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best, bestTime = filepath.Join(dir, entry.Name()), info.ModTime()
		}
	}
	if best == "" {
		return "", ErrArtifactMissing
	}
	return best, nil
}

// MoveFile renames src to dst, falling back to copy and delete when the two
// live on different filesystems.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("error creating destination directory: %w", err)
	}
	err := renameFile(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("error moving file: %w", err)
	}
	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return fmt.Errorf("error copying across devices: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("error removing source after copy: %w", err)
	}
	return nil
}

func isCrossDevice(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	if errno == syscall.EXDEV {
		return true
	}
	// ERROR_NOT_SAME_DEVICE
	return runtime.GOOS == "windows" && errno == 17
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func RemoveDir(path string) {
	if path == "" {
		return
	}
	os.RemoveAll(path)
}
