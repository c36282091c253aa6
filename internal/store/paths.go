package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/tanq16/tubeq/internal/queue"
)

const (
	maxNameRunes = 160
	fallbackName = "download"
	scratchDir   = "tmp-downloads"
	binDir       = "bin"
)

var unsafeChars = strings.NewReplacer(
	`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

func ScratchRoot(dataDir string) string {
	return filepath.Join(dataDir, scratchDir)
}

func ScratchDir(dataDir, jobID string) string {
	return filepath.Join(ScratchRoot(dataDir), jobID)
}

func BinDir(dataDir string) string {
	return filepath.Join(dataDir, binDir)
}

// SanitizeFileName turns a title into a base name that is safe on every
// platform we ship to.
func SanitizeFileName(title string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, unsafeChars.Replace(title))
	name = strings.Join(strings.Fields(name), " ")
	name = strings.TrimRight(name, ". ")
	if name == "" {
		return fallbackName
	}
	if r := []rune(name); len(r) > maxNameRunes {
		name = strings.TrimRight(string(r[:maxNameRunes]), ". ")
		if name == "" {
			return fallbackName
		}
	}
	return name
}

// UniquePath picks "<title>.<ext>" inside dir, adding " (n)" until the name
// is free on disk and not claimed by another live job.
func UniquePath(dir, title string, mode queue.Mode, taken func(string) bool) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("download directory is not set")
	}
	base := SanitizeFileName(title)
	ext := mode.Extension()
	for n := 0; ; n++ {
		name := base + "." + ext
		if n > 0 {
			name = fmt.Sprintf("%s (%d).%s", base, n, ext)
		}
		candidate := filepath.Join(dir, name)
		if taken != nil && taken(candidate) {
			continue
		}
		if _, err := os.Lstat(candidate); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("error checking %s: %w", candidate, err)
		}
		return candidate, nil
	}
}
