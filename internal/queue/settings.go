package queue

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	DefaultMaxRetries = 3
	MaxRetriesCeiling = 10
	DefaultLanguage   = "en"
)

type Settings struct {
	DownloadDir string `json:"downloadDir"`
	MaxRetries  int    `json:"maxRetries"`
	Language    string `json:"language"`
}

// PersistedSettings mirrors Settings with every field optional so that a
// partial document on disk only overrides what it names.
type PersistedSettings struct {
	DownloadDir *string `json:"downloadDir,omitempty"`
	MaxRetries  *int    `json:"maxRetries,omitempty"`
	Language    *string `json:"language,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		DownloadDir: defaultDownloadDir(),
		MaxRetries:  DefaultMaxRetries,
		Language:    DefaultLanguage,
	}
}

// Merge applies the persisted fields over s and normalizes the result.
func (s Settings) Merge(p PersistedSettings) Settings {
	if p.DownloadDir != nil {
		s.DownloadDir = *p.DownloadDir
	}
	if p.MaxRetries != nil {
		s.MaxRetries = *p.MaxRetries
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	return s.Normalize()
}

func (s Settings) Normalize() Settings {
	s.DownloadDir = NormalizeDownloadDir(s.DownloadDir)
	s.MaxRetries = ClampRetries(s.MaxRetries)
	s.Language = strings.TrimSpace(s.Language)
	if s.Language == "" {
		s.Language = DefaultLanguage
	}
	return s
}

func ClampRetries(n int) int {
	return max(0, min(n, MaxRetriesCeiling))
}

// NormalizeDownloadDir returns an absolute directory, falling back to the
// user's Downloads folder when raw is empty.
func NormalizeDownloadDir(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultDownloadDir()
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	if runtime.GOOS != "windows" && strings.HasPrefix(raw, "Users/") {
		return "/" + raw
	}
	if abs, err := filepath.Abs(raw); err == nil {
		return abs
	}
	return raw
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
		return "."
	}
	return filepath.Join(home, "Downloads")
}
