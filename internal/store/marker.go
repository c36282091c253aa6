package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const MarkerSuffix = ".incomplete"

// Marker records a finalize move that was in flight. It sits next to the
// destination as "<destination>.incomplete".
type Marker struct {
	JobID       string `json:"jobId"`
	Destination string `json:"destination"`
	Path        string `json:"-"`
}

func MarkerPath(dest string) string {
	return dest + MarkerSuffix
}

func WriteMarker(dest, jobID string) error {
	data, err := json.Marshal(Marker{JobID: jobID, Destination: dest})
	if err != nil {
		return err
	}
	if err := WriteAtomic(MarkerPath(dest), data); err != nil {
		return fmt.Errorf("error writing finalize marker: %w", err)
	}
	return nil
}

func RemoveMarker(dest string) {
	if err := os.Remove(MarkerPath(dest)); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("op", "store/marker").Err(err).Msg("failed to remove finalize marker")
	}
}

// ScanMarkers lists the markers found directly inside dirs. A marker whose
// body cannot be read still yields its destination from the file name.
func ScanMarkers(dirs []string) []Marker {
	var found []Marker
	seen := map[string]bool{}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), MarkerSuffix) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if seen[path] {
				continue
			}
			seen[path] = true
			m := Marker{Path: path}
			if data, err := os.ReadFile(path); err == nil {
				if err := json.Unmarshal(data, &m); err != nil {
					log.Debug().Str("op", "store/marker").Err(err).Msgf("unreadable marker %s", path)
				}
			}
			m.Path = path
			if m.Destination == "" {
				m.Destination = strings.TrimSuffix(path, MarkerSuffix)
			}
			found = append(found, m)
		}
	}
	return found
}
