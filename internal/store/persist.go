package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/tubeq/internal/queue"
)

const (
	QueueFile    = "queue_state.json"
	SettingsFile = "settings.json"
	BackupSuffix = ".bak"
)

// Store keeps the queue and the user settings as JSON documents in one
// directory. It satisfies queue.Persister.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) queuePath() string {
	return filepath.Join(s.dir, QueueFile)
}

func (s *Store) settingsPath() string {
	return filepath.Join(s.dir, SettingsFile)
}

func (s *Store) SaveQueue(items []queue.Job) error {
	if items == nil {
		items = []queue.Job{}
	}
	return writeJSON(s.queuePath(), items)
}

func (s *Store) SaveSettings(settings queue.Settings) error {
	return writeJSON(s.settingsPath(), settings)
}

// LoadQueue never fails: a broken primary falls back to the backup, a broken
// backup to an empty queue. Jobs that were downloading come back queued.
func (s *Store) LoadQueue() []queue.Job {
	var items []queue.Job
	if !readJSON(s.queuePath(), &items) {
		items = nil
		if !readJSON(s.queuePath()+BackupSuffix, &items) {
			log.Warn().Str("op", "store/load").Msg("no usable queue state, starting empty")
			return []queue.Job{}
		}
		log.Warn().Str("op", "store/load").Msg("queue state restored from backup")
	}
	if items == nil {
		items = []queue.Job{}
	}
	for i := range items {
		if items[i].Status == queue.StatusDownloading {
			items[i].Status = queue.StatusQueued
		}
		if items[i].DownloadLog == nil {
			items[i].DownloadLog = []string{}
		}
	}
	return items
}

func (s *Store) LoadSettings() queue.Settings {
	var persisted queue.PersistedSettings
	if !readJSON(s.settingsPath(), &persisted) {
		persisted = queue.PersistedSettings{}
		if !readJSON(s.settingsPath()+BackupSuffix, &persisted) {
			return queue.DefaultSettings()
		}
		log.Warn().Str("op", "store/load").Msg("settings restored from backup")
	}
	return queue.DefaultSettings().Merge(persisted)
}

func readJSON(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Debug().Str("op", "store/read").Err(err).Msgf("cannot read %s", path)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Str("op", "store/read").Err(err).Msgf("corrupt state file %s", path)
		return false
	}
	return true
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", filepath.Base(path), err)
	}
	if err := WriteAtomic(path, data); err != nil {
		return err
	}
	if err := WriteAtomic(path+BackupSuffix, data); err != nil {
		log.Warn().Str("op", "store/write").Err(err).Msg("failed to refresh backup")
	}
	return nil
}

// WriteAtomic writes data to a temp sibling, syncs it and renames it over path.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("error writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("error syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
