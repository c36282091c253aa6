package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/tubeq/internal/queue"
	"pgregory.net/rapid"
)

func sampleJobs() []queue.Job {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []queue.Job{
		{
			ID:              "a",
			Title:           "First",
			URL:             "https://www.youtube.com/watch?v=a",
			Mode:            queue.ModeVideo,
			QualityID:       "137",
			Status:          queue.StatusCompleted,
			ProgressPercent: 100,
			OutputPath:      queue.StringPtr("/dl/First.mp4"),
			DownloadLog:     []string{"[download] 100%"},
			CreatedAt:       created,
		},
		{
			ID:              "b",
			Title:           "Second",
			URL:             "https://example.com/b",
			Mode:            queue.ModeAudio,
			QualityID:       "bestaudio",
			Status:          queue.StatusDownloading,
			ProgressPercent: 12.5,
			SpeedText:       queue.StringPtr("1MiB/s"),
			RetryCount:      2,
			DownloadLog:     []string{},
			CreatedAt:       created,
		},
	}
}

func TestQueueRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.SaveQueue(sampleJobs()))

	loaded := s.LoadQueue()
	want := sampleJobs()
	want[1].Status = queue.StatusQueued
	assert.Equal(t, want, loaded)

	_, err = os.Stat(filepath.Join(s.Dir(), QueueFile+BackupSuffix))
	assert.NoError(t, err)
}

func TestLoadFallsBackToBackup(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.SaveQueue(sampleJobs()))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), QueueFile), []byte("{not json"), 0644))

	loaded := s.LoadQueue()
	require.Len(t, loaded, 2)
	assert.Equal(t, "a", loaded[0].ID)
}

func TestLoadWithNothingUsable(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, s.LoadQueue())
	assert.NotNil(t, s.LoadQueue())

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), QueueFile), []byte("]["), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), QueueFile+BackupSuffix), []byte(""), 0644))
	assert.Empty(t, s.LoadQueue())

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), SettingsFile), []byte("nope"), 0644))
	assert.Equal(t, queue.DefaultSettings(), s.LoadSettings())
}

func TestSettingsFallBackToBackup(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	dir := t.TempDir()
	want := queue.Settings{DownloadDir: dir, MaxRetries: 7, Language: "de"}
	require.NoError(t, s.SaveSettings(want))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), SettingsFile), []byte("{broken"), 0644))

	got := s.LoadSettings()
	assert.Equal(t, want.DownloadDir, got.DownloadDir)
	assert.Equal(t, want.MaxRetries, got.MaxRetries)
	assert.Equal(t, want.Language, got.Language)
}

func TestLoadNormalizesMissingLog(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	doc := `[{"id":"x","title":"t","url":"u","mode":"audio","qualityId":"q","status":"paused","progressPercent":0,"retryCount":0}]`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), QueueFile), []byte(doc), 0644))
	loaded := s.LoadQueue()
	require.Len(t, loaded, 1)
	assert.NotNil(t, loaded[0].DownloadLog)
	assert.Equal(t, queue.StatusPaused, loaded[0].Status)
}

func TestSettingsRoundTripAndPartialDocument(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, s.SaveSettings(queue.Settings{DownloadDir: dir, MaxRetries: 5, Language: "ko"}))
	assert.Equal(t, queue.Settings{DownloadDir: dir, MaxRetries: 5, Language: "ko"}, s.LoadSettings())

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), SettingsFile), []byte(`{"maxRetries": 99}`), 0644))
	got := s.LoadSettings()
	assert.Equal(t, queue.MaxRetriesCeiling, got.MaxRetries)
	assert.Equal(t, queue.DefaultLanguage, got.Language)
	assert.Equal(t, queue.DefaultSettings().DownloadDir, got.DownloadDir)
}

func TestQueueRoundTripProperty(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	statuses := []queue.Status{
		queue.StatusQueued, queue.StatusDownloading, queue.StatusPaused,
		queue.StatusCanceled, queue.StatusCompleted, queue.StatusFailed,
	}
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		jobs := make([]queue.Job, n)
		for i := range jobs {
			jobs[i] = queue.Job{
				ID:              rapid.StringMatching(`[a-f0-9]{8}`).Draw(t, "id"),
				Title:           rapid.String().Draw(t, "title"),
				URL:             rapid.StringMatching(`https://[a-z]{1,8}\.com/[a-z0-9]{0,6}`).Draw(t, "url"),
				Mode:            rapid.SampledFrom([]queue.Mode{queue.ModeAudio, queue.ModeVideo}).Draw(t, "mode"),
				QualityID:       rapid.StringMatching(`[0-9a-z+]{1,10}`).Draw(t, "quality"),
				Status:          rapid.SampledFrom(statuses).Draw(t, "status"),
				ProgressPercent: float64(rapid.IntRange(0, 1000).Draw(t, "pct")) / 10,
				RetryCount:      rapid.IntRange(0, 10).Draw(t, "retries"),
				DownloadLog:     rapid.SliceOfN(rapid.StringMatching(`[ -~]{0,20}`), 0, 5).Draw(t, "log"),
				CreatedAt:       time.Unix(rapid.Int64Range(0, 1<<32).Draw(t, "created"), 0).UTC(),
			}
			if rapid.Bool().Draw(t, "hasErr") {
				jobs[i].ErrorMessage = queue.StringPtr(rapid.String().Draw(t, "err"))
			}
		}
		if err := s.SaveQueue(jobs); err != nil {
			t.Fatalf("save: %v", err)
		}
		loaded := s.LoadQueue()
		if len(loaded) != len(jobs) {
			t.Fatalf("got %d jobs, want %d", len(loaded), len(jobs))
		}
		for i := range jobs {
			want := jobs[i]
			if want.Status == queue.StatusDownloading {
				want.Status = queue.StatusQueued
			}
			if want.DownloadLog == nil {
				want.DownloadLog = []string{}
			}
			assert.Equal(t, want, loaded[i])
		}
	})
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "a_b_c_d", SanitizeFileName(`a/b\c:d`))
	assert.Equal(t, "hello world", SanitizeFileName("  hello \t\n world  "))
	assert.Equal(t, "dots", SanitizeFileName("dots... . "))
	assert.Equal(t, fallbackName, SanitizeFileName(" ... "))
	assert.Equal(t, fallbackName, SanitizeFileName(""))
	assert.Equal(t, "a_b_c_", SanitizeFileName("a\x00b\x1fc\x7f"))
	assert.Len(t, []rune(SanitizeFileName(strings.Repeat("가", 400))), maxNameRunes)
}

func TestSanitizeFileNameProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := SanitizeFileName(rapid.String().Draw(t, "title"))
		if name == "" {
			t.Fatal("empty name")
		}
		if strings.ContainsAny(name, `\/:*?"<>|`) {
			t.Fatalf("unsafe characters in %q", name)
		}
		if strings.ContainsFunc(name, unicode.IsControl) {
			t.Fatalf("control characters in %q", name)
		}
		if len([]rune(name)) > maxNameRunes {
			t.Fatalf("name too long: %d runes", len([]rune(name)))
		}
		if strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ") {
			t.Fatalf("trailing dot or space in %q", name)
		}
	})
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	first, err := UniquePath(dir, "Song: Live", queue.ModeAudio, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Song_ Live.mp3"), first)

	require.NoError(t, os.WriteFile(first, []byte("x"), 0644))
	second, err := UniquePath(dir, "Song: Live", queue.ModeAudio, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Song_ Live (1).mp3"), second)

	taken := func(p string) bool { return p == second }
	third, err := UniquePath(dir, "Song: Live", queue.ModeAudio, taken)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Song_ Live (2).mp3"), third)

	video, err := UniquePath(dir, "Song: Live", queue.ModeVideo, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Song_ Live.mp4"), video)

	nul, err := UniquePath(dir, "Bad\x00Title", queue.ModeVideo, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Bad_Title.mp4"), nul)
}

func TestLocateArtifact(t *testing.T) {
	dir := t.TempDir()
	_, err := LocateArtifact(dir, "mp4")
	assert.ErrorIs(t, err, ErrArtifactMissing)

	older := filepath.Join(dir, "a.mp4")
	newer := filepath.Join(dir, "b.MP4")
	require.NoError(t, os.WriteFile(older, []byte("1"), 0644))
	require.NoError(t, os.WriteFile(newer, []byte("2"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.webm"), []byte("3"), 0644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	got, err := LocateArtifact(dir, "mp4")
	require.NoError(t, err)
	assert.Equal(t, newer, got)

	preferred := filepath.Join(dir, "media.mp4")
	require.NoError(t, os.WriteFile(preferred, []byte("m"), 0644))
	require.NoError(t, os.Chtimes(preferred, past, past))
	got, err = LocateArtifact(dir, "mp4")
	require.NoError(t, err)
	assert.Equal(t, preferred, got)

	_, err = LocateArtifact(filepath.Join(dir, "missing"), "mp4")
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestMoveFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "media.mp3")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))
	dst := filepath.Join(t.TempDir(), "nested", "Song.mp3")

	require.NoError(t, MoveFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, MoveFile(src, dst))
}

func TestMoveFileAcrossDevices(t *testing.T) {
	var calls int
	renameFile = func(oldpath, newpath string) error {
		calls++
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	t.Cleanup(func() { renameFile = os.Rename })

	src := filepath.Join(t.TempDir(), "media.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video bytes"), 0644))
	dst := filepath.Join(t.TempDir(), "Clip.mp4")

	require.NoError(t, MoveFile(src, dst))
	assert.Equal(t, 1, calls)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))
	assert.NoFileExists(t, src)
}

func TestMoveFileOtherRenameErrors(t *testing.T) {
	renameFile = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EACCES}
	}
	t.Cleanup(func() { renameFile = os.Rename })

	src := filepath.Join(t.TempDir(), "media.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))
	dst := filepath.Join(t.TempDir(), "Clip.mp4")

	require.Error(t, MoveFile(src, dst))
	assert.FileExists(t, src)
	assert.NoFileExists(t, dst)
}

func TestIsCrossDevice(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"link error", &os.LinkError{Op: "rename", Err: syscall.EXDEV}, true},
		{"wrapped", fmt.Errorf("moving: %w", syscall.EXDEV), true},
		{"permission", &os.LinkError{Op: "rename", Err: syscall.EACCES}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isCrossDevice(tt.err))
		})
	}
}

func TestCopyFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "in")
	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(src, []byte(strings.Repeat("z", 1<<16)), 0644))
	require.NoError(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Len(t, data, 1<<16)
}

func TestRecover(t *testing.T) {
	dataDir := t.TempDir()
	outDir := t.TempDir()
	require.NoError(t, os.MkdirAll(ScratchDir(dataDir, "job-1"), 0755))

	partialDest := filepath.Join(outDir, "Half.mp4")
	require.NoError(t, os.WriteFile(partialDest, []byte("half"), 0644))
	require.NoError(t, WriteMarker(partialDest, "job-1"))

	doneDest := filepath.Join(outDir, "Done.mp4")
	require.NoError(t, os.WriteFile(doneDest, []byte("full"), 0644))
	require.NoError(t, WriteMarker(doneDest, "job-2"))

	orphan := filepath.Join(outDir, "Orphan.mp4")
	require.NoError(t, os.WriteFile(MarkerPath(orphan), []byte("garbage"), 0644))

	seen := map[string]string{}
	n := Recover(dataDir, []string{outDir, outDir}, func(jobID, dest string) bool {
		seen[dest] = jobID
		return jobID == "job-1"
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, "job-1", seen[partialDest])
	assert.Equal(t, "job-2", seen[doneDest])
	assert.Equal(t, "", seen[orphan])

	_, err := os.Stat(partialDest)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(doneDest)
	assert.NoError(t, err)
	assert.Empty(t, ScanMarkers([]string{outDir}))
	_, err = os.Stat(ScratchRoot(dataDir))
	assert.True(t, os.IsNotExist(err))
}
