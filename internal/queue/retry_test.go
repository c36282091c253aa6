package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, RetryDelay(0))
	assert.Equal(t, 5*time.Second, RetryDelay(1))
	assert.Equal(t, 10*time.Second, RetryDelay(2))
	assert.Equal(t, 15*time.Second, RetryDelay(3))
	assert.Equal(t, 15*time.Second, RetryDelay(9))
	assert.Equal(t, 2*time.Second, RetryDelay(-1))
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(0, 3))
	assert.True(t, ShouldRetry(2, 3))
	assert.False(t, ShouldRetry(3, 3))
	assert.False(t, ShouldRetry(0, 0))
	assert.False(t, ShouldRetry(10, 50), "max retries is clamped to the ceiling")
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, StatusQueued.CanTransition(StatusDownloading))
	assert.True(t, StatusDownloading.CanTransition(StatusQueued))
	assert.True(t, StatusFailed.CanTransition(StatusQueued))
	assert.True(t, StatusCanceled.CanTransition(StatusQueued))
	assert.False(t, StatusPaused.CanTransition(StatusPaused))
	assert.False(t, StatusPaused.CanTransition(StatusDownloading))
	assert.False(t, StatusFailed.CanTransition(StatusCanceled))
	for _, s := range []Status{StatusQueued, StatusDownloading, StatusPaused, StatusCanceled, StatusFailed} {
		assert.False(t, StatusCompleted.CanTransition(s))
	}
}

func TestCanonicalURL(t *testing.T) {
	want := "https://www.youtube.com/watch?v=abc"
	for _, in := range []string{
		"https://www.youtube.com/watch?v=abc",
		"https://youtube.com/watch?v=abc&t=42",
		"https://m.youtube.com/watch?v=abc",
		"https://youtu.be/abc?si=xyz",
		"https://www.youtube.com/shorts/abc",
		"https://www.youtube.com/live/abc/",
		"  https://music.youtube.com/watch?v=abc&list=x  ",
	} {
		assert.Equal(t, want, CanonicalURL(in), in)
	}
	assert.Equal(t, "https://vimeo.com/123", CanonicalURL(" https://vimeo.com/123 "))
	assert.Equal(t, "https://www.youtube.com/feed", CanonicalURL("https://www.youtube.com/feed"))
	assert.Equal(t, "not a url", CanonicalURL("not a url"))
}

func TestSettingsMerge(t *testing.T) {
	retries := -4
	lang := "  "
	dir := "/srv/media"
	s := DefaultSettings().Merge(PersistedSettings{DownloadDir: &dir, MaxRetries: &retries, Language: &lang})
	assert.Equal(t, "/srv/media", s.DownloadDir)
	assert.Equal(t, 0, s.MaxRetries)
	assert.Equal(t, DefaultLanguage, s.Language)

	s = DefaultSettings().Merge(PersistedSettings{})
	assert.Equal(t, DefaultMaxRetries, s.MaxRetries)
	assert.NotEmpty(t, s.DownloadDir)
}
