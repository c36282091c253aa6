package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerSplitsLevels(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "tubeq.log")
	closer := InitLogger(LogOptions{Level: "info", Console: &console, File: file, MaxSize: 1})

	log.Info().Str("op", "test/log").Msg("into the file only")
	log.Warn().Str("op", "test/log").Msg("everywhere")
	log.Debug().Str("op", "test/log").Msg("nowhere")
	require.NoError(t, closer.Close())

	assert.NotContains(t, console.String(), "into the file only")
	assert.Contains(t, console.String(), "everywhere")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"into the file only"`)
	assert.Contains(t, string(data), `"op":"test/log"`)
	assert.NotContains(t, string(data), "nowhere")
}

func TestInitLoggerDebug(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	var console bytes.Buffer
	closer := InitLogger(LogOptions{Level: "error", Debug: true, Console: &console})
	log.Debug().Msg("visible")
	require.NoError(t, closer.Close())
	assert.Contains(t, console.String(), "visible")
}

func TestFilteredWriterDropsLowerLevels(t *testing.T) {
	var buf bytes.Buffer
	w := filtered(&buf, zerolog.WarnLevel)
	n, err := w.WriteLevel(zerolog.InfoLevel, []byte("info\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	_, err = w.WriteLevel(zerolog.ErrorLevel, []byte("error\n"))
	require.NoError(t, err)
	assert.Equal(t, "error\n", buf.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}
