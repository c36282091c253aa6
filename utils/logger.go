package utils

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogOptions struct {
	Level      string
	Debug      bool
	Console    io.Writer
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
}

func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// InitLogger sets up the global logger: a console writer on stderr that only
// shows warnings unless debug is on, and an optional rotating JSON file at
// the configured level. The returned closer flushes the file.
func InitLogger(opts LogOptions) io.Closer {
	fileLevel := ParseLevel(opts.Level)
	consoleLevel := zerolog.WarnLevel
	if opts.Debug {
		consoleLevel = zerolog.DebugLevel
		fileLevel = min(fileLevel, zerolog.DebugLevel)
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	console := zerolog.ConsoleWriter{
		Out:        opts.Console,
		TimeFormat: time.DateTime,
	}
	writers := []io.Writer{filtered(console, consoleLevel)}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err == nil {
			sink := &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSize,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAge,
			}
			writers = append(writers, filtered(sink, fileLevel))
			closer = sink
		}
	}
	zerolog.SetGlobalLevel(min(consoleLevel, fileLevel))
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return closer
}

func filtered(w io.Writer, lvl zerolog.Level) *zerolog.FilteredLevelWriter {
	return &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: w},
		Level:  lvl,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
