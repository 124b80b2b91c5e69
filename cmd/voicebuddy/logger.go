package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/liamchens/quran-voice-buddy/internal/config"
)

// Log rotation limits for server.log_file.
const (
	logMaxSizeMB  = 100
	logMaxBackups = 5
	logMaxAgeDays = 28
)

// newLogger builds the process logger described by srv. Output goes to a
// rotating file when srv.LogFile is set and to stderr otherwise. The returned
// closer flushes and closes the file.
func newLogger(srv config.ServerConfig, level *slog.LevelVar) (*slog.Logger, io.Closer) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if srv.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   srv.LogFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   true,
		}
		w, closer = lj, lj
	}

	opts := &slog.HandlerOptions{Level: level}
	if srv.LogFormat == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), closer
	}
	return slog.New(slog.NewTextHandler(w, opts)), closer
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
