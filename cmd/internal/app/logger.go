package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

const (
	LogFormatJSON   = "json"
	LogFormatPretty = "pretty"
)

// NewLogger creates the process logger from cfg and installs it as the slog default.
// The returned closer releases the rotating log file, if any.
func NewLogger(cfg Config) (*slog.Logger, io.Closer) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if path := strings.TrimSpace(cfg.LogFile); path != "" {
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	log := slog.New(newLogHandler(out, cfg.LogFormat, parseLogLevel(cfg.LogLevel)))
	slog.SetDefault(log)
	return log, closer
}

func newLogHandler(w io.Writer, format string, lvl slog.Level) slog.Handler {
	if strings.EqualFold(strings.TrimSpace(format), LogFormatPretty) {
		return charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(lvl),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Prefix:          "excuses",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: true,
	})
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
