package pkg

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

const (
	envLogLevel  = "ITSI_LOG"
	envLogFormat = "ITSI_LOG_FORMAT" // plain | json
	envLogTarget = "ITSI_LOG_TARGET" // stdout | file | both
	envLogFile   = "ITSI_LOG_FILE"
	envLogANSI   = "ITSI_LOG_ANSI"

	defaultLogFile = "itsi.log"
)

var configureRootLoggerOnce sync.Once

// configureRootLoggerFromEnv builds the process-wide root slog logger from the
// ITSI_LOG* environment variables and installs it as slog's default, so every
// NewLogger(nil) call site inherits it. Runs once; later calls are no-ops.
func configureRootLoggerFromEnv() {
	configureRootLoggerOnce.Do(func() {
		slog.SetDefault(slog.New(rootHandlerFromEnv()))
	})
}

func rootHandlerFromEnv() slog.Handler {
	level := slog.LevelInfo
	switch os.Getenv(envLogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stdout
	switch os.Getenv(envLogTarget) {
	case "file":
		out = logFileWriter()
	case "both":
		out = io.MultiWriter(os.Stdout, logFileWriter())
	}

	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv(envLogFormat) == "json" {
		return slog.NewJSONHandler(out, opts)
	}

	if ansi, _ := strconv.ParseBool(os.Getenv(envLogANSI)); ansi {
		opts.ReplaceAttr = colorizeLevelAttr
	}
	return slog.NewTextHandler(out, opts)
}

// logFileWriter opens (appending) the configured log file; a file that cannot
// be opened degrades to stdout rather than silencing the process.
func logFileWriter() io.Writer {
	path := os.Getenv(envLogFile)
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stdout
	}
	return f
}

// colorizeLevelAttr wraps the level attribute in the conventional ANSI color
// for each severity. Only used by the plain-text handler when ITSI_LOG_ANSI is
// set; the JSON handler stays machine-clean.
func colorizeLevelAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	var color string
	switch {
	case level >= slog.LevelError:
		color = "\x1b[31m" // red
	case level >= slog.LevelWarn:
		color = "\x1b[33m" // yellow
	case level <= slog.LevelDebug:
		color = "\x1b[36m" // cyan
	default:
		color = "\x1b[32m" // green
	}
	a.Value = slog.StringValue(color + level.String() + "\x1b[0m")
	return a
}
