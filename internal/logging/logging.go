// Package logging builds the zap loggers used across unreadbell.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the encoder.
type Format string

const (
	// FormatConsole is zap's console encoder with a readable timestamp.
	FormatConsole Format = "console"
	// FormatJSON is structured JSON, one object per line.
	FormatJSON Format = "json"
)

// Component names used with Logger.Named.
const (
	ComponentRelay     = "relay"
	ComponentScheduler = "scheduler"
	ComponentConn      = "conn"
	ComponentSource    = "source"
	ComponentListener  = "listener"
	ComponentMetrics   = "metrics"
)

// Options configure New.
type Options struct {
	Level  string
	Format Format
	// File, when set, receives a JSON copy of every entry in addition to
	// stderr. The watch UI tails it.
	File string
	// Quiet drops the stderr sink; used when a TUI owns the terminal.
	Quiet bool
}

// ParseLevel maps a case-insensitive level name to a zap level. Unknown names
// fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05 MST"))
}

// New builds a logger. The returned cleanup flushes and closes the log file.
func New(opts Options) (*zap.Logger, func(), error) {
	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core
	if !opts.Quiet {
		consoleCfg := cfg
		var encoder zapcore.Encoder
		if opts.Format == FormatJSON {
			consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
			consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder
			encoder = zapcore.NewJSONEncoder(consoleCfg)
		} else {
			consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			consoleCfg.EncodeTime = timeEncoder
			consoleCfg.ConsoleSeparator = " | "
			encoder = zapcore.NewConsoleEncoder(consoleCfg)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level))
	}

	cleanup := func() {}
	if path := strings.TrimSpace(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		fileCfg := cfg
		fileCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), level))
		cleanup = func() { _ = file.Close() }
	}

	if len(cores) == 0 {
		return zap.NewNop(), cleanup, nil
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, func() {
		_ = logger.Sync()
		cleanup()
	}, nil
}
