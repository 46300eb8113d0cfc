// Package logging builds the server's zap logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options mirror the [log] configuration section
type Options struct {
	Enabled    bool
	Path       string // rotating file; empty logs to stderr only
	Level      string
	MaxSizeMB  int
	MaxBackups int
	Async      bool
	Format     string // json or console
}

// Logger bundles the zap logger with its adjustable level and the
// resources that must be flushed on exit.
type Logger struct {
	*zap.Logger
	level   zap.AtomicLevel
	closers []func() error
}

// New builds a logger. A disabled logger discards everything but still
// supports SetLevel and Close.
func New(opts Options) (*Logger, error) {
	level := zap.NewAtomicLevel()
	if err := SetLevel(level, opts.Level); err != nil {
		return nil, err
	}
	l := &Logger{level: level}
	if !opts.Enabled {
		l.Logger = zap.NewNop()
		return l, nil
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		l.closers = append(l.closers, rotator.Close)
		sinks = append(sinks, zapcore.AddSync(rotator))
	}

	ws := zapcore.NewMultiWriteSyncer(sinks...)
	if opts.Async {
		buffered := &zapcore.BufferedWriteSyncer{
			WS:            ws,
			Size:          256 << 10,
			FlushInterval: time.Second,
		}
		l.closers = append([]func() error{buffered.Stop}, l.closers...)
		ws = buffered
	}

	l.Logger = zap.New(zapcore.NewCore(enc, ws, level), zap.AddCaller())
	return l, nil
}

// SetLevel parses name into level
func SetLevel(level zap.AtomicLevel, name string) error {
	if name == "" {
		name = "info"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	level.SetLevel(lvl)
	return nil
}

// SetLevel changes the level of a running logger
func (l *Logger) SetLevel(name string) error {
	return SetLevel(l.level, name)
}

// Level returns the current level
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// Close flushes buffered entries and closes the log file
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	var first error
	for _, c := range l.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
