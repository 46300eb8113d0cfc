package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "server.log")
	l, err := New(Options{Enabled: true, Path: path, Level: "info", MaxSizeMB: 1, Async: true})
	if err != nil {
		t.Fatal(err)
	}

	l.Debug("hidden")
	l.Info("client connected", zap.Int("fd", 7))
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"client connected"`) || !strings.Contains(out, `"fd":7`) {
		t.Errorf("unexpected log output %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug entry written at info level")
	}
}

func TestLogger_SetLevel(t *testing.T) {
	l, err := New(Options{Enabled: false, Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if l.Level() != zapcore.WarnLevel {
		t.Fatalf("Level() = %v", l.Level())
	}
	if err := l.SetLevel("debug"); err != nil || l.Level() != zapcore.DebugLevel {
		t.Errorf("SetLevel(debug) = %v, level %v", err, l.Level())
	}
	if err := l.SetLevel("loud"); err == nil {
		t.Error("SetLevel accepted an unknown level")
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(Options{Enabled: true, Level: "verbose"}); err == nil {
		t.Error("New accepted an unknown level")
	}
}
