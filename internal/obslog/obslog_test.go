package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestFileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	l, err := New(Options{Level: zapcore.InfoLevel, File: path, Format: "json", MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("hidden")
	l.Info("solve_saved", zap.Int64("time_ms", 9870))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"solve_saved"`) || !strings.Contains(out, `"time_ms":9870`) {
		t.Fatalf("unexpected log contents: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug should be filtered at info level")
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_FORMAT", "weird")
	t.Setenv("LOG_MAX_SIZE_MB", "25")

	opts := OptionsFromEnv()
	if opts.Level != zapcore.WarnLevel || opts.File != "" || opts.MaxSizeMB != 25 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := New(opts); err != nil {
		t.Fatalf("unknown format should fall back, got %v", err)
	}
}

func TestSetGlobal(t *testing.T) {
	SetGlobal(zap.NewExample())
	if L() == nil {
		t.Fatalf("logger must not be nil")
	}
	SetGlobal(nil)
	if L() == nil {
		t.Fatalf("nil resets to nop")
	}
}
