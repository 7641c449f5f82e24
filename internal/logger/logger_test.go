package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewRotatesLogFile(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "preprocess.log")

	// 1MB is the smallest size lumberjack rotates at.
	l, err := New(Options{
		Level: "debug",
		File: FileConfig{
			Path:       logFile,
			MaxSizeMB:  1,
			MaxBackups: 2,
			MaxAgeDays: 1,
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log := l.Named("preprocess").With(zap.String("attachment", "dtm"))
	padding := strings.Repeat("x", 200)
	for i := 0; i < 15000; i++ {
		log.Debug("wrote node", zap.String("node", fmt.Sprintf("0/%d/%d", i%64, i/64)), zap.String("pad", padding))
	}
	_ = l.Sync()

	files, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("failed to read temp dir: %v", err)
	}
	var rotated []string
	for _, f := range files {
		if f.Name() != "preprocess.log" && strings.HasPrefix(f.Name(), "preprocess-") {
			rotated = append(rotated, f.Name())
		}
	}
	if len(rotated) == 0 {
		t.Error("expected at least one rotated file")
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	first, _, _ := strings.Cut(string(content), "\n")
	for _, want := range []string{"DEBUG", "preprocess", "wrote node", "attachment", "dtm"} {
		if !strings.Contains(first, want) {
			t.Errorf("expected %q in %q", want, first)
		}
	}
	if strings.Contains(first, "\x1b[") {
		t.Errorf("file output must not carry color codes: %q", first)
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		level    string
		expected []string
		excluded []string
	}{
		{level: "error", expected: []string{"ERROR"}, excluded: []string{"WARN", "INFO", "DEBUG"}},
		{level: "warn", expected: []string{"ERROR", "WARN"}, excluded: []string{"INFO", "DEBUG"}},
		{level: "info", expected: []string{"ERROR", "WARN", "INFO"}, excluded: []string{"DEBUG"}},
		{level: "", expected: []string{"ERROR", "WARN", "INFO"}, excluded: []string{"DEBUG"}},
		{level: "debug", expected: []string{"ERROR", "WARN", "INFO", "DEBUG"}},
	}

	for _, tt := range tests {
		t.Run("level_"+tt.level, func(t *testing.T) {
			logFile := filepath.Join(tempDir, "level_"+tt.level+".log")
			var console bytes.Buffer

			l, err := New(Options{
				Level:   tt.level,
				File:    FileConfig{Path: logFile, MaxSizeMB: 10},
				Console: &console,
			})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			log := l.Named("atlas")
			log.Debug("debug message")
			log.Info("info message")
			log.Warn("warn message")
			log.Error("error message")
			_ = l.Sync()

			content, err := os.ReadFile(logFile)
			if err != nil {
				t.Fatalf("failed to read log file: %v", err)
			}

			for name, out := range map[string]string{"file": string(content), "console": console.String()} {
				for _, exp := range tt.expected {
					if !strings.Contains(out, exp) {
						t.Errorf("%s: expected %s in output", name, exp)
					}
				}
				for _, exc := range tt.excluded {
					if strings.Contains(out, exc) {
						t.Errorf("%s: unexpected %s for level %q", name, exc, tt.level)
					}
				}
			}
		})
	}
}

func TestInitReplacesGlobalLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "terrainctl.log")
	if err := Init("warn", logFile); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = InitWithOptions(Options{}) }()

	Info("frame done")
	Warn("root node load failed")
	Sync()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if strings.Contains(string(content), "frame done") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(string(content), "root node load failed") {
		t.Errorf("expected warning in log file, got %q", content)
	}
}

func TestDefaultFileConfig(t *testing.T) {
	cfg := DefaultFileConfig("/tmp/test.log")

	if cfg.Path != "/tmp/test.log" {
		t.Errorf("expected path /tmp/test.log, got %s", cfg.Path)
	}
	if cfg.MaxSizeMB != 50 {
		t.Errorf("expected MaxSizeMB 50, got %d", cfg.MaxSizeMB)
	}
	if cfg.MaxBackups != 3 {
		t.Errorf("expected MaxBackups 3, got %d", cfg.MaxBackups)
	}
	if cfg.MaxAgeDays != 7 {
		t.Errorf("expected MaxAgeDays 7, got %d", cfg.MaxAgeDays)
	}
	if !cfg.Compress {
		t.Error("expected Compress to be true")
	}
}

func TestNamedComponent(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(Options{Level: "info", Console: &buf}); err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = InitWithOptions(Options{}) }()

	Named("atlas").Named("dtm").Info("slot loaded")
	Sync()

	out := buf.String()
	if !strings.Contains(out, "atlas.dtm") {
		t.Errorf("expected component name in output, got %q", out)
	}
	if !strings.Contains(out, "slot loaded") {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestNewWithoutOutputs(t *testing.T) {
	l, err := New(Options{Level: "debug"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if l.Core().Enabled(-1) {
		t.Error("expected logger without outputs to discard everything")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected no-op logger for nil")
	}
	l := Named("quadtree")
	if OrNop(l) != l {
		t.Error("expected OrNop to return the given logger")
	}
}
