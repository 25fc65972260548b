package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
)

func TestLogPath(t *testing.T) {
	got := LogPath("/data/.amanrag")
	want := filepath.Join("/data/.amanrag", "logs", "amanrag.log")
	if got != want {
		t.Errorf("LogPath = %s, want %s", got, want)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "test.log")

	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 3})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("index_complete", "chunks", 3)
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"index_complete"`) || !strings.Contains(string(data), `"chunks":3`) {
		t.Errorf("unexpected log content: %s", data)
	}
}

func TestSetup_LevelFiltersRecords(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	data, _ := os.ReadFile(logPath)
	if strings.Contains(string(data), "dropped") || !strings.Contains(string(data), "kept") {
		t.Errorf("level filter not applied: %s", data)
	}
}

func TestSetup_NoFileNoStderrDiscards(t *testing.T) {
	logger, cleanup, err := Setup(Config{})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()
	logger.Error("nowhere")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.input).String(); got != tc.expected {
			t.Errorf("ParseLevel(%q) = %s, want %s", tc.input, got, tc.expected)
		}
	}
}

// =============================================================================
// RotatingWriter
// =============================================================================

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	line := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 3; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected %s.1 after rotation: %v", logPath, err)
	}
	if _, err := os.Stat(logPath + ".2"); err != nil {
		t.Errorf("expected %s.2 after second rotation: %v", logPath, err)
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	line := bytes.Repeat([]byte("y"), 700*1024)
	for i := 0; i < 6; i++ {
		_, _ = w.Write(line)
	}

	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected no %s.3 with maxFiles=2", logPath)
	}
	if _, err := os.Stat(logPath + ".2"); err != nil {
		t.Errorf("expected %s.2 to exist: %v", logPath, err)
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "test.log"), 1, 1)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("expected write after close to fail")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	w, err := NewRotatingWriter(logPath, 10, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = fmt.Fprintf(w, "g%d line %d\n", g, i)
			}
		}(g)
	}
	wg.Wait()
	_ = w.Close()

	data, _ := os.ReadFile(logPath)
	if got := strings.Count(string(data), "\n"); got != 400 {
		t.Errorf("expected 400 lines, got %d", got)
	}
}

// =============================================================================
// Viewer
// =============================================================================

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "amanrag.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}
	return path
}

func TestParseLine(t *testing.T) {
	e := ParseLine(`{"time":"2026-01-02T03:04:05.678Z","level":"INFO","msg":"ask_complete","sources":2}`)
	if !e.Valid || e.Msg != "ask_complete" || e.Level != "INFO" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Attrs["sources"] != float64(2) {
		t.Errorf("expected sources attr, got %v", e.Attrs)
	}
	if _, ok := e.Attrs["msg"]; ok {
		t.Error("standard keys must not appear in attrs")
	}

	if ParseLine("plain text").Valid {
		t.Error("non-JSON line should be invalid")
	}
}

func TestViewer_TailLastN(t *testing.T) {
	path := writeLog(t,
		`{"level":"INFO","msg":"one"}`,
		`{"level":"INFO","msg":"two"}`,
		`{"level":"INFO","msg":"three"}`,
	)

	entries, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Msg != "two" || entries[1].Msg != "three" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestViewer_Filters(t *testing.T) {
	path := writeLog(t,
		`{"level":"DEBUG","msg":"noise"}`,
		`{"level":"WARN","msg":"cache_write_failed","cache":"answers"}`,
		`{"level":"ERROR","msg":"index_failed"}`,
	)

	byLevel, _ := NewViewer(ViewerConfig{Level: "warn"}, &bytes.Buffer{}).Tail(path, 0)
	if len(byLevel) != 2 {
		t.Errorf("level filter: expected 2 entries, got %d", len(byLevel))
	}

	byPattern, _ := NewViewer(ViewerConfig{Pattern: regexp.MustCompile("cache")}, &bytes.Buffer{}).Tail(path, 0)
	if len(byPattern) != 1 || byPattern[0].Msg != "cache_write_failed" {
		t.Errorf("pattern filter: unexpected entries %+v", byPattern)
	}
}

func TestViewer_FormatSortsAttrs(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{}, &out)

	v.Print([]Entry{
		ParseLine(`{"time":"2026-01-02T03:04:05.678Z","level":"INFO","msg":"m","b":2,"a":"x"}`),
		ParseLine("raw line"),
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if lines[0] != "03:04:05.678 INFO  m a=x b=2" {
		t.Errorf("unexpected format: %q", lines[0])
	}
	if lines[1] != "raw line" {
		t.Errorf("raw line not preserved: %q", lines[1])
	}
}

func TestViewer_TailMissingFile(t *testing.T) {
	if _, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail("/nonexistent/amanrag.log", 10); err == nil {
		t.Error("expected error for missing file")
	}
}
