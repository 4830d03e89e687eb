package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewNonTerminalWriterEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf})
	log.Info("txn commit", "txn", 7)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "txn commit" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
}

func TestNewFileBackendWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cokedb.log")
	log := New(Options{File: path})
	log.Info("engine started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty log file")
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf, Level: slog.LevelError})
	log.Info("should be suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below Error level, got %q", buf.String())
	}
	log.Error("should appear")
	if buf.Len() == 0 {
		t.Fatal("expected output at Error level")
	}
}
