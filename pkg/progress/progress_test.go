package progress

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReportProgressWritesTimestamp(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "heartbeat")

	w, err := NewWriter(target)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.ReportProgress(); err != nil {
		t.Fatalf("ReportProgress: %v", err)
	}

	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("expected heartbeat file to exist: %v", err)
	}
	if len(content) == 0 {
		t.Fatal("expected non-empty heartbeat content")
	}
}

func TestReportProgressLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	target := filepath.Join(dir, "heartbeat")

	w, err := NewWriter(target)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.ReportProgress(); err != nil {
			t.Fatalf("ReportProgress: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file (no leftover temp files), got %d", len(entries))
	}
}
