package embedtime

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Write(path, 1700000000); err != nil {
		t.Skipf("embedded timestamps unsupported on this filesystem: %v", err)
	}

	ts, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ts == nil {
		t.Fatal("expected a timestamp to be present after Write")
	}
	if *ts != 1700000000 {
		t.Fatalf("got %d, want 1700000000", *ts)
	}
}

func TestReadReturnsNilWhenUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ts, err := Read(path)
	if err != nil {
		t.Skipf("embedded timestamps unsupported on this filesystem: %v", err)
	}
	if ts != nil {
		t.Fatalf("expected nil for a file with no embedded timestamp, got %v", *ts)
	}
}
