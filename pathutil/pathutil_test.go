package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireFilePath(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(f, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	resolved, err := AcquireFilePath(f)
	if err != nil {
		t.Fatalf("AcquireFilePath: %v", err)
	}
	if filepath.Base(resolved) != "a.txt" {
		t.Fatalf("resolved = %q, want basename a.txt", resolved)
	}

	if _, err := AcquireFilePath(dir); err == nil {
		t.Fatal("expected error acquiring a directory as a file")
	}
}

func TestAcquireDirPath(t *testing.T) {
	dir := t.TempDir()
	if _, err := AcquireDirPath(dir); err != nil {
		t.Fatalf("AcquireDirPath: %v", err)
	}

	f := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(f, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := AcquireDirPath(f); err == nil {
		t.Fatal("expected error acquiring a file as a directory")
	}
}

func TestAcquirePathMissing(t *testing.T) {
	if _, err := AcquirePath(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing path")
	}
}
