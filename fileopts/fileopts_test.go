package fileopts

import (
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	want := "hello, orchestra\n"
	if err := WriteString(path, want); err != nil {
		t.Fatalf("WriteString: %v", err)
	}

	got, err := ReadToString(path)
	if err != nil {
		t.Fatalf("ReadToString: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %q want %q", got, want)
	}
}

func TestAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	if err := WriteString(path, "a"); err != nil {
		t.Fatal(err)
	}
	f, err := FileOptions{Path: path, Mode: WriteMode(WriteOptions{Append: true})}.AcquireFile()
	if err != nil {
		t.Fatalf("AcquireFile append: %v", err)
	}
	if _, err := f.WriteString("b"); err != nil {
		t.Fatal(err)
	}
	if err := CloseFile(f); err != nil {
		t.Fatal(err)
	}

	got, err := ReadToString(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "ab" {
		t.Fatalf("got %q want %q", got, "ab")
	}
}

func TestReadMissingFails(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadOpts(filepath.Join(dir, "missing.txt")).Preacquire(); err == nil {
		t.Fatal("expected error reading a missing file")
	}
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := WriteString(src, "copy me"); err != nil {
		t.Fatal(err)
	}
	if err := Copy(src, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, err := ReadToString(dst)
	if err != nil {
		t.Fatal(err)
	}
	if got != "copy me" {
		t.Fatalf("got %q", got)
	}
}
