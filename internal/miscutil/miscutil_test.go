package miscutil

import (
	"errors"
	"testing"
	"time"
)

func TestWaitForOkSucceedsEventually(t *testing.T) {
	attempts := 0
	got, err := WaitForOk(5, time.Millisecond, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("WaitForOk: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d want 42", got)
	}
}

func TestWaitForOkExhausts(t *testing.T) {
	_, err := WaitForOk(3, time.Millisecond, func() (int, error) {
		return 0, errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNextTerminalColorRotates(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < len(palette); i++ {
		seen[NextTerminalColor()] = true
	}
	if len(seen) != len(palette) {
		t.Fatalf("expected to see all %d colors, saw %d", len(palette), len(seen))
	}
}

func TestRandomNamePrefixed(t *testing.T) {
	n := RandomName("net")
	if len(n) <= len("net-") {
		t.Fatalf("expected a suffixed name, got %q", n)
	}
}

func TestGetSeparatedVal(t *testing.T) {
	input := "public=1.2.3.4; private=10.0.0.1"
	got, err := GetSeparatedVal(input, ";", "public", "=")
	if err != nil {
		t.Fatalf("GetSeparatedVal: %v", err)
	}
	if got != "1.2.3.4" {
		t.Fatalf("got %q want 1.2.3.4", got)
	}

	if _, err := GetSeparatedVal(input, ";", "missing", "="); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestGetSeparatedValWhitespaceBeforeInter(t *testing.T) {
	got, err := GetSeparatedVal(`private  :="hello world"`, ";", "private", ":=")
	if err != nil {
		t.Fatalf("GetSeparatedVal: %v", err)
	}
	if got != `"hello world"` {
		t.Fatalf("got %q want %q", got, `"hello world"`)
	}
}
