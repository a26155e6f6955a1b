package procio

import (
	"bytes"
	"io"
	"testing"
)

// fakePipe feeds a fixed sequence of reads, then reports EOF. It does not
// implement deadlineReader, matching a plain io.ReadCloser child pipe.
type fakePipe struct {
	chunks [][]byte
}

func (f *fakePipe) Read(p []byte) (int, error) {
	if len(f.chunks) == 0 {
		return 0, io.EOF
	}
	chunk := f.chunks[0]
	f.chunks = f.chunks[1:]
	n := copy(p, chunk)
	return n, nil
}

func (f *fakePipe) Close() error { return nil }

// Last forwarded chunk already ends in a newline; a cut-up multibyte
// codepoint trails at EOF. Per spec.md:108 (and
// super_orchestrator/src/command_runner.rs:58's `(!empty) && (!previous_newline)`
// guard) nothing extra should be emitted: the dangling lead byte is
// simply dropped, same as the original.
func TestRunRecorderDropsCutCodepointAfterTrailingNewline(t *testing.T) {
	var out bytes.Buffer
	pipe := &fakePipe{chunks: [][]byte{
		[]byte("hello\n"),
		{0xC3}, // lead byte of a 2-byte UTF-8 sequence, never completed
	}}
	rc := recorderConfig{
		pipe: pipe,
		rb:   newRingBuffer(0),
		cfg: StreamConfig{
			Debug:       true,
			DebugWriter: &out,
			DebugPrefix: "",
		},
		defaultPrefix: "> ",
	}
	if err := runRecorder(rc); err != nil {
		t.Fatalf("runRecorder: %v", err)
	}
	if got, want := out.String(), "> hello\n"; got != want {
		t.Fatalf("debug output = %q, want %q", got, want)
	}
}

// Last forwarded chunk does NOT end in a newline before the cut-up
// codepoint arrives at EOF: the replacement rune and a trailing newline
// must both be emitted.
func TestRunRecorderEmitsReplacementAndNewlineWhenTailNotNewlineTerminated(t *testing.T) {
	var out bytes.Buffer
	pipe := &fakePipe{chunks: [][]byte{
		[]byte("hello"),
		{0xC3},
	}}
	rc := recorderConfig{
		pipe: pipe,
		rb:   newRingBuffer(0),
		cfg: StreamConfig{
			Debug:       true,
			DebugWriter: &out,
			DebugPrefix: "",
		},
		defaultPrefix: "> ",
	}
	if err := runRecorder(rc); err != nil {
		t.Fatalf("runRecorder: %v", err)
	}
	want := "> hello�\n"
	if got := out.String(); got != want {
		t.Fatalf("debug output = %q, want %q", got, want)
	}
}

// Nothing at all was ever written (no complete chunk decoded before EOF):
// even a dangling cut-up codepoint at EOF must not conjure output.
func TestRunRecorderEmitsNothingWhenNeverWroteAnything(t *testing.T) {
	var out bytes.Buffer
	pipe := &fakePipe{chunks: [][]byte{
		{0xC3},
	}}
	rc := recorderConfig{
		pipe: pipe,
		rb:   newRingBuffer(0),
		cfg: StreamConfig{
			Debug:       true,
			DebugWriter: &out,
			DebugPrefix: "",
		},
		defaultPrefix: "> ",
	}
	if err := runRecorder(rc); err != nil {
		t.Fatalf("runRecorder: %v", err)
	}
	if got := out.String(); got != "" {
		t.Fatalf("debug output = %q, want empty", got)
	}
}
