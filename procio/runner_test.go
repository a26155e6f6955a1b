package procio

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/banksean/orchestra/orcherr"
)

// S1 — basic capture: successful command with non-empty stdout, empty stderr.
func TestRunnerBasicCapture(t *testing.T) {
	c := New("echo hello").WithStdout(StreamConfig{Record: true, RecordLimit: 1024})
	res, err := RunToCompletion(context.Background(), c)
	if err != nil {
		t.Fatalf("RunToCompletion: %v", err)
	}
	if !res.Successful() {
		t.Fatalf("expected success, got %s", res.statusString())
	}
	if !bytes.Contains(res.Stdout, []byte("hello")) {
		t.Fatalf("stdout = %q, want to contain hello", res.Stdout)
	}
	if len(res.Stderr) != 0 {
		t.Fatalf("stderr = %q, want empty", res.Stderr)
	}
}

// S2 — failure propagation: AssertSuccess renders the command and stderr.
func TestRunnerFailurePropagation(t *testing.T) {
	c := NewArgv("sh", "-c", "echo boom >&2; exit 1").
		WithStdout(StreamConfig{Record: true, RecordLimit: 1024}).
		WithStderr(StreamConfig{Record: true, RecordLimit: 1024})
	res, err := RunToCompletion(context.Background(), c)
	if err != nil {
		t.Fatalf("RunToCompletion: %v", err)
	}
	if res.Successful() {
		t.Fatal("expected failure")
	}
	assertErr := res.AssertSuccess()
	if assertErr == nil {
		t.Fatal("expected AssertSuccess to fail")
	}
	msg := assertErr.Error()
	if !strings.Contains(msg, "sh") || !strings.Contains(msg, "boom") {
		t.Fatalf("AssertSuccess error missing command/stderr context: %s", msg)
	}
}

// S3 — byte caps: the record cap clamps captured stdout to exactly the configured size.
func TestRunnerByteCaps(t *testing.T) {
	const total = 2048
	const capLimit = 256
	script := "yes e | tr -d '\\n' | head -c " + itoa(total)
	c := NewArgv("sh", "-c", script).
		WithStdout(StreamConfig{Record: true, RecordLimit: capLimit})
	res, err := RunToCompletion(context.Background(), c)
	if err != nil {
		t.Fatalf("RunToCompletion: %v", err)
	}
	if len(res.Stdout) != capLimit {
		t.Fatalf("len(stdout) = %d, want %d", len(res.Stdout), capLimit)
	}
	for _, b := range res.Stdout {
		if b != 'e' {
			t.Fatalf("expected only 'e' bytes, found %q", b)
		}
	}
}

// Invariant 2: terminate is idempotent and the second call errors.
func TestTerminateIdempotency(t *testing.T) {
	c := NewArgv("sleep", "5")
	r, err := Start(context.Background(), c, StdinNone)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Terminate(); err != nil {
		t.Fatalf("first Terminate: %v", err)
	}
	if _, err := r.Terminate(); err == nil {
		t.Fatal("expected second Terminate to fail")
	}
}

// Invariant 7: dropping (here, Close) a runner with a live child kills it
// within a bounded time.
func TestCloseKillsLiveChild(t *testing.T) {
	c := NewArgv("sleep", "30")
	r, err := Start(context.Background(), c, StdinNone)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	res, err := r.WaitWithTimeout(2 * time.Second)
	if err != nil {
		t.Fatalf("WaitWithTimeout after Close: %v", err)
	}
	if res.Status != nil {
		t.Fatalf("expected force-terminated (nil status), got %+v", res.Status)
	}
}

func TestWaitWithTimeoutZeroIsSinglePoll(t *testing.T) {
	c := NewArgv("sleep", "5")
	r, err := Start(context.Background(), c, StdinNone)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Close()

	_, err = r.WaitWithTimeout(0)
	if !orcherr.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
