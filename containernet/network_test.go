package containernet

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/banksean/orchestra/procio"
)

func TestKeyForDedupesIdenticalDockerfileAndArgs(t *testing.T) {
	a := New("a", FromPath("/tmp/Dockerfile")).WithBuildArgs("FOO=1")
	b := New("b", FromPath("/tmp/Dockerfile")).WithBuildArgs("FOO=1")
	c := New("c", FromPath("/tmp/Dockerfile")).WithBuildArgs("FOO=2")

	ka, okA := keyFor(a)
	kb, okB := keyFor(b)
	kc, okC := keyFor(c)
	if !okA || !okB || !okC {
		t.Fatal("expected all three to need a build key")
	}
	if ka != kb {
		t.Fatalf("a and b should share a build key, got %+v vs %+v", ka, kb)
	}
	if ka == kc {
		t.Fatal("different build args should not share a build key")
	}
}

func TestKeyForSkipsNameTagAndExplicitBuildTag(t *testing.T) {
	if _, ok := keyFor(New("a", FromNameTag("alpine:latest"))); ok {
		t.Fatal("NameTag containers need no build key")
	}
	if _, ok := keyFor(New("a", FromPath("/tmp/Dockerfile")).WithBuildTag("pinned")); ok {
		t.Fatal("an explicit build tag should skip dedup")
	}
}

func TestAddContainerRejectsDuplicateNames(t *testing.T) {
	n := NewNetwork("dup", t.TempDir(), t.TempDir())
	defer n.Close()
	if err := n.AddContainer(New("svc", FromNameTag("alpine:latest"))); err != nil {
		t.Fatalf("first AddContainer: %v", err)
	}
	if err := n.AddContainer(New("svc", FromNameTag("alpine:latest"))); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}

func TestAddContainerRejectsContentsWithoutAnyWritePath(t *testing.T) {
	n := NewNetwork("nowrite", t.TempDir(), "")
	defer n.Close()
	if err := n.AddContainer(New("svc", FromContents("FROM alpine\n"))); err == nil {
		t.Fatal("expected error: no dockerfile write dir or path")
	}
}

func TestErrorCompilationIncludesMatchedMarkerAndTail(t *testing.T) {
	n := NewNetwork("errc", t.TempDir(), t.TempDir())
	defer n.Close()
	res := &procio.CommandResult{
		Command: procio.NewArgv("sh"),
		Status:  &procio.ExitStatus{Code: 101, Success: false},
		Stdout:  []byte("setup...\nthread 'main' panicked at 'boom', src/main.rs:1:1\nmore output"),
	}
	msg := n.errorCompilation("svc", res)
	if !strings.Contains(msg, "panicked at") {
		t.Fatalf("expected matched marker in message: %s", msg)
	}
	if !strings.Contains(msg, "tail of stdout") {
		t.Fatalf("expected unconditional tail section: %s", msg)
	}
	if !strings.Contains(msg, "more output") {
		t.Fatalf("expected tail to include the end of stdout: %s", msg)
	}
}

func TestWaitWithTimeoutZeroOnEmptyActiveSetSucceeds(t *testing.T) {
	n := NewNetwork("zero", t.TempDir(), t.TempDir())
	defer n.Close()
	if err := n.AddContainer(New("svc", FromNameTag("alpine:latest"))); err != nil {
		t.Fatalf("AddContainer: %v", err)
	}
	// svc is still PreActive, never started, so ActiveNames() is empty and
	// a zero-duration wait over it trivially succeeds.
	if err := n.WaitWithTimeout(context.Background(), n.ActiveNames(), true, 0); err != nil {
		t.Fatalf("expected nil error waiting on an empty active set, got %v", err)
	}
}

// requireDocker skips the test unless a docker binary is on PATH; these
// exercise the full create/start/wait/terminate lifecycle against a real
// daemon and cannot be faked.
func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not found on PATH, skipping integration test")
	}
}

func TestNetworkLifecycleWithRealDocker(t *testing.T) {
	requireDocker(t)
	ctx := context.Background()

	n := NewNetwork("lifecycle", t.TempDir(), t.TempDir())
	defer n.Close()

	c := New("echoer", FromNameTag("alpine:3")).AllowUnsuccessfulMode(true)
	c = c.WithEntrypoint("/bin/echo", "hello-from-network")

	if err := n.AddContainer(c); err != nil {
		t.Fatalf("AddContainer: %v", err)
	}
	if err := n.RunAll(ctx); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if err := n.WaitWithTimeoutAll(ctx, true, 30*time.Second); err != nil {
		t.Fatalf("WaitWithTimeoutAll: %v", err)
	}
	res, err := n.Result("echoer")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !strings.Contains(string(res.Stdout), "hello-from-network") {
		t.Fatalf("stdout = %q", res.Stdout)
	}
}

func TestCreateFailurePropagatesAsOrcherr(t *testing.T) {
	requireDocker(t)
	ctx := context.Background()
	n := NewNetwork("badimage", t.TempDir(), t.TempDir())
	defer n.Close()

	bad := New("bad", FromNameTag("this-image-definitely-does-not-exist:orchestra-test"))
	if err := n.AddContainer(bad); err != nil {
		t.Fatalf("AddContainer: %v", err)
	}
	err := n.RunAll(ctx)
	if err == nil {
		t.Fatal("expected create to fail for a nonexistent image")
	}
}
