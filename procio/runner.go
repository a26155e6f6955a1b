package procio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/banksean/orchestra/fileopts"
	"github.com/banksean/orchestra/orcherr"
	"github.com/banksean/orchestra/pathutil"
	"golang.org/x/sync/errgroup"
)

// StdinMode selects how a CommandRunner's child stdin is wired.
type StdinMode int

const (
	StdinNone StdinMode = iota
	StdinInherit
	StdinPipe
)

// ExitStatus is the child's terminal exit status. A CommandResult with a
// nil Status means the child was force-terminated before it exited
// naturally.
type ExitStatus struct {
	Code    int
	Success bool
}

// CommandResult is the completion observation of one CommandRunner.
type CommandResult struct {
	Command Command
	Status  *ExitStatus
	Stdout  []byte
	Stderr  []byte
}

// Successful reports whether the status is present and reports success.
func (r CommandResult) Successful() bool { return r.Status != nil && r.Status.Success }

// SuccessfulOrTerminated reports whether the status is present-and-
// successful, or absent (force-terminated).
func (r CommandResult) SuccessfulOrTerminated() bool { return r.Status == nil || r.Status.Success }

// AssertSuccess returns a Command-unsuccessful error embedding the
// rendered command and status if the result was not successful.
func (r CommandResult) AssertSuccess() error {
	if r.Successful() {
		return nil
	}
	return orcherr.New(orcherr.KindCommandUnsuccessful, fmt.Sprintf(
		"command did not succeed: %s\nstatus: %s\nstdout: %s\nstderr: %s",
		r.Command.String(), r.statusString(), r.Stdout, r.Stderr))
}

func (r CommandResult) statusString() string {
	if r.Status == nil {
		return "<terminated, no exit status>"
	}
	return fmt.Sprintf("exit code %d (success=%v)", r.Status.Code, r.Status.Success)
}

// StringNoDebug renders the result without the captured stdout/stderr
// bytes, for diagnostic contexts where the payload is noise.
func (r CommandResult) StringNoDebug() string {
	return fmt.Sprintf("%s -> %s", r.Command.String(), r.statusString())
}

// CommandRunner supervises one spawned child: its process handle, two
// recorder goroutines, and a cached terminal CommandResult.
type CommandRunner struct {
	command  Command
	cmd      *exec.Cmd
	stdoutRB *ringBuffer
	stderrRB *ringBuffer
	stdinW   io.WriteCloser

	naturalDone chan struct{}

	mu              sync.Mutex
	result          *CommandResult
	recErr          error
	terminateCalled bool
}

// Start configures and spawns c, wiring up its recorders per-stream.
// Before the spawn it only checks that each log file's parent directory
// exists; the log files themselves are created by the recorders after
// the child has started. Grounded on
// super_orchestrator/src/command_runner.rs::command_runner().
func Start(ctx context.Context, c Command, stdin StdinMode) (*CommandRunner, error) {
	if c.Dir != "" {
		dir, err := pathutil.AcquireDirPath(c.Dir)
		if err != nil {
			return nil, orcherr.Wrap(orcherr.KindPath, err, "validate working directory")
		}
		c.Dir = dir
	}
	for _, sc := range []StreamConfig{c.Stdout, c.Stderr} {
		if sc.LogPath != "" {
			if _, err := fileopts.WriteOpts(sc.LogPath).Create().Preacquire(); err != nil {
				return nil, orcherr.Wrap(orcherr.KindPath, err, "preacquire log file "+sc.LogPath)
			}
		}
	}

	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = buildEnv(c)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }

	r := &CommandRunner{command: c, cmd: cmd, naturalDone: make(chan struct{})}

	switch stdin {
	case StdinInherit:
		cmd.Stdin = os.Stdin
	case StdinPipe:
		w, err := cmd.StdinPipe()
		if err != nil {
			return nil, orcherr.Wrap(orcherr.KindSpawn, err, "open stdin pipe")
		}
		r.stdinW = w
	}

	// Pipes must be wired up before Start, but the recorder goroutines
	// (which need the now-live pid for their default prefix) are only
	// launched once Start has succeeded.
	var stdoutPipe, stderrPipe io.ReadCloser
	if !c.Stdout.detached() {
		p, err := cmd.StdoutPipe()
		if err != nil {
			return nil, orcherr.Wrap(orcherr.KindSpawn, err, "open stdout pipe")
		}
		stdoutPipe = p
		r.stdoutRB = newRingBuffer(c.Stdout.RecordLimit)
	}
	if !c.Stderr.detached() {
		p, err := cmd.StderrPipe()
		if err != nil {
			return nil, orcherr.Wrap(orcherr.KindSpawn, err, "open stderr pipe")
		}
		stderrPipe = p
		r.stderrRB = newRingBuffer(c.Stderr.RecordLimit)
	}

	if err := cmd.Start(); err != nil {
		return nil, orcherr.Wrap(orcherr.KindSpawn, err, "spawn "+c.Program)
	}

	group := &errgroup.Group{}
	base := filepath.Base(c.Program)
	pid := cmd.Process.Pid
	if stdoutPipe != nil {
		group.Go(func() error {
			return runRecorder(recorderConfig{
				pipe: stdoutPipe, rb: r.stdoutRB, cfg: c.Stdout,
				readLoopTimeout: c.ReadLoopTimeout,
				defaultPrefix:   fmt.Sprintf("%s %d | ", base, pid),
			})
		})
	}
	if stderrPipe != nil {
		group.Go(func() error {
			return runRecorder(recorderConfig{
				pipe: stderrPipe, rb: r.stderrRB, cfg: c.Stderr,
				readLoopTimeout: c.ReadLoopTimeout,
				defaultPrefix:   fmt.Sprintf("%s %d E| ", base, pid),
			})
		})
	}

	go r.reap(group)

	if !c.ForgetOnDrop {
		runtime.SetFinalizer(r, func(r *CommandRunner) { _ = r.Close() })
	}

	return r, nil
}

func buildEnv(c Command) []string {
	var env []string
	if !c.EnvClear {
		env = append(env, os.Environ()...)
	}
	for _, e := range c.Envs {
		env = append(env, e.Key+"="+e.Value)
	}
	return env
}

func (r *CommandRunner) reap(group *errgroup.Group) {
	recErr := group.Wait()
	waitErr := r.cmd.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		r.result = &CommandResult{
			Command: r.command,
			Status:  exitStatusFrom(waitErr, r.cmd),
			Stdout:  r.snapshotLocked(r.stdoutRB),
			Stderr:  r.snapshotLocked(r.stderrRB),
		}
		r.recErr = recErr
	}
	close(r.naturalDone)
}

func (r *CommandRunner) snapshotLocked(rb *ringBuffer) []byte {
	if rb == nil {
		return nil
	}
	return rb.snapshot()
}

func exitStatusFrom(waitErr error, cmd *exec.Cmd) *ExitStatus {
	if cmd.ProcessState == nil {
		return nil
	}
	return &ExitStatus{Code: cmd.ProcessState.ExitCode(), Success: cmd.ProcessState.Success()}
}

// Pid returns the child's process id.
func (r *CommandRunner) Pid() (int, error) {
	if r.cmd.Process == nil {
		return 0, orcherr.New(orcherr.KindContract, "process not started")
	}
	return r.cmd.Process.Pid, nil
}

// StdinWriter returns the stdin pipe writer when Start was called with
// StdinPipe; nil otherwise.
func (r *CommandRunner) StdinWriter() io.WriteCloser { return r.stdinW }

func (r *CommandRunner) cachedResult() (*CommandResult, error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return nil, nil, false
	}
	if r.recErr != nil {
		return r.result, orcherr.Wrap(orcherr.KindIO, r.recErr, "recorder task failed"), true
	}
	return r.result, nil, true
}

// WaitWithTimeout polls the child non-blockingly, sleeping with
// exponential backoff (1ms doubling to a 128ms cap) until it exits or d
// elapses. d == 0 means a single poll attempt.
func (r *CommandRunner) WaitWithTimeout(d time.Duration) (*CommandResult, error) {
	if res, err, ok := r.cachedResult(); ok {
		return res, err
	}

	select {
	case <-r.naturalDone:
		res, err, _ := r.cachedResult()
		return res, err
	default:
	}
	if d <= 0 {
		return nil, orcherr.New(orcherr.KindTimeout, "command still running")
	}

	deadline := time.Now().Add(d)
	backoff := time.Millisecond
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, orcherr.New(orcherr.KindTimeout, "command did not exit within timeout")
		}
		wait := backoff
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-r.naturalDone:
			timer.Stop()
			res, err, _ := r.cachedResult()
			return res, err
		case <-timer.C:
		}
		backoff *= 2
		if backoff > 128*time.Millisecond {
			backoff = 128 * time.Millisecond
		}
	}
}

// WaitWithOutput blocks until the child completes naturally.
func (r *CommandRunner) WaitWithOutput() (*CommandResult, error) {
	<-r.naturalDone
	res, err, _ := r.cachedResult()
	return res, err
}

// Terminate kills the child, waits for teardown, and caches a result with
// Status == nil (force-terminated). A second call leaves the child as it
// is and fails with a Contract error ("terminate already called").
func (r *CommandRunner) Terminate() (*CommandResult, error) {
	r.mu.Lock()
	if r.terminateCalled {
		r.mu.Unlock()
		return nil, orcherr.New(orcherr.KindContract, "terminate already called")
	}
	r.terminateCalled = true
	alreadyDone := r.result != nil
	r.mu.Unlock()

	if !alreadyDone && r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	<-r.naturalDone

	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Status = nil
	return r.result, nil
}

// StartTerminate requests the child be killed without awaiting teardown.
func (r *CommandRunner) StartTerminate() error {
	r.mu.Lock()
	if r.terminateCalled {
		r.mu.Unlock()
		return orcherr.New(orcherr.KindContract, "terminate already called")
	}
	r.terminateCalled = true
	r.mu.Unlock()
	if r.cmd.Process == nil {
		return orcherr.New(orcherr.KindContract, "process not started")
	}
	if err := r.cmd.Process.Kill(); err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "kill child")
	}
	return nil
}

// SendSignal sends sig to the child; best-effort, fails if pid unavailable.
func (r *CommandRunner) SendSignal(sig syscall.Signal) error {
	if r.cmd.Process == nil {
		return orcherr.New(orcherr.KindContract, "no process to signal")
	}
	if err := r.cmd.Process.Signal(sig); err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "send signal")
	}
	return nil
}

// SendSIGTERM is the common case of SendSignal.
func (r *CommandRunner) SendSIGTERM() error { return r.SendSignal(syscall.SIGTERM) }

// Close is the explicit teardown callers must invoke before a
// CommandRunner leaves scope (Go has no deterministic Drop): it kills a
// still-live child unless ForgetOnDrop was set. A finalizer calls this as
// a last resort net, matching "users who can should call terminate
// before the network leaves scope".
func (r *CommandRunner) Close() error {
	r.mu.Lock()
	done := r.result != nil
	forget := r.command.ForgetOnDrop
	alreadyTerminating := r.terminateCalled
	r.mu.Unlock()

	if done || forget || alreadyTerminating {
		return nil
	}
	slog.Warn("procio: CommandRunner closed with a live child, killing it",
		"program", r.command.Program, "args", r.command.Args)
	_, err := r.Terminate()
	return err
}

// RunToCompletion starts c with no stdin, waits for natural completion,
// and returns the result.
func RunToCompletion(ctx context.Context, c Command) (*CommandResult, error) {
	r, err := Start(ctx, c, StdinNone)
	if err != nil {
		return nil, err
	}
	return r.WaitWithOutput()
}

// RunWithInputToCompletion starts c with a stdin pipe, writes input,
// closes the pipe, and waits for natural completion.
func RunWithInputToCompletion(ctx context.Context, c Command, input []byte) (*CommandResult, error) {
	r, err := Start(ctx, c, StdinPipe)
	if err != nil {
		return nil, err
	}
	if _, err := r.stdinW.Write(input); err != nil {
		return nil, orcherr.Wrap(orcherr.KindIO, err, "write stdin")
	}
	if err := r.stdinW.Close(); err != nil {
		return nil, orcherr.Wrap(orcherr.KindIO, err, "close stdin")
	}
	return r.WaitWithOutput()
}
