package containernet

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/banksean/orchestra/internal/ctrlc"
	"github.com/banksean/orchestra/orcherr"
	"github.com/banksean/orchestra/procio"
)

const (
	autoExecPollDelay = 300 * time.Millisecond
	autoExecIPRetries = 10
)

// AutoExec loops: scan `docker ps` for the unique running container whose
// name starts with containerNamePrefix, `docker exec` into it with execArgs
// prepended and containerArgs appended to the container id, forward
// stdin/stdout/stderr, then `docker rm -f` it once the exec returns.
// Ctrl-C terminates the current exec and its container and resumes
// scanning; a second Ctrl-C is left to the caller's own process-exit
// handling, matching the original's two-stage interrupt behavior.
// Grounded on original_source/src/docker_helpers.rs::auto_exec/docker_exec.
func AutoExec(ctx context.Context, containerNamePrefix string, execArgs, containerArgs []string) error {
	return autoExecLoop(ctx, containerNamePrefix, func(ctx context.Context, id string) error {
		args := append(append([]string{}, execArgs...), id)
		args = append(args, containerArgs...)
		return dockerExecForward(ctx, args)
	})
}

// AutoExecInteractive is the simpler, hard-coded-to-bash variant:
// `docker exec -i {id} bash`. Grounded on the earlier revision of the
// same helper, original_source/src/docker_helpers.rs::auto_exec_i/
// docker_exec_i, kept alongside the generalized AutoExec as a one-line
// "just give me a shell in the matching container" convenience.
func AutoExecInteractive(ctx context.Context, containerNamePrefix string) error {
	return autoExecLoop(ctx, containerNamePrefix, func(ctx context.Context, id string) error {
		return dockerExecForward(ctx, []string{"-i", id, "bash"})
	})
}

// autoExecLoop holds the scan/forward/cleanup/repeat structure shared by
// AutoExec and AutoExecInteractive; exec differs only in the argv it
// builds around the discovered container id.
func autoExecLoop(ctx context.Context, containerNamePrefix string, exec func(ctx context.Context, id string) error) error {
	for {
		if ctrlc.IssuedReset() {
			return nil
		}
		name, id, err := findRunningContainerByNamePrefix(ctx, containerNamePrefix)
		if err != nil {
			return err
		}
		if id != "" {
			ip, ipErr := waitGetIPAddrByID(ctx, id, autoExecIPRetries, autoExecPollDelay)
			if ipErr != nil {
				slog.WarnContext(ctx, "containernet: auto-exec could not resolve container ip", "container", name, "err", ipErr)
			} else {
				slog.InfoContext(ctx, "containernet: auto-exec forwarding", "container", name, "id", id, "ip", ip)
			}
			if err := exec(ctx, id); err != nil {
				return err
			}
			rm := procio.NewArgv("docker", "rm", "-f", id)
			_, _ = procio.RunToCompletion(ctx, rm)
			slog.InfoContext(ctx, "containernet: auto-exec terminated container", "id", id)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(autoExecPollDelay):
		}
	}
}

// dockerExecForward runs `docker exec {args...}` with stdin inherited
// from this process and its stdout/stderr forwarded, line-prefixed, to
// this process's stdout/stderr, polling for completion so a tripped
// ctrl-C latch can terminate it early rather than blocking until the
// child exits.
func dockerExecForward(ctx context.Context, args []string) error {
	cmd := procio.NewArgv("docker", append([]string{"exec"}, args...)...).
		WithStdout(procio.StreamConfig{Debug: true, DebugWriter: os.Stdout}).
		WithStderr(procio.StreamConfig{Debug: true, DebugWriter: os.Stderr})
	runner, err := procio.Start(ctx, cmd, procio.StdinInherit)
	if err != nil {
		return err
	}
	for {
		if ctrlc.IssuedReset() {
			_, err := runner.Terminate()
			return err
		}
		res, err := runner.WaitWithTimeout(0)
		if err == nil {
			if !res.Successful() {
				return res.AssertSuccess()
			}
			return nil
		}
		if !orcherr.IsTimeout(err) {
			_, _ = runner.Terminate()
			return err
		}
		time.Sleep(autoExecPollDelay)
	}
}

// findRunningContainerByNamePrefix shells `docker ps`, skips the header
// row, and looks for the single data row whose last whitespace-separated
// field (the NAMES column) starts with prefix; the row's first field is
// taken as the container id.
// Returns ("", "", nil) if nothing matched; also ("", "", nil) if more
// than one row matched, logging a warning and letting the next poll
// retry, matching the original's reset-and-move-on policy rather than
// treating ambiguity as a hard error.
func findRunningContainerByNamePrefix(ctx context.Context, prefix string) (name, id string, err error) {
	cmd := procio.NewArgv("docker", "ps").WithStdout(procio.StreamConfig{Record: true, RecordLimit: 1 << 20})
	res, err := procio.RunToCompletion(ctx, cmd)
	if err != nil {
		return "", "", err
	}
	if !res.Successful() {
		return "", "", res.AssertSuccess()
	}

	scanner := bufio.NewScanner(strings.NewReader(string(res.Stdout)))
	first := true
	var foundName, foundID string
	matches := 0
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		nameField := fields[len(fields)-1]
		if !strings.HasPrefix(nameField, prefix) {
			continue
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			continue
		}
		matches++
		foundName, foundID = nameField, line[:sp]
	}
	if matches > 1 {
		slog.WarnContext(ctx, "containernet: auto-exec found multiple containers with same prefix, skipping this round", "prefix", prefix)
		return "", "", nil
	}
	return foundName, foundID, nil
}

type autoExecInspectRow struct {
	NetworkSettings struct {
		Networks map[string]struct {
			IPAddress string `json:"IPAddress"`
		} `json:"Networks"`
	} `json:"NetworkSettings"`
}

// waitGetIPAddrByID parallels Network.WaitGetIPAddr but operates on a
// raw docker container id discovered outside any live Network (an
// AutoExec target isn't tracked by a logical name in a Network.states
// map): any non-empty IPAddress among the container's attached networks
// is accepted, rather than one addressed by a known network name.
func waitGetIPAddrByID(ctx context.Context, id string, retries int, delay time.Duration) (string, error) {
	for attempt := 0; ; attempt++ {
		cmd := procio.NewArgv("docker", "inspect", id).
			WithStdout(procio.StreamConfig{Record: true, RecordLimit: 1 << 16})
		res, err := procio.RunToCompletion(ctx, cmd)
		if err == nil && res.Successful() {
			var rows []autoExecInspectRow
			if jerr := json.Unmarshal(res.Stdout, &rows); jerr == nil && len(rows) > 0 {
				for _, net := range rows[0].NetworkSettings.Networks {
					if net.IPAddress != "" {
						return net.IPAddress, nil
					}
				}
			}
		}
		if attempt+1 >= retries {
			return "", orcherr.New(orcherr.KindTimeout, fmt.Sprintf("no ip address for %s after %d tries", id, retries))
		}
		time.Sleep(delay)
	}
}
