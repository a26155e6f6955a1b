package containernet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/banksean/orchestra/fileopts"
	"github.com/banksean/orchestra/internal/ctrlc"
	"github.com/banksean/orchestra/orcherr"
	"github.com/banksean/orchestra/pathutil"
	"github.com/banksean/orchestra/procio"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// DefaultRunTimeout bounds Container.Run's wait when the caller has no
// opinion of its own.
const DefaultRunTimeout = 5 * time.Minute

// failure markers scanned out of captured stdout when compiling a
// network-level error. Preserved byte for byte from
// docker_network.rs::error_compilation.
var failureMarkers = []string{
	"Error { stack: [",
	" panicked at ",
	"thread",
	"ProbablyNotRootCauseError",
}

const errorTailBytes = 4096

type runState int

const (
	statePreActive runState = iota
	stateActive
	statePostActive
)

type containerState struct {
	container         Container
	state             runState
	activeContainerID string
	runner            *procio.CommandRunner
	result            *procio.CommandResult
	internalErr       error
}

// Network is a ContainerNetwork: a docker bridge network plus an
// ordered collection of Containers, created and started together and
// torn down as a unit. Grounded on
// super_orchestrator/src/docker_network.rs::ContainerNetwork.
type Network struct {
	uuid        string
	networkName string
	networkArgs []string

	logsDir            string
	dockerfileWriteDir string

	debugBuild, debugCreate bool

	mu              sync.Mutex
	order           []string
	states          map[string]*containerState
	networkActive   bool
	networkLogPath  string
	closed          bool
}

// NewNetwork creates a Network whose docker network name is derived
// from name plus a fresh UUID, to avoid collisions between concurrent
// runs that share a name prefix.
func NewNetwork(name, logsDir, dockerfileWriteDir string) *Network {
	id := uuid.NewString()
	n := &Network{
		uuid:               id,
		networkName:        name + "_" + id,
		logsDir:            logsDir,
		dockerfileWriteDir: dockerfileWriteDir,
		states:             map[string]*containerState{},
	}
	if logsDir != "" {
		n.networkLogPath = filepath.Join(logsDir, "container_network_"+n.networkName+".log")
	}
	runtime.SetFinalizer(n, func(n *Network) { _ = n.Close() })
	return n
}

func (n *Network) UUID() string        { return n.uuid }
func (n *Network) NetworkName() string { return n.networkName }

// logEvent appends a timestamped line to networkLogPath, the
// network-level debug log described in spec.md §6's filesystem layout.
// Best-effort: this log is a diagnostic convenience, never load-bearing
// for container lifecycle, so a write failure is swallowed rather than
// surfaced to the caller.
func (n *Network) logEvent(format string, args ...any) {
	n.mu.Lock()
	path := n.networkLogPath
	n.mu.Unlock()
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339Nano), fmt.Sprintf(format, args...))
}

// AddNetworkArgs appends extra flags to the `docker network create`
// invocation (e.g. "--subnet", "172.28.0.0/16").
func (n *Network) AddNetworkArgs(args ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.networkArgs = append(n.networkArgs, args...)
}

func (n *Network) DebugBuild(v bool)  { n.mu.Lock(); n.debugBuild = v; n.mu.Unlock() }
func (n *Network) DebugCreate(v bool) { n.mu.Lock(); n.debugCreate = v; n.mu.Unlock() }

// AddContainer registers c under its logical Name. Fails on duplicate
// names or a Contents dockerfile with nowhere to write.
func (n *Network) AddContainer(c Container) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.states[c.Name]; exists {
		return orcherr.New(orcherr.KindContract, "duplicate container name: "+c.Name)
	}
	if c.Dockerfile.Kind == DockerfileContents && c.DockerfileWritePath == "" && n.dockerfileWriteDir == "" {
		return orcherr.New(orcherr.KindContract,
			"container "+c.Name+": Contents dockerfile needs a network dockerfile-write-dir or an explicit write path")
	}
	n.order = append(n.order, c.Name)
	n.states[c.Name] = &containerState{container: c, state: statePreActive}
	return nil
}

// AddCommonVolumes mounts vols into every currently-registered
// container. It fails with a Contract error at the first container (in
// registration order) that is no longer pre-active; containers before it
// have already been updated by then.
func (n *Network) AddCommonVolumes(vols []VolumeMount) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, name := range n.order {
		st := n.states[name]
		if st.state != statePreActive {
			return orcherr.New(orcherr.KindContract, "cannot add common volumes: "+name+" is no longer pre-active")
		}
		for _, v := range vols {
			st.container = st.container.WithVolume(v.HostPath, v.ContainerPath)
		}
	}
	return nil
}

// AddCommonEntrypointArgs appends args to the entrypoint args of every
// currently-registered container. Like AddCommonVolumes, it fails with a
// Contract error at the first container that is no longer pre-active.
func (n *Network) AddCommonEntrypointArgs(args ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, name := range n.order {
		st := n.states[name]
		if st.state != statePreActive {
			return orcherr.New(orcherr.KindContract, "cannot add common entrypoint args: "+name+" is no longer pre-active")
		}
		st.container = st.container.WithEntrypointArgs(args...)
	}
	return nil
}

func (n *Network) namesByState(want runState) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, name := range n.order {
		if n.states[name].state == want {
			out = append(out, name)
		}
	}
	return out
}

func (n *Network) ActiveNames() []string   { return n.namesByState(stateActive) }
func (n *Network) InactiveNames() []string { return n.namesByState(statePreActive) }

// GetActiveContainerIDs returns the docker container IDs of every
// currently active member.
func (n *Network) GetActiveContainerIDs() map[string]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := map[string]string{}
	for name, st := range n.states {
		if st.state == stateActive {
			out[name] = st.activeContainerID
		}
	}
	return out
}

// buildKey groups containers that should share one built image: same
// dockerfile variant/contents and same build args.
type buildKey struct {
	kind      DockerfileKind
	ref       string // Path or Contents, depending on kind
	buildArgs string // joined with \x00
}

func keyFor(c Container) (buildKey, bool) {
	if c.BuildTag != "" || c.Dockerfile.Kind == DockerfileNameTag {
		return buildKey{}, false
	}
	ref := c.Dockerfile.Path
	if c.Dockerfile.Kind == DockerfileContents {
		ref = c.Dockerfile.Contents
	}
	return buildKey{kind: c.Dockerfile.Kind, ref: ref, buildArgs: joinArgs(c.BuildArgs)}, true
}

func joinArgs(args []string) string {
	var b bytes.Buffer
	for _, a := range args {
		b.WriteString(a)
		b.WriteByte(0)
	}
	return b.String()
}

// Run creates the docker network (if not already active), builds and
// deduplicates images, then creates and starts every name in names (in
// order). On any failure partway through creation, the already-created
// prefix is terminated in reverse insertion order before the error is
// returned; on any failure during start, the entire network (including
// containers from earlier Run calls) is terminated. Grounded on
// docker_network.rs::ContainerNetwork::run / run_internal.
func (n *Network) Run(ctx context.Context, names []string) error {
	n.mu.Lock()
	for _, name := range names {
		st, ok := n.states[name]
		if !ok {
			n.mu.Unlock()
			return orcherr.New(orcherr.KindContract, "unknown container: "+name)
		}
		if st.state != statePreActive {
			n.mu.Unlock()
			return orcherr.New(orcherr.KindContract, "container not pre-active: "+name)
		}
	}
	dockerfileDir := n.dockerfileWriteDir
	debugBuild, debugCreate := n.debugBuild, n.debugCreate
	n.mu.Unlock()

	if n.logsDir != "" {
		if _, err := pathutil.AcquireDirPath(n.logsDir); err != nil {
			return orcherr.Wrap(orcherr.KindPath, err, "logs directory")
		}
	}

	// Assign dockerfile write paths for Contents containers that didn't
	// bring their own, and run Precheck on every container.
	for _, name := range names {
		c := n.getContainer(name)
		if c.Dockerfile.Kind == DockerfileContents && c.DockerfileWritePath == "" {
			c = c.WithDockerfileWritePath(filepath.Join(dockerfileDir, name+".tmp.dockerfile"))
			n.setContainer(name, c)
		}
		if err := n.getContainer(name).Precheck(); err != nil {
			return err
		}
	}

	// Build dedup: walk names in order, assigning a shared tag to every
	// container whose (dockerfile, build args) pair has already been seen.
	seen := map[buildKey]string{}
	for _, name := range names {
		c := n.getContainer(name)
		key, needsBuild := keyFor(c)
		if !needsBuild {
			continue
		}
		if tag, ok := seen[key]; ok {
			c = c.WithBuildTag(tag)
			n.setContainer(name, c)
			continue
		}
		tag := fmt.Sprintf("orchestra_%s_%s", name, n.uuid)
		c = c.WithBuildTag(tag)
		n.setContainer(name, c)
		seen[key] = tag
		if err := c.Build(ctx, debugBuild); err != nil {
			return err
		}
		n.logEvent("built image tag=%s for container=%s", tag, name)
	}

	if err := n.ensureNetworkActive(ctx); err != nil {
		return err
	}

	var created []string
	for _, name := range names {
		c := n.getContainer(name)
		id, err := c.Create(ctx, n.networkName, debugCreate)
		if err != nil {
			n.terminateNamesReverse(ctx, created)
			return err
		}
		n.mu.Lock()
		n.states[name].activeContainerID = id
		n.mu.Unlock()
		created = append(created, name)
		n.logEvent("created container=%s id=%s", name, id)
	}

	for _, name := range created {
		c := n.getContainer(name)
		id := n.activeContainerID(name)
		runner, err := c.Start(ctx, id, n.logsDir)
		if err != nil {
			n.logEvent("failed to start container=%s id=%s err=%v", name, id, err)
			_ = n.TerminateAll(ctx)
			return err
		}
		n.mu.Lock()
		st := n.states[name]
		st.state = stateActive
		st.runner = runner
		n.mu.Unlock()
		n.logEvent("started container=%s id=%s", name, id)
	}

	return nil
}

// RunAll runs every container currently registered and not yet active.
func (n *Network) RunAll(ctx context.Context) error {
	return n.Run(ctx, n.InactiveNames())
}

func (n *Network) getContainer(name string) Container {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.states[name].container
}

func (n *Network) setContainer(name string, c Container) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states[name].container = c
}

func (n *Network) activeContainerID(name string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.states[name].activeContainerID
}

func (n *Network) ensureNetworkActive(ctx context.Context) error {
	n.mu.Lock()
	if n.networkActive {
		n.mu.Unlock()
		return nil
	}
	args := append([]string{"network", "create", "--internal"}, n.networkArgs...)
	args = append(args, n.networkName)
	n.mu.Unlock()

	cmd := procio.NewArgv("docker", args...).
		WithStdout(procio.StreamConfig{Record: true, RecordLimit: 4096}).
		WithStderr(procio.StreamConfig{Record: true, RecordLimit: 4096})
	res, err := procio.RunToCompletion(ctx, cmd)
	if err != nil {
		return orcherr.Wrap(orcherr.KindSpawn, err, "docker network create "+n.networkName)
	}
	if !res.Successful() {
		return orcherr.Wrap(orcherr.KindCommandUnsuccessful, res.AssertSuccess(), "docker network create failed")
	}
	n.mu.Lock()
	n.networkActive = true
	n.mu.Unlock()
	n.logEvent("network active name=%s", n.networkName)
	return nil
}

// terminateNamesReverse force-removes the named containers in reverse
// order, swallowing individual errors into a best-effort cleanup (the
// caller already has the primary error to report).
func (n *Network) terminateNamesReverse(ctx context.Context, names []string) {
	for i := len(names) - 1; i >= 0; i-- {
		_, _ = n.terminateOne(ctx, names[i])
	}
}

func (n *Network) terminateOne(ctx context.Context, name string) (*procio.CommandResult, error) {
	n.mu.Lock()
	st, ok := n.states[name]
	if !ok {
		n.mu.Unlock()
		return nil, orcherr.New(orcherr.KindContract, "unknown container: "+name)
	}
	if st.state == statePostActive {
		res, err := st.result, st.internalErr
		n.mu.Unlock()
		return res, err
	}
	runner := st.runner
	id := st.activeContainerID
	n.mu.Unlock()

	if runner != nil {
		if _, err := runner.Terminate(); err != nil {
			n.finishPostActive(name, nil, err)
			return nil, err
		}
	}
	if id != "" {
		cmd := procio.NewArgv("docker", "rm", "-f", id).
			WithStdout(procio.StreamConfig{Record: true, RecordLimit: 2048}).
			WithStderr(procio.StreamConfig{Record: true, RecordLimit: 2048})
		if _, err := procio.RunToCompletion(ctx, cmd); err != nil {
			n.finishPostActive(name, nil, err)
			return nil, err
		}
	}

	var res *procio.CommandResult
	if runner != nil {
		res, _ = runner.WaitWithTimeout(0)
	}
	n.finishPostActive(name, res, nil)
	return res, nil
}

func (n *Network) finishPostActive(name string, res *procio.CommandResult, err error) {
	n.mu.Lock()
	st := n.states[name]
	st.state = statePostActive
	st.result = res
	st.internalErr = err
	st.runner = nil
	n.mu.Unlock()
	if err != nil {
		n.logEvent("terminated container=%s err=%v", name, err)
	} else if res != nil {
		n.logEvent("terminated container=%s successful=%v", name, res.Successful())
	} else {
		n.logEvent("terminated container=%s", name)
	}
}

// Terminate force-removes the named containers, whatever their current
// state, transitioning each to PostActive.
func (n *Network) Terminate(ctx context.Context, names []string) error {
	var merr *multierror.Error
	for _, name := range names {
		if _, err := n.terminateOne(ctx, name); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if merr != nil {
		return orcherr.Wrap(orcherr.KindAggregate, merr.ErrorOrNil(), "terminate")
	}
	return nil
}

// TerminateAll terminates every container, regardless of state, then
// removes the docker network.
func (n *Network) TerminateAll(ctx context.Context) error {
	n.mu.Lock()
	all := append([]string(nil), n.order...)
	n.mu.Unlock()

	err := n.Terminate(ctx, all)

	n.mu.Lock()
	active := n.networkActive
	n.mu.Unlock()
	if active {
		cmd := procio.NewArgv("docker", "network", "rm", n.networkName).
			WithStdout(procio.StreamConfig{Record: true, RecordLimit: 2048}).
			WithStderr(procio.StreamConfig{Record: true, RecordLimit: 2048})
		if _, rmErr := procio.RunToCompletion(ctx, cmd); rmErr == nil {
			n.mu.Lock()
			n.networkActive = false
			n.mu.Unlock()
			n.logEvent("network removed name=%s", n.networkName)
		} else if err == nil {
			err = orcherr.Wrap(orcherr.KindSpawn, rmErr, "docker network rm "+n.networkName)
		}
	}
	return err
}

// Result returns the cached CommandResult for a PostActive container.
func (n *Network) Result(name string) (*procio.CommandResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, ok := n.states[name]
	if !ok {
		return nil, orcherr.New(orcherr.KindContract, "unknown container: "+name)
	}
	if st.state != statePostActive {
		return nil, orcherr.New(orcherr.KindContract, name+" has not been terminated")
	}
	return st.result, st.internalErr
}

// WaitWithTimeout cooperatively waits for the named Active containers
// to exit naturally, round-robining a zero-timeout poll across each and
// sleeping briefly between passes. It respects the process-wide ctrl-C
// latch: once tripped, it finishes the current grace round and returns
// an Interrupted error. d == 0 is a single pass over names (guaranteed
// success if all are already done). Termination happens only when
// terminateOnFailure is set: then a named container that exits
// unsuccessfully without AllowUnsuccessfulMode causes every remaining
// Active container to be terminated, and a timeout or ctrl-C return
// terminates the names still pending. Grounded on
// docker_network.rs::ContainerNetwork::wait_with_timeout.
func (n *Network) WaitWithTimeout(ctx context.Context, names []string, terminateOnFailure bool, d time.Duration) error {
	deadline := time.Now().Add(d)
	pending := append([]string(nil), names...)
	grace := false

	for len(pending) > 0 {
		var next []string
		for _, name := range pending {
			st := n.stateOf(name)
			if st == nil || st.runner == nil {
				continue
			}
			res, err := st.runner.WaitWithTimeout(0)
			if err != nil {
				next = append(next, name)
				continue
			}
			n.mu.Lock()
			ns := n.states[name]
			ns.state = statePostActive
			ns.result = res
			ns.runner = nil
			allowUnsuccessful := ns.container.AllowUnsuccessful
			n.mu.Unlock()
			if !res.Successful() && !allowUnsuccessful {
				if terminateOnFailure {
					n.terminateNamesReverse(ctx, n.ActiveNames())
				}
				return orcherr.New(orcherr.KindCommandUnsuccessful, n.errorCompilation(name, res))
			}
		}
		pending = next
		if len(pending) == 0 {
			break
		}

		if ctrlc.Issued() {
			if grace {
				if terminateOnFailure {
					n.terminateNamesReverse(ctx, pending)
				}
				return orcherr.New(orcherr.KindInterrupted, "wait interrupted by ctrl-c")
			}
			grace = true
		}

		if d == 0 {
			return orcherr.New(orcherr.KindTimeout, "containers still running after single pass")
		}
		if time.Now().After(deadline) {
			if terminateOnFailure {
				n.terminateNamesReverse(ctx, pending)
			}
			return orcherr.New(orcherr.KindTimeout, "containers did not exit within timeout")
		}
		time.Sleep(256 * time.Millisecond)
	}
	return nil
}

// WaitWithTimeoutAll waits on every currently Active container.
func (n *Network) WaitWithTimeoutAll(ctx context.Context, terminateOnFailure bool, d time.Duration) error {
	return n.WaitWithTimeout(ctx, n.ActiveNames(), terminateOnFailure, d)
}

func (n *Network) stateOf(name string) *containerState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.states[name]
}

// errorCompilation builds the network-level failure message for an
// unsuccessful container: a byte-for-byte scan of its captured stdout
// for known marker substrings, plus an unconditional tail of the last
// errorTailBytes of stdout so operators always see something concrete
// even when no marker matched.
func (n *Network) errorCompilation(name string, res *procio.CommandResult) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "container %q exited unsuccessfully: %s\n", name, res.StringNoDebug())
	stdout := string(res.Stdout)
	for _, marker := range failureMarkers {
		if idx := indexOf(stdout, marker); idx >= 0 {
			fmt.Fprintf(&b, "matched marker %q at offset %d\n", marker, idx)
		}
	}
	tail := res.Stdout
	if len(tail) > errorTailBytes {
		tail = tail[len(tail)-errorTailBytes:]
	}
	fmt.Fprintf(&b, "tail of stdout:\n%s", tail)
	report := b.String()
	n.logEvent("failure report for container=%s:\n%s", name, report)
	return report
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

type inspectNetworkSettings struct {
	Networks map[string]struct {
		IPAddress string `json:"IPAddress"`
	} `json:"Networks"`
}

// WaitGetIPAddr polls `docker inspect` up to retries times (sleeping
// delay between attempts) until the named active container reports an
// IP address on this network. Grounded on
// docker_network.rs::ContainerNetwork::wait_get_ip_addr.
func (n *Network) WaitGetIPAddr(ctx context.Context, name string, retries int, delay time.Duration) (string, error) {
	id := n.activeContainerID(name)
	if id == "" {
		return "", orcherr.New(orcherr.KindContract, name+" is not active")
	}
	for attempt := 0; ; attempt++ {
		cmd := procio.NewArgv("docker", "inspect", id).
			WithStdout(procio.StreamConfig{Record: true, RecordLimit: 1 << 16})
		res, err := procio.RunToCompletion(ctx, cmd)
		if err == nil && res.Successful() {
			var rows []struct{ NetworkSettings inspectNetworkSettings }
			if jerr := json.Unmarshal(res.Stdout, &rows); jerr == nil && len(rows) > 0 {
				if net, ok := rows[0].NetworkSettings.Networks[n.networkName]; ok && net.IPAddress != "" {
					return net.IPAddress, nil
				}
			}
		}
		if attempt+1 >= retries {
			return "", orcherr.New(orcherr.KindTimeout, "no ip address for "+name+" after "+fmt.Sprint(retries)+" tries")
		}
		time.Sleep(delay)
	}
}

// Close tears down every container and the network itself. Safe to
// call more than once. It is the explicit counterpart of the original's
// Drop impl; a finalizer calls this as a last-resort net.
func (n *Network) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()
	return n.TerminateAll(context.Background())
}
