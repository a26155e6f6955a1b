package containernet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banksean/orchestra/fileopts"
	"github.com/banksean/orchestra/internal/imageref"
	"github.com/banksean/orchestra/internal/miscutil"
	"github.com/banksean/orchestra/orcherr"
	"github.com/banksean/orchestra/pathutil"
	"github.com/banksean/orchestra/procio"
	"github.com/google/uuid"
)

// VolumeMount is one --volume host:container bind mount.
type VolumeMount struct {
	HostPath      string
	ContainerPath string
}

// Container is an immutable builder describing one network member:
// which image to build or reference, how to `docker create` it, and
// how to run its entrypoint. Grounded on
// super_orchestrator/src/cli_docker/docker_container.rs::Container.
type Container struct {
	Name          string // logical key within a ContainerNetwork
	ContainerName string // --name; defaults to Name
	Hostname      string // --hostname; defaults to ContainerName

	Dockerfile          Dockerfile
	BuildArgs           []string
	BuildTag            string // assigned by the network unless Dockerfile is a NameTag
	DockerfileWritePath string // required for Contents unless the network supplies a dir

	CreateArgs []string
	Volumes    []VolumeMount
	Workdir    string
	Env        []procio.EnvPair

	EntrypointFile string
	EntrypointArgs []string

	AllowUnsuccessful bool // a non-zero exit does not fail the network's wait
	DisableLog        bool
	StdoutLog         string // overrides the network's default log path
	StderrLog         string
}

// New starts a Container builder with the given logical name.
func New(name string, dockerfile Dockerfile) Container {
	return Container{Name: name, Dockerfile: dockerfile}
}

func (c Container) WithContainerName(n string) Container { c.ContainerName = n; return c }
func (c Container) WithHostname(h string) Container      { c.Hostname = h; return c }

func (c Container) WithBuildArgs(args ...string) Container {
	c.BuildArgs = append(append([]string(nil), c.BuildArgs...), args...)
	return c
}

func (c Container) WithBuildTag(tag string) Container { c.BuildTag = tag; return c }

func (c Container) WithDockerfileWritePath(p string) Container {
	c.DockerfileWritePath = p
	return c
}

func (c Container) WithCreateArgs(args ...string) Container {
	c.CreateArgs = append(append([]string(nil), c.CreateArgs...), args...)
	return c
}

func (c Container) WithVolume(hostPath, containerPath string) Container {
	c.Volumes = append(append([]VolumeMount(nil), c.Volumes...), VolumeMount{hostPath, containerPath})
	return c
}

func (c Container) WithWorkdir(dir string) Container { c.Workdir = dir; return c }

func (c Container) WithEnv(key, value string) Container {
	c.Env = append(append([]procio.EnvPair(nil), c.Env...), procio.EnvPair{Key: key, Value: value})
	return c
}

func (c Container) WithEntrypoint(file string, args ...string) Container {
	c.EntrypointFile = file
	c.EntrypointArgs = append([]string(nil), args...)
	return c
}

func (c Container) WithEntrypointArgs(args ...string) Container {
	c.EntrypointArgs = append(append([]string(nil), c.EntrypointArgs...), args...)
	return c
}

func (c Container) AllowUnsuccessfulMode(allow bool) Container {
	c.AllowUnsuccessful = allow
	return c
}

func (c Container) WithLogs(stdoutPath, stderrPath string) Container {
	c.StdoutLog, c.StderrLog = stdoutPath, stderrPath
	return c
}

func (c Container) WithoutLog() Container { c.DisableLog = true; return c }

// ExternalEntrypoint resolves hostBinary on the local filesystem, mounts
// it into the container at a randomized virtual path, and sets it as
// the entrypoint with args. Grounded on
// docker_container.rs::Container::external_entrypoint.
func (c Container) ExternalEntrypoint(hostBinary string, args ...string) (Container, error) {
	resolved, err := pathutil.AcquireFilePath(hostBinary)
	if err != nil {
		return c, orcherr.Wrap(orcherr.KindPath, err, "resolve external entrypoint binary")
	}
	virtual := fmt.Sprintf("/%s_%s", filepath.Base(resolved), uuid.NewString())
	c = c.WithVolume(resolved, virtual)
	return c.WithEntrypoint(virtual, args...), nil
}

func (c Container) containerName() string {
	if c.ContainerName != "" {
		return c.ContainerName
	}
	return c.Name
}

func (c Container) hostname() string {
	if c.Hostname != "" {
		return c.Hostname
	}
	return c.containerName()
}

// Precheck validates the container's filesystem-dependent fields before
// any docker invocation: dockerfile path (if Path), write path (if
// Contents), and every volume host path.
func (c Container) Precheck() error {
	switch c.Dockerfile.Kind {
	case DockerfileNameTag:
		if err := imageref.Validate(c.Dockerfile.NameTag); err != nil {
			return orcherr.Wrap(orcherr.KindParse, err, "container "+c.Name+": image reference")
		}
	case DockerfilePath:
		if _, err := pathutil.AcquireFilePath(c.Dockerfile.Path); err != nil {
			return orcherr.Wrap(orcherr.KindPath, err, "dockerfile path for "+c.Name)
		}
	case DockerfileContents:
		if c.DockerfileWritePath == "" {
			return orcherr.New(orcherr.KindContract,
				"container "+c.Name+": Contents dockerfile needs a write path")
		}
	}
	for _, v := range c.Volumes {
		if _, err := pathutil.AcquirePath(v.HostPath); err != nil {
			return orcherr.Wrap(orcherr.KindPath, err, "volume host path "+v.HostPath+" for "+c.Name)
		}
	}
	return nil
}

// imageRef returns the reference to build/create from: the write-once
// BuildTag once the network has assigned one, or the NameTag literal for
// containers that reference an already-built image.
func (c Container) imageRef() (string, error) {
	if c.BuildTag != "" {
		return c.BuildTag, nil
	}
	if c.Dockerfile.Kind == DockerfileNameTag {
		return c.Dockerfile.NameTag, nil
	}
	return "", orcherr.New(orcherr.KindContract, "container "+c.Name+" has no build tag or name:tag")
}

// Build runs `docker build` for this container's dockerfile, doing
// nothing for the NameTag variant. Grounded on
// docker_container.rs::Container::build.
func (c Container) Build(ctx context.Context, debug bool) error {
	switch c.Dockerfile.Kind {
	case DockerfileNameTag:
		return nil
	case DockerfilePath:
		return c.runBuild(ctx, c.Dockerfile.Path, filepath.Dir(c.Dockerfile.Path), debug)
	case DockerfileContents:
		if err := fileopts.WriteString(c.DockerfileWritePath, c.Dockerfile.Contents); err != nil {
			return orcherr.Wrap(orcherr.KindIO, err, "write dockerfile contents for "+c.Name)
		}
		return c.runBuild(ctx, c.DockerfileWritePath, filepath.Dir(c.DockerfileWritePath), debug)
	default:
		return orcherr.New(orcherr.KindContract, "unknown dockerfile kind")
	}
}

func (c Container) runBuild(ctx context.Context, dockerfilePath, buildDir string, debug bool) error {
	if c.BuildTag == "" {
		return orcherr.New(orcherr.KindContract, "container "+c.Name+": build_tag must be assigned before build")
	}
	args := []string{"build", "-t", c.BuildTag, "--file", dockerfilePath}
	args = append(args, c.BuildArgs...)
	args = append(args, buildDir)

	cmd := procio.NewArgv("docker", args...).
		WithStdout(debugStream(debug, os.Stdout, "build "+c.Name+" | ")).
		WithStderr(debugStream(debug, os.Stderr, "build "+c.Name+" E| "))
	res, err := procio.RunToCompletion(ctx, cmd)
	if err != nil {
		return orcherr.Wrap(orcherr.KindSpawn, err, "docker build for "+c.Name)
	}
	if !res.Successful() {
		return orcherr.Wrap(orcherr.KindCommandUnsuccessful, res.AssertSuccess(), "docker build failed for "+c.Name)
	}
	return nil
}

// Create runs `docker create` and returns the resulting container ID.
// Grounded on docker_container.rs::Container::create; the argv shape is
// preserved byte for byte: create --rm --network N --hostname H --name
// NAME [-w WORKDIR] [-e K=V]... [--volume H:C]... [create-args]... IMAGE
// [entrypoint-file [entrypoint-args]...].
func (c Container) Create(ctx context.Context, network string, debug bool) (string, error) {
	image, err := c.imageRef()
	if err != nil {
		return "", err
	}
	args := []string{"create", "--rm", "--network", network, "--hostname", c.hostname(), "--name", c.containerName()}
	if c.Workdir != "" {
		args = append(args, "-w", c.Workdir)
	}
	for _, e := range c.Env {
		args = append(args, "-e", e.Key+"="+e.Value)
	}
	for _, v := range c.Volumes {
		args = append(args, "--volume", v.HostPath+":"+v.ContainerPath)
	}
	args = append(args, c.CreateArgs...)
	args = append(args, image)
	if c.EntrypointFile != "" {
		args = append(args, c.EntrypointFile)
		args = append(args, c.EntrypointArgs...)
	}

	cmd := procio.NewArgv("docker", args...).
		WithStdout(procio.StreamConfig{Record: true, RecordLimit: 4096}).
		WithStderr(procio.StreamConfig{Record: true, RecordLimit: 4096})
	if debug {
		cmd = cmd.WithStdout(procio.StreamConfig{
			Record: true, RecordLimit: 4096, Debug: true, DebugWriter: os.Stdout,
			DebugPrefix: "create " + c.Name + " | ",
		})
	}
	res, err := procio.RunToCompletion(ctx, cmd)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindSpawn, err, "docker create for "+c.Name)
	}
	if !res.Successful() {
		return "", orcherr.Wrap(orcherr.KindCommandUnsuccessful, res.AssertSuccess(), "docker create failed for "+c.Name)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// Start runs `docker start --attach CONTAINER_ID`, wiring its stdout and
// stderr through a CommandRunner with a rotating-color debug prefix and,
// unless disabled, default log files under logsDir. Grounded on
// docker_container.rs::Container::start.
func (c Container) Start(ctx context.Context, containerID, logsDir string) (*procio.CommandRunner, error) {
	color := miscutil.NextTerminalColor()
	name := c.Name

	stdoutLog, stderrLog := c.StdoutLog, c.StderrLog
	if !c.DisableLog {
		if stdoutLog == "" && logsDir != "" {
			stdoutLog = filepath.Join(logsDir, name+"_stdout.log")
		}
		if stderrLog == "" && logsDir != "" {
			stderrLog = filepath.Join(logsDir, name+"_stderr.log")
		}
	} else {
		stdoutLog, stderrLog = "", ""
	}

	cmd := procio.NewArgv("docker", "start", "--attach", containerID).
		WithStdout(procio.StreamConfig{
			Record: true, RecordLimit: 1 << 20,
			Debug: true, DebugWriter: os.Stdout,
			DebugPrefix: color + name + "  | " + miscutil.ColorReset,
			LogPath:     stdoutLog,
		}).
		WithStderr(procio.StreamConfig{
			Record: true, RecordLimit: 1 << 20,
			Debug: true, DebugWriter: os.Stderr,
			DebugPrefix: color + name + " E| " + miscutil.ColorReset,
			LogPath:     stderrLog,
		}).
		WithForgetOnDrop(false)

	r, err := procio.Start(ctx, cmd, procio.StdinNone)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindSpawn, err, "docker start for "+c.Name)
	}
	return r, nil
}

func debugStream(debug bool, w *os.File, prefix string) procio.StreamConfig {
	if !debug {
		return procio.StreamConfig{Record: true, RecordLimit: 1 << 16}
	}
	return procio.StreamConfig{Record: true, RecordLimit: 1 << 16, Debug: true, DebugWriter: w, DebugPrefix: prefix}
}

// Run is the single-container convenience path: it stands up a
// throwaway network containing only this container, starts it,
// blocks until completion (treating exit as allowed per
// AllowUnsuccessfulMode), tears everything down, and returns the
// result. Grounded on docker_container.rs::Container::run.
func (c Container) Run(ctx context.Context, logsDir, dockerfileWriteDir string) (*procio.CommandResult, error) {
	c = c.AllowUnsuccessfulMode(true)
	net := NewNetwork(miscutil.RandomName("run-"+c.Name), logsDir, dockerfileWriteDir)
	if err := net.AddContainer(c); err != nil {
		return nil, err
	}
	defer net.Close()

	if err := net.RunAll(ctx); err != nil {
		return nil, err
	}
	if err := net.WaitWithTimeoutAll(ctx, true, DefaultRunTimeout); err != nil {
		return nil, err
	}
	return net.Result(c.Name)
}
