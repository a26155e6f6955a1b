package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/banksean/orchestra/containernet"
	"github.com/banksean/orchestra/internal/store"
	"github.com/google/uuid"
)

// RunCmd runs a single container from an existing image reference to
// completion (it never builds an image), mirroring Container.Run but as
// a CLI entrypoint and recording the
// result in the bookkeeping store.
type RunCmd struct {
	Image      string   `arg:"" help:"image reference (name:tag) to run"`
	Entrypoint string   `optional:"" help:"entrypoint binary inside the image; defaults to the image's own entrypoint"`
	Args       []string `arg:"" optional:"" help:"arguments to the entrypoint"`
	Workdir    string   `help:"working directory inside the container"`
	LogsDir    string   `default:"/tmp/orchestra-logs" help:"directory for per-container stdout/stderr logs"`
}

func (c *RunCmd) Run(cctx *Context) error {
	slog.InfoContext(cctx, "run", "image", c.Image)

	if err := os.MkdirAll(c.LogsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	name := "run-" + uuid.NewString()[:8]
	cc := containernet.New(name, containernet.FromNameTag(c.Image)).WithWorkdir(c.Workdir)
	if c.Entrypoint != "" {
		cc = cc.WithEntrypoint(c.Entrypoint, c.Args...)
	}

	res, err := cc.Run(cctx, c.LogsDir, c.LogsDir)
	if err != nil {
		return err
	}

	networkID := uuid.NewString()
	if err := cctx.Store.InsertNetwork(cctx, store.InsertNetworkParams{ID: networkID, Name: name, UUID: networkID}); err != nil {
		slog.WarnContext(cctx, "failed to record network", "error", err)
	}
	if err := cctx.Store.InsertContainer(cctx, store.InsertContainerParams{
		ID: networkID + "-" + name, NetworkID: networkID, Name: name, Image: c.Image,
	}); err != nil {
		slog.WarnContext(cctx, "failed to record container", "error", err)
	}
	if err := cctx.Store.MarkNetworkTerminated(cctx, networkID); err != nil {
		slog.WarnContext(cctx, "failed to mark network terminated", "error", err)
	}
	code := 1
	if res.Status != nil {
		code = res.Status.Code
	}
	if err := cctx.Store.MarkContainerExited(cctx, store.MarkContainerExitedParams{
		ID: networkID + "-" + name, ExitCode: code, Success: res.Successful(),
	}); err != nil {
		slog.WarnContext(cctx, "failed to record exit", "error", err)
	}

	fmt.Fprintln(os.Stdout, string(res.Stdout))
	if !res.Successful() {
		return res.AssertSuccess()
	}
	return nil
}
