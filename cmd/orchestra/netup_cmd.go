package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/banksean/orchestra/containernet"
	"github.com/banksean/orchestra/internal/store"
	"github.com/google/uuid"
)

// NetUpCmd builds and starts a multi-container containernet.Network from
// a list of images and records it in the bookkeeping store, so a later
// `orchestra net-wait`/`orchestra net-down` invocation (a separate
// process) can act on it by name.
type NetUpCmd struct {
	Name    string   `arg:"" help:"logical network name"`
	Image   []string `arg:"" help:"image reference for each container in the network, one per container"`
	LogsDir string   `default:"/tmp/orchestra-logs" help:"directory for per-container stdout/stderr logs"`
}

func (c *NetUpCmd) Run(cctx *Context) error {
	slog.InfoContext(cctx, "net up", "name", c.Name, "images", c.Image)

	if err := os.MkdirAll(c.LogsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	net := containernet.NewNetwork(c.Name, c.LogsDir, c.LogsDir)
	cnames := make([]string, len(c.Image))
	for i, img := range c.Image {
		cname := fmt.Sprintf("%s-%d", c.Name, i)
		cnames[i] = cname
		cc := containernet.New(cname, containernet.FromNameTag(img)).AllowUnsuccessfulMode(true)
		if err := net.AddContainer(cc); err != nil {
			return err
		}
	}
	if err := net.RunAll(cctx); err != nil {
		return err
	}

	networkID := uuid.NewString()
	if err := cctx.Store.InsertNetwork(cctx, store.InsertNetworkParams{
		ID: networkID, Name: c.Name, UUID: net.UUID(), DockerNetworkName: net.NetworkName(),
	}); err != nil {
		slog.WarnContext(cctx, "failed to record network", "error", err)
	}
	ids := net.GetActiveContainerIDs()
	for i, cname := range cnames {
		if err := cctx.Store.InsertContainer(cctx, store.InsertContainerParams{
			ID: networkID + "-" + cname, NetworkID: networkID, Name: cname,
			Image: c.Image[i], DockerContainerID: ids[cname],
		}); err != nil {
			slog.WarnContext(cctx, "failed to record container", "error", err)
		}
	}

	fmt.Fprintf(os.Stdout, "network %s (id=%s) up with %d container(s)\n", c.Name, networkID, len(cnames))
	return nil
}
