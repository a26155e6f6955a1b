package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/banksean/orchestra/procio"
)

// NetWaitCmd blocks until every container recorded under a network name
// (most recently `net up`'d, and not yet torn down) exits, via `docker
// wait`. Operates directly against docker rather than a live
// containernet.Network, since the Network value from the `net up`
// invocation that created these containers does not survive into this
// process.
type NetWaitCmd struct {
	Name    string        `arg:"" help:"logical network name to wait for"`
	Timeout time.Duration `default:"5m" help:"maximum time to wait for every container in the network to exit"`
}

func (c *NetWaitCmd) Run(cctx *Context) error {
	row, err := cctx.Store.GetLatestNetworkByName(cctx, c.Name)
	if err != nil {
		return err
	}
	containers, err := cctx.Store.ListContainersByNetwork(cctx, row.ID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cctx, c.Timeout)
	defer cancel()

	for _, cn := range containers {
		if cn.DockerContainerID == "" {
			continue
		}
		slog.InfoContext(ctx, "net wait", "network", c.Name, "container", cn.Name)
		cmd := procio.NewArgv("docker", "wait", cn.DockerContainerID).
			WithStdout(procio.StreamConfig{Record: true, RecordLimit: 64})
		res, err := procio.RunToCompletion(ctx, cmd)
		if err != nil {
			return err
		}
		if !res.Successful() {
			return res.AssertSuccess()
		}
		fmt.Fprintf(os.Stdout, "%s exited %s\n", cn.Name, strings.TrimSpace(string(res.Stdout)))
	}
	return nil
}
