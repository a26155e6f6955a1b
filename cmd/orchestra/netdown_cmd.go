package main

import (
	"log/slog"

	"github.com/banksean/orchestra/procio"
)

// NetDownCmd force-removes every container recorded under a network
// name and the docker network itself, then marks the network
// terminated in the bookkeeping store. Like NetWaitCmd, this shells
// docker directly by recorded id/name rather than reconstructing a
// containernet.Network, since that value doesn't outlive the `net up`
// process that built it.
type NetDownCmd struct {
	Name string `arg:"" help:"logical network name to tear down"`
}

func (c *NetDownCmd) Run(cctx *Context) error {
	row, err := cctx.Store.GetLatestNetworkByName(cctx, c.Name)
	if err != nil {
		return err
	}
	containers, err := cctx.Store.ListContainersByNetwork(cctx, row.ID)
	if err != nil {
		return err
	}

	var firstErr error
	for _, cn := range containers {
		if cn.DockerContainerID == "" {
			continue
		}
		rm := procio.NewArgv("docker", "rm", "-f", cn.DockerContainerID)
		if _, err := procio.RunToCompletion(cctx, rm); err != nil {
			slog.WarnContext(cctx, "net down: failed to remove container", "container", cn.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if row.DockerNetworkName != "" {
		rmNet := procio.NewArgv("docker", "network", "rm", row.DockerNetworkName)
		if _, err := procio.RunToCompletion(cctx, rmNet); err != nil {
			slog.WarnContext(cctx, "net down: failed to remove docker network", "network", row.DockerNetworkName, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := cctx.Store.MarkNetworkTerminated(cctx, row.ID); err != nil {
		slog.WarnContext(cctx, "net down: failed to mark network terminated", "error", err)
	}
	return firstErr
}
