package main

import "fmt"

// NetLsCmd lists every network recorded in the bookkeeping store, with
// the containers that ran under it.
type NetLsCmd struct{}

func (c *NetLsCmd) Run(cctx *Context) error {
	networks, err := cctx.Store.ListNetworks(cctx)
	if err != nil {
		return err
	}
	for _, n := range networks {
		status := "active"
		if n.TerminatedAt.Valid {
			status = "terminated " + n.TerminatedAt.Time.Format("2006-01-02T15:04:05")
		}
		fmt.Printf("%s  %-20s  %s\n", n.ID, n.Name, status)

		containers, err := cctx.Store.ListContainersByNetwork(cctx, n.ID)
		if err != nil {
			return err
		}
		for _, cn := range containers {
			exit := "running"
			if cn.ExitCode.Valid {
				exit = fmt.Sprintf("exit=%d success=%v", cn.ExitCode.Int64, cn.Success.Bool)
			}
			fmt.Printf("    %-20s  %-30s  %s\n", cn.Name, cn.Image, exit)
		}
	}
	return nil
}
