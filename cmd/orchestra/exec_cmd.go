package main

import (
	"log/slog"

	"github.com/banksean/orchestra/containernet"
)

// ExecCmd finds the unique running container whose name starts with
// ContainerNamePrefix and execs Args into it, forwarding stdin/stdout/
// stderr, re-scanning and retrying until a ctrl-C is issued. Wraps
// containernet.AutoExec (SPEC_FULL.md §4.10).
type ExecCmd struct {
	ContainerNamePrefix string   `arg:"" help:"name prefix identifying the running container to exec into"`
	Args                []string `arg:"" optional:"" help:"command and arguments to execute inside the container"`
}

func (c *ExecCmd) Run(cctx *Context) error {
	slog.InfoContext(cctx, "exec", "container-name-prefix", c.ContainerNamePrefix, "args", c.Args)
	return containernet.AutoExec(cctx, c.ContainerNamePrefix, nil, c.Args)
}
