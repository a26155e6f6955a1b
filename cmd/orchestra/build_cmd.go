package main

import (
	"log/slog"

	"github.com/banksean/orchestra/containernet"
)

// BuildCmd builds a container image from a dockerfile path and tags it.
type BuildCmd struct {
	Dockerfile string   `arg:"" help:"path to the dockerfile"`
	Tag        string   `arg:"" help:"tag to assign the built image"`
	BuildArg   []string `help:"--build-arg KEY=VALUE, repeatable"`
	Debug      bool     `help:"stream build output to stdout"`
}

func (c *BuildCmd) Run(cctx *Context) error {
	slog.InfoContext(cctx, "build", "dockerfile", c.Dockerfile, "tag", c.Tag)
	var buildArgs []string
	for _, a := range c.BuildArg {
		buildArgs = append(buildArgs, "--build-arg", a)
	}
	cc := containernet.New("build", containernet.FromPath(c.Dockerfile)).
		WithBuildTag(c.Tag).
		WithBuildArgs(buildArgs...)
	return cc.Build(cctx, c.Debug)
}
