package main

import (
	"fmt"
	"runtime/debug"

	"github.com/banksean/orchestra/version"
)

// VersionCmd prints build/version information, grounded on
// cmd/sand/version_cmd.go.
type VersionCmd struct{}

func (c *VersionCmd) Run(cctx *Context) error {
	v := version.Get()
	fmt.Printf("Git Repository: %s\n", v.GitRepo)
	fmt.Printf("Git Branch: %s\n", v.GitBranch)
	fmt.Printf("Git Commit: %s\n", v.GitCommit)
	fmt.Printf("Build Time: %s\n", v.BuildTime)

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Println("Build info not available")
		return nil
	}
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if v.GitCommit == "" {
				fmt.Printf("Git Commit: %s\n", setting.Value)
			}
		case "vcs.time":
			if v.BuildTime == "" {
				fmt.Printf("Commit Time: %s\n", setting.Value)
			}
		case "vcs.modified":
			fmt.Printf("Modified: %s\n", setting.Value)
		}
	}
	return nil
}
