// Command orchestra drives the container-network orchestrator from the
// shell: build/run throwaway fixtures, exec into them, and inspect past
// runs recorded in the bookkeeping store. Grounded on
// cmd/sand/main.go's kong-based CLI shape.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/alecthomas/kong-yaml"
	"github.com/banksean/orchestra/internal/ctrlc"
	"github.com/banksean/orchestra/internal/obs"
	"github.com/banksean/orchestra/internal/store"
	kongcompletion "github.com/jotaen/kong-completion"
)

// Context is the shared state threaded into every subcommand's Run.
type Context struct {
	context.Context
	Store *store.Store
}

// CLI is the top-level kong grammar.
type CLI struct {
	LogFile  string `default:"" placeholder:"<log-file-path>" help:"log file path (empty writes JSON logs to stderr)"`
	LogLevel string `default:"info" placeholder:"<debug|info|warn|error>" help:"logging level"`
	StoreDB  string `default:"~/.orchestra/bookkeeping.db" placeholder:"<db-path>" help:"path to the bookkeeping sqlite database"`

	Run        RunCmd             `cmd:"" help:"run a single container from an image reference to completion"`
	Build      BuildCmd           `cmd:"" help:"build a container image from a dockerfile"`
	Exec       ExecCmd            `cmd:"" help:"auto-discover a running container by name prefix and exec into it"`
	NetUp      NetUpCmd           `cmd:"" name:"net-up" help:"build and start a multi-container network"`
	NetWait    NetWaitCmd         `cmd:"" name:"net-wait" help:"wait for every container in a network to exit"`
	NetDown    NetDownCmd         `cmd:"" name:"net-down" help:"tear down a network and its containers"`
	NetLs      NetLsCmd           `cmd:"" name:"net-ls" help:"list recorded container networks"`
	ImageLs    ImageLsCmd         `cmd:"" name:"image-ls" help:"list images referenced by recorded runs"`
	Version    VersionCmd         `cmd:"" help:"print version information"`
	Completion kongcompletion.Cmd `cmd:"" help:"print shell completion script"`
}

func main() {
	ctx := context.Background()
	ctrlc.Init(ctx)

	var cli CLI
	parser := kong.Must(&cli,
		kong.Name("orchestra"),
		kong.Description("Build, run, and inspect disposable docker container fixtures."),
		kong.Configuration(kongyaml.Loader, "~/.orchestra/config.yaml"),
		kong.UsageOnError(),
	)
	kongcompletion.Register(parser)

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := obs.InitLogging(obs.LoggingConfig{Level: cli.LogLevel, FilePath: cli.LogFile}); err != nil {
		fmt.Fprintln(os.Stderr, "init logging:", err)
		os.Exit(1)
	}

	dbPath := cli.StoreDB
	if home, herr := os.UserHomeDir(); herr == nil {
		dbPath = expandHome(dbPath, home)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		kctx.FatalIfErrorf(err)
	}
	st, err := store.Open(dbPath)
	kctx.FatalIfErrorf(err)
	defer st.Close()

	runCtx := &Context{Context: ctx, Store: st}
	err = kctx.Run(runCtx)
	kctx.FatalIfErrorf(err)
}

func expandHome(path, home string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		return filepath.Join(home, path[2:])
	}
	return path
}
