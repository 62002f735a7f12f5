// Command mcproxy is the C10 entrypoint: it merges CLI flags, an optional
// TOML config file (C11) and compiled-in defaults into a single Options
// value and hands it to the supervisor. The flag/command declarative style
// follows the teacher's own cmd/devp2p subcommands, ported from the
// teacher's urfave/cli.v1 usage to cli/v2's equivalent API.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/inconshreveable/log15"
	"github.com/urfave/cli/v2"

	"github.com/lacrosse-labs/mcproxy/internal/config"
	"github.com/lacrosse-labs/mcproxy/internal/rlog"
	"github.com/lacrosse-labs/mcproxy/internal/supervisor"
)

func main() {
	app := &cli.App{
		Name:      "mcproxy",
		Usage:     "a man-in-the-middle proxy for the Minecraft protocol",
		ArgsUsage: "[server_host]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
			&cli.IntFlag{Name: "listen-port", Usage: "override the proxy listen port (default 25565)"},
			&cli.IntFlag{Name: "webserver-port", Usage: "override the loopback webserver port (default 8080)"},
			&cli.StringFlag{Name: "capture-dir", Usage: "override the capture directory (default saved/)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "metrics address setting (not consulted: /metrics is served on the loopback webserver port)"},
			&cli.BoolFlag{Name: "no-metrics", Usage: "disable the Prometheus /metrics endpoint"},
			&cli.BoolFlag{Name: "no-inspector", Usage: "disable the live /inspect WebSocket endpoint"},
			&cli.BoolFlag{Name: "verbose", Usage: "log at Debug level to the terminal"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mcproxy:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	lvl := log15.LvlInfo
	if c.Bool("verbose") {
		lvl = log15.LvlDebug
	}

	flags := config.File{
		UpstreamHost:  c.Args().First(),
		ListenPort:    c.Int("listen-port"),
		WebserverPort: c.Int("webserver-port"),
		CaptureDir:    c.String("capture-dir"),
		MetricsAddr:   c.String("metrics-addr"),
	}

	fileCfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	merged := config.Merge(fileCfg, flags)

	if merged.UpstreamHost == "" {
		return fmt.Errorf("no upstream server host given (positional argument or upstream_host in --config)")
	}

	if err := os.MkdirAll(merged.CaptureDir, 0o755); err != nil {
		return fmt.Errorf("mcproxy: create capture dir: %w", err)
	}
	if err := rlog.Setup(filepath.Join(merged.CaptureDir, "mcproxy.log"), lvl); err != nil {
		return fmt.Errorf("mcproxy: set up logging: %w", err)
	}

	sup, err := supervisor.New(supervisor.Options{
		UpstreamHost:  merged.UpstreamHost,
		ListenPort:    merged.ListenPort,
		WebserverPort: merged.WebserverPort,
		CaptureDir:    merged.CaptureDir,
		MetricsAddr:   merged.MetricsAddr,
		NoMetrics:     c.Bool("no-metrics"),
		NoInspector:   c.Bool("no-inspector"),
	}, rlog.Root())
	if err != nil {
		return err
	}
	defer sup.Close()

	return sup.Run()
}
