// Command fabricd runs the broadcast fabric coordination server: the
// tree placement engine and signaling relay, reachable over a websocket
// connection endpoint plus a read-only admin HTTP surface.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/broadcastmesh/fabric"
	"github.com/broadcastmesh/fabric/internal/colorlog"
	"github.com/broadcastmesh/fabric/internal/config"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "fabricd"
	app.Usage = "peer-to-peer audio broadcast tree coordinator"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "port, p",
			Usage: "port to listen on (overrides PORT env var)",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "optional TOML file overriding Croot/Cnode/timer tunables",
		},
		cli.IntFlag{
			Name:  "debug, d",
			Value: 1,
			Usage: "debug level: 1 terse, 3 verbose",
		},
	}
	app.Before = func(c *cli.Context) error {
		colorlog.SetDebugVisible(c.Int("debug"))
		return nil
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		colorlog.Fatal(err)
	}
}

func run(c *cli.Context) error {
	port := c.String("port")
	if port == "" {
		port = config.Port()
	}

	tunables, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	srv := fabric.NewServer(tunables)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		colorlog.Info("shutting down")
		srv.Stop()
		cancel()
	}()

	return srv.Start(ctx, ":"+port)
}
