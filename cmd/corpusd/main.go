// Command corpusd is the single binary for every role: the scanner
// (scan), the query CLI (query), the server (serve) and the operator
// surface (admin ...).
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/version"
)

func main() {
	app := &cli.App{
		Name:                   "corpusd",
		Usage:                  "Personal full-text search over heterogeneous file collections",
		Version:                version.FullInfo(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   "corpusd.toml",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Machine-readable output",
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			watchCommand(),
			queryCommand(),
			serveCommand(),
			adminCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "corpusd:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if _, err := os.Stat(path); os.IsNotExist(err) && !c.IsSet("config") {
		// No config file and none asked for: run on defaults.
		return config.Default(), nil
	}
	return config.Load(path)
}

// serverAddr derives the client-side base URL from the configured
// listen address.
func serverAddr(cfg *config.Config) string {
	addr := cfg.Server.ListenAddr
	if len(addr) > 0 && addr[0] == ':' {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
