package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/corpusd/corpusd/internal/client"
	"github.com/corpusd/corpusd/internal/scanner"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Scan the configured sources and submit changes to the server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "full",
				Usage: "Ignore mtimes and re-extract every file",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Scan only the named source",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if len(cfg.Sources) == 0 {
				return fmt.Errorf("no sources configured")
			}

			cl := client.New(serverAddr(cfg), cfg.Server.BearerToken)
			s := scanner.New(cfg, cl)

			if only := c.String("source"); only != "" {
				for _, src := range cfg.Sources {
					if src.Name == only {
						return s.ScanSource(c.Context, src, c.Bool("full"))
					}
				}
				return fmt.Errorf("unknown source %q", only)
			}
			return s.ScanAll(c.Context, c.Bool("full"))
		},
	}
}
