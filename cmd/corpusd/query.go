package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/corpusd/corpusd/internal/client"
	"github.com/corpusd/corpusd/internal/search"
)

const (
	colorReset = "\x1b[0m"
	colorPath  = "\x1b[36m"
	colorLine  = "\x1b[33m"
	colorDim   = "\x1b[2m"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Search the index",
		ArgsUsage: "<pattern>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Query mode: fuzzy, exact or regex",
				Value: "fuzzy",
			},
			&cli.StringSliceFlag{
				Name:  "source",
				Usage: "Restrict to the named source (repeatable)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
			},
			&cli.IntFlag{
				Name: "offset",
			},
			&cli.IntFlag{
				Name:    "context",
				Aliases: []string{"C"},
				Usage:   "Lines of context around each match",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable ANSI colors",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one query pattern")
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			cl := client.New(serverAddr(cfg), cfg.Server.BearerToken)
			resp, err := cl.Search(search.Params{
				Query:   c.Args().First(),
				Mode:    search.Mode(c.String("mode")),
				Sources: c.StringSlice("source"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
				Context: c.Int("context"),
			})
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(resp)
			}
			printResults(resp, !c.Bool("no-color"))
			return nil
		},
	}
}

func printResults(resp *search.Response, color bool) {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + colorReset
	}

	for _, r := range resp.Results {
		loc := fmt.Sprintf("%s/%s", r.Source, r.Path)
		fmt.Printf("%s:%s: %s\n", paint(colorPath, loc), paint(colorLine, fmt.Sprint(r.LineNumber)), r.Content)
		if r.Context != nil {
			for i, line := range r.Context.Lines {
				if i == r.Context.MatchIndex {
					continue
				}
				fmt.Printf("  %s\n", paint(colorDim, fmt.Sprintf("%d: %s", r.Context.StartLine+i, line)))
			}
		}
	}
	if len(resp.Results) == 0 {
		fmt.Println("no matches")
		return
	}
	fmt.Printf("%s\n", paint(colorDim, fmt.Sprintf("%d shown, ~%d total", len(resp.Results), resp.Total)))
}
