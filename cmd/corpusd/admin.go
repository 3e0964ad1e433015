package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/corpusd/corpusd/internal/client"
	"github.com/corpusd/corpusd/internal/config"
)

func adminCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Operator views over the server",
		Subcommands: []*cli.Command{
			adminStatus(),
			adminSources(),
			adminCheck(),
			adminInbox(),
			adminInboxClear(),
			adminInboxRetry(),
			adminInboxShow(),
			adminConfig(),
		},
	}
}

func adminClient(c *cli.Context) (*client.Client, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return client.New(serverAddr(cfg), cfg.Server.BearerToken), nil
}

func adminStatus() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Worker state and queue depths",
		Action: func(c *cli.Context) error {
			cl, err := adminClient(c)
			if err != nil {
				return err
			}
			status, err := cl.Status()
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(status)
			}
			fmt.Printf("server    %s\n", status.Version)
			fmt.Printf("worker    %s", status.Worker.State)
			if status.Worker.Source != "" {
				fmt.Printf(" (%s: %s)", status.Worker.Source, status.Worker.File)
			}
			fmt.Println()
			fmt.Printf("pending   %d\n", status.Pending)
			fmt.Printf("failed    %d\n", status.Failed)
			return nil
		},
	}
}

func adminSources() *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "Per-source stats",
		Action: func(c *cli.Context) error {
			cl, err := adminClient(c)
			if err != nil {
				return err
			}
			sources, err := cl.Sources()
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(sources)
			}
			for _, s := range sources {
				fmt.Printf("%s: %d files, %d bytes", s.Name, s.TotalFiles, s.TotalSize)
				if s.LastScan != nil {
					fmt.Printf(", last scan %s", time.Unix(*s.LastScan, 0).Format(time.RFC3339))
				}
				if s.ErrorCount > 0 {
					fmt.Printf(", %d errors", s.ErrorCount)
				}
				fmt.Println()
				for kind, n := range s.ByKind {
					fmt.Printf("  %-12s %d\n", kind, n)
				}
			}
			return nil
		},
	}
}

// adminCheck verifies the server is reachable and authenticated.
func adminCheck() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify server connectivity and auth",
		Action: func(c *cli.Context) error {
			cl, err := adminClient(c)
			if err != nil {
				return err
			}
			if _, err := cl.Status(); err != nil {
				return fmt.Errorf("server check failed: %w", err)
			}
			if c.Bool("json") {
				return printJSON(map[string]bool{"ok": true})
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func adminInbox() *cli.Command {
	return &cli.Command{
		Name:  "inbox",
		Usage: "List pending and failed envelopes",
		Action: func(c *cli.Context) error {
			cl, err := adminClient(c)
			if err != nil {
				return err
			}
			ib, err := cl.InboxList()
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(ib)
			}
			fmt.Printf("pending (%d):\n", len(ib.Pending))
			for _, f := range ib.Pending {
				fmt.Printf("  %s  %6d bytes  %ds old\n", f.Name, f.Size, f.AgeSec)
			}
			fmt.Printf("failed (%d):\n", len(ib.Failed))
			for _, f := range ib.Failed {
				fmt.Printf("  %s  %6d bytes  %ds old\n", f.Name, f.Size, f.AgeSec)
			}
			return nil
		},
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func adminInboxClear() *cli.Command {
	return &cli.Command{
		Name:  "inbox-clear",
		Usage: "Remove queued envelopes",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "failed", Usage: "Clear the failed queue instead of pending"},
			&cli.BoolFlag{Name: "all", Usage: "Clear both queues"},
			&cli.BoolFlag{Name: "yes", Usage: "Skip the confirmation prompt"},
		},
		Action: func(c *cli.Context) error {
			pending := !c.Bool("failed") || c.Bool("all")
			failed := c.Bool("failed") || c.Bool("all")
			if !c.Bool("yes") && !confirm("clear queued envelopes?") {
				return nil
			}
			cl, err := adminClient(c)
			if err != nil {
				return err
			}
			removed, err := cl.InboxClear(pending, failed)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(map[string]int{"removed": removed})
			}
			fmt.Printf("removed %d envelopes\n", removed)
			return nil
		},
	}
}

func adminInboxRetry() *cli.Command {
	return &cli.Command{
		Name:  "inbox-retry",
		Usage: "Move failed envelopes back to the pending queue",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "Skip the confirmation prompt"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") && !confirm("retry all failed envelopes?") {
				return nil
			}
			cl, err := adminClient(c)
			if err != nil {
				return err
			}
			moved, err := cl.InboxRetry()
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(map[string]int{"moved": moved})
			}
			fmt.Printf("moved %d envelopes back to pending\n", moved)
			return nil
		},
	}
}

func adminInboxShow() *cli.Command {
	return &cli.Command{
		Name:      "inbox-show",
		Usage:     "Summarise one queued envelope",
		ArgsUsage: "<name>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected an envelope name")
			}
			cl, err := adminClient(c)
			if err != nil {
				return err
			}
			summary, err := cl.InboxShow(c.Args().First())
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(summary)
			}
			fmt.Printf("source: %s\n", summary.Source)
			if summary.ScanTimestamp != nil {
				fmt.Printf("scan timestamp: %s\n", time.Unix(*summary.ScanTimestamp, 0).Format(time.RFC3339))
			}
			fmt.Printf("upserts (%d):\n", len(summary.Upserts))
			for _, u := range summary.Upserts {
				fmt.Printf("  %-10s %s (%d content lines)\n", u.Kind, u.Path, u.ContentLines)
			}
			if len(summary.DeletePaths) > 0 {
				fmt.Printf("deletes (%d):\n", len(summary.DeletePaths))
				for _, p := range summary.DeletePaths {
					fmt.Printf("  %s\n", p)
				}
			}
			for _, f := range summary.Failures {
				fmt.Printf("failure: %s: %s\n", f.Path, f.Error)
			}
			return nil
		},
	}
}

func adminConfig() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(cfg)
			}
			printConfig(cfg)
			return nil
		},
	}
}

func printConfig(cfg *config.Config) {
	fmt.Printf("data dir:      %s\n", cfg.Server.DataDir)
	fmt.Printf("listen:        %s\n", cfg.Server.ListenAddr)
	fmt.Printf("max file size: %d\n", cfg.Scan.MaxFileSize)
	fmt.Printf("max depth:     %d\n", cfg.Scan.MaxRecursionDepth)
	for _, s := range cfg.Sources {
		fmt.Printf("source %s: roots=%v", s.Name, s.Roots)
		if s.BaseURL != "" {
			fmt.Printf(" base_url=%s", s.BaseURL)
		}
		fmt.Println()
	}
}
