package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/corpusd/corpusd/internal/debug"
	"github.com/corpusd/corpusd/internal/inbox"
	"github.com/corpusd/corpusd/internal/serverapi"
	"github.com/corpusd/corpusd/internal/workerpool"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the index server: HTTP surface plus the inbox worker",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool := workerpool.New(0)
			worker := inbox.NewWorker(
				cfg.Server.DataDir,
				time.Duration(cfg.Server.InboxIntervalSec)*time.Second,
				cfg.Server.RotationBytes,
				pool,
			)
			go func() {
				if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
					debug.Warn("serve", "inbox worker stopped: %v", err)
				}
			}()

			srv := serverapi.New(cfg, worker, pool)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case <-ctx.Done():
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
}
