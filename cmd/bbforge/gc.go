package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/bbforge/bbforge/pkg/cas"
)

func gcCmd() *cli.Command {
	return &cli.Command{
		Name:  "gc",
		Usage: "reclaim content-addressable store space unreferenced by the action cache",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := cas.OpenWithConfig(cfg.CASRoot(), cfg.CASConfig())
			if err != nil {
				return err
			}
			actions, err := cas.OpenActionCache(cfg.ActionCacheRoot())
			if err != nil {
				return err
			}

			before := store.Stats()
			deleted, err := store.GCWithActionCache(actions)
			if err != nil {
				return err
			}
			after := store.Stats()

			fmt.Fprintf(cmd.Writer, "deleted %d objects (%d -> %d bytes)\n",
				deleted, before.TotalSizeBytes, after.TotalSizeBytes)
			return nil
		},
	}
}
