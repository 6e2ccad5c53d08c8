package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/bbforge/bbforge/pkg/build"
)

func discoverCmd() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "parse every recipe under the given layers and list what was found",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "layer",
				Usage:    "layer to search, as [repo=]path; repeatable",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			layers, err := parseLayers(cmd.StringSlice("layer"))
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			orch, err := build.New(cfg)
			if err != nil {
				return err
			}
			if _, err := orch.Discover(ctx, layers); err != nil {
				return err
			}

			g := orch.Graph()
			fmt.Fprintf(cmd.Writer, "%d recipes discovered\n", g.Len())
			for _, h := range g.AllHandles() {
				r := g.Recipe(h)
				fmt.Fprintf(cmd.Writer, "  %s_%s (%s)\n", r.Name, r.Version, r.Layer)
			}
			return nil
		},
	}
}
