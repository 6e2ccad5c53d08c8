package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/bbforge/bbforge/pkg/build"
)

func buildCmd() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "build one or more targets",
		ArgsUsage: "[recipe:task ...]",
		Description: `Each positional argument names a target as recipe:task
(e.g. zlib:do_install). The :task suffix may be omitted, in which case
do_install is used. With no arguments, every task of every discovered
recipe is built.`,
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
			targets, err := parseTargets(cmd.Args().Slice())
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

			result, err := orch.Run(ctx, build.Request{Layers: layers, Targets: targets})
			fmt.Fprintf(cmd.Writer, "recipes: %d  tasks: %d  succeeded: %d  failed: %d  skipped: %d  cache hits: %d  duration: %s\n",
				result.RecipesDiscovered, result.TasksInGraph, result.Succeeded, result.Failed, result.Skipped,
				result.CacheHits, result.Duration)
			return err
		},
	}
}

// parseTargets turns "recipe:task" positional arguments into
// build.Target values. A bare "recipe" with no ":task" suffix leaves
// Target.Task empty, which the orchestrator resolves to do_install.
func parseTargets(args []string) ([]build.Target, error) {
	targets := make([]build.Target, 0, len(args))
	for _, arg := range args {
		recipeName, taskName, _ := strings.Cut(arg, ":")
		if recipeName == "" {
			return nil, fmt.Errorf("invalid target %q", arg)
		}
		targets = append(targets, build.Target{Recipe: recipeName, Task: taskName})
	}
	return targets, nil
}
