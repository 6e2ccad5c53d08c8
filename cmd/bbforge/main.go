// Command bbforge is a thin developer CLI over pkg/build: discover recipes
// under a set of layers, build a target (or everything), and garbage
// collect the content store. It is not part of the specified core — a
// kas-style loader or CI driver would call pkg/build directly — but it is
// the quickest way to exercise the engine end to end from a shell.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/bbforge/bbforge/pkg/config"
)

var version = "dev"

func main() {
	cmd := rootCommand()
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("bbforge failed", "error", err)
		os.Exit(1)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "bbforge",
		Usage:                 "parallel recipe build engine",
		Version:               version,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "cache-root",
				Usage: "override BBFORGE_CACHE_ROOT for this invocation",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override BBFORGE_LOG_LEVEL for this invocation",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if v := cmd.String("cache-root"); v != "" {
				os.Setenv("BBFORGE_CACHE_ROOT", v)
			}
			if v := cmd.String("log-level"); v != "" {
				os.Setenv("BBFORGE_LOG_LEVEL", v)
			}
			return ctx, setupLogging()
		},
		Commands: []*cli.Command{
			discoverCmd(),
			buildCmd(),
			gcCmd(),
		},
	}
}

func setupLogging() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func loadConfig() (config.Config, error) {
	return config.Load()
}

// parseLayers turns a repeated --layer repo=path flag into pkg/build's
// map[string][]string shape. A bare path (no "repo=" prefix) is filed
// under the synthetic repo name "meta".
func parseLayers(raw []string) (map[string][]string, error) {
	layers := make(map[string][]string)
	for _, entry := range raw {
		repo, path, ok := splitLayerEntry(entry)
		if !ok {
			return nil, fmt.Errorf("invalid --layer value %q, expected [repo=]path", entry)
		}
		layers[repo] = append(layers[repo], path)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("at least one --layer is required")
	}
	return layers, nil
}

func splitLayerEntry(entry string) (repo, path string, ok bool) {
	if entry == "" {
		return "", "", false
	}
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			return entry[:i], entry[i+1:], true
		}
	}
	return "meta", entry, true
}
