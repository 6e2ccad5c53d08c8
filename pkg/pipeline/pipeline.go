// Package pipeline runs the stages that turn a set of layer directories into
// a ready-to-schedule task graph: parallel file discovery, parallel recipe
// parsing, sequential recipe-graph construction, and task-graph building.
// Each stage computes a StageHash over its inputs so a later run can detect
// which stages actually need to redo their work.
package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bbforge/bbforge/pkg/extract"
	"github.com/bbforge/bbforge/pkg/recipe"
	"github.com/bbforge/bbforge/pkg/resolver"
	"github.com/bbforge/bbforge/pkg/taskgraph"
)

// Config tunes the pipeline's parallelism and caching behavior.
type Config struct {
	MaxIOParallelism  int
	MaxCPUParallelism int
	EnableCache       bool
	CacheDir          string
}

// DefaultConfig mirrors the original's tuning: generous I/O concurrency,
// CPU-bound work capped at the host's core count, and an on-disk cache
// enabled by default.
func DefaultConfig() Config {
	return Config{
		MaxIOParallelism:  32,
		MaxCPUParallelism: maxProcs(),
		EnableCache:       true,
		CacheDir:          filepath.Join(".bbforge-cache", "pipeline"),
	}
}

// RecipeFile names a discovered `.bb` file and the stat metadata its stage
// hash is derived from.
type RecipeFile struct {
	Path  string
	Name  string
	Layer string
	Mtime int64
	Size  int64
}

// ParsedRecipe is one recipe file after its document (and every include it
// names) has been folded into a single variable ledger.
type ParsedRecipe struct {
	File     RecipeFile
	Document *extract.Document
	Hash     string
}

// Pipeline drives the discover/parse/graph/task-graph stages against one
// shared recipe.Graph.
type Pipeline struct {
	config   Config
	graph    *recipe.Graph
	extractr *extract.Extractor

	// Active and DistroFeatures are applied uniformly to every recipe this
	// pipeline populates; a build with per-recipe overrides needs one
	// Pipeline per distinct override set.
	Active         resolver.ActiveOverrides
	DistroFeatures string
}

// NewPipeline returns a Pipeline that populates graph (typically a fresh
// recipe.NewGraph()) as its stages run.
func NewPipeline(config Config, graph *recipe.Graph, searchPaths ...string) *Pipeline {
	return &Pipeline{
		config:   config,
		graph:    graph,
		extractr: extract.NewExtractor(searchPaths...),
	}
}

// DiscoverRecipes walks every layer path in parallel — one goroutine per
// (repo, layer) pair, bounded by an errgroup — collecting every `.bb` file
// it finds. Results are sorted by path before hashing so the stage hash is
// deterministic regardless of goroutine completion order.
func (p *Pipeline) DiscoverRecipes(ctx context.Context, layerPaths map[string][]string) ([]RecipeFile, StageHash, error) {
	slog.Info("pipeline stage 1: discovering recipe files in parallel")

	var mu sync.Mutex
	var all []RecipeFile

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxIOParallelism)

	for repoName, layers := range layerPaths {
		for _, layerPath := range layers {
			repoName, layerPath := repoName, layerPath
			g.Go(func() error {
				found, err := discoverRecipesInLayer(gctx, layerPath, repoName)
				if err != nil {
					return err
				}
				mu.Lock()
				all = append(all, found...)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, StageHash{}, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })

	var hashInput strings.Builder
	for _, rf := range all {
		fmt.Fprintf(&hashInput, "%s:%d:%d\n", rf.Path, rf.Mtime, rf.Size)
	}
	stageHash := NewStageHash("discover", []byte(hashInput.String()))

	slog.Info("pipeline stage 1 complete", "recipes_discovered", len(all))
	return all, stageHash, nil
}

func discoverRecipesInLayer(ctx context.Context, layerPath, layerName string) ([]RecipeFile, error) {
	var recipes []RecipeFile

	err := filepath.WalkDir(layerPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || filepath.Ext(path) != ".bb" {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		name := strings.SplitN(strings.TrimSuffix(filepath.Base(path), ".bb"), "_", 2)[0]
		recipes = append(recipes, RecipeFile{
			Path:  path,
			Name:  name,
			Layer: layerName,
			Mtime: info.ModTime().Unix(),
			Size:  info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

// ParseRecipes extracts every discovered file's document in parallel,
// bounded by MaxCPUParallelism since include-folding and ledger resolution
// are CPU-bound rather than I/O-bound. A file that fails to parse is
// dropped with a debug log rather than failing the whole stage, matching
// how a single malformed recipe should not block unrelated ones.
func (p *Pipeline) ParseRecipes(ctx context.Context, files []RecipeFile) ([]ParsedRecipe, StageHash, error) {
	slog.Info("pipeline stage 2: parsing recipes in parallel", "count", len(files), "max_concurrent", p.config.MaxCPUParallelism)

	results := make([]*ParsedRecipe, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxCPUParallelism)

	for i, rf := range files {
		i, rf := i, rf
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			parsed, err := p.parseSingleRecipe(rf)
			if err != nil {
				slog.Debug("failed to parse recipe", "path", rf.Path, "error", err)
				return nil
			}
			results[i] = parsed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, StageHash{}, err
	}

	var parsed []ParsedRecipe
	for _, r := range results {
		if r != nil {
			parsed = append(parsed, *r)
		}
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].File.Path < parsed[j].File.Path })

	var hashInput strings.Builder
	for _, r := range parsed {
		fmt.Fprintf(&hashInput, "%s:%s\n", r.File.Path, r.Hash)
	}
	stageHash := NewStageHash("parse", []byte(hashInput.String()))

	slog.Info("pipeline stage 2 complete", "recipes_parsed", len(parsed))
	return parsed, stageHash, nil
}

func (p *Pipeline) parseSingleRecipe(rf RecipeFile) (*ParsedRecipe, error) {
	doc, err := p.extractr.ExtractFile(rf.Path)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(doc.RawContent))
	return &ParsedRecipe{File: rf, Document: doc, Hash: fmt.Sprintf("%x", sum)}, nil
}

func maxProcs() int {
	return runtime.NumCPU()
}
