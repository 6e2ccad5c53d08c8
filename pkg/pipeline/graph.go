package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bbforge/bbforge/pkg/extract"
	"github.com/bbforge/bbforge/pkg/recipe"
	"github.com/bbforge/bbforge/pkg/taskgraph"
)

// BuildRecipeGraph lowers every parsed document into the pipeline's shared
// recipe.Graph, sequentially: unlike discovery and parsing, graph
// construction needs every recipe present before dependency names can be
// resolved to handles, so this stage does not fan out.
func (p *Pipeline) BuildRecipeGraph(parsed []ParsedRecipe) (StageHash, error) {
	slog.Info("pipeline stage 3: building recipe dependency graph", "recipes", len(parsed))

	type pending struct {
		handle      recipe.Handle
		buildDeps   []string
		runtimeDeps []string
	}
	var toResolve []pending

	for _, pr := range parsed {
		opts := extract.Options{
			Active:         p.Active,
			DistroFeatures: p.DistroFeatures,
			Layer:          pr.File.Layer,
			OnWarn: func(err error) {
				slog.Debug("dependency resolution warning", "recipe", pr.File.Name, "error", err)
			},
		}
		r := extract.PopulateRecipe(context.Background(), p.graph, pr.File.Name, pr.Document, opts)
		toResolve = append(toResolve, pending{handle: r.Handle, buildDeps: r.BuildDeps, runtimeDeps: r.RuntimeDeps})
	}

	slog.Info("populating recipe dependencies", "recipes", len(toResolve))
	for _, pr := range toResolve {
		p.graph.PopulateDependencies(pr.handle, pr.buildDeps, pr.runtimeDeps, func(err error) {
			slog.Warn("unresolved dependency", "error", err)
		})
	}

	hashInput := fmt.Sprintf("recipes:%d,tasks:%d", p.graph.Len(), p.graph.TaskCount())
	stageHash := NewStageHash("graph", []byte(hashInput))

	slog.Info("pipeline stage 3 complete", "recipes", p.graph.Len(), "tasks", p.graph.TaskCount())
	return stageHash, nil
}

// BuildTaskGraph runs stage 4: lowering the populated recipe.Graph into a
// schedulable taskgraph.Graph with every sysroot-consuming dependency edge
// wired in.
func (p *Pipeline) BuildTaskGraph() (*taskgraph.Graph, StageHash, error) {
	slog.Info("pipeline stage 4: building task graph")

	builder := taskgraph.NewBuilder(p.graph)
	tg, err := builder.BuildFullGraph()
	if err != nil {
		return nil, StageHash{}, err
	}

	stats := tg.Stats()
	hashInput := fmt.Sprintf("tasks:%d,maxdepth:%d", stats.TotalTasks, stats.MaxDepth)
	stageHash := NewStageHash("taskgraph", []byte(hashInput))

	slog.Info("pipeline stage 4 complete", "tasks", stats.TotalTasks, "max_depth", stats.MaxDepth)
	return tg, stageHash, nil
}
