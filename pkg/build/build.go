// Package build wires the pipeline, scheduler, and executor into the single
// entry point the rest of bbforge calls: give it a set of layers and
// targets, get back a Summary. It owns nothing the packages it wires don't
// already own — it is purely the assembly a developer CLI or a future
// kas-style loader would otherwise have to repeat at every call site.
package build

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/bbforge/bbforge/pkg/bberrors"
	"github.com/bbforge/bbforge/pkg/cas"
	"github.com/bbforge/bbforge/pkg/config"
	"github.com/bbforge/bbforge/pkg/fetch"
	"github.com/bbforge/bbforge/pkg/pipeline"
	"github.com/bbforge/bbforge/pkg/recipe"
	"github.com/bbforge/bbforge/pkg/sandbox"
	"github.com/bbforge/bbforge/pkg/scheduler"
	"github.com/bbforge/bbforge/pkg/taskgraph"
)

// Target names one task to build: a recipe name and a task name (e.g.
// "do_install"). An empty Task means do_install; the task graph then
// pulls in everything it transitively depends on.
type Target struct {
	Recipe string
	Task   string
}

// Request is everything Orchestrator.Run needs beyond its own
// already-wired components: which layers to discover recipes from, and
// which targets to build. An empty Targets list builds every task in
// every discovered recipe.
type Request struct {
	Layers  map[string][]string // repo name -> layer paths, same shape pipeline.DiscoverRecipes takes
	Targets []Target
}

// Result reports what the orchestrator did across all three pipeline
// stages and the execution run that followed.
type Result struct {
	RecipesDiscovered int
	RecipesParsed     int
	TasksInGraph      int
	scheduler.Summary
}

// Orchestrator owns the long-lived components a build needs: the shared
// recipe graph, the CAS and action cache, and the sandbox backend. A
// fresh Pipeline, Scheduler, and Executor are constructed per Run so two
// calls to Run never share scheduler state.
type Orchestrator struct {
	cfg     config.Config
	graph   *recipe.Graph
	store   *cas.Store
	actions *cas.ActionCache
	backend sandbox.Backend
	fetcher fetch.Fetcher
}

// New opens the CAS and action cache under cfg's cache root and resolves
// the configured sandbox backend. The returned Orchestrator can run many
// builds against the same on-disk caches.
func New(cfg config.Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := cas.OpenWithConfig(cfg.CASRoot(), cfg.CASConfig())
	if err != nil {
		return nil, err
	}
	actions, err := cas.OpenActionCache(cfg.ActionCacheRoot())
	if err != nil {
		return nil, err
	}

	fetcher := fetch.NewRateLimitedFetcher(fetch.NewLocalFileFetcher(),
		rate.Limit(cfg.FetchRateLimit), cfg.FetchRateLimitBurst)

	return &Orchestrator{
		cfg:     cfg,
		graph:   recipe.NewGraph(),
		store:   store,
		actions: actions,
		backend: cfg.SandboxBackendFor(),
		fetcher: fetcher,
	}, nil
}

// Graph exposes the orchestrator's shared recipe graph, mainly so a CLI's
// "discover" subcommand can list what was found without running a build.
func (o *Orchestrator) Graph() *recipe.Graph { return o.graph }

// Discover runs the pipeline's discover/parse/graph stages against
// layers, populating o.graph. It is split out from Run so a caller can
// inspect the recipe graph (list recipes, show dependencies) without
// committing to building anything.
func (o *Orchestrator) Discover(ctx context.Context, layers map[string][]string) (*pipeline.Pipeline, error) {
	p := pipeline.NewPipeline(pipeline.DefaultConfig(), o.graph)

	files, _, err := p.DiscoverRecipes(ctx, layers)
	if err != nil {
		return nil, err
	}
	slog.Info("discovered recipes", "count", len(files))

	parsed, _, err := p.ParseRecipes(ctx, files)
	if err != nil {
		return nil, err
	}
	slog.Info("parsed recipes", "count", len(parsed))

	if _, err := p.BuildRecipeGraph(parsed); err != nil {
		return nil, err
	}

	return p, nil
}

// Run discovers every recipe under req.Layers, builds the task graph for
// req.Targets (or the full graph if Targets is empty), and executes it to
// completion.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	p, err := o.Discover(ctx, req.Layers)
	if err != nil {
		return Result{}, err
	}

	tg, err := o.buildTaskGraph(p, req.Targets)
	if err != nil {
		return Result{}, err
	}

	execConfig := scheduler.Config{
		MaxParallel:   o.cfg.PipelineCPUParallelism,
		ArtifactCache: o.cfg.ArtifactCacheRoot(),
		ScratchRoot:   o.cfg.ScratchRoot(),
	}
	if execConfig.MaxParallel <= 0 {
		execConfig.MaxParallel = scheduler.DefaultConfig().MaxParallel
	}

	exec := scheduler.NewExecutor(execConfig, o.graph, tg, o.backend, o.store, o.actions)
	exec.SetFetcher(o.fetcher)
	summary, err := exec.Run(ctx)

	result := Result{
		RecipesDiscovered: o.graph.Len(),
		RecipesParsed:     o.graph.Len(),
		TasksInGraph:      len(tg.Tasks),
		Summary:           summary,
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

// buildTaskGraph lowers o.graph into a taskgraph.Graph scoped to targets,
// or the full graph if no targets were named.
func (o *Orchestrator) buildTaskGraph(p *pipeline.Pipeline, targets []Target) (*taskgraph.Graph, error) {
	if len(targets) == 0 {
		tg, _, err := p.BuildTaskGraph()
		return tg, err
	}

	builder := taskgraph.NewBuilder(o.graph)
	var combined *taskgraph.Graph

	for _, t := range targets {
		taskName := t.Task
		if taskName == "" {
			// do_install is the conventional terminal task for a recipe
			// built standalone; BuildForTarget pulls in everything it
			// transitively depends on.
			taskName = "do_install"
		}
		tg, err := builder.BuildForTarget(t.Recipe, taskName)
		if err != nil {
			return nil, bberrors.Wrap(bberrors.CodeResolveError, fmt.Sprintf("resolving target %s:%s", t.Recipe, taskName), err)
		}
		if combined == nil {
			combined = tg
			continue
		}
		combined = mergeGraphs(combined, tg)
	}
	return combined, nil
}

// mergeGraphs unions b's tasks into a, a task at a time. Tasks shared
// between two targets (a common dependency, or a recipe named twice)
// already carry identical handles and dependency edges, so a plain
// insert is idempotent.
func mergeGraphs(a, b *taskgraph.Graph) *taskgraph.Graph {
	for h, t := range b.Tasks {
		a.Tasks[h] = t
	}
	a.RootTasks = recomputeRoots(a.Tasks)
	a.LeafTasks = recomputeLeaves(a.Tasks)
	a.ExecutionOrder = append(a.ExecutionOrder, b.ExecutionOrder...)
	return a
}

func recomputeRoots(tasks map[recipe.TaskHandle]*taskgraph.ExecutableTask) []recipe.TaskHandle {
	var roots []recipe.TaskHandle
	for h, t := range tasks {
		if len(t.DependsOn) == 0 {
			roots = append(roots, h)
		}
	}
	return roots
}

func recomputeLeaves(tasks map[recipe.TaskHandle]*taskgraph.ExecutableTask) []recipe.TaskHandle {
	var leaves []recipe.TaskHandle
	for h, t := range tasks {
		if len(t.Dependents) == 0 {
			leaves = append(leaves, h)
		}
	}
	return leaves
}
