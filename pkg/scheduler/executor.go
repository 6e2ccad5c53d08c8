package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/bbforge/bbforge/pkg/bberrors"
	"github.com/bbforge/bbforge/pkg/cas"
	"github.com/bbforge/bbforge/pkg/fetch"
	"github.com/bbforge/bbforge/pkg/recipe"
	"github.com/bbforge/bbforge/pkg/sandbox"
	"github.com/bbforge/bbforge/pkg/sysroot"
	"github.com/bbforge/bbforge/pkg/taskgraph"
)

// Config tunes the executor's parallelism and on-disk layout.
type Config struct {
	MaxParallel   int
	ArtifactCache string // per-task staged outputs: <recipe>/<task>-<sig>/sysroot
	ScratchRoot   string // per-task sandbox work directories
}

// DefaultConfig mirrors the original's num_cpus::get() default parallelism.
func DefaultConfig() Config {
	return Config{
		MaxParallel:   runtime.NumCPU(),
		ArtifactCache: filepath.Join(".bbforge-cache", "artifacts"),
		ScratchRoot:   filepath.Join(".bbforge-cache", "scratch"),
	}
}

// Executor drives a taskgraph.Graph to completion: it asks the Scheduler
// for each wave of ready tasks, runs them (consulting the action cache
// first), and feeds results back so the scheduler can release the next
// wave.
type Executor struct {
	config  Config
	graph   *recipe.Graph
	backend sandbox.Backend
	store   *cas.Store
	actions *cas.ActionCache
	sched   *Scheduler
	tg      *taskgraph.Graph
	asm     *sysroot.Assembler
	fetcher fetch.Fetcher // optional; nil means do_fetch runs as an ordinary networked shell task
	runID   string        // correlates every log line for one Run call

	mu      sync.Mutex
	outputs map[recipe.TaskHandle]digest.Digest // do_populate_sysroot/do_install output anchor, for fingerprinting dependents
}

// NewExecutor returns an Executor ready to drive tg over graph.
func NewExecutor(config Config, graph *recipe.Graph, tg *taskgraph.Graph, backend sandbox.Backend, store *cas.Store, actions *cas.ActionCache) *Executor {
	return &Executor{
		config:  config,
		graph:   graph,
		backend: backend,
		store:   store,
		actions: actions,
		sched:   NewScheduler(tg),
		tg:      tg,
		asm:     sysroot.NewAssembler(),
		outputs: make(map[recipe.TaskHandle]digest.Digest),
	}
}

// SetFetcher wires f in as the do_fetch network hook: every do_fetch task
// is then satisfied by f.Fetch against its SRC_URI entries instead of
// running its (usually empty or placeholder) shell body. Called once
// after NewExecutor; nil is the zero value, and leaves do_fetch to run as
// an ordinary networked shell task.
func (e *Executor) SetFetcher(f fetch.Fetcher) {
	e.fetcher = f
}

// Summary is the final report of a completed (or failed) execution run.
type Summary struct {
	TotalTasks int
	Succeeded  int
	Failed     int
	Skipped    int
	CacheHits  int
	Duration   time.Duration
}

// Run drives the whole graph to completion, wave by wave. It returns as
// soon as any task in a wave fails — every task still running in that
// wave is allowed to finish, but no further waves are released.
func (e *Executor) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	e.runID = uuid.NewString()
	e.sched.Initialize()

	total := len(e.tg.Tasks)
	cacheHits := 0
	slog.Info("build run starting", "run_id", e.runID, "tasks", total)

	for {
		stats := e.sched.Stats()
		if stats.Completed >= total {
			break
		}

		ready := e.sched.GetReadyTasks(e.config.MaxParallel)
		if len(ready) == 0 {
			if e.sched.Deadlocked() {
				return Summary{}, bberrors.New(bberrors.CodeDeadlock,
					"no tasks ready but graph incomplete: deadlock detected")
			}
			// Nothing ready this instant but tasks are still running;
			// in a synchronous wave model this should not happen since
			// GetReadyTasks only returns after the prior wave settled,
			// but guard against spinning forever regardless.
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		var waveMu sync.Mutex
		var hitsThisWave int

		for _, h := range ready {
			h := h
			g.Go(func() error {
				hit, err := e.runOne(gctx, h)
				if err != nil {
					e.sched.MarkFailed(h)
					return err
				}
				waveMu.Lock()
				if hit {
					hitsThisWave++
				}
				waveMu.Unlock()
				e.sched.MarkCompleted(h)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			stats := e.sched.Stats()
			return Summary{
				TotalTasks: total,
				Succeeded:  stats.Succeeded,
				Failed:     stats.Failed,
				Skipped:    stats.Skipped,
				CacheHits:  cacheHits,
				Duration:   time.Since(start),
			}, err
		}
		cacheHits += hitsThisWave
	}

	stats := e.sched.Stats()
	slog.Info("build run complete", "run_id", e.runID, "succeeded", stats.Succeeded,
		"failed", stats.Failed, "cache_hits", cacheHits)
	return Summary{
		TotalTasks: total,
		Succeeded:  stats.Succeeded,
		Failed:     stats.Failed,
		Skipped:    stats.Skipped,
		CacheHits:  cacheHits,
		Duration:   time.Since(start),
	}, nil
}

// runOne executes a single task: fingerprint, cache consult, and on a miss
// provision-and-run. It reports whether the result came from the action
// cache.
func (e *Executor) runOne(ctx context.Context, h recipe.TaskHandle) (bool, error) {
	spec, err := BuildTaskSpec(e.graph, e.tg, h)
	if err != nil {
		return false, err
	}

	upstream := e.upstreamOutputsOf(h)
	sig := Fingerprint(spec, upstream)

	sandboxRoot := filepath.Join(e.config.ScratchRoot, spec.RecipeName, spec.TaskName)
	hostWorkDir := filepath.Join(sandboxRoot, "work")

	if out, ok := e.actions.Get(sig); ok {
		slog.Info("task cache hit", "run_id", e.runID, "recipe", spec.RecipeName, "task", spec.TaskName)
		if err := e.rehydrate(out, hostWorkDir); err != nil {
			return false, err
		}
		e.recordOutputAnchor(h, sig)
		return true, nil
	}

	if err := e.provisionSysroot(spec, hostWorkDir); err != nil {
		return false, err
	}

	result, err := e.runSpec(ctx, spec, sandboxRoot, hostWorkDir)
	if err != nil {
		return false, err
	}
	if !result.Success() {
		return false, bberrors.New(bberrors.CodeSandboxError,
			fmt.Sprintf("%s:%s exited %d: %s", spec.RecipeName, spec.TaskName, result.ExitCode, result.Stderr))
	}

	outputFiles, err := e.captureOutputs(spec, hostWorkDir)
	if err != nil {
		return false, err
	}
	if err := e.stageArtifact(spec, hostWorkDir, sig); err != nil {
		return false, err
	}

	taskOutput := cas.TaskOutput{
		Signature:   sig,
		OutputFiles: outputFiles,
		Stdout:      result.Stdout,
		Stderr:      result.Stderr,
		ExitCode:    result.ExitCode,
		DurationMS:  result.DurationMS,
	}
	if err := e.actions.Put(sig, taskOutput); err != nil {
		return false, err
	}
	e.recordOutputAnchor(h, sig)
	return false, nil
}

// upstreamOutputsOf gathers the fingerprint anchors of every task h
// depends on, keyed by "recipe:task" for a stable, order-independent
// fingerprint input.
func (e *Executor) upstreamOutputsOf(h recipe.TaskHandle) map[string]digest.Digest {
	et, ok := e.tg.Task(h)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]digest.Digest, len(et.DependsOn))
	for _, dep := range et.DependsOn {
		if sig, ok := e.outputs[dep]; ok {
			if depTask, ok := e.tg.Task(dep); ok {
				out[fmt.Sprintf("%s:%s", depTask.RecipeName, depTask.TaskName)] = sig
			}
		}
	}
	return out
}

func (e *Executor) recordOutputAnchor(h recipe.TaskHandle, sig digest.Digest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs[h] = sig
}

// provisionSysroot assembles the task's input sysroot from the staged
// outputs of its recipe's build dependencies, per spec.md §4.8.
func (e *Executor) provisionSysroot(spec TaskSpec, workDir string) error {
	r := e.graph.Recipe(spec.RecipeHandle)
	if r == nil || len(r.BuildDepends) == 0 {
		return os.MkdirAll(workDir, 0o755)
	}

	var deps []sysroot.TaskDependency
	for _, depHandle := range r.BuildDepends {
		depRecipe := e.graph.Recipe(depHandle)
		if depRecipe == nil {
			continue
		}
		sig, err := e.anchorSignatureFor(depRecipe.Name, "do_populate_sysroot")
		if err != nil {
			continue
		}
		deps = append(deps, sysroot.TaskDependency{Recipe: depRecipe.Name, Task: "do_populate_sysroot", Signature: sig})
	}
	if len(deps) == 0 {
		return os.MkdirAll(workDir, 0o755)
	}

	sysrootDir := filepath.Join(workDir, "sysroot")
	return e.asm.AssembleSysroot(deps, e.config.ArtifactCache, sysrootDir)
}

// anchorSignatureFor finds the recorded output signature for recipe:task
// among everything executed so far in this run.
func (e *Executor) anchorSignatureFor(recipeName, taskName string) (digest.Digest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for h, sig := range e.outputs {
		if et, ok := e.tg.Task(h); ok && et.RecipeName == recipeName && et.TaskName == taskName {
			return sig, nil
		}
	}
	return "", fmt.Errorf("no recorded signature for %s:%s", recipeName, taskName)
}

// runSpec dispatches spec to the right execution mode. sandboxRoot is the
// directory a sandbox.Backend manages (and binds its own "work"
// subdirectory, hostWorkDir, into); direct mode bypasses the backend
// entirely and operates on hostWorkDir straight away, matching the
// original's "bypasses shell startup" framing for the fast path.
func (e *Executor) runSpec(ctx context.Context, spec TaskSpec, sandboxRoot, hostWorkDir string) (sandbox.Result, error) {
	if spec.TaskName == "do_fetch" && e.fetcher != nil {
		return e.runFetch(ctx, spec, hostWorkDir)
	}
	switch spec.Mode {
	case ModeDirect:
		// Expand the task's own variables first so direct actions land
		// where captureOutputs looks for them, not under the analyzer's
		// fallback defaults.
		analysis := AnalyzeScript(expandVariables(spec.Script, spec.Env))
		if !analysis.IsSimple {
			return e.runShell(ctx, spec, sandboxRoot)
		}
		return executeDirect(analysis, hostWorkDir, remapWorkEnv(spec.Env, hostWorkDir)), nil
	case ModePython:
		return e.runInterpreter(ctx, spec, sandboxRoot, "python3")
	default:
		return e.runShell(ctx, spec, sandboxRoot)
	}
}

// remapWorkEnv rewrites every "/work"-prefixed env value to hostWorkDir,
// matching sandbox.BasicBackend's own remap convention so a direct-mode
// script (which never passes through a Backend) still lands its reads and
// writes in the real per-task work directory.
func remapWorkEnv(env map[string]string, hostWorkDir string) map[string]string {
	remapped := make(map[string]string, len(env))
	for k, v := range env {
		if strings.HasPrefix(v, "/work") {
			v = hostWorkDir + strings.TrimPrefix(v, "/work")
		}
		remapped[k] = v
	}
	return remapped
}

func (e *Executor) runShell(ctx context.Context, spec TaskSpec, sandboxRoot string) (sandbox.Result, error) {
	s := sandbox.NewSpec([]string{spec.Script})
	s.Env = spec.Env
	s.Network = spec.Network
	return e.backend.Execute(ctx, s, sandboxRoot)
}

func (e *Executor) runInterpreter(ctx context.Context, spec TaskSpec, sandboxRoot, interpreter string) (sandbox.Result, error) {
	s := sandbox.NewSpec([]string{interpreter, "-c", spec.Script})
	s.Env = spec.Env
	s.Network = spec.Network
	return e.backend.Execute(ctx, s, sandboxRoot)
}

// runFetch satisfies a do_fetch task through e.fetcher instead of the
// shell/sandbox envelope: SRC_URI's whitespace-separated entries are each
// fetched into DL_DIR, with no sandbox process spawned at all.
func (e *Executor) runFetch(ctx context.Context, spec TaskSpec, hostWorkDir string) (sandbox.Result, error) {
	start := time.Now()

	if err := os.MkdirAll(hostWorkDir, 0o755); err != nil {
		return sandbox.Result{}, bberrors.Wrap(bberrors.CodeFetchError, "creating fetch work dir", err)
	}

	srcURI := strings.TrimSpace(spec.Env["SRC_URI"])
	destDir := resolvePath("${DL_DIR}", hostWorkDir, spec.Env)

	var fetched []string
	for i, uri := range strings.Fields(srcURI) {
		src := fetch.Source{Name: fmt.Sprintf("%s-%d", spec.RecipeName, i), URI: uri}
		path, err := e.fetcher.Fetch(ctx, src, destDir)
		if err != nil {
			return sandbox.Result{
				ExitCode:   1,
				Stderr:     err.Error(),
				DurationMS: time.Since(start).Milliseconds(),
			}, nil
		}
		fetched = append(fetched, path)
	}

	return sandbox.Result{
		ExitCode:   0,
		Stdout:     strings.Join(fetched, "\n"),
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}

// rehydrate relinks every output file of a cached result from CAS into
// hostWorkDir without re-running the task.
func (e *Executor) rehydrate(out cas.TaskOutput, hostWorkDir string) error {
	if err := os.MkdirAll(hostWorkDir, 0o755); err != nil {
		return err
	}
	for relPath, d := range out.OutputFiles {
		dest := filepath.Join(hostWorkDir, relPath)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := e.store.LinkFile(d, dest); err != nil {
			return err
		}
	}
	return nil
}

// stageArtifact materializes a do_populate_sysroot task's output tree
// under the artifact cache in the layout sysroot.Assembler expects
// (<recipe>/<task>-<sig>/sysroot plus a manifest.json), so a downstream
// recipe's provisionSysroot can assemble it straight from disk.
func (e *Executor) stageArtifact(spec TaskSpec, hostWorkDir string, sig digest.Digest) error {
	if spec.TaskName != "do_populate_sysroot" {
		return nil
	}
	src := resolvePath("${SYSROOT_DESTDIR}", hostWorkDir, remapWorkEnv(spec.Env, hostWorkDir))
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	artifactDir := filepath.Join(e.config.ArtifactCache, spec.RecipeName, fmt.Sprintf("%s-%s", spec.TaskName, sig.Encoded()))
	dest := filepath.Join(artifactDir, "sysroot")
	if err := sysroot.NewHardlinkTreeBuilder().CopyHardlinkTree(src, dest); err != nil {
		return err
	}

	manifest, err := sysroot.GenerateManifest(dest, spec.RecipeName, spec.TaskName, sig)
	if err != nil {
		return err
	}
	return manifest.Save(filepath.Join(artifactDir, "manifest.json"))
}

// captureOutputs hashes every declared output path into CAS, returning the
// path→digest map the action cache entry records. A declared output that
// does not exist is skipped rather than failing the task: not every task
// populates every declared output on every run (e.g. an empty do_install).
func (e *Executor) captureOutputs(spec TaskSpec, workDir string) (map[string]digest.Digest, error) {
	outputFiles := make(map[string]digest.Digest)
	env := remapWorkEnv(spec.Env, workDir)
	for _, declared := range spec.Outputs {
		resolved := resolvePath(declared, workDir, env)
		err := filepath.Walk(resolved, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				return nil
			}
			d, putErr := e.store.PutFile(path)
			if putErr != nil {
				return putErr
			}
			rel, relErr := filepath.Rel(workDir, path)
			if relErr != nil {
				rel = path
			}
			outputFiles[rel] = d.Digest
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return outputFiles, nil
}

