package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bbforge/bbforge/pkg/config"
)

func writeRecipe(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.CacheRoot = t.TempDir()
	cfg.SandboxBackend = "basic"
	cfg.PipelineCPUParallelism = 2

	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

const zlibRecipe = `
DEPENDS = ""
addtask do_install after do_compile
addtask do_compile after do_configure
addtask do_configure

do_configure() {
    mkdir -p ${B}
    touch ${B}/.configured
}

do_compile() {
    touch ${B}/.compiled
}

do_install() {
    mkdir -p ${D}
    touch ${D}/zlib.so
}
`

func TestOrchestratorRunBuildsFullGraph(t *testing.T) {
	layer := t.TempDir()
	writeRecipe(t, layer, "recipes-core/zlib_1.3.bb", zlibRecipe)

	o := newTestOrchestrator(t)

	result, err := o.Run(context.Background(), Request{
		Layers: map[string][]string{"meta": {layer}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RecipesDiscovered != 1 {
		t.Fatalf("expected 1 recipe discovered, got %d", result.RecipesDiscovered)
	}
	if result.TasksInGraph != 3 {
		t.Fatalf("expected 3 tasks in graph, got %d", result.TasksInGraph)
	}
	if result.Failed != 0 {
		t.Fatalf("expected no task failures, got %d", result.Failed)
	}
	if result.Succeeded != 3 {
		t.Fatalf("expected all 3 tasks to succeed, got %d", result.Succeeded)
	}
}

func TestOrchestratorRunScopedToTarget(t *testing.T) {
	layer := t.TempDir()
	writeRecipe(t, layer, "recipes-core/zlib_1.3.bb", zlibRecipe)

	o := newTestOrchestrator(t)

	result, err := o.Run(context.Background(), Request{
		Layers:  map[string][]string{"meta": {layer}},
		Targets: []Target{{Recipe: "zlib", Task: "do_configure"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TasksInGraph != 1 {
		t.Fatalf("expected only do_configure in the scoped graph, got %d tasks", result.TasksInGraph)
	}
	if result.Succeeded != 1 {
		t.Fatalf("expected do_configure to succeed, got succeeded=%d failed=%d", result.Succeeded, result.Failed)
	}
}

func TestOrchestratorRunSecondTimeHitsActionCache(t *testing.T) {
	layer := t.TempDir()
	writeRecipe(t, layer, "recipes-core/zlib_1.3.bb", zlibRecipe)

	cfg := config.DefaultConfig()
	cfg.CacheRoot = t.TempDir()
	cfg.SandboxBackend = "basic"
	cfg.PipelineCPUParallelism = 2

	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := Request{Layers: map[string][]string{"meta": {layer}}}
	if _, err := o.Run(context.Background(), req); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Re-discovering into the same graph would double-register the
	// recipe, so the second run uses a fresh Orchestrator sharing the
	// same on-disk caches instead, mirroring how a second CLI invocation
	// would reuse the cache root across process restarts.
	o2, err := New(cfg)
	if err != nil {
		t.Fatalf("New (second): %v", err)
	}
	result, err := o2.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result.CacheHits != 3 {
		t.Fatalf("expected all 3 tasks to hit the action cache on rerun, got %d", result.CacheHits)
	}
}

func TestOrchestratorRunUnknownTargetErrors(t *testing.T) {
	layer := t.TempDir()
	writeRecipe(t, layer, "recipes-core/zlib_1.3.bb", zlibRecipe)

	o := newTestOrchestrator(t)

	_, err := o.Run(context.Background(), Request{
		Layers:  map[string][]string{"meta": {layer}},
		Targets: []Target{{Recipe: "does-not-exist", Task: "do_install"}},
	})
	if err == nil {
		t.Fatalf("expected an error for an unknown target recipe")
	}
}
