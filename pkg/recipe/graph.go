package recipe

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/distribution/reference"
)

// Graph is the arena of recipes and tasks plus the indices used to resolve
// names and capabilities to handles. It is safe for concurrent reads once
// construction (AddRecipe/AddTask/PopulateDependencies) has completed; the
// mutex exists to protect the construction phase itself, which in the
// parallel pipeline may run several parse-stage goroutines ahead of the
// sequential extract/graph stage.
type Graph struct {
	mu sync.RWMutex

	recipes      map[Handle]*Recipe
	tasks        map[TaskHandle]*TaskNode
	nameIndex    map[string]Handle
	providerIdx  map[string][]Handle
	recipeTasks  map[Handle][]TaskHandle
	nextRecipe   Handle
	nextTask     TaskHandle
}

// NewGraph returns an empty Graph ready for recipe/task insertion.
func NewGraph() *Graph {
	return &Graph{
		recipes:     make(map[Handle]*Recipe),
		tasks:       make(map[TaskHandle]*TaskNode),
		nameIndex:   make(map[string]Handle),
		providerIdx: make(map[string][]Handle),
		recipeTasks: make(map[Handle][]TaskHandle),
	}
}

// AddRecipe allocates a new handle for name and registers it in the name
// and provider indices. Recipe names need not strictly satisfy an image
// reference grammar, but when they do we validate with
// distribution/reference to catch obviously malformed names early;
// failure to validate is logged and non-fatal, since BitBake recipe names
// routinely contain characters a container-image name grammar forbids.
func (g *Graph) AddRecipe(name, version, file, layer string) *Recipe {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := reference.ParseNormalizedNamed(name); err != nil {
		slog.Debug("recipe name does not satisfy reference grammar", "name", name, "err", err)
	}

	h := g.nextRecipe
	g.nextRecipe++

	r := &Recipe{
		Handle:   h,
		Name:     name,
		Version:  version,
		File:     file,
		Layer:    layer,
		Metadata: make(map[string]string),
	}
	g.recipes[h] = r
	g.nameIndex[name] = h
	g.providerIdx[name] = append(g.providerIdx[name], h)
	return r
}

// AddProvides registers additional capability strings (PROVIDES/RPROVIDES)
// for an already-inserted recipe.
func (g *Graph) AddProvides(h Handle, provides []string, runtime bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.recipes[h]
	if !ok {
		return
	}
	for _, p := range provides {
		g.providerIdx[p] = append(g.providerIdx[p], h)
	}
	if runtime {
		r.RProvides = append(r.RProvides, provides...)
	} else {
		r.Provides = append(r.Provides, provides...)
	}
}

// AddTask allocates a handle for a task belonging to recipe h.
func (g *Graph) AddTask(h Handle, name string) (*TaskNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.recipes[h]; !ok {
		return nil, fmt.Errorf("recipe handle %d does not exist", h)
	}

	th := g.nextTask
	g.nextTask++

	t := &TaskNode{
		Handle: th,
		Recipe: h,
		Name:   name,
		After:  make(map[TaskHandle]struct{}),
		Before: make(map[TaskHandle]struct{}),
		Flags:  make(map[string]string),
	}
	g.tasks[th] = t
	g.recipeTasks[h] = append(g.recipeTasks[h], th)
	g.recipes[h].Tasks = append(g.recipes[h].Tasks, th)
	return t, nil
}

// AddOrdering records that the first task (after) runs before the second
// (before): before joins after's Before set and after joins before's After
// set. Both handles must belong to the same recipe;
// violating that invariant is a programming error in the caller (the
// extractor), so it panics rather than returning an error.
func (g *Graph) AddOrdering(after, before TaskHandle) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ta, okA := g.tasks[after]
	tb, okB := g.tasks[before]
	if !okA || !okB {
		return
	}
	if ta.Recipe != tb.Recipe {
		panic(fmt.Sprintf("ordering between tasks of different recipes: %d, %d", after, before))
	}
	ta.Before[before] = struct{}{}
	tb.After[after] = struct{}{}
}

// Recipe returns the recipe for h, or nil if unknown.
func (g *Graph) Recipe(h Handle) *Recipe {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.recipes[h]
}

// Task returns the task for h, or nil if unknown.
func (g *Graph) Task(h TaskHandle) *TaskNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tasks[h]
}

// TasksOf returns the task handles belonging to recipe h, in insertion order.
func (g *Graph) TasksOf(h Handle) []TaskHandle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]TaskHandle, len(g.recipeTasks[h]))
	copy(out, g.recipeTasks[h])
	return out
}

// ByName returns the recipe handle registered under name, if any.
func (g *Graph) ByName(name string) (Handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.nameIndex[name]
	return h, ok
}

// Len returns the number of recipes in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.recipes)
}

// TaskCount returns the number of tasks in the graph.
func (g *Graph) TaskCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// AllHandles returns every recipe handle, unordered.
func (g *Graph) AllHandles() []Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Handle, 0, len(g.recipes))
	for h := range g.recipes {
		out = append(out, h)
	}
	return out
}

// UnknownProviderError is returned by Resolve when a capability string
// matches no recipe. It carries a best-effort suggestion computed via
// Levenshtein distance over all known recipe and provider names, useful
// for surfacing "did you mean" diagnostics without the caller having to
// re-scan the index.
type UnknownProviderError struct {
	Capability string
	Suggestion string
}

func (e *UnknownProviderError) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("unknown provider: %q", e.Capability)
	}
	return fmt.Sprintf("unknown provider: %q (did you mean %q?)", e.Capability, e.Suggestion)
}

// Resolve implements spec.md §4.4's provider-resolution contract: a
// recipe whose name equals capability if one exists, else the first
// recipe registered under capability in the provider index (parse-order
// tie-break, see DESIGN.md Open Question #2), else an UnknownProviderError.
func (g *Graph) Resolve(capability string) (Handle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if h, ok := g.nameIndex[capability]; ok {
		return h, nil
	}
	if handles, ok := g.providerIdx[capability]; ok && len(handles) > 0 {
		return handles[0], nil
	}
	return InvalidHandle, &UnknownProviderError{
		Capability: capability,
		Suggestion: g.closestName(capability),
	}
}

// closestName returns the known name/provider string with the smallest
// Levenshtein edit distance to target, or "" if the index is empty or the
// best candidate is implausibly far (distance > len(target)/2+1).
func (g *Graph) closestName(target string) string {
	best := ""
	bestDist := -1
	for name := range g.providerIdx {
		d := levenshtein.ComputeDistance(target, name)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = name
		}
	}
	if bestDist == -1 || bestDist > (len(target)/2+1) {
		return ""
	}
	return best
}

// PopulateDependencies resolves each recipe's textual build/runtime
// dependency lists through the provider index and attaches the resulting
// handles to the recipe. This is a second phase executed only after every
// recipe in the batch has been added to the graph, per spec.md §4.4's
// "second phase" requirement. Unknown providers are reported via onWarn
// (may be nil) and the corresponding edge is simply omitted, per spec.md
// §7's `unknown-provider` recovery policy.
func (g *Graph) PopulateDependencies(h Handle, buildDeps, runtimeDeps []string, onWarn func(error)) {
	resolveAll := func(names []string) []Handle {
		seen := make(map[Handle]struct{}, len(names))
		out := make([]Handle, 0, len(names))
		for _, n := range names {
			rh, err := g.Resolve(n)
			if err != nil {
				if onWarn != nil {
					onWarn(err)
				}
				continue
			}
			if _, dup := seen[rh]; dup {
				continue
			}
			seen[rh] = struct{}{}
			out = append(out, rh)
		}
		return out
	}

	bd := resolveAll(buildDeps)
	rd := resolveAll(runtimeDeps)

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.recipes[h]; ok {
		r.BuildDepends = bd
		r.RuntimeDepends = rd
	}
}
