// Package taskgraph converts a resolved recipe.Graph into a concrete task
// execution DAG: one ExecutableTask per recipe task, edges resolved across
// intra-recipe ordering, explicit task-to-task dependencies, and recipe-level
// DEPENDS (via do_populate_sysroot on the depended-on recipe).
package taskgraph

import (
	"fmt"

	"github.com/bbforge/bbforge/pkg/bberrors"
	"github.com/bbforge/bbforge/pkg/recipe"
)

// ExecutableTask is a concrete task ready for scheduling.
type ExecutableTask struct {
	TaskHandle   recipe.TaskHandle
	RecipeHandle recipe.Handle
	TaskName     string
	RecipeName   string
	DependsOn    []recipe.TaskHandle
	Dependents   []recipe.TaskHandle
}

// Graph is a complete task execution graph.
type Graph struct {
	Tasks          map[recipe.TaskHandle]*ExecutableTask
	ExecutionOrder []recipe.TaskHandle
	RootTasks      []recipe.TaskHandle
	LeafTasks      []recipe.TaskHandle
}

// Task looks up a task by handle.
func (g *Graph) Task(h recipe.TaskHandle) (*ExecutableTask, bool) {
	t, ok := g.Tasks[h]
	return t, ok
}

// ReadyTasks returns every task whose dependencies are all in completed and
// which is not itself already completed.
func (g *Graph) ReadyTasks(completed map[recipe.TaskHandle]struct{}) []recipe.TaskHandle {
	var ready []recipe.TaskHandle
	for id, task := range g.Tasks {
		if _, done := completed[id]; done {
			continue
		}
		allDone := true
		for _, dep := range task.DependsOn {
			if _, ok := completed[dep]; !ok {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}
	return ready
}

// RecipeTasks returns every task belonging to recipeHandle.
func (g *Graph) RecipeTasks(recipeHandle recipe.Handle) []*ExecutableTask {
	var out []*ExecutableTask
	for _, t := range g.Tasks {
		if t.RecipeHandle == recipeHandle {
			out = append(out, t)
		}
	}
	return out
}

// Stats summarizes graph shape.
type Stats struct {
	TotalTasks int
	RootTasks  int
	LeafTasks  int
	MaxDepth   int
}

// Stats computes summary statistics, including the longest dependency chain.
func (g *Graph) Stats() Stats {
	return Stats{
		TotalTasks: len(g.Tasks),
		RootTasks:  len(g.RootTasks),
		LeafTasks:  len(g.LeafTasks),
		MaxDepth:   g.computeMaxDepth(),
	}
}

func (g *Graph) computeMaxDepth() int {
	depths := make(map[recipe.TaskHandle]int, len(g.Tasks))
	maxDepth := 0
	for _, id := range g.ExecutionOrder {
		task := g.Tasks[id]
		maxDep := 0
		for _, dep := range task.DependsOn {
			if d, ok := depths[dep]; ok && d > maxDep {
				maxDep = d
			}
		}
		depths[id] = maxDep + 1
		if depths[id] > maxDepth {
			maxDepth = depths[id]
		}
	}
	return maxDepth
}

// Builder constructs task graphs from a resolved recipe.Graph.
type Builder struct {
	recipes *recipe.Graph
}

// NewBuilder wraps recipes for task-graph construction.
func NewBuilder(recipes *recipe.Graph) *Builder {
	return &Builder{recipes: recipes}
}

// BuildFullGraph builds the complete task graph over every recipe in the
// underlying recipe graph.
func (b *Builder) BuildFullGraph() (*Graph, error) {
	tasks := make(map[recipe.TaskHandle]*ExecutableTask)

	for _, rh := range b.recipes.AllHandles() {
		r := b.recipes.Recipe(rh)
		if r == nil {
			continue
		}
		for _, th := range b.recipes.TasksOf(rh) {
			tn := b.recipes.Task(th)
			if tn == nil {
				continue
			}
			tasks[th] = &ExecutableTask{
				TaskHandle:   th,
				RecipeHandle: rh,
				TaskName:     tn.Name,
				RecipeName:   r.Name,
			}
		}
	}

	deps := make(map[recipe.TaskHandle][]recipe.TaskHandle, len(tasks))
	for _, rh := range b.recipes.AllHandles() {
		r := b.recipes.Recipe(rh)
		if r == nil {
			continue
		}
		for _, th := range b.recipes.TasksOf(rh) {
			tn := b.recipes.Task(th)
			if tn == nil {
				continue
			}
			var d []recipe.TaskHandle

			for after := range tn.After {
				d = append(d, after)
			}

			for _, td := range tn.Depends {
				if td.Resolved {
					d = append(d, td.TaskHandle)
					continue
				}
				if depRecipe, ok := b.recipes.ByName(td.RecipeName); ok {
					if resolved := findTaskByName(b.recipes, depRecipe, td.TaskName); resolved != recipe.InvalidTaskHandle {
						d = append(d, resolved)
					}
				}
			}

			if needsSysroot(tn.Name) {
				for _, depRecipeHandle := range r.BuildDepends {
					d = append(d, consumingTasks(b.recipes, depRecipeHandle)...)
				}
			}

			deps[th] = d
		}
	}

	for id, d := range deps {
		task, ok := tasks[id]
		if !ok {
			continue
		}
		task.DependsOn = d
		for _, depID := range d {
			if depTask, ok := tasks[depID]; ok {
				depTask.Dependents = append(depTask.Dependents, id)
			}
		}
	}

	order, err := topologicalSort(tasks)
	if err != nil {
		return nil, err
	}

	var roots, leaves []recipe.TaskHandle
	for id, t := range tasks {
		if len(t.DependsOn) == 0 {
			roots = append(roots, id)
		}
		if len(t.Dependents) == 0 {
			leaves = append(leaves, id)
		}
	}

	return &Graph{Tasks: tasks, ExecutionOrder: order, RootTasks: roots, LeafTasks: leaves}, nil
}

// BuildForTarget resolves recipeName/taskName to handles and delegates to
// BuildForTask.
func (b *Builder) BuildForTarget(recipeName, taskName string) (*Graph, error) {
	rh, ok := b.recipes.ByName(recipeName)
	if !ok {
		return nil, bberrors.New(bberrors.CodeResolveError, fmt.Sprintf("recipe not found: %s", recipeName))
	}
	th := findTaskByName(b.recipes, rh, taskName)
	if th == recipe.InvalidTaskHandle {
		return nil, bberrors.New(bberrors.CodeResolveError, fmt.Sprintf("task not found: %s:%s", recipeName, taskName))
	}
	return b.BuildForTask(th)
}

// BuildForTask builds the minimal graph needed to execute targetTask: itself
// and every transitive dependency, in execution order.
func (b *Builder) BuildForTask(targetTask recipe.TaskHandle) (*Graph, error) {
	required := make(map[recipe.TaskHandle]struct{})
	b.collectDependencies(targetTask, required)

	full, err := b.BuildFullGraph()
	if err != nil {
		return nil, err
	}

	tasks := make(map[recipe.TaskHandle]*ExecutableTask, len(required))
	for id, t := range full.Tasks {
		if _, ok := required[id]; ok {
			tasks[id] = t
		}
	}

	var order []recipe.TaskHandle
	for _, id := range full.ExecutionOrder {
		if _, ok := required[id]; ok {
			order = append(order, id)
		}
	}

	var roots []recipe.TaskHandle
	for id, t := range tasks {
		allOutside := true
		for _, dep := range t.DependsOn {
			if _, ok := required[dep]; ok {
				allOutside = false
				break
			}
		}
		if allOutside {
			roots = append(roots, id)
		}
	}

	return &Graph{
		Tasks:          tasks,
		ExecutionOrder: order,
		RootTasks:      roots,
		LeafTasks:      []recipe.TaskHandle{targetTask},
	}, nil
}

func (b *Builder) collectDependencies(taskHandle recipe.TaskHandle, collected map[recipe.TaskHandle]struct{}) {
	if _, ok := collected[taskHandle]; ok {
		return
	}
	collected[taskHandle] = struct{}{}

	tn := b.recipes.Task(taskHandle)
	if tn == nil {
		return
	}

	for after := range tn.After {
		b.collectDependencies(after, collected)
	}

	for _, td := range tn.Depends {
		if td.Resolved {
			b.collectDependencies(td.TaskHandle, collected)
			continue
		}
		if depRecipe, ok := b.recipes.ByName(td.RecipeName); ok {
			if resolved := findTaskByName(b.recipes, depRecipe, td.TaskName); resolved != recipe.InvalidTaskHandle {
				b.collectDependencies(resolved, collected)
			}
		}
	}

	r := b.recipes.Recipe(tn.Recipe)
	if r == nil {
		return
	}
	for _, depRecipeHandle := range r.BuildDepends {
		for _, consuming := range consumingTasks(b.recipes, depRecipeHandle) {
			b.collectDependencies(consuming, collected)
		}
	}
}

// consumingTasks returns the task(s) of depRecipeHandle that a dependent
// recipe's build should wait on: do_populate_sysroot if the recipe defines
// one, else do_install, else every task of the dependency recipe (the
// fallback chain task_graph.rs uses when a dependency has no sysroot or
// install stage to anchor on).
func consumingTasks(g *recipe.Graph, depRecipeHandle recipe.Handle) []recipe.TaskHandle {
	if sysroot := findTaskByName(g, depRecipeHandle, "do_populate_sysroot"); sysroot != recipe.InvalidTaskHandle {
		return []recipe.TaskHandle{sysroot}
	}
	if install := findTaskByName(g, depRecipeHandle, "do_install"); install != recipe.InvalidTaskHandle {
		return []recipe.TaskHandle{install}
	}
	return g.TasksOf(depRecipeHandle)
}

// needsSysroot reports whether a task name should depend on a build
// dependency's populated sysroot: configure/compile/install stages consume
// headers and libraries staged there, fetch/patch stages do not.
func needsSysroot(taskName string) bool {
	return contains(taskName, "compile") || contains(taskName, "install") || contains(taskName, "configure")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func findTaskByName(g *recipe.Graph, recipeHandle recipe.Handle, taskName string) recipe.TaskHandle {
	for _, th := range g.TasksOf(recipeHandle) {
		tn := g.Task(th)
		if tn != nil && tn.Name == taskName {
			return th
		}
	}
	return recipe.InvalidTaskHandle
}

// topologicalSort runs Kahn's algorithm over the task set, matching
// task_graph.rs: counts in-degree restricted to dependency edges that land
// within the given task set, drains zero-in-degree tasks in FIFO order, and
// reports a circular-dependency error if any task is left unreachable.
func topologicalSort(tasks map[recipe.TaskHandle]*ExecutableTask) ([]recipe.TaskHandle, error) {
	inDegree := make(map[recipe.TaskHandle]int, len(tasks))
	for id, t := range tasks {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
		for _, dep := range t.DependsOn {
			if _, ok := tasks[dep]; ok {
				inDegree[id]++
			}
		}
	}

	var queue []recipe.TaskHandle
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sortHandles(queue)

	var result []recipe.TaskHandle
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, id)

		task := tasks[id]
		var freed []recipe.TaskHandle
		for _, dependent := range task.Dependents {
			if _, ok := inDegree[dependent]; !ok {
				continue
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		sortHandles(freed)
		queue = append(queue, freed...)
	}

	if len(result) != len(tasks) {
		return nil, bberrors.New(bberrors.CodeCycle, "circular dependency detected in task graph")
	}
	return result, nil
}

func sortHandles(hs []recipe.TaskHandle) {
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && hs[j-1] > hs[j]; j-- {
			hs[j-1], hs[j] = hs[j], hs[j-1]
		}
	}
}
