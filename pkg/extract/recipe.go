package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/bbforge/bbforge/pkg/classdeps"
	"github.com/bbforge/bbforge/pkg/recipe"
	"github.com/bbforge/bbforge/pkg/resolver"
)

// Options configures how a Document is lowered into a recipe.Graph entry.
type Options struct {
	Active         resolver.ActiveOverrides
	DistroFeatures string
	Layer          string
	OnWarn         func(error)
}

// Recipe is the product of lowering one Document into graph-ready data:
// the resolved variable snapshot, and the raw depends lists that still
// need cross-recipe resolution once every recipe in the batch is loaded.
type Recipe struct {
	Handle      recipe.Handle
	Name        string
	Version     string
	BuildDeps   []string
	RuntimeDeps []string
	Provides    []string
	RProvides   []string
	Tasks       map[string]recipe.TaskHandle
}

var addtaskRe = regexp.MustCompile(`^addtask\s+(\S+)(.*)$`)

// PopulateRecipe resolves doc's ledger, merges class-dependency
// contributions from its inherited classes, registers it (and its tasks)
// in graph, and returns the raw dependency-name lists for a later
// PopulateDependencies pass once every recipe has been added.
func PopulateRecipe(ctx context.Context, graph *recipe.Graph, recipeName string, doc *Document, opts Options) *Recipe {
	values := doc.Ledger.ResolveAll(opts.Active)

	version := values["PV"]
	r := graph.AddRecipe(recipeName, version, doc.SourceFile, opts.Layer)

	buildDeps := splitDependencyList(values["DEPENDS"])
	runtimeDeps := splitDependencyList(values["RDEPENDS"])
	provides := splitList(values["PROVIDES"])
	rprovides := splitList(values["RPROVIDES"])

	for _, class := range doc.Inherits {
		buildDeps = append(buildDeps, classdeps.BuildDeps(ctx, class, opts.DistroFeatures)...)
		runtimeDeps = append(runtimeDeps, classdeps.RuntimeDeps(ctx, class, opts.DistroFeatures)...)
	}

	graph.AddProvides(r.Handle, provides, false)
	graph.AddProvides(r.Handle, rprovides, true)
	r.Metadata = values

	tasks := addTasks(graph, r.Handle, doc.RawContent)

	return &Recipe{
		Handle:      r.Handle,
		Name:        recipeName,
		Version:     version,
		BuildDeps:   dedupe(buildDeps),
		RuntimeDeps: dedupe(runtimeDeps),
		Provides:    provides,
		RProvides:   rprovides,
		Tasks:       tasks,
	}
}

// addTasks scans raw for `addtask` statements, registers every named task,
// applies after/before ordering, and stores extracted shell/python bodies.
// [flag] assignments recorded in the ledger are not attached as task flags.
func addTasks(graph *recipe.Graph, h recipe.Handle, raw string) map[string]recipe.TaskHandle {
	tasks := make(map[string]recipe.TaskHandle)
	if raw == "" {
		return tasks
	}

	type constraint struct {
		task         recipe.TaskHandle
		afterNames   []string
		beforeNames  []string
	}
	var constraints []constraint

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		m := addtaskRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := normalizeAddtaskName(m[1])
		after, before := parseAddtaskClauses(m[2])

		tn, err := graph.AddTask(h, "do_"+name)
		if err != nil {
			continue
		}
		tasks[name] = tn.Handle
		constraints = append(constraints, constraint{task: tn.Handle, afterNames: after, beforeNames: before})
	}

	for _, c := range constraints {
		for _, afterName := range c.afterNames {
			if afterHandle, ok := tasks[normalizeAddtaskName(afterName)]; ok {
				graph.AddOrdering(afterHandle, c.task)
			}
		}
		for _, beforeName := range c.beforeNames {
			if beforeHandle, ok := tasks[normalizeAddtaskName(beforeName)]; ok {
				graph.AddOrdering(c.task, beforeHandle)
			}
		}
	}

	implTasks, _ := ExtractImplementations(raw)
	for name, handle := range tasks {
		if impl, ok := implTasks[name]; ok {
			if tn := graph.Task(handle); tn != nil {
				tn.Flags["__body"] = impl.Code
				tn.Flags["__kind"] = implKindFlag(impl.Kind)
			}
		}
	}

	return tasks
}

// implKindFlag maps a TaskImplementation's Kind to the task-flag string the
// scheduler reads to pick an execution mode.
func implKindFlag(kind ImplKind) string {
	switch kind {
	case ImplPython:
		return "python"
	case ImplFakerootShell:
		return "fakeroot"
	default:
		return "shell"
	}
}

func normalizeAddtaskName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "do_")
}

// parseAddtaskClauses splits the remainder of an `addtask NAME ...` line
// into its `after X Y` and `before Z W` name lists.
func parseAddtaskClauses(rest string) (after, before []string) {
	fields := strings.Fields(rest)
	mode := ""
	for _, f := range fields {
		switch f {
		case "after":
			mode = "after"
		case "before":
			mode = "before"
		default:
			switch mode {
			case "after":
				after = append(after, f)
			case "before":
				before = append(before, f)
			}
		}
	}
	return after, before
}

// splitDependencyList splits a space-separated DEPENDS/RDEPENDS value,
// dropping RPM-style version-constraint tokens like "(>=" and "2.30)" and
// stripping an attached "pkg(>=1.0)" constraint down to the bare name.
func splitDependencyList(value string) []string {
	var out []string
	for _, dep := range strings.Fields(value) {
		if strings.HasPrefix(dep, "(") || strings.HasSuffix(dep, ")") {
			continue
		}
		if idx := strings.IndexByte(dep, '('); idx >= 0 {
			dep = strings.TrimSpace(dep[:idx])
		}
		if dep != "" {
			out = append(out, dep)
		}
	}
	return out
}

func splitList(value string) []string {
	return strings.Fields(value)
}

func dedupe(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
