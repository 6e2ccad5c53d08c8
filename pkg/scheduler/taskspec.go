package scheduler

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bbforge/bbforge/pkg/recipe"
	"github.com/bbforge/bbforge/pkg/sandbox"
	"github.com/bbforge/bbforge/pkg/taskgraph"
)

// Mode selects how a TaskSpec's script is run.
type Mode int

const (
	ModeShell Mode = iota
	ModeDirect
	ModePython
)

// TaskSpec is everything the executor needs to run one task: the resolved
// environment, the script body, the execution mode, and the declared
// output paths to capture into CAS on success.
type TaskSpec struct {
	TaskHandle   recipe.TaskHandle
	RecipeHandle recipe.Handle
	RecipeName   string
	TaskName     string

	Mode    Mode
	Script  string
	Env     map[string]string
	Outputs []string

	Fakeroot bool
	Network  sandbox.NetworkPolicy
}

// fetchTaskNames names every task that is granted network access, matching
// spec.md's fetch-class network carve-out.
var fetchTaskNames = map[string]bool{
	"do_fetch":   true,
	"do_unpack":  true,
	"do_fetchall": true,
}

// buildEnv resolves the minimum environment spec.md requires every task
// script to receive, layering the recipe's own metadata values on top.
func buildEnv(r *recipe.Recipe, taskName string) map[string]string {
	meta := r.Metadata
	get := func(key, fallback string) string {
		if v, ok := meta[key]; ok && v != "" {
			return v
		}
		return fallback
	}

	pn := r.Name
	pv := r.Version
	pr := get("PR", "r0")
	workdir := get("WORKDIR", filepath.Join("/work", pn, pv))
	s := get("S", filepath.Join(workdir, pn+"-"+pv))
	b := get("B", s)
	d := get("D", filepath.Join(workdir, "image"))
	tmpdir := get("TMPDIR", "/tmp")
	dlDir := get("DL_DIR", filepath.Join(workdir, "downloads"))
	machine := get("MACHINE", "qemux86-64")
	distro := get("DISTRO", "bbforge")

	env := map[string]string{
		"PN":      pn,
		"PV":      pv,
		"PR":      pr,
		"WORKDIR": workdir,
		"S":       s,
		"B":       b,
		"D":       d,
		"TMPDIR":  tmpdir,
		"DL_DIR":  dlDir,
		"MACHINE": machine,
		"DISTRO":  distro,

		"base_bindir":  get("base_bindir", "/bin"),
		"base_sbindir": get("base_sbindir", "/sbin"),
		"bindir":       get("bindir", "/usr/bin"),
		"sbindir":      get("sbindir", "/usr/sbin"),
		"libdir":       get("libdir", "/usr/lib"),
		"sysconfdir":   get("sysconfdir", "/etc"),
		"includedir":   get("includedir", "/usr/include"),
		"datadir":      get("datadir", "/usr/share"),

		"TARGET_SYS": get("TARGET_SYS", machine+"-bbforge-linux"),
		"BUILD_SYS":  get("BUILD_SYS", "x86_64-linux"),
		"HOST_SYS":   get("HOST_SYS", get("TARGET_SYS", machine+"-bbforge-linux")),

		"SYSROOT_DESTDIR": get("SYSROOT_DESTDIR", filepath.Join(workdir, "sysroot-destdir")),
	}
	for k, v := range meta {
		if strings.HasPrefix(k, "__") {
			continue
		}
		if _, isCore := env[k]; !isCore {
			env[k] = v
		}
	}
	return env
}

// BuildTaskSpec assembles a TaskSpec for tn, resolving its script body and
// mode from the flags extract.PopulateRecipe attached during graph
// construction.
func BuildTaskSpec(g *recipe.Graph, tg *taskgraph.Graph, taskHandle recipe.TaskHandle) (TaskSpec, error) {
	tn := g.Task(taskHandle)
	if tn == nil {
		return TaskSpec{}, fmt.Errorf("scheduler: unknown task handle %d", taskHandle)
	}
	r := g.Recipe(tn.Recipe)
	if r == nil {
		return TaskSpec{}, fmt.Errorf("scheduler: task %d has no owning recipe", taskHandle)
	}

	body := tn.Flags["__body"]
	mode := modeFor(tn, body)

	et, ok := tg.Task(taskHandle)
	var outputs []string
	if ok {
		outputs = inferOutputs(tn.Name, et)
	}

	network := sandbox.NetworkNone
	if fetchTaskNames[tn.Name] {
		network = sandbox.NetworkFull
	}

	return TaskSpec{
		TaskHandle:   taskHandle,
		RecipeHandle: tn.Recipe,
		RecipeName:   r.Name,
		TaskName:     tn.Name,
		Mode:         mode,
		Script:       body,
		Env:          buildEnv(r, tn.Name),
		Outputs:      outputs,
		Fakeroot:     tn.Flags["__kind"] == "fakeroot",
		Network:      network,
	}, nil
}

func modeFor(tn *recipe.TaskNode, body string) Mode {
	if tn.Flags["__kind"] == "python" {
		return ModePython
	}
	if strings.TrimSpace(body) == "" {
		return ModeShell
	}
	analysis := AnalyzeScript(body)
	if analysis.IsSimple {
		return ModeDirect
	}
	return ModeShell
}

// inferOutputs guesses the declared output paths of a task by name: the
// sysroot-populating and installation tasks are the only ones whose output
// directory the rest of the graph actually depends on, so only those get a
// concrete, predictable output path worth tracking in the action cache.
func inferOutputs(taskName string, et *taskgraph.ExecutableTask) []string {
	switch {
	case strings.Contains(taskName, "install"):
		return []string{"${D}"}
	case strings.Contains(taskName, "populate_sysroot"):
		return []string{"${SYSROOT_DESTDIR}"}
	default:
		return nil
	}
}

// sortedEnvKeys returns env's keys sorted, for deterministic fingerprinting
// and environment construction.
func sortedEnvKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
