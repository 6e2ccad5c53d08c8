package recipe

// Recipe is a single build recipe: its identity, its dependency handles
// once the graph-construction phase has resolved them, the capabilities it
// provides, and its task handles. Dependency lists are mutated only during
// graph construction; afterward a Recipe is read-only.
type Recipe struct {
	Handle Handle

	Name    string
	Version string

	// BuildDepends and RuntimeDepends are populated during the
	// dependency-population phase (see Graph.PopulateDependencies).
	// Order is preserved from the textual DEPENDS/RDEPENDS list;
	// duplicates are rejected on append.
	BuildDepends   []Handle
	RuntimeDepends []Handle

	// Provides lists the capability strings this recipe exports in
	// addition to its own name (PROVIDES). RProvides is the runtime
	// analog (RPROVIDES).
	Provides  []string
	RProvides []string

	Tasks []TaskHandle

	File  string
	Layer string

	// Metadata holds the recipe's resolved variable values, keyed by
	// variable name. Populated by the resolver during extraction.
	Metadata map[string]string
}

// TaskNode is one task belonging to a Recipe: a named unit of work with
// intra-recipe ordering sets and inter-recipe dependencies. Every handle
// referenced by After/Before must belong to the same recipe as the node
// itself (spec invariant enforced by Graph.AddTask/Graph.AddOrdering).
type TaskNode struct {
	Handle TaskHandle
	Recipe Handle
	Name   string

	After  map[TaskHandle]struct{}
	Before map[TaskHandle]struct{}

	// Depends lists inter-recipe task dependencies declared as
	// do_X[depends] = "recipe:do_Y". Entries are resolved lazily: a
	// TaskDependency carries the textual recipe name until both
	// endpoints are known, at which point Resolved is populated.
	Depends []*TaskDependency

	Flags map[string]string
}

// TaskDependency is an inter-recipe edge from a task to a named task of
// another recipe, addressed first by name and resolved to a handle once
// both the owning and target recipe exist in the graph.
type TaskDependency struct {
	RecipeName string
	TaskName   string

	Resolved     bool
	RecipeHandle Handle
	TaskHandle   TaskHandle
}
