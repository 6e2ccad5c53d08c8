// Package recipe implements the recipe graph: an arena of recipes and
// tasks addressed by dense integer handles, a provider index for
// capability-based dependency resolution, and topological operations over
// the build-dependency edges.
package recipe

// Handle identifies a Recipe within a Graph's arena. Handles are
// monotonically allocated starting at 0 and are never reused, even if the
// recipe they name is later considered stale by a caller; the graph never
// deletes recipes mid-build.
type Handle int

// TaskHandle identifies a TaskNode within a Graph's arena.
type TaskHandle int

// InvalidHandle and InvalidTaskHandle are returned by lookups that find
// nothing; zero is a valid allocated handle, so the invalid sentinel must
// be negative.
const (
	InvalidHandle     Handle     = -1
	InvalidTaskHandle TaskHandle = -1
)
