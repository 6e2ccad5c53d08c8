// Package classdeps provides the built-in bbclass -> dependency fallback
// table used by the task extractor when a class's own DEPENDS/RDEPENDS
// assignments cannot be statically evaluated (spec.md §4.2's "matched
// against a fixed built-in table when parsing cannot evaluate a guarded
// assignment").
package classdeps

import (
	"context"
	_ "embed"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

//go:embed data/classdeps-v1.yaml
var classDepsData []byte

// ClassEntry is one class's contribution to a recipe's build/runtime
// dependency lists.
type ClassEntry struct {
	Build                []string `yaml:"build"`
	Runtime              []string `yaml:"runtime"`
	RequiresDistroFeature string  `yaml:"requires_distro_feature"`
}

type table struct {
	Classes map[string]ClassEntry `yaml:"classes"`
}

var (
	once        sync.Once
	cachedTable *table
	cachedErr   error
)

func load(_ context.Context) (*table, error) {
	once.Do(func() {
		var t table
		if err := yaml.Unmarshal(classDepsData, &t); err != nil {
			cachedErr = err
			return
		}
		cachedTable = &t
	})
	if cachedErr != nil {
		return nil, cachedErr
	}
	if cachedTable == nil {
		return nil, bberrors.New(bberrors.CodeResolveError, "class dependency table not initialized")
	}
	return cachedTable, nil
}

// BuildDeps returns the build-time dependencies class adds, consulting
// distroFeatures (the whitespace-split value of DISTRO_FEATURES) for
// classes whose dependency is conditional on a feature (e.g. "systemd").
func BuildDeps(ctx context.Context, class, distroFeatures string) []string {
	t, err := load(ctx)
	if err != nil {
		return nil
	}
	entry, ok := t.Classes[class]
	if !ok {
		return nil
	}
	if entry.RequiresDistroFeature != "" && !hasFeature(distroFeatures, entry.RequiresDistroFeature) {
		return nil
	}
	return entry.Build
}

// RuntimeDeps returns the runtime dependencies class adds, under the same
// distro-feature gating as BuildDeps.
func RuntimeDeps(ctx context.Context, class, distroFeatures string) []string {
	t, err := load(ctx)
	if err != nil {
		return nil
	}
	entry, ok := t.Classes[class]
	if !ok {
		return nil
	}
	if entry.RequiresDistroFeature != "" && !hasFeature(distroFeatures, entry.RequiresDistroFeature) {
		return nil
	}
	return entry.Runtime
}

// Known reports whether class appears in the built-in table at all
// (including classes that are known to add no dependencies).
func Known(ctx context.Context, class string) bool {
	t, err := load(ctx)
	if err != nil {
		return false
	}
	_, ok := t.Classes[class]
	return ok
}

func hasFeature(distroFeatures, feature string) bool {
	for _, f := range strings.Fields(distroFeatures) {
		if f == feature {
			return true
		}
	}
	return false
}
