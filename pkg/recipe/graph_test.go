package recipe

import "testing"

func TestResolveByName(t *testing.T) {
	g := NewGraph()
	g.AddRecipe("zlib", "1.3", "zlib.bb", "meta")

	h, err := g.Resolve("zlib")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Recipe(h).Name != "zlib" {
		t.Fatalf("resolved wrong recipe")
	}
}

func TestResolveByProviderFirstWins(t *testing.T) {
	g := NewGraph()
	first := g.AddRecipe("virtual-provider-a", "1.0", "a.bb", "meta")
	g.AddRecipe("virtual-provider-b", "1.0", "b.bb", "meta")
	g.AddProvides(first.Handle, []string{"virtual/libc"}, false)
	g.AddProvides(g.mustByName(t, "virtual-provider-b"), []string{"virtual/libc"}, false)

	h, err := g.Resolve("virtual/libc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != first.Handle {
		t.Fatalf("expected first-registered provider to win, got %v", g.Recipe(h).Name)
	}
}

func (g *Graph) mustByName(t *testing.T, name string) Handle {
	t.Helper()
	h, ok := g.ByName(name)
	if !ok {
		t.Fatalf("recipe %q not found", name)
	}
	return h
}

func TestResolveUnknownProviderSuggestsClosest(t *testing.T) {
	g := NewGraph()
	g.AddRecipe("openssl", "3.0", "openssl.bb", "meta")

	_, err := g.Resolve("openssl1")
	if err == nil {
		t.Fatalf("expected unknown-provider error")
	}
	upe, ok := err.(*UnknownProviderError)
	if !ok {
		t.Fatalf("expected *UnknownProviderError, got %T", err)
	}
	if upe.Suggestion != "openssl" {
		t.Fatalf("expected suggestion %q, got %q", "openssl", upe.Suggestion)
	}
}

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	g := NewGraph()
	a := g.AddRecipe("a", "", "a.bb", "meta")
	b := g.AddRecipe("b", "", "b.bb", "meta")
	c := g.AddRecipe("c", "", "c.bb", "meta")

	// c depends on b depends on a
	g.PopulateDependencies(b.Handle, []string{"a"}, nil, nil)
	g.PopulateDependencies(c.Handle, []string{"b"}, nil, nil)

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos := make(map[Handle]int, len(order))
	for i, h := range order {
		pos[h] = i
	}
	if pos[a.Handle] >= pos[b.Handle] || pos[b.Handle] >= pos[c.Handle] {
		t.Fatalf("expected order a, b, c; got %v", order)
	}
}

func TestTopologicalSortDetectsTwoCycle(t *testing.T) {
	g := NewGraph()
	a := g.AddRecipe("a", "", "a.bb", "meta")
	b := g.AddRecipe("b", "", "b.bb", "meta")

	g.PopulateDependencies(a.Handle, []string{"b"}, nil, nil)
	g.PopulateDependencies(b.Handle, []string{"a"}, nil, nil)

	_, err := g.TopologicalSort()
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	cycleErr, ok := err.(*CycleError)
	if !ok {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	containsBoth := false
	seenA, seenB := false, false
	for _, h := range cycleErr.Cycle {
		if h == a.Handle {
			seenA = true
		}
		if h == b.Handle {
			seenB = true
		}
	}
	containsBoth = seenA && seenB
	if !containsBoth {
		t.Fatalf("expected cycle to contain both recipes, got %v", cycleErr.Cycle)
	}
}

func TestAllDependenciesTransitivelyClosed(t *testing.T) {
	g := NewGraph()
	a := g.AddRecipe("a", "", "a.bb", "meta")
	b := g.AddRecipe("b", "", "b.bb", "meta")
	c := g.AddRecipe("c", "", "c.bb", "meta")

	g.PopulateDependencies(b.Handle, []string{"a"}, nil, nil)
	g.PopulateDependencies(c.Handle, []string{"b"}, nil, nil)

	deps := g.AllDependencies(c.Handle)
	if _, ok := deps[a.Handle]; !ok {
		t.Fatalf("expected transitive dependency on a")
	}
	if _, ok := deps[b.Handle]; !ok {
		t.Fatalf("expected direct dependency on b")
	}
}
