package extract

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bbforge/bbforge/pkg/recipe"
)

func TestPopulateRecipeResolvesVariablesAndDeps(t *testing.T) {
	dir := t.TempDir()
	content := `
SUMMARY = "OpenSSL library"
LICENSE = "Apache-2.0"
PV = "3.0.0"
DEPENDS = "glibc (>= 2.30) zlib"
PROVIDES = "openssl"

addtask compile after configure before install

do_compile() {
	oe_runmake
}
`
	path := writeFile(t, dir, "openssl.bb", content)

	e := NewExtractor(dir)
	doc, err := e.ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}

	g := recipe.NewGraph()
	r := PopulateRecipe(context.Background(), g, "openssl", doc, Options{Layer: "meta-test"})

	if r.Version != "3.0.0" {
		t.Fatalf("expected version 3.0.0, got %q", r.Version)
	}
	if len(r.BuildDeps) != 2 || r.BuildDeps[0] != "glibc" || r.BuildDeps[1] != "zlib" {
		t.Fatalf("expected [glibc zlib] build deps, got %v", r.BuildDeps)
	}
	if len(r.Provides) != 1 || r.Provides[0] != "openssl" {
		t.Fatalf("expected provides [openssl], got %v", r.Provides)
	}

	compileHandle, ok := r.Tasks["compile"]
	if !ok {
		t.Fatalf("expected do_compile task registered")
	}
	tn := g.Task(compileHandle)
	if tn == nil || tn.Name != "do_compile" {
		t.Fatalf("expected task do_compile, got %+v", tn)
	}
	if tn.Flags["__body"] == "" {
		t.Fatalf("expected task body attached")
	}

	recipeFromGraph := g.Recipe(r.Handle)
	if recipeFromGraph == nil || recipeFromGraph.File != path {
		t.Fatalf("expected recipe registered with source file %q", path)
	}
}

func TestAddtaskOrderingAppliesAfterAndBefore(t *testing.T) {
	dir := t.TempDir()
	content := `
addtask fetch
addtask compile after fetch before install
addtask install
`
	path := writeFile(t, dir, "x.bb", content)

	e := NewExtractor(dir)
	doc, err := e.ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}

	g := recipe.NewGraph()
	r := PopulateRecipe(context.Background(), g, "x", doc, Options{})

	fetch := r.Tasks["fetch"]
	compile := r.Tasks["compile"]
	install := r.Tasks["install"]

	compileNode := g.Task(compile)
	if _, ok := compileNode.After[fetch]; !ok {
		t.Fatalf("expected compile to run after fetch")
	}
	installNode := g.Task(install)
	if _, ok := installNode.After[compile]; !ok {
		t.Fatalf("expected install to run after compile (via before clause)")
	}
}

func TestClassDependsMergedFromInherits(t *testing.T) {
	dir := t.TempDir()
	content := `
SUMMARY = "cmake-built thing"
inherit cmake
`
	path := writeFile(t, dir, "thing.bb", content)

	e := NewExtractor(dir)
	doc, err := e.ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}

	g := recipe.NewGraph()
	r := PopulateRecipe(context.Background(), g, "thing", doc, Options{})

	if len(r.BuildDeps) == 0 {
		t.Fatalf("expected cmake-native build dependency contributed by inherited class")
	}
	_ = filepath.Base(path)
}
