package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bbforge/bbforge/pkg/resolver"
)

func noActive() resolver.ActiveOverrides {
	return resolver.ActiveOverrides{}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestSimpleIncludeMergesVariables(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "test.inc", "LICENSE = \"MIT\"\nBAR = \"from-inc\"\n")
	base := writeFile(t, dir, "base.bb", "SUMMARY = \"Test recipe\"\ninclude test.inc\nFOO = \"from-base\"\n")

	e := NewExtractor(dir)
	doc, err := e.ExtractFile(base)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}

	values := doc.Ledger.ResolveAll(noActive())
	if values["SUMMARY"] != "Test recipe" || values["LICENSE"] != "MIT" ||
		values["FOO"] != "from-base" || values["BAR"] != "from-inc" {
		t.Fatalf("unexpected merged values: %+v", values)
	}
}

func TestNestedIncludesAllMerge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "level2.inc", "VAR_L2 = \"level2\"\n")
	writeFile(t, dir, "level1.inc", "include level2.inc\nVAR_L1 = \"level1\"\n")
	base := writeFile(t, dir, "base.bb", "include level1.inc\nVAR_BASE = \"base\"\n")

	e := NewExtractor(dir)
	doc, err := e.ExtractFile(base)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	values := doc.Ledger.ResolveAll(noActive())
	if values["VAR_BASE"] != "base" || values["VAR_L1"] != "level1" || values["VAR_L2"] != "level2" {
		t.Fatalf("unexpected values: %+v", values)
	}
}

func TestIncludeNotFoundIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.bb", "include nonexistent.inc\nFOO = \"bar\"\n")

	e := NewExtractor(dir)
	doc, err := e.ExtractFile(base)
	if err != nil {
		t.Fatalf("expected non-fatal missing include, got %v", err)
	}
	if v, _ := doc.Ledger.Resolve("FOO", noActive()); v != "bar" {
		t.Fatalf("expected FOO=bar, got %q", v)
	}
}

func TestRequireNotFoundIsFatal(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.bb", "require nonexistent.inc\nFOO = \"bar\"\n")

	e := NewExtractor(dir)
	if _, err := e.ExtractFile(base); err == nil {
		t.Fatalf("expected fatal error for missing require")
	}
}

func TestCircularIncludeIsDetected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.inc", "include a.bb\nVAR_B = \"b\"\n")
	a := writeFile(t, dir, "a.bb", "include b.inc\nVAR_A = \"a\"\n")

	e := NewExtractor(dir)
	if _, err := e.ExtractFile(a); err == nil {
		t.Fatalf("expected circular include to be detected")
	}
}

func TestSharedIncludeIsCachedAcrossRecipes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared.inc", "SHARED = \"value\"\n")
	r1 := writeFile(t, dir, "recipe1.bb", "include shared.inc\nR1 = \"recipe1\"\n")
	r2 := writeFile(t, dir, "recipe2.bb", "include shared.inc\nR2 = \"recipe2\"\n")

	e := NewExtractor(dir)
	if _, err := e.ExtractFile(r1); err != nil {
		t.Fatalf("ExtractFile(r1): %v", err)
	}
	cacheSize, _ := e.CacheStats()
	if cacheSize != 2 {
		t.Fatalf("expected 2 cached files (recipe1.bb + shared.inc), got %d", cacheSize)
	}

	doc2, err := e.ExtractFile(r2)
	if err != nil {
		t.Fatalf("ExtractFile(r2): %v", err)
	}
	cacheSize2, _ := e.CacheStats()
	if cacheSize2 != 3 {
		t.Fatalf("expected 3 cached files total, got %d", cacheSize2)
	}
	if v, _ := doc2.Ledger.Resolve("SHARED", noActive()); v != "value" {
		t.Fatalf("expected shared include value present, got %q", v)
	}
}
