package metadata

import (
	"testing"

	"github.com/bbforge/bbforge/pkg/resolver"
)

func TestSimpleAssignment(t *testing.T) {
	p := Parse(`FOO = "bar"`)
	if len(p.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", p.Errors)
	}
	assignments := ExtractAssignments(p.Root)
	if len(assignments) != 1 || assignments[0].Name != "FOO" || assignments[0].Value != "bar" {
		t.Fatalf("unexpected assignments: %+v", assignments)
	}
}

func TestAppendAssignment(t *testing.T) {
	p := Parse(`FOO += "more"`)
	if len(p.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", p.Errors)
	}
	assignments := ExtractAssignments(p.Root)
	if assignments[0].Operator != resolver.OpAppend {
		t.Fatalf("expected append operator")
	}
}

func TestOverrideSyntax(t *testing.T) {
	p := Parse(`FOO:append = "value"`)
	if len(p.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", p.Errors)
	}
	assignments := ExtractAssignments(p.Root)
	if assignments[0].Name != "FOO:append" {
		t.Fatalf("expected raw name to carry qualifier suffix, got %q", assignments[0].Name)
	}
}

func TestMultilineValue(t *testing.T) {
	input := "SRC_URI = \"git://example.com/repo.git \\\n   file://patch.patch \\\n  \"\n"
	p := Parse(input)
	if len(p.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", p.Errors)
	}
	assignments := ExtractAssignments(p.Root)
	if len(assignments) != 1 {
		t.Fatalf("expected one assignment, got %d", len(assignments))
	}
}

func TestInherit(t *testing.T) {
	p := Parse("inherit cmake cargo")
	if len(p.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", p.Errors)
	}
	classes := ExtractInherits(p.Root)
	if len(classes) != 2 || classes[0] != "cmake" || classes[1] != "cargo" {
		t.Fatalf("unexpected classes: %v", classes)
	}
}

func TestInclude(t *testing.T) {
	p := Parse("include ${BPN}-crates.inc")
	if len(p.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", p.Errors)
	}
	paths := ExtractIncludes(p.Root)
	if len(paths) != 1 {
		t.Fatalf("expected one include path, got %v", paths)
	}
}

func TestErrorRecoveryStillYieldsValidAssignments(t *testing.T) {
	input := "\nFOO = \"valid\"\n@@@@@\nBAR = \"also valid\"\n"
	p := Parse(input)
	if len(p.Errors) == 0 {
		t.Fatalf("expected recoverable errors for the garbage line")
	}
	assignments := ExtractAssignments(p.Root)
	if len(assignments) < 2 {
		t.Fatalf("expected both valid assignments to survive, got %+v", assignments)
	}
}

func TestEmptyFileParsesWithNoDiagnostics(t *testing.T) {
	p := Parse("")
	if len(p.Errors) != 0 {
		t.Fatalf("expected no errors for an empty file, got %v", p.Errors)
	}
	if len(ExtractAssignments(p.Root)) != 0 {
		t.Fatalf("expected no assignments in an empty file")
	}
}

func TestPythonFunctionBraceDepthCounting(t *testing.T) {
	p := Parse("python do_generate_manifest() {\n\tif True:\n\t\td.getVar('PN')\n}\n")
	if len(p.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", p.Errors)
	}
	fns := ExtractShellFunctions(p.Root)
	if len(fns) != 1 || fns[0].Name != "do_generate_manifest" {
		t.Fatalf("unexpected functions: %+v", fns)
	}
}

func TestMetaFmuSnippet(t *testing.T) {
	input := `
SUMMARY = "fmu-rs"
HOMEPAGE = "https://github.com/avrabe/fmu-rs.git"
LICENSE = "MIT"

inherit cargo cargo-update-recipe-crates

SRC_URI = "git://github.com/avrabe/fmu-rs;protocol=https;nobranch=1;branch=main"
include ${BPN}-crates.inc

S = "${WORKDIR}/git"
CARGO_SRC_DIR = ""

include ${BPN}-srcrev.inc
PV:append = ".AUTOINC+${SRCPV}"
DEPENDS:append = " ostree openssl pkgconfig-native "
`
	p := Parse(input)
	if len(p.Errors) > 2 {
		t.Fatalf("expected near-zero errors, got %v", p.Errors)
	}

	assignments := ExtractAssignments(p.Root)
	if len(assignments) < 5 {
		t.Fatalf("expected at least 5 assignments, got %d", len(assignments))
	}
	inherits := ExtractInherits(p.Root)
	if len(inherits) < 1 {
		t.Fatalf("expected at least one inherited class")
	}
	includes := ExtractIncludes(p.Root)
	if len(includes) < 2 {
		t.Fatalf("expected at least two include statements, got %v", includes)
	}
}
