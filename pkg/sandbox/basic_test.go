package sandbox

import (
	"context"
	"strings"
	"testing"
)

func TestBasicBackendRunsEcho(t *testing.T) {
	backend := NewBasicBackend()
	spec := NewSpec([]string{"echo hello-from-sandbox"})

	result, err := backend.Execute(context.Background(), spec, t.TempDir())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected success, got exit code %d stderr %q", result.ExitCode, result.Stderr)
	}
	if !strings.Contains(result.Stdout, "hello-from-sandbox") {
		t.Fatalf("unexpected stdout: %q", result.Stdout)
	}
}

func TestBasicBackendRemapsWorkPathsInEnv(t *testing.T) {
	backend := NewBasicBackend()
	spec := NewSpec([]string{"echo $BUILD_DIR"})
	spec.Env["BUILD_DIR"] = "/work/build"

	root := t.TempDir()
	result, err := backend.Execute(context.Background(), spec, root)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(result.Stdout, "/work/build") {
		t.Fatalf("expected /work prefix to be remapped to the real sandbox dir, got %q", result.Stdout)
	}
}

func TestBasicBackendReportsNonZeroExit(t *testing.T) {
	backend := NewBasicBackend()
	spec := NewSpec([]string{"exit 3"})

	result, err := backend.Execute(context.Background(), spec, t.TempDir())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
	if result.Success() {
		t.Fatalf("expected non-zero exit to be reported as failure")
	}
}
