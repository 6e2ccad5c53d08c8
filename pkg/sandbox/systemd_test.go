package sandbox

import (
	"context"
	"strings"
	"testing"
)

func TestSystemdScopeBackendRunsEcho(t *testing.T) {
	if !systemdRunAvailable() {
		t.Skip("systemd not reachable on this host")
	}

	backend := NewSystemdScopeBackend()
	spec := NewSpec([]string{"echo scoped"})

	result, err := backend.Execute(context.Background(), spec, t.TempDir())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Stdout, "scoped") {
		t.Fatalf("unexpected stdout: %q", result.Stdout)
	}
}

func TestSystemdRunAvailableDoesNotPanic(t *testing.T) {
	_ = systemdRunAvailable()
}
