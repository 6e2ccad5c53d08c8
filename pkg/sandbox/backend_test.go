package sandbox

import "testing"

func TestResultSuccess(t *testing.T) {
	if !(Result{ExitCode: 0}).Success() {
		t.Fatalf("exit code 0 should be success")
	}
	if (Result{ExitCode: 1}).Success() {
		t.Fatalf("exit code 1 should not be success")
	}
}

func TestNewSpecDefaultsToNoNetwork(t *testing.T) {
	s := NewSpec([]string{"echo hi"})
	if s.Network != NetworkNone {
		t.Fatalf("expected NewSpec to default to NetworkNone")
	}
	if s.Env == nil {
		t.Fatalf("expected NewSpec to initialize Env")
	}
}

func TestDetectReturnsABackend(t *testing.T) {
	// Whatever this host supports, Detect must never return nil: the basic
	// backend is always a valid last resort.
	b := Detect()
	if b == nil {
		t.Fatalf("expected Detect to always return a backend")
	}
}
