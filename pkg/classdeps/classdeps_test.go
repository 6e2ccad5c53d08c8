package classdeps

import (
	"context"
	"testing"
)

func TestCmakeBuildDeps(t *testing.T) {
	deps := BuildDeps(context.Background(), "cmake", "")
	want := map[string]bool{"cmake-native": true, "ninja-native": true}
	if len(deps) != len(want) {
		t.Fatalf("expected %d deps, got %v", len(want), deps)
	}
	for _, d := range deps {
		if !want[d] {
			t.Fatalf("unexpected dep %q", d)
		}
	}
}

func TestSystemdGatedOnDistroFeature(t *testing.T) {
	without := BuildDeps(context.Background(), "systemd", "pam")
	if len(without) != 0 {
		t.Fatalf("expected no systemd dep without the distro feature, got %v", without)
	}

	with := BuildDeps(context.Background(), "systemd", "systemd pam")
	if len(with) != 1 || with[0] != "systemd" {
		t.Fatalf("expected [systemd], got %v", with)
	}
}

func TestAllarchAddsNoDeps(t *testing.T) {
	if !Known(context.Background(), "allarch") {
		t.Fatalf("expected allarch to be a known class")
	}
	if deps := BuildDeps(context.Background(), "allarch", ""); len(deps) != 0 {
		t.Fatalf("expected no deps for allarch, got %v", deps)
	}
}

func TestUnknownClassReturnsNil(t *testing.T) {
	if Known(context.Background(), "not-a-real-class") {
		t.Fatalf("expected unknown class to report Known=false")
	}
	if deps := BuildDeps(context.Background(), "not-a-real-class", ""); deps != nil {
		t.Fatalf("expected nil deps for unknown class")
	}
}
