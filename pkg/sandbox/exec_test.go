package sandbox

import (
	"errors"
	"os/exec"
	"testing"
)

func TestCommandForWrapsSingleElementInShell(t *testing.T) {
	cmd := commandFor(&Spec{Command: []string{"echo hi && echo bye"}})
	if cmd.Path != mustLookPath(t, "bash") {
		t.Fatalf("expected bash, got %s", cmd.Path)
	}
}

func TestCommandForRunsMultiElementDirectly(t *testing.T) {
	cmd := commandFor(&Spec{Command: []string{"echo", "hi"}})
	if cmd.Path != mustLookPath(t, "echo") {
		t.Fatalf("expected echo, got %s", cmd.Path)
	}
}

func TestBuildEnvIncludesDeclaredVarsAndDefaults(t *testing.T) {
	env := buildEnv(&Spec{Env: map[string]string{"FOO": "bar"}})
	found := map[string]bool{}
	for _, kv := range env {
		found[kv] = true
	}
	if !found["FOO=bar"] {
		t.Fatalf("expected declared env var in output: %v", env)
	}
	if !found["HOME=/tmp"] || !found["PATH=/usr/bin:/bin"] || !found["SHELL=/bin/bash"] {
		t.Fatalf("expected default env vars in output: %v", env)
	}
}

func TestExitCodeOfTranslatesExitError(t *testing.T) {
	if exitCodeOf(nil) != 0 {
		t.Fatalf("expected 0 for nil error")
	}
	cmd := exec.Command("bash", "-c", "exit 7")
	err := cmd.Run()
	if exitCodeOf(err) != 7 {
		t.Fatalf("expected exit code 7, got %d", exitCodeOf(err))
	}
	if exitCodeOf(errors.New("not an exit error")) != -1 {
		t.Fatalf("expected -1 for an unrelated error")
	}
}

func mustLookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available on this host: %v", name, err)
	}
	return path
}
