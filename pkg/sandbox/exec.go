package sandbox

import (
	"errors"
	"os/exec"
	"sort"
)

// commandFor builds the process to run. A single-element command is treated
// as a shell line, matching how recipe task bodies are authored; a
// multi-element command is executed directly with no shell interposed.
func commandFor(spec *Spec) *exec.Cmd {
	if len(spec.Command) == 1 {
		return exec.Command("bash", "-c", spec.Command[0])
	}
	return exec.Command(spec.Command[0], spec.Command[1:]...)
}

// buildEnv produces a clean environment containing only the task's declared
// variables plus the minimal HOME/PATH/SHELL a shell needs to run at all.
func buildEnv(spec *Spec) []string {
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+3)
	for _, k := range keys {
		env = append(env, k+"="+spec.Env[k])
	}
	env = append(env, "HOME=/tmp", "PATH=/usr/bin:/bin", "SHELL=/bin/bash")
	return env
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
