// Package sandbox isolates task execution behind a small set of backends,
// selected at runtime in a fixed preference order: a native Linux namespace
// backend where the kernel supports unprivileged user namespaces, a
// systemd-run transient scope where systemd is reachable over D-Bus, and a
// directory-isolation-only fallback as an explicit last resort.
package sandbox

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// NetworkPolicy gates whether a sandboxed command may reach the network.
// Only fetch tasks are granted NetworkFull; every other task runs with
// NetworkNone.
type NetworkPolicy int

const (
	NetworkNone NetworkPolicy = iota
	NetworkFull
)

// Spec describes one command to run inside a sandbox envelope.
type Spec struct {
	Command []string
	Env     map[string]string
	Network NetworkPolicy
}

// NewSpec returns a Spec with no declared environment and no network access,
// the safe default for anything but a fetch task.
func NewSpec(command []string) *Spec {
	return &Spec{Command: command, Env: make(map[string]string), Network: NetworkNone}
}

// Result is the uniform outcome every backend reports, regardless of the
// isolation mechanism it used underneath.
type Result struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	DurationMS int64
}

// Success reports whether the sandboxed command exited zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Backend executes a Spec inside sandboxRoot, a private directory the
// caller has prepared to hold the envelope's writable work tree.
type Backend interface {
	Execute(ctx context.Context, spec *Spec, sandboxRoot string) (Result, error)
}

// Detect picks the strongest isolation backend this host can actually run.
// The order is fixed: native namespaces first, a systemd scope second, and
// the basic fallback last — loudly, since it provides no real isolation.
func Detect() Backend {
	if runtime.GOOS == "linux" && userNamespacesAvailable() {
		slog.Info("sandbox backend selected", "backend", "native-namespace")
		return NewNativeNamespaceBackend()
	}
	if systemdRunAvailable() {
		slog.Info("sandbox backend selected", "backend", "systemd-scope")
		return NewSystemdScopeBackend()
	}
	slog.Warn("sandbox backend selected: basic directory isolation only, no process or network isolation")
	return NewBasicBackend()
}

func userNamespacesAvailable() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile("/proc/sys/user/max_user_namespaces")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) != "0"
}

func systemdRunAvailable() bool {
	if _, err := os.Stat("/run/systemd/system"); err != nil {
		return false
	}
	_, err := exec.LookPath("systemd-run")
	return err == nil
}
