package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sdbus "github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

// SystemdScopeBackend runs the task as a transient systemd scope unit,
// confining it to its own cgroup with resource and network properties set
// on the unit. It plays the role the original's profile-based sandbox-exec
// backend played on macOS: isolation expressed as a declarative policy
// rather than raw namespace construction.
type SystemdScopeBackend struct{}

// NewSystemdScopeBackend returns a ready-to-use SystemdScopeBackend.
func NewSystemdScopeBackend() *SystemdScopeBackend { return &SystemdScopeBackend{} }

func (b *SystemdScopeBackend) Execute(ctx context.Context, spec *Spec, sandboxRoot string) (Result, error) {
	start := time.Now()

	workDir := filepath.Join(sandboxRoot, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, bberrors.Wrap(bberrors.CodeSandboxError, "creating sandbox work dir", err)
	}

	conn, err := sdbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return Result{}, bberrors.Wrap(bberrors.CodeSandboxError, "connecting to systemd over dbus", err)
	}
	defer conn.Close()

	cmd := commandFor(spec)
	cmd.Dir = workDir
	cmd.Env = buildEnv(spec)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, bberrors.Wrap(bberrors.CodeSandboxError, "starting sandboxed command", err)
	}

	scopeName := fmt.Sprintf("bbforge-task-%d.scope", cmd.Process.Pid)
	properties := []sdbus.Property{
		sdbus.PropPids(uint32(cmd.Process.Pid)),
		sdbus.PropDescription("bbforge sandboxed task"),
		{Name: "PrivateTmp", Value: godbus.MakeVariant(true)},
		{Name: "ProtectSystem", Value: godbus.MakeVariant("strict")},
		{Name: "ReadWritePaths", Value: godbus.MakeVariant([]string{workDir})},
	}
	if spec.Network == NetworkNone {
		properties = append(properties, sdbus.Property{Name: "IPAddressDeny", Value: godbus.MakeVariant([]string{"any"})})
	}

	done := make(chan string, 1)
	if _, err := conn.StartTransientUnitContext(ctx, scopeName, "fail", properties, done); err != nil {
		slog.Warn("failed to confine task to a systemd scope, process runs without cgroup isolation", "error", err)
	} else {
		<-done
	}

	runErr := cmd.Wait()
	result := Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMS: time.Since(start).Milliseconds(),
		ExitCode:   exitCodeOf(runErr),
	}
	if runErr != nil && result.ExitCode < 0 {
		return result, bberrors.Wrap(bberrors.CodeSandboxError, "executing in systemd scope sandbox", runErr)
	}
	return result, nil
}
