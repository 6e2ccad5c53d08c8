package sandbox

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

// BasicBackend runs the command directly in sandboxRoot's work directory
// with no namespace or cgroup isolation at all. It exists only as a
// last-resort fallback for hosts that offer neither native namespaces nor
// systemd, and Detect logs a loud warning whenever it is selected.
type BasicBackend struct{}

// NewBasicBackend returns a ready-to-use BasicBackend.
func NewBasicBackend() *BasicBackend { return &BasicBackend{} }

func (b *BasicBackend) Execute(ctx context.Context, spec *Spec, sandboxRoot string) (Result, error) {
	start := time.Now()

	workDir := filepath.Join(sandboxRoot, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, bberrors.Wrap(bberrors.CodeSandboxError, "creating sandbox work dir", err)
	}

	remapped := &Spec{Command: spec.Command, Network: spec.Network, Env: make(map[string]string, len(spec.Env))}
	for k, v := range spec.Env {
		if strings.HasPrefix(v, "/work") {
			v = workDir + strings.TrimPrefix(v, "/work")
		}
		remapped.Env[k] = v
	}

	cmd := commandFor(remapped)
	cmd.Dir = workDir
	cmd.Env = buildEnv(remapped)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMS: time.Since(start).Milliseconds(),
		ExitCode:   exitCodeOf(runErr),
	}
	if runErr != nil && result.ExitCode < 0 {
		return result, bberrors.Wrap(bberrors.CodeSandboxError, "executing in basic sandbox", runErr)
	}
	return result, nil
}
