package sandbox

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

// readOnlyBinds are the host directories bind-mounted read-only into every
// native-namespace sandbox, giving the task a working toolchain without
// exposing the rest of the host filesystem.
var readOnlyBinds = []string{"/usr", "/bin", "/lib", "/lib64", "/etc/resolv.conf", "/etc/ssl"}

// NativeNamespaceBackend isolates a task using Linux user, mount, PID, IPC
// and UTS namespaces plus (absent a fetch task's network grant) a network
// namespace, built directly from clone flags rather than an external
// sandboxing binary.
type NativeNamespaceBackend struct{}

// NewNativeNamespaceBackend returns a ready-to-use NativeNamespaceBackend.
func NewNativeNamespaceBackend() *NativeNamespaceBackend { return &NativeNamespaceBackend{} }

func (b *NativeNamespaceBackend) Execute(ctx context.Context, spec *Spec, sandboxRoot string) (Result, error) {
	start := time.Now()

	workDir := filepath.Join(sandboxRoot, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, bberrors.Wrap(bberrors.CodeSandboxError, "creating sandbox work dir", err)
	}

	mounted, err := prepareRootfs(sandboxRoot)
	defer cleanupRootfs(mounted)
	if err != nil {
		return Result{}, bberrors.Wrap(bberrors.CodeSandboxError, "preparing sandbox rootfs", err)
	}

	cmd := commandFor(spec)
	cmd.Dir = workDir
	cmd.Env = buildEnv(spec)

	cloneFlags := uintptr(syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS | syscall.CLONE_NEWPID |
		syscall.CLONE_NEWIPC | syscall.CLONE_NEWUTS)
	if spec.Network == NetworkNone {
		cloneFlags |= syscall.CLONE_NEWNET
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: cloneFlags,
		UidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		},
		GidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		},
		GidMappingsEnableSetgroups: false,
	}

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
		return result, bberrors.Wrap(bberrors.CodeSandboxError, "executing in native namespace sandbox", runErr)
	}
	return result, nil
}

// prepareRootfs bind-mounts the read-only system directories and a fresh
// /tmp into sandboxRoot so a child cloned with CLONE_NEWNS inherits them in
// its own copy of the mount table. It returns the mountpoints it created, in
// the order they were mounted, so the caller can tear them down afterward.
func prepareRootfs(sandboxRoot string) ([]string, error) {
	var mounted []string

	for _, src := range readOnlyBinds {
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(sandboxRoot, src)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return mounted, err
		}
		if info, err := os.Stat(src); err == nil && !info.IsDir() {
			if f, err := os.Create(dst); err == nil {
				f.Close()
			}
		} else if err := os.MkdirAll(dst, 0o755); err != nil {
			return mounted, err
		}

		if err := unix.Mount(src, dst, "", unix.MS_BIND, ""); err != nil {
			slog.Warn("bind mount failed, sandbox will not see this path", "path", src, "error", err)
			continue
		}
		if err := unix.Mount("", dst, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
			slog.Warn("read-only remount failed", "path", src, "error", err)
		}
		mounted = append(mounted, dst)
	}

	tmpDir := filepath.Join(sandboxRoot, "tmp")
	if err := os.MkdirAll(tmpDir, 0o1777); err != nil {
		return mounted, err
	}
	if err := unix.Mount("tmpfs", tmpDir, "tmpfs", 0, ""); err != nil {
		slog.Warn("tmpfs mount for sandbox /tmp failed, falling back to plain directory", "error", err)
	} else {
		mounted = append(mounted, tmpDir)
	}

	return mounted, nil
}

func cleanupRootfs(mounted []string) {
	for i := len(mounted) - 1; i >= 0; i-- {
		if err := unix.Unmount(mounted[i], 0); err != nil {
			slog.Warn("failed to unmount sandbox path during cleanup", "path", mounted[i], "error", err)
		}
	}
}
