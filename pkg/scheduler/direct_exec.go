package scheduler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bbforge/bbforge/pkg/sandbox"
)

// executeDirect runs every action in analysis against workDir without
// spawning a shell, matching the semantics a real shell interpreter would
// give the same script. It stops at the first failing action, mirroring
// a shell script's implicit `set -e` for this op set.
func executeDirect(analysis ScriptAnalysis, workDir string, env map[string]string) sandbox.Result {
	start := time.Now()
	var stdout, stderr strings.Builder

	fullEnv := make(map[string]string, len(analysis.EnvVars)+len(env))
	for k, v := range analysis.EnvVars {
		fullEnv[k] = v
	}
	for k, v := range env {
		fullEnv[k] = v
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return sandbox.Result{ExitCode: 1, Stderr: fmt.Sprintf("failed to create work dir: %v", err), DurationMS: time.Since(start).Milliseconds()}
	}

	exitCode := 0
	for i, action := range analysis.Actions {
		if err := executeAction(action, workDir, fullEnv, &stdout, &stderr); err != nil {
			stderr.WriteString(fmt.Sprintf("ERROR: action %d failed: %v\n", i, err))
			exitCode = 1
			break
		}
	}

	return sandbox.Result{
		ExitCode:   exitCode,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func executeAction(action DirectAction, workDir string, env map[string]string, stdout, stderr *strings.Builder) error {
	switch action.Kind {
	case ActionMakeDir:
		return os.MkdirAll(resolvePath(action.Path, workDir, env), 0o755)

	case ActionTouch:
		path := resolvePath(action.Path, workDir, env)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			now := time.Now()
			return os.Chtimes(path, now, now)
		}
		return os.WriteFile(path, nil, 0o644)

	case ActionWriteFile:
		path := resolvePath(action.Path, workDir, env)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, []byte(action.Content), 0o644)

	case ActionAppendFile:
		path := resolvePath(action.Path, workDir, env)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.WriteString(action.Content)
		return err

	case ActionCopy:
		src := resolvePath(action.Src, workDir, env)
		dest := resolvePath(action.Dest, workDir, env)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		info, err := os.Stat(src)
		if err != nil {
			return err
		}
		if action.Recursive && info.IsDir() {
			return copyDirAll(src, dest)
		}
		return copyFile(src, dest)

	case ActionMove:
		src := resolvePath(action.Src, workDir, env)
		dest := resolvePath(action.Dest, workDir, env)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		return os.Rename(src, dest)

	case ActionRemove:
		path := resolvePath(action.Path, workDir, env)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) && action.Force {
				return nil
			}
			return err
		}
		if info.IsDir() {
			if !action.Recursive {
				return fmt.Errorf("rm: %s is a directory (use -r)", path)
			}
			return os.RemoveAll(path)
		}
		return os.Remove(path)

	case ActionSymlink:
		target := resolvePath(action.Target, workDir, env)
		link := resolvePath(action.Link, workDir, env)
		if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
			return err
		}
		return os.Symlink(target, link)

	case ActionChmod:
		path := resolvePath(action.Path, workDir, env)
		return os.Chmod(path, fs.FileMode(action.Mode))

	case ActionLog:
		expanded := expandVariables(action.Message, env)
		switch action.Level {
		case LogNote:
			stdout.WriteString("NOTE: " + expanded + "\n")
		case LogDebug:
			stdout.WriteString("DEBUG: " + expanded + "\n")
		case LogWarn:
			stderr.WriteString("WARNING: " + expanded + "\n")
		case LogError:
			stderr.WriteString("ERROR: " + expanded + "\n")
		}
		return nil

	case ActionSetEnv:
		return nil
	}
	return fmt.Errorf("unhandled direct action kind %d", action.Kind)
}

// resolvePath expands path's variable references and anchors the result
// under workDir. A "/work"-prefixed absolute path (script_analyzer's own
// fallback default for WORKDIR/S/B/D when the script never overrides them)
// is rebased onto workDir rather than taken literally, matching
// sandbox.BasicBackend's identical remap of the real filesystem work root.
func resolvePath(path, workDir string, env map[string]string) string {
	expanded := expandVariables(path, env)
	if strings.HasPrefix(expanded, "/work") {
		return workDir + strings.TrimPrefix(expanded, "/work")
	}
	if filepath.IsAbs(expanded) {
		return expanded
	}
	return filepath.Join(workDir, expanded)
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

func copyDirAll(src, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		destPath := filepath.Join(dest, entry.Name())
		if entry.IsDir() {
			if err := copyDirAll(srcPath, destPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, destPath); err != nil {
			return err
		}
	}
	return nil
}
