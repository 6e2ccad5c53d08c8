package scheduler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExecuteDirectMakeDirAndTouch(t *testing.T) {
	dir := t.TempDir()
	analysis := ScriptAnalysis{
		Actions: []DirectAction{
			{Kind: ActionMakeDir, Path: "sub/dir"},
			{Kind: ActionTouch, Path: "sub/dir/stamp"},
		},
	}
	result := executeDirect(analysis, dir, nil)
	if !result.Success() {
		t.Fatalf("expected success, got exit %d stderr %q", result.ExitCode, result.Stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub/dir/stamp")); err != nil {
		t.Fatalf("expected stamp file to exist: %v", err)
	}
}

func TestExecuteDirectWriteAndAppend(t *testing.T) {
	dir := t.TempDir()
	analysis := ScriptAnalysis{
		Actions: []DirectAction{
			{Kind: ActionWriteFile, Path: "out.txt", Content: "hello"},
			{Kind: ActionAppendFile, Path: "out.txt", Content: " world"},
		},
	}
	result := executeDirect(analysis, dir, nil)
	if !result.Success() {
		t.Fatalf("expected success, got %q", result.Stderr)
	}
	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatalf("read out.txt: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", string(data))
	}
}

func TestExecuteDirectCopyRecursiveAndMove(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src/nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src/nested/file.txt"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	analysis := ScriptAnalysis{
		Actions: []DirectAction{
			{Kind: ActionCopy, Src: "src", Dest: "dest", Recursive: true},
			{Kind: ActionMove, Src: "dest/nested/file.txt", Dest: "dest/nested/moved.txt"},
		},
	}
	result := executeDirect(analysis, dir, nil)
	if !result.Success() {
		t.Fatalf("expected success, got %q", result.Stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "dest/nested/moved.txt")); err != nil {
		t.Fatalf("expected moved file to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "dest/nested/file.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected original file to be gone after move")
	}
}

func TestExecuteDirectRemoveForceIsNoopWhenMissing(t *testing.T) {
	dir := t.TempDir()
	analysis := ScriptAnalysis{
		Actions: []DirectAction{
			{Kind: ActionRemove, Path: "never-existed", Force: true},
		},
	}
	result := executeDirect(analysis, dir, nil)
	if !result.Success() {
		t.Fatalf("expected forced remove of missing file to succeed, got %q", result.Stderr)
	}
}

func TestExecuteDirectRemoveDirectoryWithoutRecursiveFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "adir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	analysis := ScriptAnalysis{
		Actions: []DirectAction{
			{Kind: ActionRemove, Path: "adir"},
		},
	}
	result := executeDirect(analysis, dir, nil)
	if result.Success() {
		t.Fatalf("expected removing a directory without -r to fail")
	}
}

func TestExecuteDirectStopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	analysis := ScriptAnalysis{
		Actions: []DirectAction{
			{Kind: ActionRemove, Path: "missing-no-force"},
			{Kind: ActionTouch, Path: "should-not-run"},
		},
	}
	result := executeDirect(analysis, dir, nil)
	if result.Success() {
		t.Fatalf("expected failure on unforced remove of missing path")
	}
	if _, err := os.Stat(filepath.Join(dir, "should-not-run")); !os.IsNotExist(err) {
		t.Fatalf("expected later actions to be skipped after a failure")
	}
}

func TestExecuteDirectSymlinkAndChmod(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "target.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	analysis := ScriptAnalysis{
		Actions: []DirectAction{
			{Kind: ActionSymlink, Target: "target.txt", Link: "link.txt"},
			{Kind: ActionChmod, Path: "target.txt", Mode: 0o600},
		},
	}
	result := executeDirect(analysis, dir, nil)
	if !result.Success() {
		t.Fatalf("expected success, got %q", result.Stderr)
	}
	info, err := os.Lstat(filepath.Join(dir, "link.txt"))
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected link.txt to be a symlink: %v", err)
	}
	info, err = os.Stat(filepath.Join(dir, "target.txt"))
	if err != nil {
		t.Fatalf("stat target.txt: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestExecuteDirectLogActionsRouteToStdoutAndStderr(t *testing.T) {
	dir := t.TempDir()
	analysis := ScriptAnalysis{
		Actions: []DirectAction{
			{Kind: ActionLog, Level: LogNote, Message: "building"},
			{Kind: ActionLog, Level: LogWarn, Message: "careful"},
		},
	}
	result := executeDirect(analysis, dir, nil)
	if !result.Success() {
		t.Fatalf("expected success, got %q", result.Stderr)
	}
	if result.Stdout == "" {
		t.Fatalf("expected note to be written to stdout")
	}
	if result.Stderr == "" {
		t.Fatalf("expected warning to be written to stderr")
	}
}
