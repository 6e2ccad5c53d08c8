package sysroot

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestCopyHardlinkTreeStagesFiles(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "dst")

	writeTestFile(t, src, "usr/lib/test.so", "library")
	writeTestFile(t, src, "usr/include/test.h", "header")

	builder := NewHardlinkTreeBuilder()
	if err := builder.CopyHardlinkTree(src, dst); err != nil {
		t.Fatalf("CopyHardlinkTree: %v", err)
	}

	libContent, err := os.ReadFile(filepath.Join(dst, "usr/lib/test.so"))
	if err != nil {
		t.Fatalf("reading staged file: %v", err)
	}
	if string(libContent) != "library" {
		t.Fatalf("unexpected content: %q", libContent)
	}
	if _, err := os.Stat(filepath.Join(dst, "usr/include/test.h")); err != nil {
		t.Fatalf("expected header staged: %v", err)
	}
}

func TestCopyHardlinkTreeSharesInodeOnSameFilesystem(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dst := filepath.Join(tmp, "dst")
	srcFile := writeTestFile(t, src, "lib/test.so", "library")

	builder := NewHardlinkTreeBuilder()
	if err := builder.CopyHardlinkTree(src, dst); err != nil {
		t.Fatalf("CopyHardlinkTree: %v", err)
	}

	srcInfo, err := os.Stat(srcFile)
	if err != nil {
		t.Fatalf("stat src: %v", err)
	}
	dstInfo, err := os.Stat(filepath.Join(dst, "lib/test.so"))
	if err != nil {
		t.Fatalf("stat dst: %v", err)
	}
	if !os.SameFile(srcInfo, dstInfo) {
		t.Fatalf("expected hardlinked files to share an inode")
	}
}
