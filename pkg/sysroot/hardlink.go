package sysroot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

// HardlinkTreeBuilder copies a directory tree the way BitBake's
// copyhardlinktree does: when source and destination share a filesystem,
// every regular file becomes a second directory entry for the same inode
// (no disk duplication, no copy cost); otherwise it falls back to a byte
// copy.
type HardlinkTreeBuilder struct{}

// NewHardlinkTreeBuilder returns a ready-to-use builder.
func NewHardlinkTreeBuilder() *HardlinkTreeBuilder {
	return &HardlinkTreeBuilder{}
}

// CopyHardlinkTree stages every file under src into dst, creating dst if
// needed.
func (b *HardlinkTreeBuilder) CopyHardlinkTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("creating %s", dst), err)
	}

	same, err := sameFilesystem(src, dst)
	if err != nil {
		return err
	}

	if same {
		return b.copyTree(src, dst, true)
	}
	return b.copyTree(src, dst, false)
}

// copyTree walks src, recreating directories under dst and either
// hardlinking or copying each regular file depending on hardlink.
func (b *HardlinkTreeBuilder) copyTree(src, dst string, hardlink bool) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dstPath := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(dstPath, 0o755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return err
		}

		if hardlink {
			if err := os.Link(path, dstPath); err == nil {
				return nil
			}
			// Fall through to a byte copy if the link failed (e.g. dstPath
			// already exists from an earlier, overlapping dependency).
		}
		return copyFile(path, dstPath, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("opening %s", src), err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("creating %s", dst), err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("copying %s to %s", src, dst), err)
	}
	return nil
}

// sameFilesystem reports whether src and dst reside on the same device,
// the condition copyhardlinktree uses to decide between hardlinking and
// copying.
func sameFilesystem(src, dst string) (bool, error) {
	var srcStat, dstStat unix.Stat_t
	if err := unix.Stat(src, &srcStat); err != nil {
		return false, bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("stat %s", src), err)
	}
	// dst may not exist yet on a from-scratch assembly; walk up to its
	// nearest existing ancestor (MkdirAll already ran, so normally dst
	// itself exists by the time this is called).
	probe := dst
	for {
		if err := unix.Stat(probe, &dstStat); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return false, bberrors.New(bberrors.CodeCacheError, fmt.Sprintf("no existing ancestor for %s", dst))
		}
		probe = parent
	}
	return srcStat.Dev == dstStat.Dev, nil
}
