// Package sysroot assembles a recipe's per-task build outputs into the
// combined header/library tree its dependents compile and link against,
// via hardlinks where possible, detecting file-path conflicts between
// dependencies along the way.
package sysroot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	digest "github.com/opencontainers/go-digest"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

// Manifest records which sysroot-relative files one task contributed, so a
// later assembly pass can stage them without re-walking the filesystem.
type Manifest struct {
	Recipe    string        `json:"recipe"`
	Task      string        `json:"task"`
	Signature digest.Digest `json:"signature"`
	Files     []string      `json:"files"`
}

// NewManifest returns an empty manifest for the given (recipe, task,
// signature) triple.
func NewManifest(recipe, task string, signature digest.Digest) *Manifest {
	return &Manifest{Recipe: recipe, Task: task, Signature: signature}
}

// AddFile records path (sysroot-relative) as provided by this manifest.
func (m *Manifest) AddFile(path string) {
	m.Files = append(m.Files, path)
}

// LoadManifest reads and parses a manifest previously written by Save.
func LoadManifest(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("reading manifest %s", path), err)
	}
	var m Manifest
	if err := json.Unmarshal(content, &m); err != nil {
		return nil, bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("parsing manifest %s", path), err)
	}
	return &m, nil
}

// Save writes m to path as pretty-printed JSON.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, "marshaling sysroot manifest", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("creating %s", dir), err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("writing manifest %s", path), err)
	}
	return nil
}

// GenerateManifest synthesizes a manifest for a task that never wrote one,
// by walking sysrootDir and recording every regular file's relative path,
// sorted for determinism.
func GenerateManifest(sysrootDir, recipe, task string, signature digest.Digest) (*Manifest, error) {
	m := NewManifest(recipe, task, signature)

	err := filepath.Walk(sysrootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, err := filepath.Rel(sysrootDir, path)
			if err != nil {
				return err
			}
			m.AddFile(rel)
		}
		return nil
	})
	if err != nil {
		return nil, bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("walking sysroot %s", sysrootDir), err)
	}

	sort.Strings(m.Files)
	return m, nil
}
