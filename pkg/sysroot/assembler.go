package sysroot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	digest "github.com/opencontainers/go-digest"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

// dupWhitelist names the sysroot-relative prefixes under which two
// dependencies may legitimately claim the same path without it being
// treated as a conflict: license text, documentation, and SGML catalogs
// are routinely duplicated byte-for-byte across packages.
var dupWhitelist = []string{"usr/share/licenses", "usr/share/doc", "etc/sgml"}

// TaskDependency names one upstream task whose staged sysroot output
// should be folded into an assembly.
type TaskDependency struct {
	Recipe    string
	Task      string
	Signature digest.Digest
}

// Assembler composes per-task sysroot outputs into one recipe-level
// sysroot, rejecting unwhitelisted file-path conflicts between
// dependencies.
type Assembler struct {
	hardlink *HardlinkTreeBuilder
}

// NewAssembler returns a ready-to-use Assembler.
func NewAssembler() *Assembler {
	return &Assembler{hardlink: NewHardlinkTreeBuilder()}
}

// AssembleSysroot stages every dependency's sysroot output into
// outputSysroot, in the order given. artifactCache is the root directory
// under which each dependency's output lives at
// "<recipe>/<task>-<signature>/sysroot" (and optionally a sibling
// "manifest.json"). A dependency whose sysroot directory is missing is
// skipped with a warning rather than failing the whole assembly, since a
// task with no install-time outputs (e.g. a pure source fetch) is routine.
func (a *Assembler) AssembleSysroot(dependencies []TaskDependency, artifactCache, outputSysroot string) error {
	staged := make(map[string]string)

	if err := os.MkdirAll(outputSysroot, 0o755); err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("creating %s", outputSysroot), err)
	}

	for _, dep := range dependencies {
		provider := fmt.Sprintf("%s:%s-%s", dep.Recipe, dep.Task, dep.Signature.Encoded())
		depArtifact := filepath.Join(artifactCache, dep.Recipe, fmt.Sprintf("%s-%s", dep.Task, dep.Signature.Encoded()))
		depSysroot := filepath.Join(depArtifact, "sysroot")
		depManifestPath := filepath.Join(depArtifact, "manifest.json")

		if _, err := os.Stat(depSysroot); os.IsNotExist(err) {
			slog.Warn("sysroot not found for dependency, skipping", "recipe", dep.Recipe, "task", dep.Task)
			continue
		}

		var manifest *Manifest
		if _, err := os.Stat(depManifestPath); err == nil {
			manifest, err = LoadManifest(depManifestPath)
			if err != nil {
				return err
			}
		} else {
			manifest, err = GenerateManifest(depSysroot, dep.Recipe, dep.Task, dep.Signature)
			if err != nil {
				return err
			}
		}

		for _, file := range manifest.Files {
			if isWhitelisted(file) {
				continue
			}
			if existing, ok := staged[file]; ok {
				return bberrors.New(bberrors.CodeConflict,
					fmt.Sprintf("sysroot file %s provided by both %s and %s", file, existing, provider))
			}
		}

		slog.Debug("staging sysroot dependency", "recipe", dep.Recipe, "task", dep.Task, "files", len(manifest.Files))
		if err := a.hardlink.CopyHardlinkTree(depSysroot, outputSysroot); err != nil {
			return err
		}

		for _, file := range manifest.Files {
			if !isWhitelisted(file) {
				staged[file] = provider
			}
		}
	}

	slog.Info("assembled sysroot", "files", len(staged), "dependencies", len(dependencies))
	return nil
}

func isWhitelisted(file string) bool {
	for _, prefix := range dupWhitelist {
		if file == prefix || strings.HasPrefix(file, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
