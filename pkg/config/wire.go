package config

import (
	"path/filepath"

	"github.com/bbforge/bbforge/pkg/cas"
	"github.com/bbforge/bbforge/pkg/pipeline"
	"github.com/bbforge/bbforge/pkg/sandbox"
)

// CASConfig projects c onto cas.Config.
func (c Config) CASConfig() cas.Config {
	return cas.Config{
		MaxSizeBytes:     c.CASMaxSizeBytes,
		GCThresholdBytes: c.CASGCThresholdBytes,
		GCTargetBytes:    c.CASGCTargetBytes,
	}
}

// PipelineConfig projects c onto pipeline.Config, rooting its on-disk stage
// cache under CacheRoot.
func (c Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		MaxIOParallelism:  c.PipelineIOParallelism,
		MaxCPUParallelism: c.PipelineCPUParallelism,
		EnableCache:       true,
		CacheDir:          filepath.Join(c.CacheRoot, "pipeline"),
	}
}

// CASRoot, ActionCacheRoot, ArtifactCacheRoot, and ScratchRoot are the
// CacheRoot's four fixed subdirectories, kept apart so the CAS's
// content-hash layout never collides with the action cache's
// signature-keyed entries, the scheduler's staged sysroot artifacts, or
// scratch space.
func (c Config) CASRoot() string           { return filepath.Join(c.CacheRoot, "cas") }
func (c Config) ActionCacheRoot() string   { return filepath.Join(c.CacheRoot, "actions") }
func (c Config) ArtifactCacheRoot() string { return filepath.Join(c.CacheRoot, "artifacts") }
func (c Config) ScratchRoot() string       { return filepath.Join(c.CacheRoot, "scratch") }

// SandboxBackendFor resolves the configured backend preference to a
// concrete sandbox.Backend, falling back to the engine's own capability
// probe for "auto".
func (c Config) SandboxBackendFor() sandbox.Backend {
	switch c.SandboxBackend {
	case "native-namespace":
		return sandbox.NewNativeNamespaceBackend()
	case "systemd":
		return sandbox.NewSystemdScopeBackend()
	case "basic":
		return sandbox.NewBasicBackend()
	default:
		return sandbox.Detect()
	}
}
