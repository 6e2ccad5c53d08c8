// Package config centralizes bbforge's environment-driven configuration:
// cache location and sizing, sandbox backend preference, pipeline
// concurrency, and the do_fetch rate limit. It is modeled on the teacher's
// pkg/server/config.go: a Config struct with sane defaults, overridden by
// environment variables, validated once at startup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

// Config is bbforge's full runtime configuration.
type Config struct {
	// CacheRoot is the directory under which the CAS, action cache, and
	// per-recipe artifact cache live.
	CacheRoot string

	// CAS sizing, mirrored onto cas.Config at startup.
	CASMaxSizeBytes     int64
	CASGCThresholdBytes int64
	CASGCTargetBytes    int64

	// SandboxBackend selects which sandbox.Backend to use: "auto" (the
	// engine's own capability probe), "native-namespace", "systemd", or
	// "basic".
	SandboxBackend string

	// Pipeline concurrency, mirrored onto pipeline.Config.
	PipelineIOParallelism  int
	PipelineCPUParallelism int

	// FetchRateLimit and FetchRateLimitBurst bound do_fetch's network
	// hook: requests per second and burst size, mirrored onto
	// fetch.RateLimitedFetcher.
	FetchRateLimit      float64
	FetchRateLimitBurst int

	LogLevel string
}

// DefaultConfig returns bbforge's out-of-the-box defaults.
func DefaultConfig() Config {
	const gib = 1024 * 1024 * 1024
	return Config{
		CacheRoot:              ".bbforge-cache",
		CASMaxSizeBytes:        10 * gib,
		CASGCThresholdBytes:    8 * gib,
		CASGCTargetBytes:       6 * gib,
		SandboxBackend:         "auto",
		PipelineIOParallelism:  16,
		PipelineCPUParallelism: 0, // 0 means "use runtime.NumCPU()"
		FetchRateLimit:         10,
		FetchRateLimitBurst:    20,
		LogLevel:               slog.LevelInfo.String(),
	}
}

// envPrefix namespaces every bbforge environment variable.
const envPrefix = "BBFORGE_"

// Load builds a Config from DefaultConfig, overridden by any BBFORGE_*
// environment variables present, and validates the result.
func Load() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv(envPrefix + "CACHE_ROOT"); v != "" {
		cfg.CacheRoot = v
	}
	if v := os.Getenv(envPrefix + "CAS_MAX_SIZE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, bberrors.Wrap(bberrors.CodeResolveError, fmt.Sprintf("parsing %sCAS_MAX_SIZE_BYTES", envPrefix), err)
		}
		cfg.CASMaxSizeBytes = n
	}
	if v := os.Getenv(envPrefix + "CAS_GC_THRESHOLD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, bberrors.Wrap(bberrors.CodeResolveError, fmt.Sprintf("parsing %sCAS_GC_THRESHOLD_BYTES", envPrefix), err)
		}
		cfg.CASGCThresholdBytes = n
	}
	if v := os.Getenv(envPrefix + "CAS_GC_TARGET_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, bberrors.Wrap(bberrors.CodeResolveError, fmt.Sprintf("parsing %sCAS_GC_TARGET_BYTES", envPrefix), err)
		}
		cfg.CASGCTargetBytes = n
	}
	if v := os.Getenv(envPrefix + "SANDBOX_BACKEND"); v != "" {
		cfg.SandboxBackend = v
	}
	if v := os.Getenv(envPrefix + "PIPELINE_IO_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, bberrors.Wrap(bberrors.CodeResolveError, fmt.Sprintf("parsing %sPIPELINE_IO_PARALLELISM", envPrefix), err)
		}
		cfg.PipelineIOParallelism = n
	}
	if v := os.Getenv(envPrefix + "PIPELINE_CPU_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, bberrors.Wrap(bberrors.CodeResolveError, fmt.Sprintf("parsing %sPIPELINE_CPU_PARALLELISM", envPrefix), err)
		}
		cfg.PipelineCPUParallelism = n
	}
	if v := os.Getenv(envPrefix + "FETCH_RATE_LIMIT"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, bberrors.Wrap(bberrors.CodeResolveError, fmt.Sprintf("parsing %sFETCH_RATE_LIMIT", envPrefix), err)
		}
		cfg.FetchRateLimit = n
	}
	if v := os.Getenv(envPrefix + "FETCH_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, bberrors.Wrap(bberrors.CodeResolveError, fmt.Sprintf("parsing %sFETCH_RATE_LIMIT_BURST", envPrefix), err)
		}
		cfg.FetchRateLimitBurst = n
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a Config that would produce nonsensical engine behavior:
// negative sizes, an unrecognized sandbox backend, or a GC target at or
// above the threshold that triggers it.
func (c Config) Validate() error {
	if c.CacheRoot == "" {
		return bberrors.New(bberrors.CodeResolveError, "cache root must not be empty")
	}
	if c.CASMaxSizeBytes <= 0 || c.CASGCThresholdBytes <= 0 || c.CASGCTargetBytes <= 0 {
		return bberrors.New(bberrors.CodeResolveError, "CAS size thresholds must be positive")
	}
	if c.CASGCTargetBytes >= c.CASGCThresholdBytes {
		return bberrors.New(bberrors.CodeResolveError, "CAS GC target must be smaller than its threshold")
	}
	switch c.SandboxBackend {
	case "auto", "native-namespace", "systemd", "basic":
	default:
		return bberrors.New(bberrors.CodeResolveError, fmt.Sprintf("unrecognized sandbox backend %q", c.SandboxBackend))
	}
	if c.PipelineIOParallelism < 0 || c.PipelineCPUParallelism < 0 {
		return bberrors.New(bberrors.CodeResolveError, "pipeline parallelism must not be negative")
	}
	if c.FetchRateLimit <= 0 {
		return bberrors.New(bberrors.CodeResolveError, "fetch rate limit must be positive")
	}
	if c.FetchRateLimitBurst <= 0 {
		return bberrors.New(bberrors.CodeResolveError, "fetch rate limit burst must be positive")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, bberrors.Wrap(bberrors.CodeResolveError, fmt.Sprintf("unrecognized log level %q", s), err)
	}
	return level, nil
}
