// Package fetch defines the do_fetch network hook: a minimal named-source
// fetch interface and a rate limiter gating it. The concrete network
// protocol is out of scope; this package only standardizes the interface
// the executor calls and ships a local-file implementation for tests.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

// Source is one named upstream to fetch for a recipe's do_fetch task.
type Source struct {
	Name string // recipe-local identifier, e.g. "main-tarball"
	URI  string // e.g. "file:///srv/downloads/zlib-1.3.tar.gz"
}

// Fetcher retrieves src into destDir and returns the path of the file it
// wrote there.
type Fetcher interface {
	Fetch(ctx context.Context, src Source, destDir string) (string, error)
}

// LocalFileFetcher resolves file:// URIs by copying the referenced path
// into destDir. It is the only concrete Fetcher this package ships — real
// deployments supply their own (http, git, oras) behind the same interface.
type LocalFileFetcher struct{}

// NewLocalFileFetcher returns a ready-to-use LocalFileFetcher.
func NewLocalFileFetcher() *LocalFileFetcher { return &LocalFileFetcher{} }

func (f *LocalFileFetcher) Fetch(ctx context.Context, src Source, destDir string) (string, error) {
	u, err := url.Parse(src.URI)
	if err != nil {
		return "", bberrors.Wrap(bberrors.CodeFetchError, fmt.Sprintf("parsing URI %q", src.URI), err)
	}
	if u.Scheme != "file" {
		return "", bberrors.New(bberrors.CodeFetchError, fmt.Sprintf("unsupported scheme %q for %s (only file:// is built in)", u.Scheme, src.Name))
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", bberrors.Wrap(bberrors.CodeFetchError, fmt.Sprintf("creating %s", destDir), err)
	}

	srcPath := u.Path
	dest := filepath.Join(destDir, filepath.Base(srcPath))
	// Stage under a per-call uuid name so two concurrent fetches that
	// happen to resolve to the same dest (a shared mirror, a retry racing
	// its own predecessor) never interleave writes to one file; only the
	// rename onto dest is visible to other readers.
	staging := filepath.Join(destDir, fmt.Sprintf(".%s.part", uuid.NewString()))

	in, err := os.Open(srcPath)
	if err != nil {
		fetchTotal.WithLabelValues("error").Inc()
		return "", bberrors.Wrap(bberrors.CodeFetchError, fmt.Sprintf("opening %s for %s", srcPath, src.Name), err)
	}
	defer in.Close()

	out, err := os.Create(staging)
	if err != nil {
		fetchTotal.WithLabelValues("error").Inc()
		return "", bberrors.Wrap(bberrors.CodeFetchError, fmt.Sprintf("creating %s", staging), err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(staging)
		fetchTotal.WithLabelValues("error").Inc()
		return "", bberrors.Wrap(bberrors.CodeFetchError, fmt.Sprintf("copying %s", srcPath), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(staging)
		fetchTotal.WithLabelValues("error").Inc()
		return "", bberrors.Wrap(bberrors.CodeFetchError, fmt.Sprintf("closing %s", staging), err)
	}
	if err := os.Rename(staging, dest); err != nil {
		os.Remove(staging)
		fetchTotal.WithLabelValues("error").Inc()
		return "", bberrors.Wrap(bberrors.CodeFetchError, fmt.Sprintf("renaming %s to %s", staging, dest), err)
	}
	fetchTotal.WithLabelValues("ok").Inc()
	return dest, nil
}

// RateLimitedFetcher wraps a Fetcher with a token-bucket limiter, the same
// pattern the teacher's server config expresses as RateLimit/RateLimitBurst
// fields, applied here to outbound fetch traffic instead of inbound
// requests.
type RateLimitedFetcher struct {
	next    Fetcher
	limiter *rate.Limiter
}

// NewRateLimitedFetcher wraps next with a limiter allowing limit fetches
// per second, with up to burst fetches admitted without waiting.
func NewRateLimitedFetcher(next Fetcher, limit rate.Limit, burst int) *RateLimitedFetcher {
	return &RateLimitedFetcher{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (f *RateLimitedFetcher) Fetch(ctx context.Context, src Source, destDir string) (string, error) {
	start := time.Now()
	if err := f.limiter.Wait(ctx); err != nil {
		return "", bberrors.Wrap(bberrors.CodeFetchError, fmt.Sprintf("rate limiter wait for %s", src.Name), err)
	}
	fetchLimiterWaitSeconds.Observe(time.Since(start).Seconds())
	return f.next.Fetch(ctx, src, destDir)
}
