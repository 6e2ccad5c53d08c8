package cas

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	digest "github.com/opencontainers/go-digest"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

// TaskOutput is the recorded result of one executed task, keyed by its
// fingerprint signature. OutputFiles maps each declared output path to the
// CAS digest holding its content, so a cache hit can be replayed by
// hardlinking every entry out of the store without re-running the task.
type TaskOutput struct {
	Signature   digest.Digest            `json:"signature"`
	OutputFiles map[string]digest.Digest `json:"output_files"`
	Stdout      string                   `json:"stdout"`
	Stderr      string                   `json:"stderr"`
	ExitCode    int                      `json:"exit_code"`
	DurationMS  int64                    `json:"duration_ms"`
}

// ActionCache maps task signatures to recorded TaskOutputs, persisted one
// JSON file per entry under a sharded directory layout matching the CAS's
// own convention.
type ActionCache struct {
	root  string
	mu    sync.RWMutex
	cache map[digest.Digest]TaskOutput
}

// OpenActionCache creates or opens an action cache at root, loading every
// existing entry from disk.
func OpenActionCache(root string) (*ActionCache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("creating action cache root %s", root), err)
	}
	a := &ActionCache{root: root, cache: make(map[digest.Digest]TaskOutput)}
	if err := a.loadFromDisk(); err != nil {
		return nil, err
	}
	return a, nil
}

// Get looks up a recorded result by signature.
func (a *ActionCache) Get(signature digest.Digest) (TaskOutput, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out, ok := a.cache[signature]
	if ok {
		actionCacheHits.WithLabelValues("hit").Inc()
	} else {
		actionCacheHits.WithLabelValues("miss").Inc()
	}
	return out, ok
}

// Contains reports whether signature has a recorded result, without
// affecting hit/miss metrics.
func (a *ActionCache) Contains(signature digest.Digest) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.cache[signature]
	return ok
}

// Put records output under signature, persisting it to disk before
// updating the in-memory index.
func (a *ActionCache) Put(signature digest.Digest, output TaskOutput) error {
	path := a.signatureToPath(signature)

	lock, err := acquireLock(path + ".lock")
	if err != nil {
		return err
	}
	defer lock.release()

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, "marshaling task output", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return err
	}

	a.mu.Lock()
	a.cache[signature] = output
	a.mu.Unlock()
	return nil
}

// Invalidate drops signature from the cache and removes its on-disk entry.
func (a *ActionCache) Invalidate(signature digest.Digest) error {
	a.mu.Lock()
	delete(a.cache, signature)
	a.mu.Unlock()

	path := a.signatureToPath(signature)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("removing %s", path), err)
	}
	return nil
}

// Clear empties the action cache, both in memory and on disk.
func (a *ActionCache) Clear() error {
	a.mu.Lock()
	a.cache = make(map[digest.Digest]TaskOutput)
	a.mu.Unlock()

	if err := os.RemoveAll(a.root); err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, "clearing action cache", err)
	}
	return os.MkdirAll(a.root, 0o755)
}

// ActionCacheStats summarizes the cache's current population.
type ActionCacheStats struct {
	EntryCount int
}

// Stats reports the number of recorded entries.
func (a *ActionCache) Stats() ActionCacheStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ActionCacheStats{EntryCount: len(a.cache)}
}

// ReferencedContentHashes collects every output-file digest named by every
// recorded TaskOutput — the CAS's GCWithActionCache treats this set as
// reachable and deletes everything else.
func (a *ActionCache) ReferencedContentHashes() map[digest.Digest]struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()

	hashes := make(map[digest.Digest]struct{})
	for _, out := range a.cache {
		for _, d := range out.OutputFiles {
			hashes[d] = struct{}{}
		}
	}
	return hashes
}

func (a *ActionCache) signatureToPath(signature digest.Digest) string {
	hex := signature.Encoded()
	return filepath.Join(a.root, hex[0:2], hex+".json")
}

func (a *ActionCache) loadFromDisk() error {
	return filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".json" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var out TaskOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		a.cache[out.Signature] = out
		return nil
	})
}
