package cas

import (
	"log/slog"
	"os"
	"sort"

	digest "github.com/opencontainers/go-digest"
)

// gcIfNeededLocked triggers LRU-only eviction once the store exceeds
// config.GCThresholdBytes, cleaning down to config.GCTargetBytes. Automatic
// GC never does mark-and-sweep: it has no view of which objects the action
// cache still references, so only GCWithActionCache can safely delete
// unreachable objects. Caller must hold s.mu.
func (s *Store) gcIfNeededLocked() error {
	total := s.totalSizeLocked()
	if total <= s.config.GCThresholdBytes {
		return nil
	}

	bytesToFree := total - s.config.GCTargetBytes
	slog.Warn("cas size exceeds threshold, evicting",
		"total_bytes", total, "threshold_bytes", s.config.GCThresholdBytes, "target_bytes", s.config.GCTargetBytes)

	evicted, err := s.evictLRULocked(bytesToFree)
	if err != nil {
		return err
	}
	slog.Info("automatic cas gc complete", "objects_evicted", evicted)
	return nil
}

// GC performs mark-and-sweep: every digest not named in keep is deleted,
// and if the store is still over its GC target afterward, the oldest
// remaining objects are evicted by last access time. It returns the total
// number of objects removed.
func (s *Store) GC(keep []digest.Digest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reachable := make(map[digest.Digest]struct{}, len(keep))
	for _, d := range keep {
		reachable[d] = struct{}{}
	}

	deleted := 0
	for d, m := range s.index {
		if _, ok := reachable[d]; ok {
			continue
		}
		if err := os.Remove(m.path); err != nil {
			slog.Warn("failed to delete unreachable object", "digest", d, "error", err)
			continue
		}
		delete(s.index, d)
		deleted++
	}
	gcObjectsEvicted.WithLabelValues("unreachable").Add(float64(deleted))

	if total := s.totalSizeLocked(); total > s.config.GCTargetBytes {
		evicted, err := s.evictLRULocked(total - s.config.GCTargetBytes)
		if err != nil {
			return deleted, err
		}
		deleted += evicted
	}

	storeSizeBytes.Set(float64(s.totalSizeLocked()))
	return deleted, nil
}

// GCWithActionCache walks ac for every content hash its recorded task
// outputs still reference, treats that set as reachable, and runs GC
// against it — the recommended way to collect the store, since it is the
// only caller with enough information to distinguish live objects from
// garbage.
func (s *Store) GCWithActionCache(ac *ActionCache) (int, error) {
	reachable := ac.ReferencedContentHashes()
	keep := make([]digest.Digest, 0, len(reachable))
	for d := range reachable {
		keep = append(keep, d)
	}
	return s.GC(keep)
}

// evictLRULocked removes the least-recently-accessed objects until at
// least bytesToFree bytes have been freed. Caller must hold s.mu.
func (s *Store) evictLRULocked(bytesToFree int64) (int, error) {
	type entry struct {
		digest digest.Digest
		meta   objectMetadata
	}
	entries := make([]entry, 0, len(s.index))
	for d, m := range s.index {
		entries = append(entries, entry{digest: d, meta: m})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].meta.lastAccess.Before(entries[j].meta.lastAccess)
	})

	var freed int64
	evicted := 0
	for _, e := range entries {
		if freed >= bytesToFree {
			break
		}
		if err := os.Remove(e.meta.path); err != nil {
			slog.Warn("failed to evict object", "digest", e.digest, "error", err)
			continue
		}
		delete(s.index, e.digest)
		freed += e.meta.sizeBytes
		evicted++
	}
	gcObjectsEvicted.WithLabelValues("lru").Add(float64(evicted))
	return evicted, nil
}
