// Package cas implements the build engine's content-addressable object
// store and action cache: every task output is stored once under its
// digest, and every completed task's signature maps to a recorded result so
// a later run with an identical signature can skip re-execution entirely.
package cas

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content"

	"github.com/bbforge/bbforge/pkg/bberrors"
)

// compile-time assertion that Store really satisfies oras-go's generic
// content.Storage interface, not just a structurally similar one.
var _ content.Storage = (*Store)(nil)

// defaultMediaType is used for CAS objects that carry no more specific
// media type of their own (task stdout/stderr blobs, opaque file content).
const defaultMediaType = "application/octet-stream"

// Config bounds how large the store is allowed to grow before garbage
// collection kicks in. The zero value is not usable; use DefaultConfig.
type Config struct {
	// MaxSizeBytes is documented intent only; GCThresholdBytes is what
	// actually triggers eviction on Put, matching cache.rs's own
	// distinction between an advisory maximum and the enforced threshold.
	MaxSizeBytes     int64
	GCThresholdBytes int64
	GCTargetBytes    int64
}

// DefaultConfig returns the engine's default sizing: a 10 GiB advisory cap,
// automatic GC triggered at 8 GiB, cleaning down to 6 GiB.
func DefaultConfig() Config {
	const gib = 1024 * 1024 * 1024
	return Config{
		MaxSizeBytes:     10 * gib,
		GCThresholdBytes: 8 * gib,
		GCTargetBytes:    6 * gib,
	}
}

type objectMetadata struct {
	path       string
	sizeBytes  int64
	lastAccess time.Time
}

// Store is a sharded, digest-addressed blob store rooted at a directory on
// disk. It satisfies oras-go v2's content.Storage shape (Fetch/Push/Exists)
// so callers can walk or copy it with oras-go's generic content tooling,
// while also exposing the byte-slice and hardlink conveniences the
// scheduler/executor need directly.
type Store struct {
	root   string
	mu     sync.Mutex
	index  map[digest.Digest]objectMetadata
	config Config
}

// Open creates or opens a Store at root using DefaultConfig.
func Open(root string) (*Store, error) {
	return OpenWithConfig(root, DefaultConfig())
}

// OpenWithConfig creates or opens a Store at root, rebuilding its in-memory
// index from whatever is already on disk.
func OpenWithConfig(root string, config Config) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("creating cas root %s", root), err)
	}
	s := &Store{root: root, index: make(map[digest.Digest]objectMetadata), config: config}
	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Put stores content and returns its descriptor. Storing the same content
// twice is a no-op beyond refreshing the access time used for LRU eviction.
func (s *Store) Put(content []byte) (ocispec.Descriptor, error) {
	d := digest.FromBytes(content)
	desc := ocispec.Descriptor{MediaType: defaultMediaType, Digest: d, Size: int64(len(content))}
	path := s.hashToPath(d)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		s.touch(d)
		objectPutTotal.WithLabelValues("deduplicated").Inc()
		return desc, nil
	}

	lock, err := acquireLock(path + ".lock")
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	defer lock.release()

	if _, err := os.Stat(path); err == nil {
		s.touch(d)
		objectPutTotal.WithLabelValues("deduplicated").Inc()
		return desc, nil
	}

	if err := atomicWrite(path, content); err != nil {
		return ocispec.Descriptor{}, err
	}

	s.index[d] = objectMetadata{path: path, sizeBytes: desc.Size, lastAccess: time.Now()}
	objectPutTotal.WithLabelValues("stored").Inc()
	storeSizeBytes.Set(float64(s.totalSizeLocked()))

	if err := s.gcIfNeededLocked(); err != nil {
		return desc, err
	}
	return desc, nil
}

// PutFile reads path and stores its content.
func (s *Store) PutFile(path string) (ocispec.Descriptor, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ocispec.Descriptor{}, bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("reading %s", path), err)
	}
	return s.Put(content)
}

// Get retrieves content by digest, routed through oras-go's content.FetchAll
// against s's own Fetch so the read path is verified against the descriptor
// the same way a pull from a real OCI registry would be.
func (s *Store) Get(d digest.Digest) ([]byte, error) {
	start := time.Now()
	defer func() { objectGetDuration.Observe(time.Since(start).Seconds()) }()

	s.mu.Lock()
	s.touch(d)
	size := s.index[d].sizeBytes
	s.mu.Unlock()

	desc := ocispec.Descriptor{MediaType: defaultMediaType, Digest: d, Size: size}
	data, err := content.FetchAll(context.Background(), s, desc)
	if err != nil {
		return nil, bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("reading object %s", d), err)
	}
	return data, nil
}

// rawRead reads an object's bytes straight off disk by digest, with no
// oras-go involvement. Fetch calls this directly rather than Get, since Get
// itself goes through content.FetchAll -> Fetch and would otherwise recurse.
func (s *Store) rawRead(d digest.Digest) ([]byte, error) {
	data, err := os.ReadFile(s.hashToPath(d))
	if err != nil {
		return nil, bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("reading object %s", d), err)
	}
	return data, nil
}

// Contains reports whether d is present in the store.
func (s *Store) Contains(d digest.Digest) bool {
	_, err := os.Stat(s.hashToPath(d))
	return err == nil
}

// GetFile restores the object named by d to dest, overwriting any existing
// file there.
func (s *Store) GetFile(d digest.Digest, dest string) error {
	content, err := s.Get(d)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("creating %s", dir), err)
		}
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("writing %s", dest), err)
	}
	return nil
}

// LinkFile hardlinks the object named by d into dest, falling back to a
// copy when the destination is on a different filesystem.
func (s *Store) LinkFile(d digest.Digest, dest string) error {
	source := s.hashToPath(d)
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return bberrors.Wrap(bberrors.CodeCacheError, fmt.Sprintf("creating %s", dir), err)
		}
	}
	if err := os.Link(source, dest); err == nil {
		return nil
	}
	return s.GetFile(d, dest)
}

// Fetch implements oras-go v2's content.Fetcher.
func (s *Store) Fetch(_ context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	data, err := s.rawRead(target.Digest)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Push implements oras-go v2's content.Pusher: content is buffered, its
// digest verified against expected.Digest, then stored.
func (s *Store) Push(_ context.Context, expected ocispec.Descriptor, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return bberrors.Wrap(bberrors.CodeCacheError, "reading push content", err)
	}
	actual := digest.FromBytes(data)
	if expected.Digest != "" && actual != expected.Digest {
		return bberrors.New(bberrors.CodeCacheError,
			fmt.Sprintf("digest mismatch: expected %s, got %s", expected.Digest, actual))
	}
	_, err = s.Put(data)
	return err
}

// Exists implements oras-go v2's content.Storage membership check.
func (s *Store) Exists(_ context.Context, target ocispec.Descriptor) (bool, error) {
	return s.Contains(target.Digest), nil
}

// Stats summarizes the store's current footprint.
type Stats struct {
	ObjectCount    int
	TotalSizeBytes int64
}

// Stats reports the number of objects and their combined size.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{ObjectCount: len(s.index), TotalSizeBytes: s.totalSizeLocked()}
}

func (s *Store) touch(d digest.Digest) {
	if m, ok := s.index[d]; ok {
		m.lastAccess = time.Now()
		s.index[d] = m
	}
}

func (s *Store) totalSizeLocked() int64 {
	var total int64
	for _, m := range s.index {
		total += m.sizeBytes
	}
	return total
}

// hashToPath maps a digest to its on-disk location, sharded two levels deep
// by the first four hex characters to keep any one directory from growing
// unbounded.
func (s *Store) hashToPath(d digest.Digest) string {
	hex := d.Encoded()
	return filepath.Join(s.root, string(d.Algorithm()), hex[0:2], hex[2:4], hex)
}

// rebuildIndex walks root's on-disk layout to repopulate the in-memory
// index, discarding any leftover .tmp/.lock files from a prior crash.
func (s *Store) rebuildIndex() error {
	algoDir := filepath.Join(s.root, digest.Canonical.String())
	if _, err := os.Stat(algoDir); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(algoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if hasSuffix(name, ".tmp") || hasSuffix(name, ".lock") {
			os.Remove(path)
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil
		}
		dg := digest.NewDigestFromEncoded(digest.Canonical, name)
		s.index[dg] = objectMetadata{path: path, sizeBytes: info.Size(), lastAccess: info.ModTime()}
		return nil
	})
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
