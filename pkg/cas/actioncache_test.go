package cas

import (
	"testing"

	digest "github.com/opencontainers/go-digest"
)

func TestActionCachePutGet(t *testing.T) {
	ac, err := OpenActionCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenActionCache: %v", err)
	}

	sig := digest.FromBytes([]byte("test-signature"))
	output := TaskOutput{
		Signature:   sig,
		OutputFiles: map[string]digest.Digest{},
		Stdout:      "success",
		ExitCode:    0,
		DurationMS:  100,
	}

	if err := ac.Put(sig, output); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := ac.Get(sig)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.Stdout != "success" || got.ExitCode != 0 {
		t.Fatalf("unexpected output: %+v", got)
	}
}

func TestActionCachePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	sig := digest.FromBytes([]byte("persistent"))
	output := TaskOutput{Signature: sig, Stdout: "persistent", ExitCode: 0, DurationMS: 50}

	ac, err := OpenActionCache(dir)
	if err != nil {
		t.Fatalf("OpenActionCache: %v", err)
	}
	if err := ac.Put(sig, output); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := OpenActionCache(dir)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	got, ok := reopened.Get(sig)
	if !ok {
		t.Fatalf("expected persisted entry to reload")
	}
	if got.Stdout != "persistent" {
		t.Fatalf("unexpected stdout: %q", got.Stdout)
	}
}

func TestActionCacheInvalidateRemovesEntry(t *testing.T) {
	ac, err := OpenActionCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenActionCache: %v", err)
	}
	sig := digest.FromBytes([]byte("to-invalidate"))
	if err := ac.Put(sig, TaskOutput{Signature: sig}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !ac.Contains(sig) {
		t.Fatalf("expected entry present before invalidation")
	}
	if err := ac.Invalidate(sig); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if ac.Contains(sig) {
		t.Fatalf("expected entry gone after invalidation")
	}
}

func TestReferencedContentHashesCollectsAllOutputFiles(t *testing.T) {
	ac, err := OpenActionCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenActionCache: %v", err)
	}
	a := digest.FromBytes([]byte("a"))
	b := digest.FromBytes([]byte("b"))

	sig1 := digest.FromBytes([]byte("sig1"))
	sig2 := digest.FromBytes([]byte("sig2"))
	if err := ac.Put(sig1, TaskOutput{Signature: sig1, OutputFiles: map[string]digest.Digest{"x": a}}); err != nil {
		t.Fatalf("Put sig1: %v", err)
	}
	if err := ac.Put(sig2, TaskOutput{Signature: sig2, OutputFiles: map[string]digest.Digest{"y": b}}); err != nil {
		t.Fatalf("Put sig2: %v", err)
	}

	hashes := ac.ReferencedContentHashes()
	if len(hashes) != 2 {
		t.Fatalf("expected 2 referenced hashes, got %d", len(hashes))
	}
	if _, ok := hashes[a]; !ok {
		t.Fatalf("expected hash a to be referenced")
	}
	if _, ok := hashes[b]; !ok {
		t.Fatalf("expected hash b to be referenced")
	}
}

func TestClearEmptiesCache(t *testing.T) {
	ac, err := OpenActionCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenActionCache: %v", err)
	}
	sig := digest.FromBytes([]byte("clearable"))
	if err := ac.Put(sig, TaskOutput{Signature: sig}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := ac.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if ac.Stats().EntryCount != 0 {
		t.Fatalf("expected empty cache after Clear, got %d entries", ac.Stats().EntryCount)
	}
}
