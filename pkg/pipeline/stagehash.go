package pipeline

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StageHash is the content fingerprint of one pipeline stage's inputs,
// persisted to the stage cache so a later run can skip stages whose inputs
// have not changed.
type StageHash struct {
	Stage     string `json:"stage"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// NewStageHash hashes data with SHA-256 and stamps the result with the
// current time.
func NewStageHash(stage string, data []byte) StageHash {
	sum := sha256.Sum256(data)
	return StageHash{Stage: stage, Hash: fmt.Sprintf("%x", sum), Timestamp: time.Now().Unix()}
}

func (p *Pipeline) cachePath(stage string) string {
	return filepath.Join(p.config.CacheDir, stage+".cache")
}

// SaveStageHash persists h to the stage cache. A no-op when caching is
// disabled.
func (p *Pipeline) SaveStageHash(h StageHash) error {
	if !p.config.EnableCache {
		return nil
	}
	if err := os.MkdirAll(p.config.CacheDir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return os.WriteFile(p.cachePath(h.Stage), data, 0o644)
}

// LoadStageHash returns the previously cached hash for stage, if any.
func (p *Pipeline) LoadStageHash(stage string) (StageHash, bool) {
	if !p.config.EnableCache {
		return StageHash{}, false
	}
	data, err := os.ReadFile(p.cachePath(stage))
	if err != nil {
		return StageHash{}, false
	}
	var h StageHash
	if json.Unmarshal(data, &h) != nil {
		return StageHash{}, false
	}
	return h, true
}

// NeedsRecompute reports whether stage's cached hash differs from
// currentHash (or is simply absent).
func (p *Pipeline) NeedsRecompute(stage, currentHash string) bool {
	cached, ok := p.LoadStageHash(stage)
	return !ok || cached.Hash != currentHash
}
