// Package cache stores rendered artifacts.
//
// Three backends implement [Cache]:
//   - [FileCache] keeps entries as JSON files under a directory (CLI default)
//   - [RedisCache] shares entries between server instances
//   - [NullCache] disables caching
//
// Keys come from a [Keyer] so every component derives them the same way.
// Artifact keys hash the document bytes together with everything that
// influences layout (viewport width, mode, layout constants, font), so a
// changed constant never serves a stale rendering.
package cache

import (
	"context"
	"time"
)

// ArtifactTTL is the default lifetime of a rendered artifact.
const ArtifactTTL = 24 * time.Hour

// Cache is a byte store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A missing or expired entry is a miss,
	// not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of 0 never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ArtifactKeyOpts lists the inputs that change a rendered artifact.
type ArtifactKeyOpts struct {
	Format     string  `json:"format"`
	Width      float64 `json:"width"`
	Mode       string  `json:"mode"`
	Layout     any     `json:"layout"`
	Font       any     `json:"font"`
	Selectors  any     `json:"selectors"`
	RenderOpts any     `json:"render,omitempty"`
}

// Keyer derives cache keys.
type Keyer interface {
	// ArtifactKey keys a rendered artifact of the document with docHash.
	ArtifactKey(docHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer hashes key inputs with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) ArtifactKey(docHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", docHash, opts)
}
