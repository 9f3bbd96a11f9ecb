package engine

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

// Defaults used when a tunable is not set explicitly
const (
	DefaultMaxKeys            uint64 = 1_000_000
	DefaultRedundantBlocks    uint16 = 1
	DefaultPoolCapacity       uint64 = 5
	DefaultCompactionInterval        = 3600 * time.Second

	// PoolBufferSize is the size of one buffer of the pool (see Options.PoolCapacity)
	PoolBufferSize = 64 * 1024
)

// Options configures an engine during Open
type Options struct {
	StorePath          string           // Directory holding the engine files (created if missing)
	MaxKeys            uint64           // Maximum number of keys (0 = no limit)
	RedundantBlocks    uint16           // Number of redundant copies the engine keeps (engine specific)
	PoolCapacity       uint64           // Number of PoolBufferSize buffers used for caching and buffering
	CompactionInterval time.Duration    // Interval of the background compaction (0 = disabled)
	SearchEnabled      bool             // Whether prefix search is supported
	Clock              func() time.Time // Time source for expiration (nil = time.Now)
}

// DefaultOptions returns the default options for a store at the given path
func DefaultOptions(storePath string) *Options {
	return &Options{
		StorePath:          storePath,
		MaxKeys:            DefaultMaxKeys,
		RedundantBlocks:    DefaultRedundantBlocks,
		PoolCapacity:       DefaultPoolCapacity,
		CompactionInterval: DefaultCompactionInterval,
	}
}

// Now returns the current time of the configured clock
func (o *Options) Now() time.Time {
	if o.Clock == nil {
		return time.Now()
	}
	return o.Clock()
}

// BufferSize returns the number of bytes the pool may use
func (o *Options) BufferSize() int {
	if o.PoolCapacity == 0 {
		return PoolBufferSize
	}
	return int(o.PoolCapacity) * PoolBufferSize
}

// Prepare validates the options and creates the store directory
func (o *Options) Prepare() error {
	if o.StorePath == "" {
		return errors.New("store path must not be empty")
	}
	if info, err := os.Stat(o.StorePath); err == nil && !info.IsDir() {
		return fmt.Errorf("store path %s is not a directory", o.StorePath)
	}
	if err := os.MkdirAll(o.StorePath, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}

// ExpiresAt converts a ttl into an absolute expiration timestamp (unix nanoseconds).
// 0 is reserved for "never expires", so an already elapsed ttl maps to 1.
// Timestamps beyond the range of int64 saturate at math.MaxInt64.
func (o *Options) ExpiresAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 1
	}
	now := o.Now().UnixNano()
	if now > 0 && int64(ttl) > math.MaxInt64-now {
		return math.MaxInt64
	}
	return now + int64(ttl)
}

// IsExpired reports whether an entry with the given expiration timestamp is expired
func (o *Options) IsExpired(expiresAt int64) bool {
	return expiresAt != 0 && o.Now().UnixNano() >= expiresAt
}
