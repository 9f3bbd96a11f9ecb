package store

import (
	"errors"
	"time"

	"github.com/ValentinKolb/scdb/lib/engine"
)

// DefaultWorkers is the number of dispatch workers of an async handle if Config.Workers is not set
const DefaultWorkers = 4

// Config configures a store handle. Nil pointers select the engine default.
// A handle copies the config on construction, later changes have no effect.
type Config struct {
	StorePath          string                // Directory of the store (required)
	Engine             engine.Implementation // Engine implementation ("" = maple)
	MaxKeys            *uint64               // Maximum number of keys
	RedundantBlocks    *uint16               // Number of redundant copies the engine keeps
	PoolCapacity       *uint64               // Number of 64 KiB buffers for caching and buffering
	CompactionInterval *uint32               // Background compaction interval in seconds (0 = disabled)
	IsSearchEnabled    bool                  // Enables Search
	Workers            int                   // Async dispatch workers (<= 0 = DefaultWorkers)
}

// Ptr returns a pointer to v, for the optional fields of Config
func Ptr[T any](v T) *T {
	return &v
}

// Validate checks the config for required fields
func (c Config) Validate() error {
	if c.StorePath == "" {
		return errors.New("store path must not be empty")
	}
	return nil
}

// EngineOptions converts the config into the options of the engine
func (c Config) EngineOptions() *engine.Options {
	opts := engine.DefaultOptions(c.StorePath)
	if c.MaxKeys != nil {
		opts.MaxKeys = *c.MaxKeys
	}
	if c.RedundantBlocks != nil {
		opts.RedundantBlocks = *c.RedundantBlocks
	}
	if c.PoolCapacity != nil {
		opts.PoolCapacity = *c.PoolCapacity
	}
	if c.CompactionInterval != nil {
		opts.CompactionInterval = time.Duration(*c.CompactionInterval) * time.Second
	}
	opts.SearchEnabled = c.IsSearchEnabled
	return opts
}

// WorkerCount returns the number of async dispatch workers
func (c Config) WorkerCount() int {
	if c.Workers <= 0 {
		return DefaultWorkers
	}
	return c.Workers
}
