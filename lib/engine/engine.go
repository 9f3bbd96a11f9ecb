package engine

import (
	"errors"
	"time"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple   Implementation = "maple"
	ImplSQLite  Implementation = "sqlite"
	ImplLevelDB Implementation = "leveldb"
)

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeatureSet         Feature = 1 << iota // Support for Set operations
	FeatureSetE                            // Support for SetE operations (per-key ttl)
	FeatureGet                             // Support for Get operations
	FeatureDelete                          // Support for Delete operations
	FeatureClear                           // Support for Clear operations
	FeatureCompact                         // Support for Compact operations
	FeatureSearch                          // Support for prefix Search operations
	FeaturePersistence                     // Data survives closing and reopening the store
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureSetE:
		return "SetE"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureClear:
		return "Clear"
	case FeatureCompact:
		return "Compact"
	case FeatureSearch:
		return "Search"
	case FeaturePersistence:
		return "Persistence"
	default:
		return "Unknown"
	}
}

// KeyValuePair is a single search hit as raw bytes.
type KeyValuePair struct {
	Key   []byte
	Value []byte
}

type Info struct {
	StorePath         string         `json:"store_path"`
	Keys              int            `json:"keys"`
	SizeBytes         int64          `json:"size_bytes"`
	EngineType        Implementation `json:"engine_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrClosed is returned by every operation on a closed engine.
	ErrClosed = errors.New("engine is closed")
	// ErrSearchDisabled is returned by Search if the engine was opened without search support.
	ErrSearchDisabled = errors.New("search is not enabled for this store")
	// ErrCapacityExceeded is returned if a new key would exceed Options.MaxKeys.
	ErrCapacityExceeded = errors.New("store capacity exceeded")
	// ErrCorrupted is returned if persisted data cannot be read back.
	ErrCorrupted = errors.New("store data is corrupted")
)

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// Engine is a blocking key-value storage engine bound to one directory on disk.
//
// Engines store raw bytes and never interpret them. They make no promise about
// concurrent callers: the only goroutine an engine fences itself against is its own
// background compaction. Sharing one engine between goroutines is the job of the
// store handles (see lib/store).
type Engine interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry without expiration.
	Set(key, value []byte) (err error)

	// SetE inserts or updates an entry that becomes inaccessible once ttl has elapsed.
	// A ttl <= 0 makes the entry inaccessible immediately.
	SetE(key, value []byte, ttl time.Duration) (err error)

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(key []byte) (err error)

	// Clear removes all entries.
	Clear() (err error)

	// Compact reclaims the space held by deleted, overwritten and expired entries.
	// It never changes the set of visible entries.
	Compact() (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a live (not expired) value was found.
	// The returned slice is owned by the caller.
	Get(key []byte) (value []byte, found bool, err error)

	// Search returns the live entries whose key starts with term, in ascending key order.
	// skip entries are dropped from the front and at most limit entries are returned;
	// limit == 0 means no limit. Returns ErrSearchDisabled if search was not enabled.
	Search(term []byte, skip, limit uint64) (result []KeyValuePair, err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the engine.
	GetInfo() (info Info)

	// Close flushes pending data and releases all resources.
	Close() (err error)
}

// Factory opens an engine with the given options.
type Factory func(opts *Options) (Engine, error)
