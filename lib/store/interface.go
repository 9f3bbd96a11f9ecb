package store

import (
	"context"
	"io"
)

// --------------------------------------------------------------------------
// Result Types
// --------------------------------------------------------------------------

// KeyValue is one entry of a search result page
type KeyValue struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Lookup is the result of an asynchronous Get.
// Found is false if the key is absent or expired.
type Lookup struct {
	Value string
	Found bool
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the blocking interface of a store.
// Every operation runs on the caller's goroutine and returns once the engine call
// completed. Failures are returned as *Error (see RetCode), nil on success.
type IStore interface {
	// Set inserts or updates a key-value pair without expiration.
	Set(key, value string) (err error)
	// SetE inserts or updates a key-value pair that expires ttl seconds after the call.
	// A ttl of 0 makes the entry inaccessible immediately.
	SetE(key, value string, ttl uint64) (err error)
	// Get returns the value for a key. found is false if the key is absent or expired.
	Get(key string) (value string, found bool, err error)
	// Delete removes a key-value pair. Deleting an absent key is not an error.
	Delete(key string) (err error)
	// Clear removes all key-value pairs.
	Clear() (err error)
	// Compact reclaims space held by obsolete entries without changing any visible entry.
	Compact() (err error)
	// Search returns the entries whose key starts with term, in ascending key order.
	// skip entries are dropped from the front, at most limit entries are returned (0 = no limit).
	// Search requires a store opened with Config.IsSearchEnabled.
	Search(term string, skip, limit uint64) (page []KeyValue, err error)
	// WritePrometheus writes the metrics of this handle in Prometheus text format.
	WritePrometheus(w io.Writer)
	// Close releases the engine. Operations after Close fail.
	Close() (err error)
}

// IAsyncStore is the non-blocking interface of a store that can be shared by any
// number of goroutines.
//
// Every operation returns immediately with a Future. The operation is queued and
// executed by a worker goroutine under the handle's mutex, so engine calls of one handle
// never overlap. Their order is the order in which workers acquire the mutex, not the
// order of submission: with more than one worker, two operations submitted back to back
// may run in reverse order, even from a single goroutine. Await the Future of an
// operation before submitting one that depends on it.
//
// The ctx of an operation is checked when a worker picks the operation up and again
// once the mutex is acquired: an operation whose ctx is done by then never reaches the
// engine and its Future fails with ctx.Err(). An engine call that already started is
// not interrupted.
type IAsyncStore interface {
	Set(ctx context.Context, key, value string) *Future[struct{}]
	SetE(ctx context.Context, key, value string, ttl uint64) *Future[struct{}]
	Get(ctx context.Context, key string) *Future[Lookup]
	Delete(ctx context.Context, key string) *Future[struct{}]
	Clear(ctx context.Context) *Future[struct{}]
	Compact(ctx context.Context) *Future[struct{}]
	Search(ctx context.Context, term string, skip, limit uint64) *Future[[]KeyValue]
	// WritePrometheus writes the metrics of this handle in Prometheus text format.
	WritePrometheus(w io.Writer)
	// Close stops accepting operations, waits for the queued ones and releases the engine.
	Close() (err error)
}
