package internal

import (
	"github.com/ValentinKolb/scdb/lib/engine/util"
	"github.com/google/btree"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (value with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with its expiration timestamp
type Entry struct {
	Value     []byte // never nil, an empty value is an empty slice
	ExpiresAt int64  // unix nanoseconds, 0 = never expires
}

// IsExpired returns whether the entry is expired at the given time (unix nanoseconds)
func (e Entry) IsExpired(now int64) bool {
	return e.ExpiresAt != 0 && now >= e.ExpiresAt
}

// --------------------------------------------------------------------------
// Shard Type (partition of the key space)
// --------------------------------------------------------------------------

// Shard represents a partition of the store
type Shard struct {
	Data   *xsync.MapOf[string, Entry] // Map of all entries (including expired but not yet purged ones)
	Expiry *util.MapHeap[string]       // Keys with a ttl, ordered by expiration timestamp
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data:   xsync.NewMapOf[string, Entry](),
		Expiry: util.NewMapHeap[string](),
	}
}

// NewShards creates n empty shards
func NewShards(n int) []*Shard {
	shards := make([]*Shard, n)
	for i := range shards {
		shards[i] = NewShard()
	}
	return shards
}

// GetShard returns the appropriate shard for a given key hash
func GetShard[T any](hash uint64, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	return shards[(hash>>7)%uint64(len(shards))]
}

// --------------------------------------------------------------------------
// Ordered key index (used for prefix search)
// --------------------------------------------------------------------------

// Key is a btree item ordering keys byte-wise
type Key string

// Less implements btree.Item
func (k Key) Less(than btree.Item) bool {
	return k < than.(Key)
}
