// Package maple implements a persistent key-value engine with an in-memory index
// and an append-only write-ahead log. It provides a complete implementation of the
// engine.Engine interface.
//
// The package focuses on:
//   - Fast reads: every entry lives in memory, spread over shards
//   - Durability: every write is appended to the log before memory is updated
//   - Time-based expiration: entries with a ttl become invisible once due and
//     are purged from memory during compaction or when space is needed
//   - Optional ordered prefix search through a btree key index
//
// Key Components:
//
//   - mapleImpl: The engine. It owns the shards, the key index and the log, and
//     runs the background compaction loop.
//
//   - Shard: A partition of the key space. Each shard holds an xsync map with the
//     entries and a MapHeap with the expiration timestamps of the entries that have
//     a ttl. Keys are assigned to shards with a seeded FNV-1a hash; the seed is
//     stored in the log header so the layout is stable across restarts.
//
//   - Entry: The value bytes plus the absolute expiration timestamp (unix
//     nanoseconds, 0 = never).
//
//   - Log (maple.log): A header (magic number, format version, seed) followed by
//     set and delete records, each protected by a CRC32 checksum. On open the log
//     is replayed; a torn tail left by a crash is cut off.
//
// Compaction:
//
// Compact writes the live entries into a new log and atomically swaps it in. The
// replaced log is kept as backup generation maple.log.1, older backups move up to
// maple.log.N where N is Options.RedundantBlocks (0 = no backups). Clear does the
// same with an empty log.
//
// Tunables:
//
//   - Options.MaxKeys: hard limit of keys, expired entries are purged before a
//     write is rejected with engine.ErrCapacityExceeded
//   - Options.PoolCapacity: size of the log write buffer in 64 KiB units
//   - Options.CompactionInterval: interval of the background compaction
//
// Thread-safety: the engine is not safe for concurrent callers. Its internal mutex
// only fences the background compaction goroutine. Use the store handles in
// lib/store to share an engine.
package maple
