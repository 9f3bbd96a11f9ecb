// Package engine defines the contract between the store handles and the storage
// engines they wrap.
//
// An Engine is a blocking key-value store bound to one directory. It stores raw
// bytes, supports per-key expiration, explicit compaction and (optionally) prefix
// search. Engines are deliberately not safe for concurrent callers; the handles in
// lib/store add exclusive ownership (bstore) or a mutex plus worker dispatch (astore).
//
// Key Components:
//
//   - Engine Interface: Set, SetE, Get, Delete, Clear, Compact and Search on raw bytes.
//
//   - Options: the tunables every engine understands (MaxKeys, RedundantBlocks,
//     PoolCapacity, CompactionInterval, SearchEnabled) plus an injectable Clock.
//     DefaultOptions mirrors the defaults of the original engine:
//     1,000,000 keys, 1 redundant block, a pool of 5 buffers and one compaction per hour.
//
//   - Feature Flags: engines advertise their capabilities through SupportsFeature,
//     e.g. FeatureSearch is only reported when search was enabled at open time.
//
//   - Errors: ErrClosed, ErrSearchDisabled, ErrCapacityExceeded and ErrCorrupted are
//     returned (possibly wrapped) by all implementations.
//
// Note on Expiration:
//   - Expiration timestamps are absolute unix nanoseconds taken from Options.Clock.
//   - Get and Search never return an expired entry, even if it is still on disk.
//   - Expired entries are physically removed by Compact (manual or background).
//
// Note on Search Order:
//
//	All implementations return search hits in ascending byte-wise key order. The
//	order is only stable as long as the store is not mutated between two calls.
//
// Implementations live in lib/engine/engines/{maple,sqlite,leveldb}; the engines
// package opens one of them by name. The testing package provides a conformance
// suite every implementation runs.
package engine
