// Package util provides building blocks shared by the storage engines and the
// store handles.
//
// The package contains:
//   - functions: seeded hashing, prefix range helpers and a skip/limit Pager for searches
//   - mapheap: a priority queue with key-based access, used to track expiring entries
//   - lockfreempsc: a lock-free Multi-Producer Single-Consumer queue, used by the
//     async store to hand operations to its workers
//   - statistics: shard distribution statistics and a SizeHistogram for value sizes
package util
