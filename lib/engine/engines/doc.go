// Package engines opens a storage engine by its implementation name.
//
// Available engines:
//   - maple: sharded in-memory index with a write-ahead log (default)
//   - sqlite: single table in an embedded sqlite database
//   - leveldb: goleveldb key-value store
package engines
