// Package sqlite implements the engine.Engine interface on top of an embedded
// sqlite database (modernc.org/sqlite, no cgo required).
//
// All entries live in one table of <store path>/store.sqlite:
//
//	kv(key BLOB PRIMARY KEY, value BLOB, expires_at INTEGER)
//
// expires_at holds unix nanoseconds, 0 means the entry never expires. Expired rows
// are filtered on read and deleted by Compact, which also runs VACUUM to give the
// space back to the file system.
//
// Prefix search is a range scan over the primary key, so results are ordered
// byte-wise and skip/limit map directly to OFFSET/LIMIT.
//
// The database runs in WAL journal mode with a single connection, Options.PoolCapacity
// sets the page cache (64 KiB per unit). Options.RedundantBlocks is ignored.
package sqlite
