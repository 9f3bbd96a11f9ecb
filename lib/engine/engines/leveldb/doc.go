// Package leveldb implements the engine.Engine interface on top of goleveldb.
//
// The database lives in <store path>/leveldb. Every value is stored in an envelope
// of an 8 byte big endian expiration timestamp (unix nanoseconds, 0 = never)
// followed by the value bytes. Expired entries are filtered on read and deleted by
// Compact, which then compacts the whole key range.
//
// Prefix search iterates util.BytesPrefix(term), leveldb keeps keys sorted so the
// results come out in byte-wise key order.
//
// Options.PoolCapacity sets the block cache (64 KiB per unit). Options.RedundantBlocks
// is ignored. leveldb takes a file lock, so a store can only be opened by one
// process at a time.
package leveldb
