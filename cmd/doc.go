// Package cmd implements the command-line interface of scdb. It provides a
// hierarchical command structure for working with a local store.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value store operations (set, get, del, clear, compact, search)
//     and the perf benchmark comparing the blocking and the async handle
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable with the prefix SCDB_,
// e.g. SCDB_PATH or SCDB_COMPACTION_INTERVAL. Variables are also read from .env and
// .env.local in the working directory.
//
// See scdb -help for a list of all commands.
package cmd
