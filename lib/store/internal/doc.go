// Package internal holds the plumbing shared by the blocking and the async store
// handles: opening the configured engine, UTF-8 decoding of engine results, error
// classification and the per-handle metrics.
package internal
