// Package store provides the string level access layer over a persistent key-value
// engine (see lib/engine). It converts between the engine's raw bytes and UTF-8 text,
// classifies every failure and offers two kinds of handles.
//
// Key Components:
//
//   - IStore Interface: The blocking handle. Each call runs the engine operation on the
//     caller's goroutine. A blocking handle has exactly one owner and is not safe for
//     concurrent use, in the same way a bufio.Writer is not.
//
//   - IAsyncStore Interface: The shared handle. Each call returns a Future at once and
//     the operation is executed by a worker goroutine while holding the handle's mutex.
//     Any number of goroutines may use one async handle.
//
//   - Error System: Every failure is an *Error carrying a RetCode (IOError, DecodeError,
//     ConcurrencyError) and the wrapped cause. Cancelled operations fail with the plain
//     ctx.Err() since they never reached the engine.
//
//   - Config: Selects the store directory, the engine implementation and its tunables.
//     Unset tunables fall back to the engine defaults.
//
// Implementations:
//
//   - Blocking Store (bstore): "github.com/ValentinKolb/scdb/lib/store/bstore"
//   - Async Store (astore): "github.com/ValentinKolb/scdb/lib/store/astore"
//
// Usage:
//
//	s, err := bstore.New(store.Config{StorePath: "/tmp/scdb", IsSearchEnabled: true})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	_ = s.SetE("session:1", "alice", 60)
//	page, err := s.Search("session:", 0, 10)
package store
