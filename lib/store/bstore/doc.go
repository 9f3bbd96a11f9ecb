// Package bstore implements the blocking store handle (store.IStore).
//
// A blocking handle exclusively owns one engine. Every operation runs the engine call
// on the caller's goroutine, converts the raw bytes of the result into strings and
// classifies failures as store.Error. The handle does no locking of its own: it has a
// single owner and must not be used by several goroutines at once. Use the astore
// package to share one store between goroutines.
//
// Usage Example:
//
//	s, err := bstore.New(store.Config{StorePath: "/var/lib/scdb", IsSearchEnabled: true})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if err := s.SetE("session:123", "alice", 300); err != nil {
//	    return err
//	}
//	value, found, err := s.Get("session:123")
package bstore
