// Package astore implements the shared async store handle (store.IAsyncStore).
//
// Every operation captures its arguments in a task, pushes the task onto a lock-free
// multi-producer queue (util.LockFreeMPSC) and returns a store.Future at once. A fixed
// pool of worker goroutines drains the queue. A worker acquires the handle's mutex,
// runs the blocking engine call, releases the mutex and resolves the future. Engine
// calls of one handle therefore never overlap and are ordered by lock acquisition.
// With more than one worker that order may differ from the submission order, so a
// caller awaits an operation before submitting one that depends on it. A handle with a
// single worker runs operations in submission order.
//
// Cancellation:
//
//	The ctx of an operation is checked when a worker dequeues the task and again after
//	the mutex was acquired. A cancelled operation never reaches the engine and its
//	future fails with ctx.Err(). A running engine call can't be interrupted.
//
// Poisoning:
//
//	If an engine call panics while holding the mutex the panic is recovered and the
//	handle is poisoned. That call and every following call fail with
//	store.RetCConcurrencyError wrapping store.ErrLockPoisoned.
//
// Usage Example:
//
//	s, err := astore.New(store.Config{StorePath: "/var/lib/scdb"})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	f := s.Set(ctx, "user:1", "alice")
//	if _, err := f.Await(ctx); err != nil {
//	    return err
//	}
//	lookup, err := s.Get(ctx, "user:1").Await(ctx)
package astore
