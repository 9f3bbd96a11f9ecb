package astore

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/scdb/lib/common"
	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/engine/util"
	"github.com/ValentinKolb/scdb/lib/store"
	"github.com/ValentinKolb/scdb/lib/store/internal"
)

var log = common.GetLogger(common.LoggerStore)

// task is one queued operation. run is executed by a worker.
type task struct {
	run func()
}

type storeImpl struct {
	engine engine.Engine

	// mu serializes all engine calls
	mu       sync.Mutex
	poisoned atomic.Bool

	// submit guards closed against concurrent submissions, so no task is pushed
	// after the queue was closed
	submit  sync.RWMutex
	closed  bool
	queue   *util.LockFreeMPSC[task]
	workers sync.WaitGroup

	metrics *internal.Metrics
}

// New opens the store described by cfg and returns an async handle that can be
// shared by any number of goroutines.
func New(cfg store.Config) (store.IAsyncStore, error) {
	e, err := internal.OpenEngine(cfg)
	if err != nil {
		return nil, err
	}
	log.Infof("opened async store at %s (engine=%s, workers=%d)", cfg.StorePath, e.GetInfo().EngineType, cfg.WorkerCount())
	return NewFromEngine(e, cfg.WorkerCount()), nil
}

// NewFromEngine wraps an already opened engine. The handle takes ownership of the engine.
// workers <= 0 selects store.DefaultWorkers.
func NewFromEngine(e engine.Engine, workers int) store.IAsyncStore {
	if workers <= 0 {
		workers = store.DefaultWorkers
	}
	s := &storeImpl{
		engine:  e,
		queue:   util.NewLockFreeMPSC[task](),
		metrics: internal.NewMetrics("async"),
	}
	s.metrics.PendingGauge(func() float64 { return float64(s.queue.Len()) })

	s.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

func (s *storeImpl) worker() {
	defer s.workers.Done()
	for t := range s.queue.Recv() {
		t.run()
	}
}

// dispatch queues fn and returns the future of its result.
// fn runs on a worker while s.mu is held.
func dispatch[T any](s *storeImpl, ctx context.Context, op internal.Op, fn func(e engine.Engine) (T, error)) *store.Future[T] {
	future, resolve := store.NewPromise[T]()
	start := time.Now()

	finish := func(v T, err error) {
		err = internal.Classify(op, err)
		s.metrics.Observe(op, start, err)
		resolve(v, err)
	}

	t := &task{run: func() {
		var zero T
		if err := ctx.Err(); err != nil {
			finish(zero, err)
			return
		}
		finish(withLock(s, ctx, op, fn))
	}}

	s.submit.RLock()
	defer s.submit.RUnlock()
	if s.closed || !s.queue.Push(t) {
		var zero T
		finish(zero, engine.ErrClosed)
	}
	return future
}

// withLock runs fn while holding the engine mutex. A panic of fn poisons the handle.
func withLock[T any](s *storeImpl, ctx context.Context, op internal.Op, fn func(e engine.Engine) (T, error)) (v T, err error) {
	if s.poisoned.Load() {
		return v, poisonedError(op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned.Load() {
		return v, poisonedError(op)
	}
	if err = ctx.Err(); err != nil {
		return v, err
	}

	defer func() {
		if r := recover(); r != nil {
			s.poisoned.Store(true)
			log.Errorf("%s panicked, store is poisoned: %v", op, r)
			var zero T
			v = zero
			err = store.NewError(store.RetCConcurrencyError, op.String(), fmt.Errorf("%w: %v", store.ErrLockPoisoned, r))
		}
	}()
	return fn(s.engine)
}

func poisonedError(op internal.Op) error {
	return store.NewError(store.RetCConcurrencyError, op.String(), store.ErrLockPoisoned)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(ctx context.Context, key, value string) *store.Future[struct{}] {
	return dispatch(s, ctx, internal.OpSet, func(e engine.Engine) (struct{}, error) {
		return struct{}{}, e.Set([]byte(key), []byte(value))
	})
}

func (s *storeImpl) SetE(ctx context.Context, key, value string, ttl uint64) *store.Future[struct{}] {
	return dispatch(s, ctx, internal.OpSetE, func(e engine.Engine) (struct{}, error) {
		return struct{}{}, e.SetE([]byte(key), []byte(value), internal.TTL(ttl))
	})
}

func (s *storeImpl) Get(ctx context.Context, key string) *store.Future[store.Lookup] {
	return dispatch(s, ctx, internal.OpGet, func(e engine.Engine) (store.Lookup, error) {
		raw, found, err := e.Get([]byte(key))
		if err != nil || !found {
			return store.Lookup{}, err
		}
		value, err := internal.DecodeValue(internal.OpGet, raw)
		if err != nil {
			return store.Lookup{}, err
		}
		return store.Lookup{Value: value, Found: true}, nil
	})
}

func (s *storeImpl) Delete(ctx context.Context, key string) *store.Future[struct{}] {
	return dispatch(s, ctx, internal.OpDelete, func(e engine.Engine) (struct{}, error) {
		return struct{}{}, e.Delete([]byte(key))
	})
}

func (s *storeImpl) Clear(ctx context.Context) *store.Future[struct{}] {
	return dispatch(s, ctx, internal.OpClear, func(e engine.Engine) (struct{}, error) {
		return struct{}{}, e.Clear()
	})
}

func (s *storeImpl) Compact(ctx context.Context) *store.Future[struct{}] {
	return dispatch(s, ctx, internal.OpCompact, func(e engine.Engine) (struct{}, error) {
		return struct{}{}, e.Compact()
	})
}

func (s *storeImpl) Search(ctx context.Context, term string, skip, limit uint64) *store.Future[[]store.KeyValue] {
	return dispatch(s, ctx, internal.OpSearch, func(e engine.Engine) ([]store.KeyValue, error) {
		if !e.SupportsFeature(engine.FeatureSearch) {
			return nil, engine.ErrSearchDisabled
		}
		pairs, err := e.Search([]byte(term), skip, limit)
		if err != nil {
			return nil, err
		}
		return internal.DecodePairs(internal.OpSearch, pairs)
	})
}

func (s *storeImpl) WritePrometheus(w io.Writer) {
	s.metrics.WritePrometheus(w)
}

func (s *storeImpl) Close() error {
	s.submit.Lock()
	if s.closed {
		s.submit.Unlock()
		return nil
	}
	s.closed = true
	s.submit.Unlock()

	// queued tasks still run, then the workers exit
	s.queue.Close()
	s.workers.Wait()

	start := time.Now()
	err := s.closeEngine()
	err = internal.Classify(internal.OpClose, err)
	s.metrics.Observe(internal.OpClose, start, err)
	if err == nil {
		log.Debugf("closed async store")
	}
	return err
}

// closeEngine closes the engine even if the handle is poisoned
func (s *storeImpl) closeEngine() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = store.NewError(store.RetCConcurrencyError, internal.OpClose.String(), fmt.Errorf("%w: %v", store.ErrLockPoisoned, r))
		}
	}()
	return s.engine.Close()
}
