package astore

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/engine/engines"
	"github.com/ValentinKolb/scdb/lib/store"
)

func newStore(t *testing.T, impl engine.Implementation, search bool) store.IAsyncStore {
	t.Helper()
	s, err := New(store.Config{
		StorePath:          t.TempDir(),
		Engine:             impl,
		CompactionInterval: store.Ptr[uint32](0),
		IsSearchEnabled:    search,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openEngine(t *testing.T, search bool) engine.Engine {
	t.Helper()
	opts := engine.DefaultOptions(t.TempDir())
	opts.CompactionInterval = 0
	opts.SearchEnabled = search
	e, err := engines.Open(engine.ImplMaple, opts)
	require.NoError(t, err)
	return e
}

func await[T any](t *testing.T, f *store.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return f.Await(ctx)
}

// hookEngine wraps an engine and calls the hooks before Set and Get
type hookEngine struct {
	engine.Engine
	beforeSet func(key []byte)
	beforeGet func(key []byte)
	gets      atomic.Int64
}

func (h *hookEngine) Set(key, value []byte) error {
	if h.beforeSet != nil {
		h.beforeSet(key)
	}
	return h.Engine.Set(key, value)
}

func (h *hookEngine) Get(key []byte) ([]byte, bool, error) {
	h.gets.Add(1)
	if h.beforeGet != nil {
		h.beforeGet(key)
	}
	return h.Engine.Get(key)
}

func TestScenario(t *testing.T) {
	for _, impl := range engines.Available() {
		t.Run(string(impl), func(t *testing.T) {
			s := newStore(t, impl, true)
			ctx := context.Background()

			_, err := await(t, s.Set(ctx, "a", "1"))
			require.NoError(t, err)
			lookup, err := await(t, s.Get(ctx, "a"))
			require.NoError(t, err)
			assert.Equal(t, store.Lookup{Value: "1", Found: true}, lookup)

			_, err = await(t, s.Delete(ctx, "a"))
			require.NoError(t, err)
			lookup, err = await(t, s.Get(ctx, "a"))
			require.NoError(t, err)
			assert.False(t, lookup.Found)

			for _, kv := range []store.KeyValue{{Key: "apple", Value: "red"}, {Key: "apricot", Value: "orange"}, {Key: "banana", Value: "yellow"}} {
				_, err = await(t, s.Set(ctx, kv.Key, kv.Value))
				require.NoError(t, err)
			}
			page, err := await(t, s.Search(ctx, "ap", 0, 10))
			require.NoError(t, err)
			assert.Equal(t, []store.KeyValue{{Key: "apple", Value: "red"}, {Key: "apricot", Value: "orange"}}, page)

			_, err = await(t, s.Compact(ctx))
			require.NoError(t, err)
			lookup, err = await(t, s.Get(ctx, "banana"))
			require.NoError(t, err)
			assert.Equal(t, "yellow", lookup.Value)

			_, err = await(t, s.Clear(ctx))
			require.NoError(t, err)
			lookup, err = await(t, s.Get(ctx, "apple"))
			require.NoError(t, err)
			assert.False(t, lookup.Found)
		})
	}
}

func TestExpiry(t *testing.T) {
	s := newStore(t, engine.ImplMaple, false)
	ctx := context.Background()

	_, err := await(t, s.SetE(ctx, "k", "v", 1))
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	lookup, err := await(t, s.Get(ctx, "k"))
	require.NoError(t, err)
	assert.False(t, lookup.Found)
}

func TestConcurrentSets(t *testing.T) {
	const goroutines, perGoroutine = 16, 50
	s := newStore(t, engine.ImplMaple, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			futures := make([]*store.Future[struct{}], 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				futures = append(futures, s.Set(ctx, fmt.Sprintf("k-%d-%d", g, i), fmt.Sprintf("v-%d-%d", g, i)))
			}
			for _, f := range futures {
				_, err := await(t, f)
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < goroutines; g++ {
		for i := 0; i < perGoroutine; i++ {
			lookup, err := await(t, s.Get(ctx, fmt.Sprintf("k-%d-%d", g, i)))
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("v-%d-%d", g, i), lookup.Value)
		}
	}
}

func TestEngineCallsNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight atomic.Int64
	h := &hookEngine{Engine: openEngine(t, false)}
	h.beforeSet = func([]byte) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
	}
	s := NewFromEngine(h, 8)
	t.Cleanup(func() { _ = s.Close() })

	var futures []*store.Future[struct{}]
	for i := 0; i < 40; i++ {
		futures = append(futures, s.Set(context.Background(), fmt.Sprintf("k%d", i), "v"))
	}
	for _, f := range futures {
		_, err := await(t, f)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), maxInFlight.Load())
}

func TestSingleWorkerKeepsSubmissionOrder(t *testing.T) {
	s := NewFromEngine(openEngine(t, false), 1)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	var futures []*store.Future[struct{}]
	for i := 0; i < 100; i++ {
		futures = append(futures, s.Set(ctx, "key", fmt.Sprintf("v%d", i)))
	}
	for _, f := range futures {
		_, err := await(t, f)
		require.NoError(t, err)
	}

	lookup, err := await(t, s.Get(ctx, "key"))
	require.NoError(t, err)
	assert.Equal(t, "v99", lookup.Value)
}

func TestAwaitSequencesDependentOperations(t *testing.T) {
	s := NewFromEngine(openEngine(t, false), 8)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		value := fmt.Sprintf("v%d", i)
		_, err := await(t, s.Set(ctx, "key", value))
		require.NoError(t, err)

		lookup, err := await(t, s.Get(ctx, "key"))
		require.NoError(t, err)
		assert.Equal(t, value, lookup.Value)
	}
}

func TestDecodeFailure(t *testing.T) {
	e := openEngine(t, true)
	require.NoError(t, e.Set([]byte("bad"), []byte{0xff, 0xfe}))
	s := NewFromEngine(e, 2)
	t.Cleanup(func() { _ = s.Close() })

	_, err := await(t, s.Get(context.Background(), "bad"))
	assert.True(t, store.IsDecodeError(err))

	_, err = await(t, s.Search(context.Background(), "b", 0, 0))
	assert.True(t, store.IsDecodeError(err))
}

func TestSearchDisabled(t *testing.T) {
	s := newStore(t, engine.ImplMaple, false)

	_, err := await(t, s.Search(context.Background(), "a", 0, 0))
	assert.True(t, store.IsIOError(err))
	assert.ErrorIs(t, err, engine.ErrSearchDisabled)
}

func TestPoisoning(t *testing.T) {
	h := &hookEngine{Engine: openEngine(t, false)}
	h.beforeGet = func(key []byte) {
		if string(key) == "panic" {
			panic("engine failure")
		}
	}
	s := NewFromEngine(h, 2)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	_, err := await(t, s.Set(ctx, "a", "1"))
	require.NoError(t, err)

	_, err = await(t, s.Get(ctx, "panic"))
	assert.True(t, store.IsConcurrencyError(err))
	assert.ErrorIs(t, err, store.ErrLockPoisoned)

	// every later operation fails as well
	_, err = await(t, s.Get(ctx, "a"))
	assert.True(t, store.IsConcurrencyError(err))
	_, err = await(t, s.Set(ctx, "b", "2"))
	assert.True(t, store.IsConcurrencyError(err))

	// the engine is still released
	require.NoError(t, s.Close())
}

func TestCancelledBeforeDispatch(t *testing.T) {
	h := &hookEngine{Engine: openEngine(t, false)}
	s := NewFromEngine(h, 1)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := await(t, s.Get(ctx, "a"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, store.IsIOError(err))
	assert.Equal(t, int64(0), h.gets.Load())
}

func TestCancelledWhileQueued(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	h := &hookEngine{Engine: openEngine(t, false)}
	h.beforeSet = func([]byte) {
		close(entered)
		<-release
	}
	s := NewFromEngine(h, 1)
	t.Cleanup(func() { _ = s.Close() })

	blocking := s.Set(context.Background(), "slow", "v")
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	queued := s.Get(ctx, "slow")
	cancel()
	close(release)

	_, err := await(t, blocking)
	require.NoError(t, err)
	_, err = await(t, queued)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), h.gets.Load())
}

func TestUseAfterClose(t *testing.T) {
	s, err := New(store.Config{StorePath: t.TempDir(), CompactionInterval: store.Ptr[uint32](0)})
	require.NoError(t, err)

	pending := s.Set(context.Background(), "a", "1")
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// queued before close, still executed
	_, err = await(t, pending)
	require.NoError(t, err)

	_, err = await(t, s.Get(context.Background(), "a"))
	assert.True(t, store.IsIOError(err))
	assert.ErrorIs(t, err, engine.ErrClosed)
}

func TestMetrics(t *testing.T) {
	s := newStore(t, engine.ImplMaple, false)
	_, err := await(t, s.Set(context.Background(), "a", "1"))
	require.NoError(t, err)

	var buf bytes.Buffer
	s.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `scdb_operations_total{handle="async",op="set"} 1`)
	assert.Contains(t, buf.String(), `scdb_async_pending_operations{handle="async"} 0`)
}
