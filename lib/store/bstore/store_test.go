package bstore

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/engine/engines"
	enginetesting "github.com/ValentinKolb/scdb/lib/engine/testing"
	"github.com/ValentinKolb/scdb/lib/store"
)

func newStore(t *testing.T, impl engine.Implementation, search bool) store.IStore {
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

// forEachEngine runs fn once per engine implementation
func forEachEngine(t *testing.T, fn func(t *testing.T, impl engine.Implementation)) {
	for _, impl := range engines.Available() {
		t.Run(string(impl), func(t *testing.T) {
			fn(t, impl)
		})
	}
}

func TestSetGetDelete(t *testing.T) {
	forEachEngine(t, func(t *testing.T, impl engine.Implementation) {
		s := newStore(t, impl, false)

		require.NoError(t, s.Set("a", "1"))
		v, found, err := s.Get("a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "1", v)

		require.NoError(t, s.Delete("a"))
		_, found, err = s.Get("a")
		require.NoError(t, err)
		assert.False(t, found)

		// deleting an absent key is not an error
		require.NoError(t, s.Delete("a"))

		_, found, err = s.Get("never-set")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestOverwriteAndUnicode(t *testing.T) {
	forEachEngine(t, func(t *testing.T, impl engine.Implementation) {
		s := newStore(t, impl, false)

		require.NoError(t, s.Set("schlüssel", "wert"))
		require.NoError(t, s.Set("schlüssel", "größer 🚀"))
		v, found, err := s.Get("schlüssel")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "größer 🚀", v)

		require.NoError(t, s.Set("empty", ""))
		v, found, err = s.Get("empty")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "", v)
	})
}

func TestClear(t *testing.T) {
	forEachEngine(t, func(t *testing.T, impl engine.Implementation) {
		s := newStore(t, impl, false)

		for i := 0; i < 20; i++ {
			require.NoError(t, s.Set(fmt.Sprintf("key-%d", i), "v"))
		}
		require.NoError(t, s.Clear())
		for i := 0; i < 20; i++ {
			_, found, err := s.Get(fmt.Sprintf("key-%d", i))
			require.NoError(t, err)
			assert.False(t, found)
		}
	})
}

func TestCompactKeepsEntries(t *testing.T) {
	forEachEngine(t, func(t *testing.T, impl engine.Implementation) {
		s := newStore(t, impl, false)

		for i := 0; i < 50; i++ {
			require.NoError(t, s.Set(fmt.Sprintf("key-%d", i), fmt.Sprintf("v%d", i)))
		}
		for i := 0; i < 50; i += 2 {
			require.NoError(t, s.Delete(fmt.Sprintf("key-%d", i)))
		}
		require.NoError(t, s.Compact())

		for i := 0; i < 50; i++ {
			v, found, err := s.Get(fmt.Sprintf("key-%d", i))
			require.NoError(t, err)
			if i%2 == 0 {
				assert.False(t, found)
				continue
			}
			assert.True(t, found)
			assert.Equal(t, fmt.Sprintf("v%d", i), v)
		}
	})
}

func TestExpiry(t *testing.T) {
	forEachEngine(t, func(t *testing.T, impl engine.Implementation) {
		clock := enginetesting.NewClock()
		opts := engine.DefaultOptions(t.TempDir())
		opts.CompactionInterval = 0
		opts.Clock = clock.Now
		e, err := engines.Open(impl, opts)
		require.NoError(t, err)
		s := NewFromEngine(e)
		t.Cleanup(func() { _ = s.Close() })

		require.NoError(t, s.SetE("k", "v", 1))
		v, found, err := s.Get("k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "v", v)

		clock.Advance(1100 * time.Millisecond)
		_, found, err = s.Get("k")
		require.NoError(t, err)
		assert.False(t, found)

		// ttl 0 is inaccessible at once
		require.NoError(t, s.SetE("zero", "v", 0))
		_, found, err = s.Get("zero")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestHugeTTLNeverExpires(t *testing.T) {
	forEachEngine(t, func(t *testing.T, impl engine.Implementation) {
		s := newStore(t, impl, true)

		for _, ttl := range []uint64{10_000_000_000, math.MaxUint64} {
			key := fmt.Sprintf("ttl-%d", ttl)
			require.NoError(t, s.SetE(key, "v", ttl))

			v, found, err := s.Get(key)
			require.NoError(t, err)
			assert.True(t, found, "ttl %d", ttl)
			assert.Equal(t, "v", v)
		}

		page, err := s.Search("ttl-", 0, math.MaxUint64)
		require.NoError(t, err)
		assert.Len(t, page, 2)

		page, err = s.Search("ttl-", math.MaxUint64, 0)
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestExpiryWallClock(t *testing.T) {
	s := newStore(t, engine.ImplMaple, false)

	require.NoError(t, s.SetE("k", "v", 1))
	time.Sleep(1100 * time.Millisecond)

	_, found, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSearch(t *testing.T) {
	forEachEngine(t, func(t *testing.T, impl engine.Implementation) {
		s := newStore(t, impl, true)

		require.NoError(t, s.Set("apple", "red"))
		require.NoError(t, s.Set("apricot", "orange"))
		require.NoError(t, s.Set("banana", "yellow"))

		page, err := s.Search("ap", 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []store.KeyValue{
			{Key: "apple", Value: "red"},
			{Key: "apricot", Value: "orange"},
		}, page)

		page, err = s.Search("zzz", 0, 10)
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestSearchPagesCoverPrefix(t *testing.T) {
	forEachEngine(t, func(t *testing.T, impl engine.Implementation) {
		s := newStore(t, impl, true)

		var want []string
		for i := 0; i < 23; i++ {
			key := fmt.Sprintf("user:%02d", i)
			want = append(want, key)
			require.NoError(t, s.Set(key, "x"))
			require.NoError(t, s.Set(fmt.Sprintf("other:%02d", i), "y"))
		}

		seen := map[string]bool{}
		var got []string
		for skip := uint64(0); ; skip += 5 {
			page, err := s.Search("user:", skip, 5)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			assert.LessOrEqual(t, len(page), 5)
			for _, kv := range page {
				assert.False(t, seen[kv.Key], "duplicate key %s", kv.Key)
				seen[kv.Key] = true
				got = append(got, kv.Key)
			}
		}
		sort.Strings(got)
		assert.Equal(t, want, got)

		all, err := s.Search("user:", 0, 0)
		require.NoError(t, err)
		assert.Len(t, all, len(want))
	})
}

func TestSearchDisabled(t *testing.T) {
	s := newStore(t, engine.ImplMaple, false)

	_, err := s.Search("a", 0, 10)
	assert.True(t, store.IsIOError(err))
	assert.ErrorIs(t, err, engine.ErrSearchDisabled)
}

func TestDecodeFailure(t *testing.T) {
	forEachEngine(t, func(t *testing.T, impl engine.Implementation) {
		opts := engine.DefaultOptions(t.TempDir())
		opts.CompactionInterval = 0
		opts.SearchEnabled = true
		e, err := engines.Open(impl, opts)
		require.NoError(t, err)
		require.NoError(t, e.Set([]byte("bad"), []byte{0xff, 0xfe, 0xfd}))
		require.NoError(t, e.Set([]byte{0xc3, 0x28}, []byte("ok")))

		s := NewFromEngine(e)
		t.Cleanup(func() { _ = s.Close() })

		_, _, err = s.Get("bad")
		assert.True(t, store.IsDecodeError(err))

		_, err = s.Search("b", 0, 0)
		assert.True(t, store.IsDecodeError(err))

		_, err = s.Search(string([]byte{0xc3}), 0, 0)
		assert.True(t, store.IsDecodeError(err))
	})
}

func TestPersistence(t *testing.T) {
	forEachEngine(t, func(t *testing.T, impl engine.Implementation) {
		cfg := store.Config{StorePath: t.TempDir(), Engine: impl, CompactionInterval: store.Ptr[uint32](0)}

		s, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, s.Set("a", "1"))
		require.NoError(t, s.Close())

		s, err = New(cfg)
		require.NoError(t, err)
		defer s.Close()
		v, found, err := s.Get("a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "1", v)
	})
}

func TestUseAfterClose(t *testing.T) {
	s, err := New(store.Config{StorePath: t.TempDir(), CompactionInterval: store.Ptr[uint32](0)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Set("a", "1")
	assert.True(t, store.IsIOError(err))
	assert.ErrorIs(t, err, engine.ErrClosed)

	_, _, err = s.Get("a")
	assert.ErrorIs(t, err, engine.ErrClosed)
}

func TestOpenFailure(t *testing.T) {
	_, err := New(store.Config{})
	assert.True(t, store.IsIOError(err))

	_, err = New(store.Config{StorePath: t.TempDir(), Engine: "unknown"})
	assert.True(t, store.IsIOError(err))
}

func TestMetrics(t *testing.T) {
	s := newStore(t, engine.ImplMaple, false)
	require.NoError(t, s.Set("a", "1"))
	_, _, _ = s.Get("a")
	_, _ = s.Search("a", 0, 0)

	var buf bytes.Buffer
	s.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `scdb_operations_total{handle="blocking",op="set"} 1`)
	assert.Contains(t, buf.String(), `scdb_operation_errors_total{handle="blocking",op="search",code="IOError"} 1`)
}
