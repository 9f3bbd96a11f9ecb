package testing

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/scdb/lib/engine"
)

// RunEngineTests runs the conformance test suite for an engine implementation.
// Every test opens the engine through factory in a fresh temporary directory.
func RunEngineTests(t *testing.T, name string, factory engine.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, open(t, factory, nil))
		})

		t.Run("EmptyValue", func(t *testing.T) {
			testEmptyValue(t, open(t, factory, nil))
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory)
		})

		t.Run("MaxTTL", func(t *testing.T) {
			testMaxTTL(t, factory)
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open(t, factory, nil))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, open(t, factory, searchEnabled))
		})

		t.Run("Compact", func(t *testing.T) {
			testCompact(t, factory)
		})

		t.Run("SearchDisabled", func(t *testing.T) {
			testSearchDisabled(t, open(t, factory, nil))
		})

		t.Run("Search", func(t *testing.T) {
			testSearch(t, open(t, factory, searchEnabled))
		})

		t.Run("SearchPagination", func(t *testing.T) {
			testSearchPagination(t, open(t, factory, searchEnabled))
		})

		t.Run("SearchExpired", func(t *testing.T) {
			testSearchExpired(t, factory)
		})

		t.Run("Persistence", func(t *testing.T) {
			testPersistence(t, factory)
		})

		t.Run("Capacity", func(t *testing.T) {
			testCapacity(t, factory)
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, open(t, factory, nil))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, open(t, factory, searchEnabled))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Clock is a manually advanced time source for Options.Clock
type Clock struct {
	now atomic.Int64
}

// NewClock creates a clock starting at a fixed point in time
func NewClock() *Clock {
	c := &Clock{}
	c.now.Store(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

// Now returns the current time of the clock
func (c *Clock) Now() time.Time {
	return time.Unix(0, c.now.Load())
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.now.Add(int64(d))
}

func searchEnabled(o *engine.Options) { o.SearchEnabled = true }

// newOptions returns test options in a fresh temporary directory, background
// compaction is disabled so tests are deterministic
func newOptions(t testing.TB, modify func(*engine.Options)) *engine.Options {
	opts := engine.DefaultOptions(t.TempDir())
	opts.CompactionInterval = 0
	if modify != nil {
		modify(opts)
	}
	return opts
}

func openWith(t testing.TB, factory engine.Factory, opts *engine.Options) engine.Engine {
	e, err := factory(opts)
	if err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func open(t testing.TB, factory engine.Factory, modify func(*engine.Options)) engine.Engine {
	return openWith(t, factory, newOptions(t, modify))
}

func mustSet(t testing.TB, e engine.Engine, key, value string) {
	if err := e.Set([]byte(key), []byte(value)); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

func mustGet(t testing.TB, e engine.Engine, key string) ([]byte, bool) {
	value, found, err := e.Get([]byte(key))
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return value, found
}

func expectValue(t testing.TB, e engine.Engine, key, expected string) {
	value, found := mustGet(t, e, key)
	if !found {
		t.Errorf("Expected key %s to exist", key)
		return
	}
	if string(value) != expected {
		t.Errorf("Expected value %q for key %s, got %q", expected, key, value)
	}
}

func expectMissing(t testing.TB, e engine.Engine, key string) {
	if value, found := mustGet(t, e, key); found {
		t.Errorf("Expected key %s to be missing, got %q", key, value)
	}
}

func mustSearch(t testing.TB, e engine.Engine, term string, skip, limit uint64) []engine.KeyValuePair {
	result, err := e.Search([]byte(term), skip, limit)
	if err != nil {
		t.Fatalf("Search(%q, %d, %d) failed: %v", term, skip, limit, err)
	}
	return result
}

func expectPairs(t testing.TB, got []engine.KeyValuePair, expected ...string) {
	if len(got)*2 != len(expected) {
		t.Errorf("Expected %d results, got %d: %s", len(expected)/2, len(got), formatPairs(got))
		return
	}
	for i, pair := range got {
		if string(pair.Key) != expected[2*i] || string(pair.Value) != expected[2*i+1] {
			t.Errorf("Expected result %d to be (%s, %s), got %s", i, expected[2*i], expected[2*i+1], formatPairs(got))
			return
		}
	}
}

func formatPairs(pairs []engine.KeyValuePair) string {
	var buf bytes.Buffer
	for _, p := range pairs {
		fmt.Fprintf(&buf, "(%s, %s) ", p.Key, p.Value)
	}
	return buf.String()
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, e engine.Engine) {
	mustSet(t, e, "test-key", "test-value1")
	expectValue(t, e, "test-key", "test-value1")

	mustSet(t, e, "test-key", "test-value2")
	expectValue(t, e, "test-key", "test-value2")

	expectMissing(t, e, "nonexistent-key")

	retrieved, _ := mustGet(t, e, "test-key")
	retrieved[0] = 'X'
	expectValue(t, e, "test-key", "test-value2")

	// the engine must not keep a reference to the caller's slice
	value := []byte("original")
	if err := e.Set([]byte("copy-key"), value); err != nil {
		t.Fatal(err)
	}
	value[0] = 'X'
	expectValue(t, e, "copy-key", "original")

	// binary keys and values
	binKey := []byte{0x00, 0xff, 0x10}
	binValue := []byte{0xff, 0x00, 0xfe}
	if err := e.Set(binKey, binValue); err != nil {
		t.Fatal(err)
	}
	got, found, err := e.Get(binKey)
	if err != nil || !found || !bytes.Equal(got, binValue) {
		t.Errorf("Expected binary value %v, got %v (found=%v, err=%v)", binValue, got, found, err)
	}
}

func testEmptyValue(t *testing.T, e engine.Engine) {
	mustSet(t, e, "empty", "")

	value, found := mustGet(t, e, "empty")
	if !found {
		t.Fatalf("Expected key with empty value to exist")
	}
	if len(value) != 0 {
		t.Errorf("Expected empty value, got %q", value)
	}
}

func testKeyExpiry(t *testing.T, factory engine.Factory) {
	clock := NewClock()
	e := open(t, factory, func(o *engine.Options) { o.Clock = clock.Now })

	if err := e.SetE([]byte("expiring"), []byte("value"), 10*time.Second); err != nil {
		t.Fatal(err)
	}
	mustSet(t, e, "permanent", "value")

	clock.Advance(9 * time.Second)
	expectValue(t, e, "expiring", "value")

	clock.Advance(time.Second)
	expectMissing(t, e, "expiring")
	expectValue(t, e, "permanent", "value")

	// a ttl of zero makes the entry inaccessible at once
	if err := e.SetE([]byte("zero"), []byte("value"), 0); err != nil {
		t.Fatal(err)
	}
	expectMissing(t, e, "zero")

	// a plain set removes the ttl
	if err := e.SetE([]byte("refreshed"), []byte("old"), time.Second); err != nil {
		t.Fatal(err)
	}
	mustSet(t, e, "refreshed", "new")
	clock.Advance(time.Hour)
	expectValue(t, e, "refreshed", "new")

	// an expired key can be set again
	if err := e.SetE([]byte("expiring"), []byte("again"), time.Minute); err != nil {
		t.Fatal(err)
	}
	expectValue(t, e, "expiring", "again")
}

func testDelete(t *testing.T, e engine.Engine) {
	mustSet(t, e, "key", "value")

	if err := e.Delete([]byte("key")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	expectMissing(t, e, "key")

	if err := e.Delete([]byte("key")); err != nil {
		t.Errorf("Deleting a missing key should not fail, got %v", err)
	}
	if err := e.Delete([]byte("never-existed")); err != nil {
		t.Errorf("Deleting a missing key should not fail, got %v", err)
	}

	mustSet(t, e, "key", "new")
	expectValue(t, e, "key", "new")
}

func testClear(t *testing.T, e engine.Engine) {
	for i := 0; i < 10; i++ {
		mustSet(t, e, fmt.Sprintf("key-%d", i), "value")
	}

	if err := e.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		expectMissing(t, e, fmt.Sprintf("key-%d", i))
	}
	expectPairs(t, mustSearch(t, e, "key", 0, 0))

	// the store is usable after clear
	mustSet(t, e, "key-1", "after")
	expectValue(t, e, "key-1", "after")
	expectPairs(t, mustSearch(t, e, "key", 0, 0), "key-1", "after")
}

func testCompact(t *testing.T, factory engine.Factory) {
	clock := NewClock()
	e := open(t, factory, func(o *engine.Options) {
		o.Clock = clock.Now
		o.SearchEnabled = true
	})

	for i := 0; i < 100; i++ {
		mustSet(t, e, fmt.Sprintf("key-%03d", i), fmt.Sprintf("value-%d", i))
	}
	for i := 0; i < 100; i += 2 {
		if err := e.Delete([]byte(fmt.Sprintf("key-%03d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.SetE([]byte("short-lived"), []byte("value"), time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Second)

	if err := e.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%03d", i)
		if i%2 == 0 {
			expectMissing(t, e, key)
		} else {
			expectValue(t, e, key, fmt.Sprintf("value-%d", i))
		}
	}
	expectMissing(t, e, "short-lived")

	if got := len(mustSearch(t, e, "key-", 0, 0)); got != 50 {
		t.Errorf("Expected 50 live keys after compaction, got %d", got)
	}

	// compacting twice changes nothing
	if err := e.Compact(); err != nil {
		t.Fatalf("Second Compact failed: %v", err)
	}
	expectValue(t, e, "key-001", "value-1")
}

func testSearchDisabled(t *testing.T, e engine.Engine) {
	mustSet(t, e, "key", "value")

	if _, err := e.Search([]byte("k"), 0, 0); !errors.Is(err, engine.ErrSearchDisabled) {
		t.Errorf("Expected ErrSearchDisabled, got %v", err)
	}
	if e.SupportsFeature(engine.FeatureSearch) {
		t.Errorf("Engine without search must not report FeatureSearch")
	}
}

func testSearch(t *testing.T, e engine.Engine) {
	if !e.SupportsFeature(engine.FeatureSearch) {
		t.Fatalf("Engine with search enabled must report FeatureSearch")
	}

	mustSet(t, e, "hey", "English")
	mustSet(t, e, "hi", "English")
	mustSet(t, e, "salut", "French")
	mustSet(t, e, "bonjour", "French")
	mustSet(t, e, "hola", "Spanish")
	mustSet(t, e, "oi", "Portuguese")
	mustSet(t, e, "mulimuta", "Runyoro")

	expectPairs(t, mustSearch(t, e, "h", 0, 0),
		"hey", "English", "hi", "English", "hola", "Spanish")
	expectPairs(t, mustSearch(t, e, "ho", 0, 0), "hola", "Spanish")
	expectPairs(t, mustSearch(t, e, "xyz", 0, 0))

	// an empty term matches everything
	if got := len(mustSearch(t, e, "", 0, 0)); got != 7 {
		t.Errorf("Expected 7 results for empty term, got %d", got)
	}

	// search sees updates and deletes
	mustSet(t, e, "hi", "Hallo")
	if err := e.Delete([]byte("hey")); err != nil {
		t.Fatal(err)
	}
	expectPairs(t, mustSearch(t, e, "h", 0, 0), "hi", "Hallo", "hola", "Spanish")

	// the term is a prefix, not a substring
	expectPairs(t, mustSearch(t, e, "ola", 0, 0))
}

func testMaxTTL(t *testing.T, factory engine.Factory) {
	clock := NewClock()
	opts := newOptions(t, func(o *engine.Options) { o.Clock = clock.Now })

	e := openWith(t, factory, opts)

	// expirations past the range of unix nanoseconds must not wrap around
	ttls := map[string]time.Duration{
		"max":          time.Duration(math.MaxInt64),
		"nine-billion": 9_000_000_000 * time.Second,
	}
	for key, ttl := range ttls {
		if err := e.SetE([]byte(key), []byte("value"), ttl); err != nil {
			t.Fatal(err)
		}
	}

	clock.Advance(100 * 365 * 24 * time.Hour)
	for key := range ttls {
		expectValue(t, e, key, "value")
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	e = openWith(t, factory, opts)
	for key := range ttls {
		expectValue(t, e, key, "value")
	}
}

func testSearchPagination(t *testing.T, e engine.Engine) {
	mustSet(t, e, "hey", "English")
	mustSet(t, e, "hi", "English")
	mustSet(t, e, "hoo", "Spanish")
	mustSet(t, e, "other", "x")

	all := []string{"hey", "English", "hi", "English", "hoo", "Spanish"}

	cases := []struct {
		skip, limit uint64
		expected    []string
	}{
		{0, 0, all},
		{0, 8, all},
		{1, 0, all[2:]},
		{1, 8, all[2:]},
		{0, 2, all[:4]},
		{1, 2, all[2:]},
		{0, 1, all[:2]},
		{2, 1, all[4:]},
		{1, 1, all[2:4]},
		{3, 0, nil},
		{0, math.MaxUint64, all},
		{1, math.MaxUint64, all[2:]},
		{math.MaxUint64, 0, nil},
		{math.MaxUint64, math.MaxUint64, nil},
		{1 << 63, 0, nil},
		{1 << 63, 1, nil},
	}

	for _, c := range cases {
		t.Run(fmt.Sprintf("skip=%d,limit=%d", c.skip, c.limit), func(t *testing.T) {
			expectPairs(t, mustSearch(t, e, "h", c.skip, c.limit), c.expected...)
		})
	}
}

func testSearchExpired(t *testing.T, factory engine.Factory) {
	clock := NewClock()
	e := open(t, factory, func(o *engine.Options) {
		o.Clock = clock.Now
		o.SearchEnabled = true
	})

	mustSet(t, e, "hey", "English")
	if err := e.SetE([]byte("hi"), []byte("English"), time.Second); err != nil {
		t.Fatal(err)
	}
	mustSet(t, e, "hola", "Spanish")

	expectPairs(t, mustSearch(t, e, "h", 0, 0),
		"hey", "English", "hi", "English", "hola", "Spanish")

	clock.Advance(2 * time.Second)

	// expired entries don't count for skip and limit either
	expectPairs(t, mustSearch(t, e, "h", 0, 0), "hey", "English", "hola", "Spanish")
	expectPairs(t, mustSearch(t, e, "h", 1, 1), "hola", "Spanish")
}

func testPersistence(t *testing.T, factory engine.Factory) {
	clock := NewClock()
	opts := newOptions(t, func(o *engine.Options) {
		o.Clock = clock.Now
		o.SearchEnabled = true
	})

	e, err := factory(opts)
	if err != nil {
		t.Fatal(err)
	}
	mustSet(t, e, "kept", "value")
	mustSet(t, e, "overwritten", "old")
	mustSet(t, e, "overwritten", "new")
	mustSet(t, e, "deleted", "value")
	mustSet(t, e, "empty", "")
	if err := e.Delete([]byte("deleted")); err != nil {
		t.Fatal(err)
	}
	if err := e.SetE([]byte("expiring"), []byte("value"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	e = openWith(t, factory, opts)
	expectValue(t, e, "kept", "value")
	expectValue(t, e, "overwritten", "new")
	expectValue(t, e, "empty", "")
	expectValue(t, e, "expiring", "value")
	expectMissing(t, e, "deleted")
	expectPairs(t, mustSearch(t, e, "", 0, 0),
		"empty", "", "expiring", "value", "kept", "value", "overwritten", "new")

	// the expiration timestamp survives the restart
	clock.Advance(2 * time.Minute)
	expectMissing(t, e, "expiring")

	// compacted data survives as well
	if err := e.Compact(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	e = openWith(t, factory, opts)
	expectValue(t, e, "kept", "value")
	expectValue(t, e, "overwritten", "new")
	expectMissing(t, e, "expiring")

	// cleared data stays cleared
	if err := e.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	e = openWith(t, factory, opts)
	expectMissing(t, e, "kept")
}

func testCapacity(t *testing.T, factory engine.Factory) {
	clock := NewClock()
	e := open(t, factory, func(o *engine.Options) {
		o.Clock = clock.Now
		o.MaxKeys = 3
	})

	mustSet(t, e, "a", "1")
	mustSet(t, e, "b", "2")
	mustSet(t, e, "c", "3")

	if err := e.Set([]byte("d"), []byte("4")); !errors.Is(err, engine.ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded, got %v", err)
	}
	expectMissing(t, e, "d")

	// overwriting does not need a new slot
	mustSet(t, e, "a", "updated")

	// deleting frees a slot
	if err := e.Delete([]byte("b")); err != nil {
		t.Fatal(err)
	}
	mustSet(t, e, "d", "4")

	// expired entries free their slot
	if err := e.SetE([]byte("c"), []byte("3"), time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Second)
	mustSet(t, e, "e", "5")
	expectValue(t, e, "e", "5")
}

func testClosed(t *testing.T, e engine.Engine) {
	mustSet(t, e, "key", "value")

	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	if err := e.Set([]byte("key"), []byte("value")); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Set: expected ErrClosed, got %v", err)
	}
	if _, _, err := e.Get([]byte("key")); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Get: expected ErrClosed, got %v", err)
	}
	if err := e.Delete([]byte("key")); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Delete: expected ErrClosed, got %v", err)
	}
	if err := e.Clear(); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Clear: expected ErrClosed, got %v", err)
	}
	if err := e.Compact(); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Compact: expected ErrClosed, got %v", err)
	}
}

func testInfo(t *testing.T, e engine.Engine) {
	for i := 0; i < 10; i++ {
		mustSet(t, e, fmt.Sprintf("key-%d", i), "value")
	}

	info := e.GetInfo()
	if info.Keys != 10 {
		t.Errorf("Expected 10 keys, got %d", info.Keys)
	}
	if info.EngineType == "" {
		t.Errorf("Expected engine type to be set")
	}
	if info.SizeBytes <= 0 {
		t.Errorf("Expected a positive size, got %d", info.SizeBytes)
	}

	required := engine.FeatureSet | engine.FeatureSetE | engine.FeatureGet | engine.FeatureDelete |
		engine.FeatureClear | engine.FeatureCompact | engine.FeatureSearch | engine.FeaturePersistence
	if !e.SupportsFeature(required) {
		t.Errorf("Engine should support all features, got %v", info.SupportedFeatures)
	}
}
