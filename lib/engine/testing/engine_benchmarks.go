package testing

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ValentinKolb/scdb/lib/engine"
)

// RunEngineBenchmarks runs all benchmarks for an engine implementation.
// Engines are blocking and not safe for concurrent use, so all benchmarks run
// on a single goroutine.
func RunEngineBenchmarks(b *testing.B, name string, factory engine.Factory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, open(b, factory, nil))
		})

		b.Run("SetExisting", func(b *testing.B) {
			benchmarkSetExisting(b, open(b, factory, nil))
		})

		b.Run("SetLargeValue", func(b *testing.B) {
			benchmarkSetLargeValue(b, open(b, factory, nil))
		})

		b.Run("SetWithExpiry", func(b *testing.B) {
			benchmarkSetWithExpiry(b, open(b, factory, nil))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, open(b, factory, nil))
		})

		b.Run("Delete", func(b *testing.B) {
			benchmarkDelete(b, open(b, factory, nil))
		})

		b.Run("Search", func(b *testing.B) {
			benchmarkSearch(b, open(b, factory, searchEnabled))
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, open(b, factory, searchEnabled))
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func fill(b *testing.B, e engine.Engine, n int) {
	for i := 0; i < n; i++ {
		if err := e.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("value")); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkSet(b *testing.B, e engine.Engine) {
	value := []byte("value")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.Set([]byte(fmt.Sprintf("key-%d", i)), value); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkSetExisting(b *testing.B, e engine.Engine) {
	fill(b, e, 1000)
	value := []byte("new-value")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.Set([]byte(fmt.Sprintf("key-%d", i%1000)), value); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkSetLargeValue(b *testing.B, e engine.Engine) {
	value := make([]byte, 64*1024)
	rand.Read(value)
	b.SetBytes(int64(len(value)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.Set([]byte(fmt.Sprintf("key-%d", i%100)), value); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkSetWithExpiry(b *testing.B, e engine.Engine) {
	value := []byte("value")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.SetE([]byte(fmt.Sprintf("key-%d", i)), value, time.Hour); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkGet(b *testing.B, e engine.Engine) {
	fill(b, e, 1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := e.Get([]byte(fmt.Sprintf("key-%d", i%1000))); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkDelete(b *testing.B, e engine.Engine) {
	fill(b, e, b.N)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.Delete([]byte(fmt.Sprintf("key-%d", i))); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkSearch(b *testing.B, e engine.Engine) {
	fill(b, e, 1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Search([]byte(fmt.Sprintf("key-%d", i%10)), 0, 20); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkMixedUsage(b *testing.B, e engine.Engine) {
	fill(b, e, 1000)
	r := rand.New(rand.NewSource(42))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("key-%d", r.Intn(1000)))
		var err error
		switch op := r.Intn(100); {
		case op < 60:
			_, _, err = e.Get(key)
		case op < 85:
			err = e.Set(key, []byte("value"))
		case op < 95:
			err = e.Delete(key)
		default:
			_, err = e.Search(key[:5], 0, 10)
		}
		if err != nil {
			b.Fatal(err)
		}
	}
}
