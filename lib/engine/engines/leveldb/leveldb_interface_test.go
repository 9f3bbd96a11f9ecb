package leveldb

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/scdb/lib/engine"
	enginetesting "github.com/ValentinKolb/scdb/lib/engine/testing"
)

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "leveldb", Open)
}

func Benchmark(b *testing.B) {
	enginetesting.RunEngineBenchmarks(b, "leveldb", Open)
}

func TestEnvelope(t *testing.T) {
	value, expiresAt, err := unwrap(wrap([]byte("value"), 42))
	if err != nil || string(value) != "value" || expiresAt != 42 {
		t.Errorf("Unexpected envelope content %q, %d, %v", value, expiresAt, err)
	}

	value, _, err = unwrap(wrap(nil, 0))
	if err != nil || value == nil || len(value) != 0 {
		t.Errorf("Expected empty non-nil value, got %v, %v", value, err)
	}

	if _, _, err := unwrap([]byte{1, 2, 3}); !errors.Is(err, engine.ErrCorrupted) {
		t.Errorf("Expected ErrCorrupted for a short envelope, got %v", err)
	}
}
