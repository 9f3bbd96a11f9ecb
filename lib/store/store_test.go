package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/scdb/lib/engine"
)

func TestErrorClassification(t *testing.T) {
	cause := fmt.Errorf("write log: %w", engine.ErrClosed)
	err := error(NewError(RetCIOError, "set", cause))

	assert.True(t, IsIOError(err))
	assert.False(t, IsDecodeError(err))
	assert.False(t, IsConcurrencyError(err))
	assert.ErrorIs(t, err, engine.ErrClosed)
	assert.Equal(t, RetCIOError, CodeOf(err))
	assert.Contains(t, err.Error(), "set")
	assert.Contains(t, err.Error(), "IOError")

	wrapped := fmt.Errorf("outer: %w", NewError(RetCConcurrencyError, "get", ErrLockPoisoned))
	assert.True(t, IsConcurrencyError(wrapped))
	assert.ErrorIs(t, wrapped, ErrLockPoisoned)

	assert.Equal(t, RetCSuccess, CodeOf(nil))
	assert.Equal(t, RetCIOError, CodeOf(errors.New("plain")))
	assert.Equal(t, "Unknown", RetCode(42).String())
}

func TestFutureResolvesOnce(t *testing.T) {
	f, resolve := NewPromise[int]()

	select {
	case <-f.Done():
		t.Fatal("future resolved before resolve was called")
	default:
	}

	resolve(1, nil)
	resolve(2, errors.New("ignored"))

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = f.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestFutureAwaitCancelled(t *testing.T) {
	f, resolve := NewPromise[string]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// abandoning the wait does not resolve the future
	resolve("late", nil)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", v)
}

func TestResolvedFuture(t *testing.T) {
	boom := errors.New("boom")
	_, err := Resolved(0, boom).Wait()
	assert.ErrorIs(t, err, boom)
}

func TestConfigEngineOptions(t *testing.T) {
	opts := Config{StorePath: "/tmp/x"}.EngineOptions()
	assert.Equal(t, engine.DefaultMaxKeys, opts.MaxKeys)
	assert.Equal(t, engine.DefaultRedundantBlocks, opts.RedundantBlocks)
	assert.Equal(t, engine.DefaultPoolCapacity, opts.PoolCapacity)
	assert.Equal(t, engine.DefaultCompactionInterval, opts.CompactionInterval)
	assert.False(t, opts.SearchEnabled)

	opts = Config{
		StorePath:          "/tmp/x",
		MaxKeys:            Ptr[uint64](10),
		RedundantBlocks:    Ptr[uint16](0),
		PoolCapacity:       Ptr[uint64](2),
		CompactionInterval: Ptr[uint32](0),
		IsSearchEnabled:    true,
	}.EngineOptions()
	assert.Equal(t, uint64(10), opts.MaxKeys)
	assert.Equal(t, uint16(0), opts.RedundantBlocks)
	assert.Equal(t, uint64(2), opts.PoolCapacity)
	assert.Equal(t, time.Duration(0), opts.CompactionInterval)
	assert.True(t, opts.SearchEnabled)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.NoError(t, Config{StorePath: "x"}.Validate())
	assert.Equal(t, DefaultWorkers, Config{}.WorkerCount())
	assert.Equal(t, 7, Config{Workers: 7}.WorkerCount())
}
