package internal

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/engine/engines"
	"github.com/ValentinKolb/scdb/lib/store"
)

// OpenEngine validates the config and opens the configured engine
func OpenEngine(cfg store.Config) (engine.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, store.NewError(store.RetCIOError, OpOpen.String(), err)
	}
	e, err := engines.Open(cfg.Engine, cfg.EngineOptions())
	if err != nil {
		return nil, store.NewError(store.RetCIOError, OpOpen.String(), err)
	}
	return e, nil
}

// Classify converts an error of an engine call into a classified store error.
// Context errors and already classified errors are returned unchanged.
func Classify(op Op, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var e *store.Error
	if errors.As(err, &e) {
		return err
	}
	return store.NewError(store.RetCIOError, op.String(), err)
}

// TTL converts a ttl in seconds into a duration. Values that overflow a duration are clamped.
func TTL(seconds uint64) time.Duration {
	const maxSeconds = uint64(1<<63-1) / uint64(time.Second)
	if seconds > maxSeconds {
		seconds = maxSeconds
	}
	return time.Duration(seconds) * time.Second
}

// DecodeValue converts the bytes of a value into a string, they must be valid UTF-8
func DecodeValue(op Op, b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", store.NewError(store.RetCDecodeError, op.String(), fmt.Errorf("value is not valid utf-8"))
	}
	return string(b), nil
}

// DecodePairs converts a search result of the engine into key-value strings.
// The first key or value that is not valid UTF-8 fails the whole page.
func DecodePairs(op Op, pairs []engine.KeyValuePair) ([]store.KeyValue, error) {
	page := make([]store.KeyValue, 0, len(pairs))
	for _, p := range pairs {
		if !utf8.Valid(p.Key) {
			return nil, store.NewError(store.RetCDecodeError, op.String(), fmt.Errorf("key %q is not valid utf-8", p.Key))
		}
		if !utf8.Valid(p.Value) {
			return nil, store.NewError(store.RetCDecodeError, op.String(), fmt.Errorf("value of key %q is not valid utf-8", p.Key))
		}
		page = append(page, store.KeyValue{Key: string(p.Key), Value: string(p.Value)})
	}
	return page, nil
}
