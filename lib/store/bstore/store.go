package bstore

import (
	"io"
	"time"

	"github.com/ValentinKolb/scdb/lib/common"
	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/store"
	"github.com/ValentinKolb/scdb/lib/store/internal"
)

var log = common.GetLogger(common.LoggerStore)

type storeImpl struct {
	engine  engine.Engine
	metrics *internal.Metrics
}

// New opens the store described by cfg and returns a blocking handle that owns it.
// The handle is not safe for concurrent use.
func New(cfg store.Config) (store.IStore, error) {
	e, err := internal.OpenEngine(cfg)
	if err != nil {
		return nil, err
	}
	log.Infof("opened blocking store at %s (engine=%s)", cfg.StorePath, e.GetInfo().EngineType)
	return NewFromEngine(e), nil
}

// NewFromEngine wraps an already opened engine. The handle takes ownership of the engine.
func NewFromEngine(e engine.Engine) store.IStore {
	return &storeImpl{
		engine:  e,
		metrics: internal.NewMetrics("blocking"),
	}
}

// done records the metrics of an operation and classifies its error
func (s *storeImpl) done(op internal.Op, start time.Time, err error) error {
	err = internal.Classify(op, err)
	s.metrics.Observe(op, start, err)
	return err
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key, value string) error {
	start := time.Now()
	return s.done(internal.OpSet, start, s.engine.Set([]byte(key), []byte(value)))
}

func (s *storeImpl) SetE(key, value string, ttl uint64) error {
	start := time.Now()
	return s.done(internal.OpSetE, start, s.engine.SetE([]byte(key), []byte(value), internal.TTL(ttl)))
}

func (s *storeImpl) Get(key string) (string, bool, error) {
	start := time.Now()
	raw, found, err := s.engine.Get([]byte(key))
	if err != nil || !found {
		return "", false, s.done(internal.OpGet, start, err)
	}
	value, err := internal.DecodeValue(internal.OpGet, raw)
	if err != nil {
		return "", false, s.done(internal.OpGet, start, err)
	}
	return value, true, s.done(internal.OpGet, start, nil)
}

func (s *storeImpl) Delete(key string) error {
	start := time.Now()
	return s.done(internal.OpDelete, start, s.engine.Delete([]byte(key)))
}

func (s *storeImpl) Clear() error {
	start := time.Now()
	return s.done(internal.OpClear, start, s.engine.Clear())
}

func (s *storeImpl) Compact() error {
	start := time.Now()
	return s.done(internal.OpCompact, start, s.engine.Compact())
}

func (s *storeImpl) Search(term string, skip, limit uint64) ([]store.KeyValue, error) {
	start := time.Now()
	if !s.engine.SupportsFeature(engine.FeatureSearch) {
		return nil, s.done(internal.OpSearch, start, engine.ErrSearchDisabled)
	}
	pairs, err := s.engine.Search([]byte(term), skip, limit)
	if err != nil {
		return nil, s.done(internal.OpSearch, start, err)
	}
	page, err := internal.DecodePairs(internal.OpSearch, pairs)
	return page, s.done(internal.OpSearch, start, err)
}

func (s *storeImpl) WritePrometheus(w io.Writer) {
	s.metrics.WritePrometheus(w)
}

func (s *storeImpl) Close() error {
	start := time.Now()
	err := s.done(internal.OpClose, start, s.engine.Close())
	if err == nil {
		log.Debugf("closed blocking store")
	}
	return err
}
