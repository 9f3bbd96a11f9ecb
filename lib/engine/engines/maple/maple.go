package maple

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/scdb/lib/common"
	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/engine/engines/maple/internal"
	"github.com/ValentinKolb/scdb/lib/engine/util"
	"github.com/google/btree"
)

var log = common.GetLogger(common.LoggerMaple)

// btreeDegree is the degree of the ordered key index
const btreeDegree = 32

// --------------------------------------------------------------------------
// Core Maple engine structure
// --------------------------------------------------------------------------

// mapleImpl implements a sharded in-memory engine made durable by a write-ahead log
type mapleImpl struct {
	opts   engine.Options
	seed   uint64            // Seed for the shard hash function
	shards []*internal.Shard // Array of shards
	index  *btree.BTree      // Ordered key index, nil if search is disabled
	log    *wal
	sizes  *util.SizeHistogram // Value sizes of all entries

	// mu only fences the background compaction, the engine itself is not safe
	// for concurrent callers
	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// Open opens (or creates) a maple store in opts.StorePath and replays its log
func Open(opts *engine.Options) (engine.Engine, error) {
	if opts == nil {
		return nil, fmt.Errorf("maple: options must not be nil")
	}
	if err := opts.Prepare(); err != nil {
		return nil, err
	}

	m := &mapleImpl{
		opts:   *opts,
		shards: internal.NewShards(runtime.NumCPU()),
		sizes:  util.NewSizeHistogram(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if opts.SearchEnabled {
		m.index = btree.New(btreeDegree)
	}

	// the shard hash depends on the seed of the log, so records are buffered during
	// replay and applied once the seed is known
	var records []record
	start := time.Now()
	l, err := openWAL(opts.StorePath, opts.BufferSize(), func(rec record) {
		records = append(records, rec)
	})
	if err != nil {
		return nil, err
	}
	m.log = l
	m.seed = l.seed

	for _, rec := range records {
		switch rec.op {
		case opSet:
			m.apply(string(rec.key), rec.value, rec.expiresAt)
		case opDelete:
			m.remove(string(rec.key))
		}
	}
	purged := m.purgeExpired()

	log.Infof("opened store at %s (%d records replayed, %d live keys, %d expired purged) in %v",
		opts.StorePath, len(records), m.count(), purged, time.Since(start))

	if opts.CompactionInterval > 0 {
		go m.compactionLoop(opts.CompactionInterval)
	} else {
		close(m.done)
	}

	return m, nil
}

// --------------------------------------------------------------------------
// In-memory state
// --------------------------------------------------------------------------

func (m *mapleImpl) shardOf(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, m.seed), m.shards)
}

// apply stores an entry in memory. value is copied.
func (m *mapleImpl) apply(key string, value []byte, expiresAt int64) {
	shard := m.shardOf(key)

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	old, loaded := shard.Data.LoadAndStore(key, internal.Entry{Value: valueCopy, ExpiresAt: expiresAt})
	if loaded {
		m.sizes.RemoveSample(len(old.Value))
	} else if m.index != nil {
		m.index.ReplaceOrInsert(internal.Key(key))
	}
	m.sizes.AddSample(len(valueCopy))

	if expiresAt != 0 {
		shard.Expiry.AddItem(key, expiresAt)
	} else {
		shard.Expiry.RemoveByKey(key)
	}
}

// remove drops an entry from memory and reports whether it existed
func (m *mapleImpl) remove(key string) bool {
	shard := m.shardOf(key)

	old, loaded := shard.Data.LoadAndDelete(key)
	if !loaded {
		return false
	}
	m.sizes.RemoveSample(len(old.Value))
	shard.Expiry.RemoveByKey(key)
	if m.index != nil {
		m.index.Delete(internal.Key(key))
	}
	return true
}

// purgeExpired drops all expired entries from memory and returns how many were dropped.
// Expired entries need no delete record: replaying their set record expires them again.
func (m *mapleImpl) purgeExpired() int {
	now := m.opts.Now().UnixNano()
	purged := 0
	for _, shard := range m.shards {
		for {
			item, ok := shard.Expiry.Peek()
			if !ok || item.Priority > now {
				break
			}
			m.remove(item.Key)
			shard.Expiry.RemoveByKey(item.Key)
			purged++
		}
	}
	return purged
}

// count returns the number of entries in memory (including expired but not yet purged ones)
func (m *mapleImpl) count() int {
	n := 0
	for _, shard := range m.shards {
		n += shard.Data.Size()
	}
	return n
}

// lookup returns the live entry for key
func (m *mapleImpl) lookup(key string) (internal.Entry, bool) {
	entry, ok := m.shardOf(key).Data.Load(key)
	if !ok || entry.IsExpired(m.opts.Now().UnixNano()) {
		return internal.Entry{}, false
	}
	return entry, true
}

// --------------------------------------------------------------------------
// Engine Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry without expiration
func (m *mapleImpl) Set(key, value []byte) error {
	return m.put(key, value, 0)
}

// SetE inserts or updates an entry that expires after ttl
func (m *mapleImpl) SetE(key, value []byte, ttl time.Duration) error {
	return m.put(key, value, m.opts.ExpiresAt(ttl))
}

// put writes the log record first and then updates memory
func (m *mapleImpl) put(key, value []byte, expiresAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return engine.ErrClosed
	}

	k := string(key)
	if _, exists := m.shardOf(k).Data.Load(k); !exists && m.opts.MaxKeys > 0 && uint64(m.count()) >= m.opts.MaxKeys {
		// expired entries don't count against the limit
		if m.purgeExpired() == 0 || uint64(m.count()) >= m.opts.MaxKeys {
			return fmt.Errorf("%w: limit of %d keys reached", engine.ErrCapacityExceeded, m.opts.MaxKeys)
		}
	}

	if value == nil {
		value = []byte{}
	}
	if err := m.log.append(record{op: opSet, expiresAt: expiresAt, key: key, value: value}); err != nil {
		return err
	}
	m.apply(k, value, expiresAt)
	return nil
}

// Delete removes an entry, a missing key is not an error
func (m *mapleImpl) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return engine.ErrClosed
	}

	k := string(key)
	if _, exists := m.shardOf(k).Data.Load(k); !exists {
		return nil
	}
	if err := m.log.append(record{op: opDelete, key: key}); err != nil {
		return err
	}
	m.remove(k)
	return nil
}

// Clear removes all entries and resets the log
func (m *mapleImpl) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return engine.ErrClosed
	}

	if err := m.log.rewrite(int(m.opts.RedundantBlocks), func(func(record) error) error { return nil }); err != nil {
		return err
	}

	m.shards = internal.NewShards(len(m.shards))
	if m.index != nil {
		m.index = btree.New(btreeDegree)
	}
	m.sizes.Reset()
	log.Debugf("cleared store at %s", m.opts.StorePath)
	return nil
}

// Compact purges expired entries and rewrites the log with the live entries only
func (m *mapleImpl) Compact() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return engine.ErrClosed
	}
	return m.compactLocked()
}

func (m *mapleImpl) compactLocked() error {
	before := m.log.size
	purged := m.purgeExpired()

	err := m.log.rewrite(int(m.opts.RedundantBlocks), func(write func(record) error) error {
		for _, shard := range m.shards {
			var err error
			shard.Data.Range(func(key string, entry internal.Entry) bool {
				err = write(record{op: opSet, expiresAt: entry.ExpiresAt, key: []byte(key), value: entry.Value})
				return err == nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Infof("compacted store at %s: log %d -> %d bytes, %d expired entries purged",
		m.opts.StorePath, before, m.log.size, purged)
	return nil
}

// compactionLoop compacts the store every interval until the engine is closed
func (m *mapleImpl) compactionLoop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if !m.closed {
				if err := m.compactLocked(); err != nil {
					log.Errorf("background compaction of %s failed: %v", m.opts.StorePath, err)
				}
			}
			m.mu.Unlock()
		}
	}
}

// --------------------------------------------------------------------------
// Engine Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a copy of the value for a key
func (m *mapleImpl) Get(key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, engine.ErrClosed
	}

	entry, ok := m.lookup(string(key))
	if !ok {
		return nil, false, nil
	}
	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	return value, true, nil
}

// Search walks the ordered key index from term on until the prefix no longer matches
func (m *mapleImpl) Search(term []byte, skip, limit uint64) ([]engine.KeyValuePair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, engine.ErrClosed
	}
	if m.index == nil {
		return nil, engine.ErrSearchDisabled
	}

	pager := util.NewPager(skip, limit)
	result := make([]engine.KeyValuePair, 0)

	m.index.AscendGreaterOrEqual(internal.Key(term), func(item btree.Item) bool {
		key := string(item.(internal.Key))
		if !strings.HasPrefix(key, string(term)) {
			return false
		}

		entry, ok := m.lookup(key)
		if !ok {
			return true
		}

		take, more := pager.Offer()
		if take {
			value := make([]byte, len(entry.Value))
			copy(value, entry.Value)
			result = append(result, engine.KeyValuePair{Key: []byte(key), Value: value})
		}
		return more
	})

	return result, nil
}

// --------------------------------------------------------------------------
// Engine Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the store
func (m *mapleImpl) GetInfo() engine.Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Now().UnixNano()
	shardSizes := make([]float64, len(m.shards))
	live, expired := 0, 0
	for i, shard := range m.shards {
		shardSizes[i] = float64(shard.Data.Size())
		shard.Data.Range(func(_ string, entry internal.Entry) bool {
			if entry.IsExpired(now) {
				expired++
			} else {
				live++
			}
			return true
		})
	}

	var logSize int64
	if !m.closed {
		logSize = m.log.sizeOnDisk(int(m.opts.RedundantBlocks))
	}

	meta := &struct {
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		ExpiredBacklog    int                    `json:"expired_backlog"`
		MedianValueSize   int                    `json:"median_value_size"`
		ValueBytes        int64                  `json:"value_bytes"`
		LogGenerations    uint16                 `json:"log_generations"`
		SearchEnabled     bool                   `json:"search_enabled"`
		Closed            bool                   `json:"closed"`
	}{
		ShardCount:        len(m.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		ExpiredBacklog:    expired,
		MedianValueSize:   m.sizes.MedianEstimate(),
		ValueBytes:        m.sizes.Sum(),
		LogGenerations:    m.opts.RedundantBlocks,
		SearchEnabled:     m.index != nil,
		Closed:            m.closed,
	}

	return engine.Info{
		StorePath:         m.opts.StorePath,
		Keys:              live,
		SizeBytes:         logSize,
		EngineType:        engine.ImplMaple,
		SupportedFeatures: m.features(),
		Metadata:          meta,
	}
}

func (m *mapleImpl) features() []engine.Feature {
	features := []engine.Feature{
		engine.FeatureSet, engine.FeatureSetE, engine.FeatureGet, engine.FeatureDelete,
		engine.FeatureClear, engine.FeatureCompact, engine.FeaturePersistence,
	}
	if m.index != nil {
		features = append(features, engine.FeatureSearch)
	}
	return features
}

// SupportsFeature checks if this engine supports a specific feature
func (m *mapleImpl) SupportsFeature(feature engine.Feature) bool {
	supported := engine.FeatureSet |
		engine.FeatureSetE |
		engine.FeatureGet |
		engine.FeatureDelete |
		engine.FeatureClear |
		engine.FeatureCompact |
		engine.FeaturePersistence
	if m.index != nil {
		supported |= engine.FeatureSearch
	}
	return supported&feature == feature
}

// Close stops the background compaction and syncs the log
func (m *mapleImpl) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	<-m.done

	if err := m.log.close(); err != nil {
		return err
	}
	log.Infof("closed store at %s", m.opts.StorePath)
	return nil
}
