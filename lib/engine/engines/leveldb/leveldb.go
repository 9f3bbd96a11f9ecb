package leveldb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ValentinKolb/scdb/lib/common"
	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/engine/util"
	"github.com/syndtr/goleveldb/leveldb"
	lvlerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlutil "github.com/syndtr/goleveldb/leveldb/util"
)

var log = common.GetLogger(common.LoggerLevelDB)

const (
	dirName      = "leveldb"
	envelopeSize = 8 // big endian expiration timestamp in front of every value
)

// levelImpl stores entries in a goleveldb database
type levelImpl struct {
	opts engine.Options
	path string
	db   *leveldb.DB
	keys uint64 // keys in the database, including expired ones

	// mu only fences the background compaction
	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// Open opens (or creates) a leveldb store in opts.StorePath
func Open(opts *engine.Options) (engine.Engine, error) {
	if opts == nil {
		return nil, fmt.Errorf("leveldb: options must not be nil")
	}
	if err := opts.Prepare(); err != nil {
		return nil, err
	}

	path := filepath.Join(opts.StorePath, dirName)
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: opts.BufferSize(),
	})
	if err != nil {
		if lvlerrors.IsCorrupted(err) {
			return nil, fmt.Errorf("%w: %v", engine.ErrCorrupted, err)
		}
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}

	l := &levelImpl{
		opts: *opts,
		path: path,
		db:   db,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	iter := db.NewIterator(nil, nil)
	for iter.Next() {
		l.keys++
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		db.Close()
		return nil, fmt.Errorf("count keys: %w", err)
	}

	log.Infof("opened store at %s (%d keys)", path, l.keys)

	if opts.CompactionInterval > 0 {
		go l.compactionLoop(opts.CompactionInterval)
	} else {
		close(l.done)
	}

	return l, nil
}

// --------------------------------------------------------------------------
// Value envelope
// --------------------------------------------------------------------------

func wrap(value []byte, expiresAt int64) []byte {
	buf := make([]byte, envelopeSize+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expiresAt))
	copy(buf[envelopeSize:], value)
	return buf
}

func unwrap(raw []byte) (value []byte, expiresAt int64, err error) {
	if len(raw) < envelopeSize {
		return nil, 0, fmt.Errorf("%w: value envelope of %d bytes", engine.ErrCorrupted, len(raw))
	}
	return raw[envelopeSize:], int64(binary.BigEndian.Uint64(raw)), nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// purgeExpired deletes all expired entries and returns how many were deleted
func (l *levelImpl) purgeExpired() (int, error) {
	batch := new(leveldb.Batch)

	iter := l.db.NewIterator(nil, nil)
	for iter.Next() {
		_, expiresAt, err := unwrap(iter.Value())
		if err != nil || l.opts.IsExpired(expiresAt) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("scan expired: %w", err)
	}

	if batch.Len() == 0 {
		return 0, nil
	}
	if err := l.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	l.keys -= uint64(batch.Len())
	return batch.Len(), nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry without expiration
func (l *levelImpl) Set(key, value []byte) error {
	return l.put(key, value, 0)
}

// SetE inserts or updates an entry that expires after ttl
func (l *levelImpl) SetE(key, value []byte, ttl time.Duration) error {
	return l.put(key, value, l.opts.ExpiresAt(ttl))
}

func (l *levelImpl) put(key, value []byte, expiresAt int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return engine.ErrClosed
	}

	exists, err := l.db.Has(key, nil)
	if err != nil {
		return fmt.Errorf("lookup %q: %w", key, err)
	}
	if !exists && l.opts.MaxKeys > 0 && l.keys >= l.opts.MaxKeys {
		// expired entries don't count against the limit
		if _, err := l.purgeExpired(); err != nil {
			return err
		}
		if l.keys >= l.opts.MaxKeys {
			return fmt.Errorf("%w: limit of %d keys reached", engine.ErrCapacityExceeded, l.opts.MaxKeys)
		}
	}

	if err := l.db.Put(key, wrap(value, expiresAt), nil); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	if !exists {
		l.keys++
	}
	return nil
}

// Delete removes an entry, a missing key is not an error
func (l *levelImpl) Delete(key []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return engine.ErrClosed
	}

	exists, err := l.db.Has(key, nil)
	if err != nil {
		return fmt.Errorf("lookup %q: %w", key, err)
	}
	if !exists {
		return nil
	}
	if err := l.db.Delete(key, nil); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	l.keys--
	return nil
}

// Clear removes all entries
func (l *levelImpl) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return engine.ErrClosed
	}

	batch := new(leveldb.Batch)
	iter := l.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	l.keys = 0
	return nil
}

// Compact purges expired entries and compacts the whole key range
func (l *levelImpl) Compact() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return engine.ErrClosed
	}
	return l.compactLocked()
}

func (l *levelImpl) compactLocked() error {
	purged, err := l.purgeExpired()
	if err != nil {
		return err
	}
	if err := l.db.CompactRange(lvlutil.Range{}); err != nil {
		return fmt.Errorf("compact range: %w", err)
	}
	log.Infof("compacted store at %s, %d expired entries purged", l.path, purged)
	return nil
}

func (l *levelImpl) compactionLoop(interval time.Duration) {
	defer close(l.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			if !l.closed {
				if err := l.compactLocked(); err != nil {
					log.Errorf("background compaction of %s failed: %v", l.path, err)
				}
			}
			l.mu.Unlock()
		}
	}
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

// Get retrieves the value for a key
func (l *levelImpl) Get(key []byte) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, false, engine.ErrClosed
	}

	raw, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}

	value, expiresAt, err := unwrap(raw)
	if err != nil {
		return nil, false, err
	}
	if l.opts.IsExpired(expiresAt) {
		return nil, false, nil
	}
	return value, true, nil
}

// Search iterates the key range of the prefix
func (l *levelImpl) Search(term []byte, skip, limit uint64) ([]engine.KeyValuePair, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, engine.ErrClosed
	}
	if !l.opts.SearchEnabled {
		return nil, engine.ErrSearchDisabled
	}

	pager := util.NewPager(skip, limit)
	result := make([]engine.KeyValuePair, 0)

	iter := l.db.NewIterator(lvlutil.BytesPrefix(term), nil)
	defer iter.Release()

	for iter.Next() {
		value, expiresAt, err := unwrap(iter.Value())
		if err != nil {
			return nil, err
		}
		if l.opts.IsExpired(expiresAt) {
			continue
		}

		take, more := pager.Offer()
		if take {
			result = append(result, engine.KeyValuePair{
				Key:   append([]byte{}, iter.Key()...),
				Value: append([]byte{}, value...),
			})
		}
		if !more {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the store
func (l *levelImpl) GetInfo() engine.Info {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		live int
		size int64
	)
	stats := &leveldb.DBStats{}
	if !l.closed {
		iter := l.db.NewIterator(nil, nil)
		for iter.Next() {
			if _, expiresAt, err := unwrap(iter.Value()); err == nil && !l.opts.IsExpired(expiresAt) {
				live++
			}
		}
		iter.Release()

		if err := l.db.Stats(stats); err != nil {
			log.Warningf("read leveldb stats: %v", err)
		}
	}

	// tables, journal and manifest
	if entries, err := os.ReadDir(l.path); err == nil {
		for _, entry := range entries {
			if fi, err := entry.Info(); err == nil && !fi.IsDir() {
				size += fi.Size()
			}
		}
	}

	meta := &struct {
		Directory       string  `json:"directory"`
		Keys            uint64  `json:"keys"`
		BlockCacheBytes int     `json:"block_cache_bytes"`
		LevelTables     []int   `json:"level_tables"`
		LevelSizes      []int64 `json:"level_sizes"`
		WriteDelayCount int32   `json:"write_delay_count"`
		SearchEnabled   bool    `json:"search_enabled"`
		RedundantBlocks string  `json:"redundant_blocks"`
	}{
		Directory:       l.path,
		Keys:            l.keys,
		BlockCacheBytes: l.opts.BufferSize(),
		LevelTables:     stats.LevelTablesCounts,
		LevelSizes:      stats.LevelSizes,
		WriteDelayCount: stats.WriteDelayCount,
		SearchEnabled:   l.opts.SearchEnabled,
		RedundantBlocks: "ignored, durability is provided by the leveldb journal",
	}

	return engine.Info{
		StorePath:         l.opts.StorePath,
		Keys:              live,
		SizeBytes:         size,
		EngineType:        engine.ImplLevelDB,
		SupportedFeatures: l.features(),
		Metadata:          meta,
	}
}

func (l *levelImpl) features() []engine.Feature {
	features := []engine.Feature{
		engine.FeatureSet, engine.FeatureSetE, engine.FeatureGet, engine.FeatureDelete,
		engine.FeatureClear, engine.FeatureCompact, engine.FeaturePersistence,
	}
	if l.opts.SearchEnabled {
		features = append(features, engine.FeatureSearch)
	}
	return features
}

// SupportsFeature checks if this engine supports a specific feature
func (l *levelImpl) SupportsFeature(feature engine.Feature) bool {
	var supported engine.Feature
	for _, f := range l.features() {
		supported |= f
	}
	return supported&feature == feature
}

// Close stops the background compaction and closes the database
func (l *levelImpl) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.stop)
	l.mu.Unlock()

	<-l.done

	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close leveldb: %w", err)
	}
	log.Infof("closed store at %s", l.path)
	return nil
}
