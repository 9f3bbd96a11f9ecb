package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ValentinKolb/scdb/lib/common"
	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/engine/util"
	_ "modernc.org/sqlite"
)

var log = common.GetLogger(common.LoggerSQLite)

const dbFileName = "store.sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        BLOB PRIMARY KEY,
	value      BLOB,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS kv_expires_at ON kv (expires_at) WHERE expires_at != 0;`

// sqliteImpl stores all entries in a single sqlite table
type sqliteImpl struct {
	opts engine.Options
	path string
	db   *sql.DB
	rows uint64 // rows in the table, including expired ones

	// mu only fences the background compaction
	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// Open opens (or creates) a sqlite store in opts.StorePath
func Open(opts *engine.Options) (engine.Engine, error) {
	if opts == nil {
		return nil, fmt.Errorf("sqlite: options must not be nil")
	}
	if err := opts.Prepare(); err != nil {
		return nil, err
	}

	path := filepath.Join(opts.StorePath, dbFileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// pragmas are per connection, so there must only ever be one
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA cache_size=-%d", opts.BufferSize()/1024),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &sqliteImpl{
		opts: *opts,
		path: path,
		db:   db,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM kv").Scan(&s.rows); err != nil {
		db.Close()
		return nil, fmt.Errorf("count rows: %w", err)
	}

	log.Infof("opened store at %s (%d rows)", path, s.rows)

	if opts.CompactionInterval > 0 {
		go s.compactionLoop(opts.CompactionInterval)
	} else {
		close(s.done)
	}

	return s, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (s *sqliteImpl) now() int64 {
	return s.opts.Now().UnixNano()
}

func (s *sqliteImpl) exists(key []byte) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM kv WHERE key = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %q: %w", key, err)
	}
	return true, nil
}

// purgeExpired deletes all expired rows and returns how many were deleted
func (s *sqliteImpl) purgeExpired() (int64, error) {
	res, err := s.db.Exec("DELETE FROM kv WHERE expires_at != 0 AND expires_at <= ?", s.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.rows -= uint64(n)
	return n, nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry without expiration
func (s *sqliteImpl) Set(key, value []byte) error {
	return s.put(key, value, 0)
}

// SetE inserts or updates an entry that expires after ttl
func (s *sqliteImpl) SetE(key, value []byte, ttl time.Duration) error {
	return s.put(key, value, s.opts.ExpiresAt(ttl))
}

func (s *sqliteImpl) put(key, value []byte, expiresAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return engine.ErrClosed
	}

	exists, err := s.exists(key)
	if err != nil {
		return err
	}
	if !exists && s.opts.MaxKeys > 0 && s.rows >= s.opts.MaxKeys {
		// expired entries don't count against the limit
		if _, err := s.purgeExpired(); err != nil {
			return err
		}
		if s.rows >= s.opts.MaxKeys {
			return fmt.Errorf("%w: limit of %d keys reached", engine.ErrCapacityExceeded, s.opts.MaxKeys)
		}
	}

	if value == nil {
		value = []byte{}
	}
	_, err = s.db.Exec(`
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	if !exists {
		s.rows++
	}
	return nil
}

// Delete removes an entry, a missing key is not an error
func (s *sqliteImpl) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return engine.ErrClosed
	}

	res, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.rows -= uint64(n)
	}
	return nil
}

// Clear removes all entries
func (s *sqliteImpl) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return engine.ErrClosed
	}

	if _, err := s.db.Exec("DELETE FROM kv"); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	s.rows = 0
	return nil
}

// Compact purges expired rows and rebuilds the database file
func (s *sqliteImpl) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return engine.ErrClosed
	}
	return s.compactLocked()
}

func (s *sqliteImpl) compactLocked() error {
	purged, err := s.purgeExpired()
	if err != nil {
		return err
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	log.Infof("compacted store at %s, %d expired rows purged", s.path, purged)
	return nil
}

func (s *sqliteImpl) compactionLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.closed {
				if err := s.compactLocked(); err != nil {
					log.Errorf("background compaction of %s failed: %v", s.path, err)
				}
			}
			s.mu.Unlock()
		}
	}
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

// Get retrieves the value for a key
func (s *sqliteImpl) Get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, engine.ErrClosed
	}

	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRow("SELECT value, expires_at FROM kv WHERE key = ?", key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	if s.opts.IsExpired(expiresAt) {
		return nil, false, nil
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// clampInt64 converts v for binding, sqlite integers are signed
func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// Search returns the live entries in the key range of the prefix
func (s *sqliteImpl) Search(term []byte, skip, limit uint64) ([]engine.KeyValuePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, engine.ErrClosed
	}
	if !s.opts.SearchEnabled {
		return nil, engine.ErrSearchDisabled
	}

	query := "SELECT key, value FROM kv WHERE (expires_at = 0 OR expires_at > ?)"
	args := []interface{}{s.now()}
	if len(term) > 0 {
		query += " AND key >= ?"
		args = append(args, term)
	}
	if end := util.PrefixEnd(term); end != nil {
		query += " AND key < ?"
		args = append(args, end)
	}

	// sqlite treats a negative limit as no limit
	sqlLimit := int64(-1)
	if limit > 0 {
		sqlLimit = clampInt64(limit)
	}
	query += " ORDER BY key LIMIT ? OFFSET ?"
	args = append(args, sqlLimit, clampInt64(skip))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	defer rows.Close()

	result := make([]engine.KeyValuePair, 0)
	for rows.Next() {
		var pair engine.KeyValuePair
		if err := rows.Scan(&pair.Key, &pair.Value); err != nil {
			return nil, fmt.Errorf("search %q: %w", term, err)
		}
		if pair.Key == nil {
			pair.Key = []byte{}
		}
		if pair.Value == nil {
			pair.Value = []byte{}
		}
		result = append(result, pair)
	}
	return result, rows.Err()
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the store
func (s *sqliteImpl) GetInfo() engine.Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	var live int
	if !s.closed {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM kv WHERE expires_at = 0 OR expires_at > ?", s.now()).Scan(&live); err != nil {
			log.Warningf("count live rows: %v", err)
		}
	}

	var size int64
	for _, suffix := range []string{"", "-wal"} {
		if stat, err := os.Stat(s.path + suffix); err == nil {
			size += stat.Size()
		}
	}

	meta := &struct {
		File            string `json:"file"`
		Rows            uint64 `json:"rows"`
		CacheKiB        int    `json:"cache_kib"`
		SearchEnabled   bool   `json:"search_enabled"`
		RedundantBlocks string `json:"redundant_blocks"`
	}{
		File:            s.path,
		Rows:            s.rows,
		CacheKiB:        s.opts.BufferSize() / 1024,
		SearchEnabled:   s.opts.SearchEnabled,
		RedundantBlocks: "ignored, durability is provided by the sqlite journal",
	}

	return engine.Info{
		StorePath:         s.opts.StorePath,
		Keys:              live,
		SizeBytes:         size,
		EngineType:        engine.ImplSQLite,
		SupportedFeatures: s.features(),
		Metadata:          meta,
	}
}

func (s *sqliteImpl) features() []engine.Feature {
	features := []engine.Feature{
		engine.FeatureSet, engine.FeatureSetE, engine.FeatureGet, engine.FeatureDelete,
		engine.FeatureClear, engine.FeatureCompact, engine.FeaturePersistence,
	}
	if s.opts.SearchEnabled {
		features = append(features, engine.FeatureSearch)
	}
	return features
}

// SupportsFeature checks if this engine supports a specific feature
func (s *sqliteImpl) SupportsFeature(feature engine.Feature) bool {
	var supported engine.Feature
	for _, f := range s.features() {
		supported |= f
	}
	return supported&feature == feature
}

// Close stops the background compaction and closes the database
func (s *sqliteImpl) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	<-s.done

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	log.Infof("closed store at %s", s.path)
	return nil
}
