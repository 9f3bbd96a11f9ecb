package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// fall back to the current time, only if the system rng is unavailable
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashString generates a seeded FNV-1a hash for a string.
// It is used to spread keys over shards, never as the identity of a key.
func HashString(s string, seed uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return hash
}

// --------------------------------------------------------------------------
// Prefix Search Helpers
// --------------------------------------------------------------------------

// PrefixEnd returns the smallest key that is greater than every key starting with prefix.
// It returns nil if no such key exists (empty prefix or a prefix of only 0xff bytes),
// meaning the range is unbounded.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Pager applies skip and limit to a stream of search hits.
// A limit of 0 means no limit.
type Pager struct {
	skip  uint64
	limit uint64
	seen  uint64
	taken uint64
}

// NewPager creates a pager for the given skip and limit
func NewPager(skip, limit uint64) *Pager {
	return &Pager{skip: skip, limit: limit}
}

// Offer is called once per (live) hit in result order.
// take reports whether the hit belongs to the page, more whether iteration should continue.
func (p *Pager) Offer() (take bool, more bool) {
	if p.Full() {
		return false, false
	}
	if p.seen < p.skip {
		p.seen++
		return false, true
	}
	p.taken++
	return true, !p.Full()
}

// Full reports whether the page holds limit hits
func (p *Pager) Full() bool {
	return p.limit > 0 && p.taken >= p.limit
}
