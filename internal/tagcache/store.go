package tagcache

import (
	"sync"
	"time"
)

// Store remembers when each EPC was last reported. An EPC counts as new
// again once it has been quiet for longer than the TTL.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	seen  map[string]time.Time
	reads map[string]uint64
}

func New(ttl time.Duration) *Store {
	return NewWithClock(ttl, time.Now)
}

func NewWithClock(ttl time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		ttl:   ttl,
		now:   now,
		seen:  make(map[string]time.Time),
		reads: make(map[string]uint64),
	}
}

// Observe records a read and reports whether the EPC is new.
func (s *Store) Observe(epc string) bool {
	if epc == "" {
		return false
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	last, exists := s.seen[epc]
	s.seen[epc] = now
	s.reads[epc]++
	if !exists {
		return true
	}
	if s.ttl > 0 && now.Sub(last) > s.ttl {
		s.reads[epc] = 1
		return true
	}
	return false
}

func (s *Store) Remove(epc string) {
	if epc == "" {
		return
	}
	s.mu.Lock()
	delete(s.seen, epc)
	delete(s.reads, epc)
	s.mu.Unlock()
}

func (s *Store) Has(epc string) bool {
	if epc == "" {
		return false
	}
	s.mu.RLock()
	_, ok := s.seen[epc]
	s.mu.RUnlock()
	return ok
}

// Reads is the number of reads since the EPC last became new.
func (s *Store) Reads(epc string) uint64 {
	s.mu.RLock()
	n := s.reads[epc]
	s.mu.RUnlock()
	return n
}

// Prune drops entries quiet for longer than the TTL and returns how many
// were removed.
func (s *Store) Prune() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for epc, last := range s.seen {
		if last.Before(cutoff) {
			delete(s.seen, epc)
			delete(s.reads, epc)
			removed++
		}
	}
	return removed
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.seen = make(map[string]time.Time)
	s.reads = make(map[string]uint64)
	s.mu.Unlock()
}

func (s *Store) Size() int {
	s.mu.RLock()
	size := len(s.seen)
	s.mu.RUnlock()
	return size
}
