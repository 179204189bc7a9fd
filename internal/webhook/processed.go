package webhook

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	DefaultProcessedTTL        = 15 * time.Minute
	DefaultProcessedMaxEntries = 2048
)

// ProcessedSet remembers inbound event ids for a TTL, bounded in size. It
// lives for the process lifetime only.
type ProcessedSet struct {
	mu  sync.Mutex
	ttl time.Duration
	ids *simplelru.LRU[string, time.Time]
	now func() time.Time
}

func NewProcessedSet(ttl time.Duration, maxEntries int) *ProcessedSet {
	if ttl <= 0 {
		ttl = DefaultProcessedTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultProcessedMaxEntries
	}
	// NewLRU only fails for a non-positive size.
	ids, _ := simplelru.NewLRU[string, time.Time](maxEntries, nil)
	return &ProcessedSet{
		ttl: ttl,
		ids: ids,
		now: time.Now,
	}
}

// Claim registers id and reports true, or reports false when id was already
// claimed within the TTL. When full, the oldest id is evicted.
func (s *ProcessedSet) Claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if _, ok := s.ids.Peek(id); ok {
		return false
	}
	s.ids.Add(id, now)
	return true
}

// Release forgets id so a redelivery is processed again.
func (s *ProcessedSet) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids.Remove(id)
}

func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids.Len()
}

func (s *ProcessedSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids.Purge()
}

// sweep drops expired ids. Entries are never re-added, so insertion order
// equals age order and the walk stops at the first fresh entry.
func (s *ProcessedSet) sweep(now time.Time) {
	for {
		_, claimedAt, ok := s.ids.GetOldest()
		if !ok || now.Sub(claimedAt) < s.ttl {
			return
		}
		s.ids.RemoveOldest()
	}
}
