package service

import (
	"sync"
	"time"

	"github.com/andreirk/bscwatch/internal/domain/model"
)

// SeenTxSet is the C6 in-memory dedup set: a (tx_hash, log_index) pair is
// admitted at most once within the TTL horizon. Expired entries are swept
// lazily on Seen rather than by a background goroutine, since the set
// stays small relative to the dedup window.
type SeenTxSet struct {
	mu    sync.Mutex
	ttl   time.Duration
	seen  map[model.SeenTx]time.Time
	drops int
}

// NewSeenTxSet builds a dedup set with the given TTL horizon.
func NewSeenTxSet(ttl time.Duration) *SeenTxSet {
	return &SeenTxSet{ttl: ttl, seen: make(map[model.SeenTx]time.Time)}
}

// Seen reports whether (txHash, logIndex) was already admitted within the
// TTL horizon, and records it as seen if not (an atomic check-and-set).
func (s *SeenTxSet) Seen(txHash string, logIndex uint64) bool {
	key := model.SeenTx{TxHash: txHash, LogIndex: logIndex}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiresAt, ok := s.seen[key]; ok && now.Before(expiresAt) {
		s.drops++
		return true
	}
	s.seen[key] = now.Add(s.ttl)

	if len(s.seen)%1024 == 0 {
		s.sweepLocked(now)
	}
	return false
}

func (s *SeenTxSet) sweepLocked(now time.Time) {
	for k, expiresAt := range s.seen {
		if now.After(expiresAt) {
			delete(s.seen, k)
		}
	}
}

// Len reports the current set size, including not-yet-swept expired keys.
func (s *SeenTxSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
