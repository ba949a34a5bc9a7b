package ratingstore

import (
	"sync"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

// Snapshot caches the latest pushed record set for readers that do not keep a
// subscription of their own. Only the subscription callback writes to it.
type Snapshot struct {
	mu      sync.RWMutex
	records []domain.RatingRecord
	version uint64
	unsub   func()
}

// Attach subscribes a new Snapshot to st.
func Attach(st Store) (*Snapshot, error) {
	s := &Snapshot{}
	unsub, err := st.SubscribeAll(s.update)
	if err != nil {
		return nil, err
	}
	s.unsub = unsub
	return s, nil
}

func (s *Snapshot) update(records []domain.RatingRecord) {
	s.mu.Lock()
	s.records = records
	s.version++
	s.mu.Unlock()
}

// Records returns the latest set. The slice must not be modified.
func (s *Snapshot) Records() []domain.RatingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// Version counts received pushes; zero means nothing arrived yet.
func (s *Snapshot) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Close ends the subscription.
func (s *Snapshot) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}
