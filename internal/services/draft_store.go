package services

import (
	"sync"
	"time"
)

const defaultDraftTTL = 12 * time.Hour

// DraftStore keeps one in-memory composer per operator. Drafts idle for longer than the TTL
// are dropped.
type DraftStore struct {
	ttl     time.Duration
	clock   func() time.Time
	factory func() *OrderComposer

	mu     sync.Mutex
	drafts map[string]*draftEntry
}

type draftEntry struct {
	mu       sync.Mutex
	composer *OrderComposer
	lastUsed time.Time
}

// NewDraftStore builds a store whose composers come from factory.
func NewDraftStore(factory func() *OrderComposer, ttl time.Duration, clock func() time.Time) *DraftStore {
	if ttl <= 0 {
		ttl = defaultDraftTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &DraftStore{ttl: ttl, clock: clock, factory: factory, drafts: make(map[string]*draftEntry)}
}

// With runs fn with exclusive access to the operator's composer, creating it on first use.
func (s *DraftStore) With(operatorID string, fn func(*OrderComposer) error) error {
	entry := s.entry(operatorID)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.lastUsed = s.clock()
	return fn(entry.composer)
}

// Drop discards the operator's draft.
func (s *DraftStore) Drop(operatorID string) {
	s.mu.Lock()
	delete(s.drafts, operatorID)
	s.mu.Unlock()
}

// Len reports the number of live drafts.
func (s *DraftStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

func (s *DraftStore) entry(operatorID string) *draftEntry {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.drafts {
		if id != operatorID && entry.mu.TryLock() {
			if now.Sub(entry.lastUsed) > s.ttl {
				delete(s.drafts, id)
			}
			entry.mu.Unlock()
		}
	}
	entry, ok := s.drafts[operatorID]
	if ok && now.Sub(entry.lastUsed) > s.ttl && entry.mu.TryLock() {
		entry.composer.Reset()
		entry.mu.Unlock()
	}
	if !ok {
		entry = &draftEntry{composer: s.factory(), lastUsed: now}
		s.drafts[operatorID] = entry
	}
	return entry
}
