package syncclient

import (
	"sync"
	"time"
)

type protectionEntry struct {
	expiresAt time.Time
	writes    int
}

// protectionTable counts the local writes currently in flight per card. While
// a card has unsettled writes, polled rows may carry stamps newer than the
// optimistic local state and must not overwrite it. The table is a bounded
// cache, not an accumulator: entries expire after the TTL and are swept
// lazily on access, and inserting past capacity evicts the entry closest to
// expiry. The TTL is the escape hatch for a write whose response never
// arrives; once it lapses the card stops being treated as pending.
type protectionTable struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]protectionEntry
	now        func() time.Time
}

func newProtectionTable(ttl time.Duration, maxEntries int, now func() time.Time) *protectionTable {
	if now == nil {
		now = time.Now
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &protectionTable{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]protectionEntry),
		now:        now,
	}
}

// mark records one more in-flight write for the card and refreshes its
// expiry.
func (p *protectionTable) mark(cardID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweepLocked()
	entry, ok := p.entries[cardID]
	if !ok {
		if len(p.entries) >= p.maxEntries {
			p.evictSoonestLocked()
		}
		entry = protectionEntry{}
	}
	entry.writes++
	entry.expiresAt = p.now().Add(p.ttl)
	p.entries[cardID] = entry
}

// active reports whether the card still has writes in flight.
func (p *protectionTable) active(cardID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[cardID]
	if !ok {
		return false
	}
	if !p.now().Before(entry.expiresAt) {
		delete(p.entries, cardID)
		return false
	}
	return true
}

// release settles one in-flight write and reports whether others remain
// pending for the card.
func (p *protectionTable) release(cardID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[cardID]
	if !ok {
		return false
	}
	if !p.now().Before(entry.expiresAt) {
		delete(p.entries, cardID)
		return false
	}
	entry.writes--
	if entry.writes <= 0 {
		delete(p.entries, cardID)
		return false
	}
	p.entries[cardID] = entry
	return true
}

func (p *protectionTable) clear(cardID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, cardID)
}

func (p *protectionTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	return len(p.entries)
}

func (p *protectionTable) sweepLocked() {
	now := p.now()
	for id, entry := range p.entries {
		if !now.Before(entry.expiresAt) {
			delete(p.entries, id)
		}
	}
}

func (p *protectionTable) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for id, entry := range p.entries {
		if victim == "" || entry.expiresAt.Before(soonest) {
			victim = id
			soonest = entry.expiresAt
		}
	}
	if victim != "" {
		delete(p.entries, victim)
	}
}
