package clock

import (
	"sync"
	"time"
)

// Stamper issues strictly increasing UTC timestamps with microsecond
// resolution. Two stamps taken within the same wall-clock instant still
// compare as distinct, which is what lets the change feed distinguish rapid
// successive writes.
type Stamper struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewStamper builds a stamper backed by the system clock.
func NewStamper() *Stamper {
	return &Stamper{now: time.Now}
}

// NewStamperWithNow builds a stamper with an injectable time source.
func NewStamperWithNow(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

// Next returns a timestamp strictly greater than every previously issued one.
func (s *Stamper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := s.now().UTC().Truncate(time.Microsecond)
	if !stamp.After(s.last) {
		stamp = s.last.Add(time.Microsecond)
	}
	s.last = stamp
	return stamp
}
