package syncclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/pkg/logger"
)

// FlushFunc receives a coalesced set of card positions.
type FlushFunc func(ctx context.Context, positions map[string]int) error

// ReorderBatcher coalesces rapid sort-order changes into one flush. A drag
// across the board emits dozens of position writes in well under a second;
// batching them keeps the visible reorder to a single transition and the
// network traffic to one grouped burst.
type ReorderBatcher struct {
	window time.Duration
	flush  FlushFunc
	logg   *logger.Logger

	mu      sync.Mutex
	pending map[string]int
	timer   *time.Timer
}

// NewReorderBatcher validates dependencies and returns an empty batcher.
func NewReorderBatcher(window time.Duration, flush FlushFunc, logg *logger.Logger) (*ReorderBatcher, error) {
	if window <= 0 {
		return nil, fmt.Errorf("reorder batcher requires a positive window")
	}
	if flush == nil {
		return nil, fmt.Errorf("reorder batcher requires a flush function")
	}
	if logg == nil {
		return nil, fmt.Errorf("reorder batcher requires a logger")
	}
	return &ReorderBatcher{window: window, flush: flush, logg: logg}, nil
}

// Queue records a card's new position. The first queued card arms the flush
// timer; later writes inside the window join the same batch, and a repeat
// write for the same card keeps only the latest position.
func (b *ReorderBatcher) Queue(cardID string, position int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		b.pending = make(map[string]int)
	}
	b.pending[cardID] = position

	if b.timer == nil {
		b.timer = time.AfterFunc(b.window, func() {
			if err := b.Flush(context.Background()); err != nil {
				b.logg.Error(context.Background(), "reorder batch flush failed", err)
			}
		})
	}
}

// Flush sends the pending batch now. The batch is captured and cleared under
// the lock before the flush function runs, so positions queued during a slow
// flush start a fresh window instead of racing the in-flight one.
func (b *ReorderBatcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return b.flush(ctx, batch)
}

// PendingCount reports how many cards are waiting for the next flush.
func (b *ReorderBatcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
