package syncclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/internal/cardstate"
	"github.com/bloomflowhq/bloomflow-backend/pkg/db/models"
	"github.com/bloomflowhq/bloomflow-backend/pkg/logger"
)

// FeedSource is the read side of the change feed.
type FeedSource interface {
	Changes(ctx context.Context, deliveryDate string, since time.Time) (*cardstate.Feed, error)
}

// Dispatcher receives polled rows. Dispatch must not return until the rows
// are safely handed off; the poller's watermark depends on it.
type Dispatcher interface {
	Dispatch(ctx context.Context, rows []models.OrderCardState) error
}

// Poller drives the change feed on a fixed interval from a single goroutine.
// One goroutine means ticks can never overlap: a tick that runs long simply
// causes the ticker to drop the next one. Each tick gets a timeout equal to
// the interval so a stuck request cannot wedge the loop.
//
// The first successful poll only primes the watermark from the server clock.
// Its rows are discarded: history before the session started is the snapshot
// loader's job, not the feed's.
type Poller struct {
	source       FeedSource
	sink         Dispatcher
	deliveryDate string
	interval     time.Duration
	logg         *logger.Logger

	watermark time.Time
	primed    bool
}

// PollerParams carries the dependencies for a Poller.
type PollerParams struct {
	Source       FeedSource
	Sink         Dispatcher
	DeliveryDate string
	Interval     time.Duration
	Logger       *logger.Logger
}

// NewPoller validates dependencies and returns an idle poller.
func NewPoller(params PollerParams) (*Poller, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("poller requires a feed source")
	}
	if params.Sink == nil {
		return nil, fmt.Errorf("poller requires a dispatcher")
	}
	if strings.TrimSpace(params.DeliveryDate) == "" {
		return nil, fmt.Errorf("poller requires a delivery date")
	}
	if params.Interval <= 0 {
		return nil, fmt.Errorf("poller requires a positive interval")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("poller requires a logger")
	}
	return &Poller{
		source:       params.Source,
		sink:         params.Sink,
		deliveryDate: params.DeliveryDate,
		interval:     params.Interval,
		logg:         params.Logger,
	}, nil
}

// Run polls until the context is cancelled. It always returns the context's
// error, which makes teardown deterministic for the caller.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Prime immediately instead of waiting out the first interval.
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	feed, err := p.source.Changes(tickCtx, p.deliveryDate, p.watermark)
	if err != nil {
		if ctx.Err() == nil {
			p.logg.Warn(ctx, fmt.Sprintf("change feed poll failed: %v", err))
		}
		return
	}

	if !p.primed {
		p.watermark = feed.ServerNow
		p.primed = true
		return
	}

	if len(feed.Rows) > 0 {
		if err := p.sink.Dispatch(tickCtx, feed.Rows); err != nil {
			// Watermark stays put; the lookback window redelivers these
			// rows on the next successful tick.
			if ctx.Err() == nil {
				p.logg.Warn(ctx, fmt.Sprintf("dispatching %d polled rows failed: %v", len(feed.Rows), err))
			}
			return
		}
	}
	p.watermark = feed.ServerNow
}
