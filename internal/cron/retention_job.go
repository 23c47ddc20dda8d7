package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/pkg/logger"
)

// cardPruner removes card state rows older than a cutoff.
type cardPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJobParams configure the card state retention job.
type RetentionJobParams struct {
	Logger     *logger.Logger
	Cards      cardPruner
	MaxAgeDays int
}

// NewRetentionJob builds the job that prunes card state for delivery dates
// past the retention horizon. Cards synchronize day-of-work state; once a
// delivery date is months behind, the rows are dead weight.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cards == nil {
		return nil, fmt.Errorf("card pruner required")
	}
	if params.MaxAgeDays <= 0 {
		return nil, fmt.Errorf("retention age must be positive")
	}
	return &retentionJob{
		logg:       params.Logger,
		cards:      params.Cards,
		maxAgeDays: params.MaxAgeDays,
		now:        time.Now,
	}, nil
}

type retentionJob struct {
	logg       *logger.Logger
	cards      cardPruner
	maxAgeDays int
	now        func() time.Time
}

func (j *retentionJob) Name() string { return "card-state-retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.maxAgeDays)
	deleted, err := j.cards.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune card state: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff.Format("2006-01-02"),
		"deleted": deleted,
	})
	j.logg.Info(logCtx, "card state retention complete")
	return nil
}
