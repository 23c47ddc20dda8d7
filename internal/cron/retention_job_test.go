package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/pkg/logger"
)

type fakeCardPruner struct {
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakeCardPruner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

func TestRetentionJobPrunesPastHorizon(t *testing.T) {
	now := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
	pruner := &fakeCardPruner{deleted: 12}
	jobIface, err := NewRetentionJob(RetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Cards:      pruner,
		MaxAgeDays: 90,
	})
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}
	job, ok := jobIface.(*retentionJob)
	if !ok {
		t.Fatalf("expected retentionJob, got %T", jobIface)
	}
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pruner.cutoffs) != 1 {
		t.Fatalf("expected one prune call, got %d", len(pruner.cutoffs))
	}
	want := now.AddDate(0, 0, -90)
	if !pruner.cutoffs[0].Equal(want) {
		t.Fatalf("unexpected cutoff: got %s want %s", pruner.cutoffs[0], want)
	}
}

func TestRetentionJobSurfacesPruneError(t *testing.T) {
	pruner := &fakeCardPruner{err: errors.New("db down")}
	job, err := NewRetentionJob(RetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Cards:      pruner,
		MaxAgeDays: 30,
	})
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetentionJobRejectsBadConfig(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	if _, err := NewRetentionJob(RetentionJobParams{Logger: logg, Cards: &fakeCardPruner{}}); err == nil {
		t.Fatal("expected error for zero retention age")
	}
	if _, err := NewRetentionJob(RetentionJobParams{Logger: logg, MaxAgeDays: 30}); err == nil {
		t.Fatal("expected error for missing pruner")
	}
}
