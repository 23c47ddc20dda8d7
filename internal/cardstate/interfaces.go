package cardstate

import (
	"context"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for order card state rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, tenantID uuid.UUID, deliveryDate, cardID string) (*models.OrderCardState, error)
	Create(ctx context.Context, row *models.OrderCardState) error
	Save(ctx context.Context, row *models.OrderCardState) error
	ChangedBetween(ctx context.Context, tenantID uuid.UUID, deliveryDate string, after, until time.Time) ([]models.OrderCardState, error)
	ListByDate(ctx context.Context, tenantID uuid.UUID, deliveryDate string) ([]models.OrderCardState, error)
	DeleteBefore(ctx context.Context, cutoffDate string) (int64, error)
}

// Service defines the synchronization engine's server-side operations.
type Service interface {
	Upsert(ctx context.Context, input UpsertInput) (*models.OrderCardState, error)
	Changes(ctx context.Context, query FeedQuery) (*Feed, error)
	Snapshot(ctx context.Context, tenantID uuid.UUID, deliveryDate string) ([]models.OrderCardState, error)
	EnsureCard(ctx context.Context, tenantID uuid.UUID, deliveryDate, cardID string) (*models.OrderCardState, bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
