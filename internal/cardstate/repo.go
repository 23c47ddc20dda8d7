package cardstate

import (
	"context"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/internal/repo"
	"github.com/bloomflowhq/bloomflow-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	repo.Base
}

// NewRepository builds a card state repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Find(ctx context.Context, tenantID uuid.UUID, deliveryDate, cardID string) (*models.OrderCardState, error) {
	var row models.OrderCardState
	err := r.DB(ctx).
		Where("tenant_id = ? AND delivery_date = ? AND card_id = ?", tenantID, deliveryDate, cardID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Create(ctx context.Context, row *models.OrderCardState) error {
	return r.DB(ctx).Create(row).Error
}

func (r *repository) Save(ctx context.Context, row *models.OrderCardState) error {
	return r.DB(ctx).Save(row).Error
}

func (r *repository) ChangedBetween(ctx context.Context, tenantID uuid.UUID, deliveryDate string, after, until time.Time) ([]models.OrderCardState, error) {
	var rows []models.OrderCardState
	err := r.DB(ctx).
		Where("tenant_id = ? AND delivery_date = ? AND updated_at > ? AND updated_at <= ?", tenantID, deliveryDate, after, until).
		Order("updated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByDate(ctx context.Context, tenantID uuid.UUID, deliveryDate string) ([]models.OrderCardState, error) {
	var rows []models.OrderCardState
	err := r.DB(ctx).
		Where("tenant_id = ? AND delivery_date = ?", tenantID, deliveryDate).
		Order("sort_order ASC, card_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) DeleteBefore(ctx context.Context, cutoffDate string) (int64, error) {
	res := r.DB(ctx).
		Where("delivery_date < ?", cutoffDate).
		Delete(&models.OrderCardState{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
