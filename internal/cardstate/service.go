package cardstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/pkg/clock"
	"github.com/bloomflowhq/bloomflow-backend/pkg/db"
	"github.com/bloomflowhq/bloomflow-backend/pkg/db/models"
	"github.com/bloomflowhq/bloomflow-backend/pkg/enums"
	pkgerrors "github.com/bloomflowhq/bloomflow-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     Repository
	tx       txRunner
	stamper  *clock.Stamper
	lookback time.Duration
}

// ServiceParams carries the dependencies for the card state service.
type ServiceParams struct {
	Repo           Repository
	Tx             txRunner
	Stamper        *clock.Stamper
	LookbackWindow time.Duration
}

// NewService validates dependencies and returns a card state service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cardstate service requires a repository")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("cardstate service requires a transaction runner")
	}
	if params.Stamper == nil {
		return nil, fmt.Errorf("cardstate service requires a stamper")
	}
	if params.LookbackWindow <= 0 {
		return nil, fmt.Errorf("cardstate service requires a positive lookback window")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		stamper:  params.Stamper,
		lookback: params.LookbackWindow,
	}, nil
}

// Upsert merges a partial update into the stored row inside one transaction.
// Fields absent from the input keep their stored values; the row's updatedAt
// is always replaced with a fresh monotonic stamp so every accepted write is
// visible to the change feed, even when the payload is a no-op.
func (s *service) Upsert(ctx context.Context, input UpsertInput) (*models.OrderCardState, error) {
	if err := validateIdentity(input.TenantID, input.DeliveryDate, input.CardID); err != nil {
		return nil, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid card status").
			WithDetails(map[string]string{"status": string(*input.Status)})
	}

	var out *models.OrderCardState
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		row, err := repo.Find(ctx, input.TenantID, input.DeliveryDate, input.CardID)
		switch {
		case err == nil:
			applyPartial(row, input)
			row.UpdatedAt = s.stamper.Next()
			if err := repo.Save(ctx, row); err != nil {
				return fmt.Errorf("saving card state: %w", err)
			}
			out = row
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			fresh := newRow(input)
			applyPartial(fresh, input)
			fresh.UpdatedAt = s.stamper.Next()
			if err := repo.Create(ctx, fresh); err != nil {
				if db.IsUniqueViolation(err) {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "card state was created concurrently")
				}
				return fmt.Errorf("creating card state: %w", err)
			}
			out = fresh
			return nil
		default:
			return fmt.Errorf("loading card state: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Changes returns rows touched after query.Since, clamped to the lookback
// window. The feed is bounded on both ends: rows stamped after serverNow are
// held for the next poll so a watermark advanced to serverNow never skips or
// double-delivers a row.
func (s *service) Changes(ctx context.Context, query FeedQuery) (*Feed, error) {
	if err := validateIdentity(query.TenantID, query.DeliveryDate, "-"); err != nil {
		return nil, err
	}

	serverNow := s.stamper.Next()
	floor := serverNow.Add(-s.lookback)
	since := query.Since
	if since.Before(floor) {
		since = floor
	}

	rows, err := s.repo.ChangedBetween(ctx, query.TenantID, query.DeliveryDate, since, serverNow)
	if err != nil {
		return nil, fmt.Errorf("reading change feed: %w", err)
	}
	return &Feed{Rows: rows, ServerNow: serverNow}, nil
}

// Snapshot returns the full current state for one tenant and delivery date,
// ordered for display.
func (s *service) Snapshot(ctx context.Context, tenantID uuid.UUID, deliveryDate string) ([]models.OrderCardState, error) {
	if err := validateIdentity(tenantID, deliveryDate, "-"); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByDate(ctx, tenantID, deliveryDate)
	if err != nil {
		return nil, fmt.Errorf("reading card snapshot: %w", err)
	}
	return rows, nil
}

// EnsureCard creates the initial row for a card if none exists yet. It never
// touches an existing row; ingestion must not clobber state set by users.
func (s *service) EnsureCard(ctx context.Context, tenantID uuid.UUID, deliveryDate, cardID string) (*models.OrderCardState, bool, error) {
	if err := validateIdentity(tenantID, deliveryDate, cardID); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.Find(ctx, tenantID, deliveryDate, cardID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("loading card state: %w", err)
	}

	row := newRow(UpsertInput{TenantID: tenantID, DeliveryDate: deliveryDate, CardID: cardID})
	row.UpdatedAt = s.stamper.Next()
	if err := s.repo.Create(ctx, row); err != nil {
		if db.IsUniqueViolation(err) {
			existing, ferr := s.repo.Find(ctx, tenantID, deliveryDate, cardID)
			if ferr != nil {
				return nil, false, fmt.Errorf("loading card state after create race: %w", ferr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("creating card state: %w", err)
	}
	return row, true, nil
}

// DeleteOlderThan prunes rows whose delivery date precedes the cutoff.
func (s *service) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteBefore(ctx, cutoff.UTC().Format(DateLayout))
}

func newRow(input UpsertInput) *models.OrderCardState {
	return &models.OrderCardState{
		ID:           uuid.New(),
		TenantID:     input.TenantID,
		DeliveryDate: input.DeliveryDate,
		CardID:       input.CardID,
		Status:       enums.CardStatusUnassigned,
		SortOrder:    0,
	}
}

func applyPartial(row *models.OrderCardState, input UpsertInput) {
	if input.Status != nil {
		row.Status = *input.Status
	}
	if input.AssignedTo != nil {
		row.AssignedTo = normalizeOptional(*input.AssignedTo)
	}
	if input.AssignedBy != nil {
		row.AssignedBy = normalizeOptional(*input.AssignedBy)
	}
	if input.Notes != nil {
		row.Notes = normalizeOptional(*input.Notes)
	}
	if input.SortOrder != nil {
		row.SortOrder = *input.SortOrder
	}
	// Origin attribution describes the write, not the card: every accepted
	// mutation replaces it, and an unattributed write clears it.
	row.OriginSessionID = normalizeOptional(input.OriginSessionID)
}

func normalizeOptional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func validateIdentity(tenantID uuid.UUID, deliveryDate, cardID string) error {
	if tenantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if _, err := time.Parse(DateLayout, deliveryDate); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery date must be YYYY-MM-DD").
			WithDetails(map[string]string{"delivery_date": deliveryDate})
	}
	if strings.TrimSpace(cardID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "card id is required")
	}
	return nil
}
