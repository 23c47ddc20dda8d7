package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bloomflowhq/bloomflow-backend/api/middleware"
	"github.com/bloomflowhq/bloomflow-backend/api/responses"
	"github.com/bloomflowhq/bloomflow-backend/api/validators"
	"github.com/bloomflowhq/bloomflow-backend/internal/cardstate"
	"github.com/bloomflowhq/bloomflow-backend/pkg/enums"
	pkgerrors "github.com/bloomflowhq/bloomflow-backend/pkg/errors"
	"github.com/bloomflowhq/bloomflow-backend/pkg/logger"
	"github.com/bloomflowhq/bloomflow-backend/pkg/metrics"
)

// CardMutationBody is a partial update: absent fields keep their stored
// values, and sending sort_order zero is a real write, not a default.
type CardMutationBody struct {
	DeliveryDate    string  `json:"delivery_date" validate:"required,datetime=2006-01-02"`
	Status          *string `json:"status,omitempty" validate:"omitempty,oneof=unassigned assigned completed"`
	AssignedTo      *string `json:"assigned_to,omitempty" validate:"omitempty,max=120"`
	AssignedBy      *string `json:"assigned_by,omitempty" validate:"omitempty,max=120"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
	SortOrder       *int    `json:"sort_order,omitempty" validate:"omitempty,min=0"`
	OriginSessionID string  `json:"origin_session_id,omitempty" validate:"omitempty,uuid"`
}

// MutateCard handles POST /api/v1/cards/{cardID}/state.
func MutateCard(logg *logger.Logger, svc cardstate.Service, sync *metrics.SyncMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cardID := strings.TrimSpace(chi.URLParam(r, "cardID"))
		if cardID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "card id is required"))
			return
		}

		var body CardMutationBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := cardstate.UpsertInput{
			TenantID:        tenantID,
			DeliveryDate:    body.DeliveryDate,
			CardID:          cardID,
			AssignedTo:      body.AssignedTo,
			AssignedBy:      body.AssignedBy,
			Notes:           body.Notes,
			SortOrder:       body.SortOrder,
			OriginSessionID: body.OriginSessionID,
		}
		if body.Status != nil {
			status, err := enums.ParseCardStatus(*body.Status)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid card status"))
				return
			}
			input.Status = &status
		}

		row, err := svc.Upsert(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sync.IncMutation()
		responses.WriteSuccess(w, row)
	}
}

// CardFeed handles GET /api/v1/cards/feed. The response is never filtered by
// caller identity beyond the tenant: every device on the account sees every
// change.
func CardFeed(logg *logger.Logger, svc cardstate.Service, sync *metrics.SyncMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deliveryDate, err := validators.ParseQueryDate(r, "delivery_date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		since, err := validators.ParseQueryTime(r, "since")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		feed, err := svc.Changes(r.Context(), cardstate.FeedQuery{
			TenantID:     tenantID,
			DeliveryDate: deliveryDate,
			Since:        since,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sync.ObservePoll(len(feed.Rows))
		responses.WriteSuccess(w, feed)
	}
}

// CardList handles GET /api/v1/cards: the full state for one delivery date,
// used by clients before they start polling.
func CardList(logg *logger.Logger, svc cardstate.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deliveryDate, err := validators.ParseQueryDate(r, "delivery_date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.Snapshot(r.Context(), tenantID, deliveryDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, rows)
	}
}

func tenantFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.TenantIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing tenant")
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil || tenantID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid tenant")
	}
	return tenantID, nil
}
