package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomflowhq/bloomflow-backend/api/middleware"
	"github.com/bloomflowhq/bloomflow-backend/internal/cardstate"
	"github.com/bloomflowhq/bloomflow-backend/pkg/db/models"
	"github.com/bloomflowhq/bloomflow-backend/pkg/enums"
	"github.com/bloomflowhq/bloomflow-backend/pkg/types"
)

type stubCardStateService struct {
	upsert     func(ctx context.Context, input cardstate.UpsertInput) (*models.OrderCardState, error)
	changes    func(ctx context.Context, query cardstate.FeedQuery) (*cardstate.Feed, error)
	snapshot   func(ctx context.Context, tenantID uuid.UUID, deliveryDate string) ([]models.OrderCardState, error)
	lastUpsert *cardstate.UpsertInput
}

func (s *stubCardStateService) Upsert(ctx context.Context, input cardstate.UpsertInput) (*models.OrderCardState, error) {
	s.lastUpsert = &input
	if s.upsert != nil {
		return s.upsert(ctx, input)
	}
	return &models.OrderCardState{
		TenantID:     input.TenantID,
		DeliveryDate: input.DeliveryDate,
		CardID:       input.CardID,
		Status:       enums.CardStatusUnassigned,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

func (s *stubCardStateService) Changes(ctx context.Context, query cardstate.FeedQuery) (*cardstate.Feed, error) {
	if s.changes != nil {
		return s.changes(ctx, query)
	}
	return &cardstate.Feed{ServerNow: time.Now().UTC()}, nil
}

func (s *stubCardStateService) Snapshot(ctx context.Context, tenantID uuid.UUID, deliveryDate string) ([]models.OrderCardState, error) {
	if s.snapshot != nil {
		return s.snapshot(ctx, tenantID, deliveryDate)
	}
	return nil, nil
}

func (s *stubCardStateService) EnsureCard(ctx context.Context, tenantID uuid.UUID, deliveryDate, cardID string) (*models.OrderCardState, bool, error) {
	panic("not used by controllers")
}

func (s *stubCardStateService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	panic("not used by controllers")
}

func cardRequest(method, target, cardID string, tenantID uuid.UUID, body string) *http.Request {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)

	rc := chi.NewRouteContext()
	if cardID != "" {
		rc.URLParams.Add("cardID", cardID)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if tenantID != uuid.Nil {
		ctx = middleware.WithTenantID(ctx, tenantID.String())
	}
	return req.WithContext(ctx)
}

func TestMutateCardBuildsPartialInput(t *testing.T) {
	svc := &stubCardStateService{}
	handler := MutateCard(nil, svc, nil)
	tenantID := uuid.New()

	body := `{"delivery_date":"2026-08-20","status":"assigned","assigned_to":"rosa","sort_order":0,"origin_session_id":"` + uuid.NewString() + `"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cardRequest(http.MethodPost, "/api/v1/cards/order-7/state", "order-7", tenantID, body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastUpsert)
	assert.Equal(t, tenantID, svc.lastUpsert.TenantID)
	assert.Equal(t, "order-7", svc.lastUpsert.CardID)
	require.NotNil(t, svc.lastUpsert.Status)
	assert.Equal(t, enums.CardStatusAssigned, *svc.lastUpsert.Status)
	require.NotNil(t, svc.lastUpsert.AssignedTo)
	assert.Equal(t, "rosa", *svc.lastUpsert.AssignedTo)
	// sort_order zero arrived explicitly and must survive as a write.
	require.NotNil(t, svc.lastUpsert.SortOrder)
	assert.Equal(t, 0, *svc.lastUpsert.SortOrder)
	// Fields absent from the payload stay nil so the store preserves them.
	assert.Nil(t, svc.lastUpsert.Notes)
	assert.Nil(t, svc.lastUpsert.AssignedBy)
}

func TestMutateCardRejectsUnknownStatus(t *testing.T) {
	svc := &stubCardStateService{}
	handler := MutateCard(nil, svc, nil)

	body := `{"delivery_date":"2026-08-20","status":"archived"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cardRequest(http.MethodPost, "/api/v1/cards/order-7/state", "order-7", uuid.New(), body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.lastUpsert)
}

func TestMutateCardRejectsMissingTenant(t *testing.T) {
	svc := &stubCardStateService{}
	handler := MutateCard(nil, svc, nil)

	body := `{"delivery_date":"2026-08-20"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cardRequest(http.MethodPost, "/api/v1/cards/order-7/state", "order-7", uuid.Nil, body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMutateCardRejectsUnknownFields(t *testing.T) {
	svc := &stubCardStateService{}
	handler := MutateCard(nil, svc, nil)

	body := `{"delivery_date":"2026-08-20","updated_at":"2026-08-20T10:00:00Z"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cardRequest(http.MethodPost, "/api/v1/cards/order-7/state", "order-7", uuid.New(), body))

	// Clients must not supply their own timestamps.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCardFeedParsesQueryAndReturnsServerNow(t *testing.T) {
	serverNow := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	since := serverNow.Add(-30 * time.Second)
	var captured cardstate.FeedQuery

	svc := &stubCardStateService{
		changes: func(ctx context.Context, query cardstate.FeedQuery) (*cardstate.Feed, error) {
			captured = query
			return &cardstate.Feed{
				Rows:      []models.OrderCardState{{CardID: "order-1", DeliveryDate: "2026-08-20"}},
				ServerNow: serverNow,
			}, nil
		},
	}
	handler := CardFeed(nil, svc, nil)
	tenantID := uuid.New()

	target := "/api/v1/cards/feed?delivery_date=2026-08-20&since=" + since.Format(time.RFC3339Nano)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cardRequest(http.MethodGet, target, "", tenantID, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenantID, captured.TenantID)
	assert.Equal(t, "2026-08-20", captured.DeliveryDate)
	assert.True(t, captured.Since.Equal(since))

	var envelope types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	payload, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, payload["server_now"])
}

func TestCardFeedRequiresDeliveryDate(t *testing.T) {
	handler := CardFeed(nil, &stubCardStateService{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cardRequest(http.MethodGet, "/api/v1/cards/feed", "", uuid.New(), ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCardFeedDefaultsSinceToZero(t *testing.T) {
	var captured cardstate.FeedQuery
	svc := &stubCardStateService{
		changes: func(ctx context.Context, query cardstate.FeedQuery) (*cardstate.Feed, error) {
			captured = query
			return &cardstate.Feed{ServerNow: time.Now().UTC()}, nil
		},
	}
	handler := CardFeed(nil, svc, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cardRequest(http.MethodGet, "/api/v1/cards/feed?delivery_date=2026-08-20", "", uuid.New(), ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, captured.Since.IsZero())
}

func TestCardListReturnsSnapshot(t *testing.T) {
	svc := &stubCardStateService{
		snapshot: func(ctx context.Context, tenantID uuid.UUID, deliveryDate string) ([]models.OrderCardState, error) {
			return []models.OrderCardState{
				{CardID: "order-1", DeliveryDate: deliveryDate, SortOrder: 0},
				{CardID: "order-2", DeliveryDate: deliveryDate, SortOrder: 1},
			}, nil
		},
	}
	handler := CardList(nil, svc)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cardRequest(http.MethodGet, "/api/v1/cards?delivery_date=2026-08-20", "", uuid.New(), ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	rows, ok := envelope.Data.([]any)
	require.True(t, ok)
	assert.Len(t, rows, 2)
}
