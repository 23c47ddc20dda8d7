package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/internal/cardstate"
	"github.com/bloomflowhq/bloomflow-backend/pkg/db/models"
	"github.com/bloomflowhq/bloomflow-backend/pkg/enums"
	"github.com/bloomflowhq/bloomflow-backend/pkg/types"
)

// Mutation is a partial card update originated on this device. Nil pointers
// keep the server-stored value, mirroring the upsert contract.
type Mutation struct {
	CardID     string
	Status     *enums.CardStatus
	AssignedTo *string
	AssignedBy *string
	Notes      *string
	SortOrder  *int
}

// Transport is the wire boundary between the client engine and the backend.
type Transport interface {
	Mutate(ctx context.Context, deliveryDate, sessionID string, m Mutation) (*models.OrderCardState, error)
	Changes(ctx context.Context, deliveryDate string, since time.Time) (*cardstate.Feed, error)
	Snapshot(ctx context.Context, deliveryDate string) ([]models.OrderCardState, error)
}

type mutationRequest struct {
	DeliveryDate    string            `json:"delivery_date"`
	Status          *enums.CardStatus `json:"status,omitempty"`
	AssignedTo      *string           `json:"assigned_to,omitempty"`
	AssignedBy      *string           `json:"assigned_by,omitempty"`
	Notes           *string           `json:"notes,omitempty"`
	SortOrder       *int              `json:"sort_order,omitempty"`
	OriginSessionID string            `json:"origin_session_id,omitempty"`
}

// HTTPTransport talks to the card state API over HTTP with a bearer token.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// HTTPTransportConfig configures an HTTPTransport.
type HTTPTransportConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Client  *http.Client
}

// NewHTTPTransport validates the config and returns a ready transport.
func NewHTTPTransport(cfg HTTPTransportConfig) (*HTTPTransport, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("transport requires a base URL")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  client,
	}, nil
}

func (t *HTTPTransport) Mutate(ctx context.Context, deliveryDate, sessionID string, m Mutation) (*models.OrderCardState, error) {
	body := mutationRequest{
		DeliveryDate:    deliveryDate,
		Status:          m.Status,
		AssignedTo:      m.AssignedTo,
		AssignedBy:      m.AssignedBy,
		Notes:           m.Notes,
		SortOrder:       m.SortOrder,
		OriginSessionID: sessionID,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding mutation: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/cards/%s/state", t.baseURL, url.PathEscape(m.CardID))
	var row models.OrderCardState
	if err := t.do(ctx, http.MethodPost, endpoint, payload, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (t *HTTPTransport) Changes(ctx context.Context, deliveryDate string, since time.Time) (*cardstate.Feed, error) {
	query := url.Values{}
	query.Set("delivery_date", deliveryDate)
	query.Set("since", since.UTC().Format(time.RFC3339Nano))

	endpoint := fmt.Sprintf("%s/api/v1/cards/feed?%s", t.baseURL, query.Encode())
	var feed cardstate.Feed
	if err := t.do(ctx, http.MethodGet, endpoint, nil, &feed); err != nil {
		return nil, err
	}
	return &feed, nil
}

func (t *HTTPTransport) Snapshot(ctx context.Context, deliveryDate string) ([]models.OrderCardState, error) {
	query := url.Values{}
	query.Set("delivery_date", deliveryDate)

	endpoint := fmt.Sprintf("%s/api/v1/cards?%s", t.baseURL, query.Encode())
	var rows []models.OrderCardState
	if err := t.do(ctx, http.MethodGet, endpoint, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	res, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling card state api: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		var envelope types.ErrorEnvelope
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
			return fmt.Errorf("card state api %s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("card state api returned status %d", res.StatusCode)
	}

	envelope := types.SuccessEnvelope{Data: out}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
