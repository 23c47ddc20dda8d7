package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/bloomflowhq/bloomflow-backend/pkg/db/models"
	"github.com/bloomflowhq/bloomflow-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	orderCreatedEvent = "order.created"

	dbRetryBackoff = 500 * time.Millisecond
	dbRetryMax     = 3
)

// cardCreator seeds the initial state row for a newly placed order.
type cardCreator interface {
	EnsureCard(ctx context.Context, tenantID uuid.UUID, deliveryDate, cardID string) (*models.OrderCardState, bool, error)
}

// Consumer turns storefront order-created events into initial card rows.
// It only ever creates: an order that already has a card keeps whatever
// state the staff have put on it.
type Consumer struct {
	cards        cardCreator
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer constructs a consumer watching the orders subscription.
func NewConsumer(cards cardCreator, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if cards == nil {
		return nil, errors.New("card creator is required")
	}
	if subscription == nil {
		return nil, errors.New("orders subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{cards: cards, subscription: subscription, logg: logg}, nil
}

// Run processes messages until the context is canceled or the subscription
// errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

type orderEvent struct {
	TenantID     string `json:"tenant_id"`
	OrderID      string `json:"order_id"`
	DeliveryDate string `json:"delivery_date"`
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["eventType"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != orderCreatedEvent {
		c.logg.Info(logCtx, "skipping unrelated event")
		return processResult{ack: true}
	}

	payload, err := decodePayload(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return processResult{ack: true}
	}

	var event orderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.logg.Error(logCtx, "failed to unmarshal payload", err)
		return processResult{ack: true}
	}

	tenantID, err := uuid.Parse(strings.TrimSpace(event.TenantID))
	if err != nil || tenantID == uuid.Nil {
		c.logg.Error(logCtx, "event missing tenant id", fmt.Errorf("tenant_id %q", event.TenantID))
		return processResult{ack: true}
	}
	if strings.TrimSpace(event.OrderID) == "" || strings.TrimSpace(event.DeliveryDate) == "" {
		c.logg.Error(logCtx, "event missing order identity", fmt.Errorf("order_id %q delivery_date %q", event.OrderID, event.DeliveryDate))
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"tenant_id":     tenantID.String(),
		"card_id":       event.OrderID,
		"delivery_date": event.DeliveryDate,
	})

	// Transient DB hiccups get a few in-process retries before we hand the
	// message back to the broker.
	var created bool
	backoff := retry.WithMaxRetries(dbRetryMax, retry.NewConstant(dbRetryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, wasCreated, err := c.cards.EnsureCard(ctx, tenantID, event.DeliveryDate, event.OrderID)
		if err != nil {
			if isTransientDBError(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		created = wasCreated
		return nil
	})
	if err != nil {
		c.logg.Error(logCtx, "failed to seed card state", err)
		if isTransientDBError(err) {
			return processResult{nack: true}
		}
		return processResult{ack: true}
	}

	if created {
		c.logg.Info(logCtx, "card state seeded for new order")
	} else {
		c.logg.Info(logCtx, "card state already present")
	}
	return processResult{ack: true}
}

func decodePayload(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("payload empty")
	}
	if decoded, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
		return decoded, nil
	}
	return data, nil
}

func isTransientDBError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
