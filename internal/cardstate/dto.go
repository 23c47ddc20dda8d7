package cardstate

import (
	"time"

	"github.com/bloomflowhq/bloomflow-backend/pkg/db/models"
	"github.com/bloomflowhq/bloomflow-backend/pkg/enums"
	"github.com/google/uuid"
)

// DateLayout is the wire format for delivery dates.
const DateLayout = "2006-01-02"

// UpsertInput is a partial update of one card. Nil pointers mean "leave the
// stored value alone"; this is what lets a reorder write touch sortOrder
// without resetting status or notes. A pointer to the zero value is a real
// write: sortOrder 0 is a valid position and an empty string clears a field.
type UpsertInput struct {
	TenantID     uuid.UUID
	DeliveryDate string
	CardID       string

	Status          *enums.CardStatus
	AssignedTo      *string
	AssignedBy      *string
	Notes           *string
	SortOrder       *int
	OriginSessionID string
}

// FeedQuery asks for every row touched after Since, bounded by the lookback
// window.
type FeedQuery struct {
	TenantID     uuid.UUID
	DeliveryDate string
	Since        time.Time
}

// Feed is the change feed response. ServerNow is the authority for the
// caller's next watermark; client clocks are never trusted for ordering.
type Feed struct {
	Rows      []models.OrderCardState `json:"rows"`
	ServerNow time.Time               `json:"server_now"`
}
