package models

import (
	"time"

	"github.com/bloomflowhq/bloomflow-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderCardState is the unit of synchronization between florist devices.
// Exactly one row exists per (tenant, delivery date, card); every write
// supersedes the previous row in place.
//
// UpdatedAt is assigned by the application from a monotonic stamper, never by
// the database, so successive writes inside the same wall-clock second stay
// distinguishable in the change feed. SortOrder zero is a meaningful position,
// not "unset".
type OrderCardState struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"-"`
	TenantID        uuid.UUID        `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:idx_card_identity,priority:1" json:"tenant_id"`
	DeliveryDate    string           `gorm:"column:delivery_date;type:date;not null;uniqueIndex:idx_card_identity,priority:2" json:"delivery_date"`
	CardID          string           `gorm:"column:card_id;not null;uniqueIndex:idx_card_identity,priority:3" json:"card_id"`
	Status          enums.CardStatus `gorm:"column:status;not null;default:'unassigned'" json:"status"`
	AssignedTo      *string          `gorm:"column:assigned_to" json:"assigned_to,omitempty"`
	AssignedBy      *string          `gorm:"column:assigned_by" json:"assigned_by,omitempty"`
	Notes           *string          `gorm:"column:notes" json:"notes,omitempty"`
	SortOrder       int              `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
	OriginSessionID *string          `gorm:"column:origin_session_id" json:"origin_session_id,omitempty"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
