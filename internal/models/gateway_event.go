package models

import (
	"time"

	"gorm.io/datatypes"
)

// GatewayEvent records one webhook delivery from the payment gateway. The
// unique EventID is the reconciler's idempotency claim: delivery is
// at-least-once, so the same event id may arrive on several workers at
// once and must apply exactly once.
type GatewayEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	EventID     string         `gorm:"uniqueIndex;not null" json:"event_id"`
	Kind        string         `gorm:"not null;index" json:"kind"`
	IntentID    *string        `gorm:"index" json:"intent_id,omitempty"`
	Payload     datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	ReceivedAt  time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	Error       *string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GatewayEvent
func (GatewayEvent) TableName() string {
	return "gateway_events"
}

// IsProcessed returns true once the event has been fully applied
func (e *GatewayEvent) IsProcessed() bool {
	return e.ProcessedAt != nil
}
