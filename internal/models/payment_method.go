package models

import (
	"time"
)

// PaymentMethod mirrors a stored payment method held by the gateway. The
// engine never sees card data; it keeps only the gateway reference and the
// display fields the gateway reports via payment_method.attached events.
type PaymentMethod struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	GatewayRef string     `gorm:"uniqueIndex;not null" json:"gateway_ref"`
	Brand      string     `json:"brand"`
	Last4      string     `gorm:"size:4" json:"last4"`
	IsDefault  bool       `gorm:"default:false" json:"is_default"`
	DetachedAt *time.Time `gorm:"index" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Associations
	User User `gorm:"foreignKey:UserID" json:"-"`
}

// TableName specifies the table name for PaymentMethod
func (PaymentMethod) TableName() string {
	return "payment_methods"
}

// IsUsable returns true if the method can be charged
func (m *PaymentMethod) IsUsable() bool {
	return m.DetachedAt == nil
}
