package models

import (
	"time"
)

// Lease is the local mirror of a lease agreement. Leasing itself is owned
// by another system; the billing engine only needs the tenant linkage and
// the recurring amounts.
type Lease struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TenantUserID    uint       `gorm:"not null;index" json:"tenant_user_id"`
	PropertyRef     string     `gorm:"not null" json:"property_ref"`
	MonthlyRent     float64    `gorm:"type:decimal(12,2);not null" json:"monthly_rent"`
	SecurityDeposit float64    `gorm:"type:decimal(12,2);default:0" json:"security_deposit"`
	RentDayOfMonth  int        `gorm:"default:1" json:"rent_day_of_month"`
	StartDate       time.Time  `gorm:"type:date;not null" json:"start_date"`
	EndDate         *time.Time `gorm:"type:date" json:"end_date"`
	Active          bool       `gorm:"default:true;index" json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Associations
	Tenant    User              `gorm:"foreignKey:TenantUserID" json:"tenant,omitempty"`
	Schedules []PaymentSchedule `gorm:"foreignKey:LeaseID" json:"schedules,omitempty"`
}

// TableName specifies the table name for Lease
func (Lease) TableName() string {
	return "leases"
}
