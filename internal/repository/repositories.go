package repository

import (
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	User          UserRepository
	Lease         LeaseRepository
	Payment       PaymentRepository
	Schedule      ScheduleRepository
	PaymentMethod PaymentMethodRepository
	GatewayEvent  GatewayEventRepository
	Notification  NotificationRepository
	Audit         AuditRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Lease:         NewLeaseRepository(db),
		Payment:       NewPaymentRepository(db),
		Schedule:      NewScheduleRepository(db),
		PaymentMethod: NewPaymentMethodRepository(db),
		GatewayEvent:  NewGatewayEventRepository(db),
		Notification:  NewNotificationRepository(db),
		Audit:         NewAuditRepository(db),
	}
}
