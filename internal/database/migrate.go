package database

import (
	"fmt"

	"github.com/nimbuspm/billing-api/internal/models"
	"gorm.io/gorm"
)

// Migrate runs schema migrations for all billing models plus the unique
// indexes that back the engine's idempotency keys.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Lease{},
		&models.PaymentMethod{},
		&models.PaymentSchedule{},
		&models.Payment{},
		&models.GatewayEvent{},
		&models.Notification{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// At most one non-canceled payment per (lease, payment_type, due_date).
	// Partial index so a canceled attempt can be re-materialized for the
	// same period without tripping the constraint.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_period_key
		ON payments (lease_id, payment_type, due_date)
		WHERE status <> 'canceled'
	`).Error; err != nil {
		return fmt.Errorf("create period key index: %w", err)
	}

	// At most one late fee per source payment.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_late_fee_source
		ON payments (late_fee_source_id)
		WHERE late_fee_source_id IS NOT NULL
	`).Error; err != nil {
		return fmt.Errorf("create late fee source index: %w", err)
	}

	return nil
}
