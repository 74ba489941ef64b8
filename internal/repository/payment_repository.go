package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimbuspm/billing-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleStatus is returned when a compare-and-swap status update finds
// the payment no longer in the expected status.
var ErrStaleStatus = errors.New("payment status changed concurrently")

// PaymentListQuery holds filters for listing payments
type PaymentListQuery struct {
	Status      string
	PaymentType string
	LeaseID     uint
	PayerID     uint
	FromDate    *time.Time
	ToDate      *time.Time
	Page        int
	PerPage     int
}

// PaymentStats aggregates payment counts and amounts by status
type PaymentStats struct {
	TotalCount        int64   `json:"total_count"`
	PendingCount      int64   `json:"pending_count"`
	ProcessingCount   int64   `json:"processing_count"`
	SucceededCount    int64   `json:"succeeded_count"`
	FailedCount       int64   `json:"failed_count"`
	OverdueCount      int64   `json:"overdue_count"`
	CollectedAmount   float64 `json:"collected_amount"`
	OutstandingAmount float64 `json:"outstanding_amount"`
}

// PaymentRepository defines the interface for payment data access
type PaymentRepository interface {
	// CreateIdempotent inserts the payment unless one already exists for the
	// same (lease, type, due date) period. It returns the surviving row and
	// whether this call created it.
	CreateIdempotent(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error)
	// CreateLateFee inserts a late fee unless one already references the same
	// source payment.
	CreateLateFee(ctx context.Context, fee *models.Payment) (*models.Payment, bool, error)
	FindByID(ctx context.Context, id uint) (*models.Payment, error)
	FindByNumber(ctx context.Context, number string) (*models.Payment, error)
	FindByGatewayIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	FindForPeriod(ctx context.Context, leaseID uint, paymentType string, dueDate time.Time) (*models.Payment, error)
	// UpdateWithStatusCheck persists the payment only if its row still holds
	// expectedStatus. Returns ErrStaleStatus when another writer got there first.
	UpdateWithStatusCheck(ctx context.Context, payment *models.Payment, expectedStatus string) error
	List(ctx context.Context, query PaymentListQuery) ([]models.Payment, int64, error)
	FindOverdueRent(ctx context.Context, asOf time.Time, minDaysOverdue int) ([]models.Payment, error)
	FindDueSoon(ctx context.Context, from, to time.Time) ([]models.Payment, error)
	FindOverdueUnnotified(ctx context.Context, asOf time.Time) ([]models.Payment, error)
	MarkDueReminderSent(ctx context.Context, id uint, at time.Time) error
	MarkOverdueReminderSent(ctx context.Context, id uint, at time.Time) error
	FindByMonth(ctx context.Context, year int, month time.Month) ([]models.Payment, error)
	Stats(ctx context.Context, asOf time.Time) (*PaymentStats, error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) CreateIdempotent(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	// The partial unique index on (lease_id, payment_type, due_date) excludes
	// canceled rows, so a canceled payment does not block re-billing the period.
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(payment)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return payment, true, nil
	}

	existing, err := r.FindForPeriod(ctx, payment.LeaseID, payment.PaymentType, payment.DueDate)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *paymentRepository) CreateLateFee(ctx context.Context, fee *models.Payment) (*models.Payment, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(fee)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return fee, true, nil
	}

	var existing models.Payment
	err := r.db.WithContext(ctx).
		Where("late_fee_source_id = ?", fee.LateFeeSourceID).
		First(&existing).Error
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *paymentRepository) FindByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Preload("Lease").
		Preload("Payer").
		Preload("PaymentMethod").
		First(&payment, id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByNumber(ctx context.Context, number string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Preload("Lease").
		Preload("Payer").
		Where("payment_number = ?", number).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByGatewayIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_intent_id = ?", intentID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindForPeriod(ctx context.Context, leaseID uint, paymentType string, dueDate time.Time) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("lease_id = ? AND payment_type = ? AND due_date = ? AND status <> ?",
			leaseID, paymentType, dueDate, models.PaymentStatusCanceled).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) UpdateWithStatusCheck(ctx context.Context, payment *models.Payment, expectedStatus string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, expectedStatus).
		Updates(map[string]interface{}{
			"status":            payment.Status,
			"paid_at":           payment.PaidAt,
			"failure_reason":    payment.FailureReason,
			"gateway_intent_id": payment.GatewayIntentID,
			"gateway_charge_id": payment.GatewayChargeID,
			"payment_method_id": payment.PaymentMethodID,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *paymentRepository) List(ctx context.Context, query PaymentListQuery) ([]models.Payment, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Payment{})

	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.PaymentType != "" {
		db = db.Where("payment_type = ?", query.PaymentType)
	}
	if query.LeaseID != 0 {
		db = db.Where("lease_id = ?", query.LeaseID)
	}
	if query.PayerID != 0 {
		db = db.Where("payer_id = ?", query.PayerID)
	}
	if query.FromDate != nil {
		db = db.Where("due_date >= ?", *query.FromDate)
	}
	if query.ToDate != nil {
		db = db.Where("due_date <= ?", *query.ToDate)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	perPage := query.PerPage
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var payments []models.Payment
	err := db.
		Preload("Lease").
		Preload("Payer").
		Order("due_date DESC, id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&payments).Error
	return payments, total, err
}

func (r *paymentRepository) FindOverdueRent(ctx context.Context, asOf time.Time, minDaysOverdue int) ([]models.Payment, error) {
	cutoff := asOf.AddDate(0, 0, -minDaysOverdue)
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("payment_type = ? AND status IN ? AND due_date <= ?",
			models.PaymentTypeRent,
			[]string{models.PaymentStatusPending, models.PaymentStatusFailed},
			cutoff).
		Order("due_date ASC").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) FindDueSoon(ctx context.Context, from, to time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Preload("Payer").
		Where("status = ? AND due_date > ? AND due_date <= ? AND due_reminder_sent_at IS NULL",
			models.PaymentStatusPending, from, to).
		Order("due_date ASC").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) FindOverdueUnnotified(ctx context.Context, asOf time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Preload("Payer").
		Where("status IN ? AND due_date < ? AND overdue_reminder_sent_at IS NULL",
			[]string{models.PaymentStatusPending, models.PaymentStatusFailed}, asOf).
		Order("due_date ASC").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) MarkDueReminderSent(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Update("due_reminder_sent_at", at).Error
}

func (r *paymentRepository) MarkOverdueReminderSent(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Update("overdue_reminder_sent_at", at).Error
}

func (r *paymentRepository) FindByMonth(ctx context.Context, year int, month time.Month) ([]models.Payment, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Preload("Lease").
		Preload("Payer").
		Where("due_date >= ? AND due_date < ?", start, end).
		Order("due_date ASC, id ASC").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) Stats(ctx context.Context, asOf time.Time) (*PaymentStats, error) {
	stats := &PaymentStats{}
	db := r.db.WithContext(ctx).Model(&models.Payment{})

	if err := db.Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}

	counts := []struct {
		status string
		dest   *int64
	}{
		{models.PaymentStatusPending, &stats.PendingCount},
		{models.PaymentStatusProcessing, &stats.ProcessingCount},
		{models.PaymentStatusSucceeded, &stats.SucceededCount},
		{models.PaymentStatusFailed, &stats.FailedCount},
	}
	for _, c := range counts {
		if err := r.db.WithContext(ctx).
			Model(&models.Payment{}).
			Where("status = ?", c.status).
			Count(c.dest).Error; err != nil {
			return nil, err
		}
	}

	if err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("status IN ? AND due_date < ?",
			[]string{models.PaymentStatusPending, models.PaymentStatusFailed}, asOf).
		Count(&stats.OverdueCount).Error; err != nil {
		return nil, err
	}

	var collected struct{ Total float64 }
	if err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("status = ?", models.PaymentStatusSucceeded).
		Scan(&collected).Error; err != nil {
		return nil, err
	}
	stats.CollectedAmount = collected.Total

	var outstanding struct{ Total float64 }
	if err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("status IN ?", []string{models.PaymentStatusPending, models.PaymentStatusProcessing, models.PaymentStatusFailed}).
		Scan(&outstanding).Error; err != nil {
		return nil, err
	}
	stats.OutstandingAmount = outstanding.Total

	return stats, nil
}
