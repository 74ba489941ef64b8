package repository

import (
	"context"
	"time"

	"github.com/nimbuspm/billing-api/internal/models"

	"gorm.io/gorm"
)

// ScheduleRepository defines the interface for payment schedule data access
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *models.PaymentSchedule) error
	FindByID(ctx context.Context, id uint) (*models.PaymentSchedule, error)
	FindByLeaseID(ctx context.Context, leaseID uint) ([]models.PaymentSchedule, error)
	// FindDue returns active schedules whose next payment date falls on or
	// before asOf.
	FindDue(ctx context.Context, asOf time.Time) ([]models.PaymentSchedule, error)
	// AdvanceNext moves the schedule from the expected next date to the new
	// one. A concurrent billing pass that already advanced it makes this a
	// no-op, which is reported via ErrStaleStatus.
	AdvanceNext(ctx context.Context, id uint, expected, next time.Time) error
	Deactivate(ctx context.Context, id uint) error
	SetAutoPay(ctx context.Context, id uint, enabled bool) error
}

type scheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) Create(ctx context.Context, schedule *models.PaymentSchedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

func (r *scheduleRepository) FindByID(ctx context.Context, id uint) (*models.PaymentSchedule, error) {
	var schedule models.PaymentSchedule
	err := r.db.WithContext(ctx).
		Preload("Lease").
		First(&schedule, id).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *scheduleRepository) FindByLeaseID(ctx context.Context, leaseID uint) ([]models.PaymentSchedule, error) {
	var schedules []models.PaymentSchedule
	err := r.db.WithContext(ctx).
		Where("lease_id = ?", leaseID).
		Order("created_at ASC").
		Find(&schedules).Error
	return schedules, err
}

func (r *scheduleRepository) FindDue(ctx context.Context, asOf time.Time) ([]models.PaymentSchedule, error) {
	var schedules []models.PaymentSchedule
	err := r.db.WithContext(ctx).
		Preload("Lease").
		Where("is_active = ? AND next_payment_date <= ?", true, asOf).
		Order("next_payment_date ASC").
		Find(&schedules).Error
	return schedules, err
}

func (r *scheduleRepository) AdvanceNext(ctx context.Context, id uint, expected, next time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentSchedule{}).
		Where("id = ? AND next_payment_date = ?", id, expected).
		Update("next_payment_date", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *scheduleRepository) Deactivate(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentSchedule{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *scheduleRepository) SetAutoPay(ctx context.Context, id uint, enabled bool) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentSchedule{}).
		Where("id = ?", id).
		Update("auto_pay", enabled).Error
}
