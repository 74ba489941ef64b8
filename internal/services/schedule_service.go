package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
	"github.com/nimbuspm/billing-api/pkg/logger"

	"gorm.io/gorm"
)

// ScheduleService manages recurring payment schedules and materializes
// the per-period payments they generate.
type ScheduleService struct {
	scheduleRepo repository.ScheduleRepository
	paymentRepo  repository.PaymentRepository
	leaseRepo    repository.LeaseRepository
}

func NewScheduleService(
	scheduleRepo repository.ScheduleRepository,
	paymentRepo repository.PaymentRepository,
	leaseRepo repository.LeaseRepository,
) *ScheduleService {
	return &ScheduleService{
		scheduleRepo: scheduleRepo,
		paymentRepo:  paymentRepo,
		leaseRepo:    leaseRepo,
	}
}

func (s *ScheduleService) FindByID(ctx context.Context, id uint) (*models.PaymentSchedule, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return schedule, nil
}

func (s *ScheduleService) FindByLease(ctx context.Context, leaseID uint) ([]models.PaymentSchedule, error) {
	return s.scheduleRepo.FindByLeaseID(ctx, leaseID)
}

func (s *ScheduleService) SetAutoPay(ctx context.Context, id uint, enabled bool) error {
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}
	return s.scheduleRepo.SetAutoPay(ctx, id, enabled)
}

// CreateForLease sets up the recurring rent schedule when a lease is
// activated, plus a one-off security deposit payment when the lease
// carries one.
func (s *ScheduleService) CreateForLease(ctx context.Context, leaseID uint) (*models.PaymentSchedule, error) {
	lease, err := s.leaseRepo.FindByID(ctx, leaseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !lease.Active {
		return nil, fmt.Errorf("%w: lease %d is not active", ErrValidation, leaseID)
	}

	dayOfMonth := lease.RentDayOfMonth
	schedule := &models.PaymentSchedule{
		LeaseID:         lease.ID,
		PaymentType:     models.PaymentTypeRent,
		Amount:          lease.MonthlyRent,
		Frequency:       models.FrequencyMonthly,
		StartDate:       lease.StartDate,
		EndDate:         lease.EndDate,
		NextPaymentDate: firstRentDate(lease.StartDate, dayOfMonth),
		DayOfMonth:      &dayOfMonth,
		IsActive:        true,
	}
	if err := s.scheduleRepo.Create(ctx, schedule); err != nil {
		return nil, err
	}

	if lease.SecurityDeposit > 0 {
		deposit := &models.Payment{
			PaymentNumber: models.NewPaymentNumber(time.Now()),
			LeaseID:       lease.ID,
			PayerID:       lease.TenantUserID,
			Amount:        lease.SecurityDeposit,
			PaymentType:   models.PaymentTypeSecurityDeposit,
			Status:        models.PaymentStatusPending,
			DueDate:       dateOnly(lease.StartDate),
		}
		if _, _, err := s.paymentRepo.CreateIdempotent(ctx, deposit); err != nil {
			logger.Error(fmt.Sprintf("[Schedules] Failed to create deposit payment for lease %d: %v", lease.ID, err))
		}
	}

	return schedule, nil
}

// MaterializePayment creates the pending payment for the schedule's current
// period, or returns the existing one. The unique period key in the
// database makes this safe under concurrent billing passes; the schedule is
// not advanced here.
func (s *ScheduleService) MaterializePayment(ctx context.Context, schedule *models.PaymentSchedule) (*models.Payment, bool, error) {
	lease := schedule.Lease
	if lease.ID == 0 {
		found, err := s.leaseRepo.FindByID(ctx, schedule.LeaseID)
		if err != nil {
			return nil, false, err
		}
		lease = *found
	}

	payment := &models.Payment{
		PaymentNumber: models.NewPaymentNumber(time.Now()),
		LeaseID:       schedule.LeaseID,
		PayerID:       lease.TenantUserID,
		Amount:        schedule.Amount,
		PaymentType:   schedule.PaymentType,
		Status:        models.PaymentStatusPending,
		DueDate:       dateOnly(schedule.NextPaymentDate),
	}

	existing, created, err := s.paymentRepo.CreateIdempotent(ctx, payment)
	if err != nil {
		return nil, false, err
	}
	if created {
		logger.Info(fmt.Sprintf("[Schedules] Materialized payment %s for schedule %d (due %s)",
			existing.PaymentNumber, schedule.ID, existing.DueDate.Format("2006-01-02")))
	}
	return existing, created, nil
}

// CreatePaymentForCurrentPeriod is the on-demand path: materialize the
// period's payment and advance the schedule immediately, so a tenant
// paying early sees next period's date right away.
func (s *ScheduleService) CreatePaymentForCurrentPeriod(ctx context.Context, scheduleID uint) (*models.Payment, error) {
	schedule, err := s.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !schedule.IsActive {
		return nil, fmt.Errorf("%w: schedule %d is inactive", ErrValidation, scheduleID)
	}

	payment, created, err := s.MaterializePayment(ctx, schedule)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.AdvanceToNext(ctx, schedule); err != nil && !errors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	return payment, nil
}

// AdvanceToNext moves the schedule to its next payment date, or deactivates
// it when the next date would run past the end date. A lost race against a
// concurrent advance returns ErrConflict; the other writer already did the
// work.
func (s *ScheduleService) AdvanceToNext(ctx context.Context, schedule *models.PaymentSchedule) error {
	next := schedule.NextDateFrom(schedule.NextPaymentDate)
	if schedule.IsExpiredAfter(next) {
		logger.Info(fmt.Sprintf("[Schedules] Schedule %d ran past its end date, deactivating", schedule.ID))
		return s.scheduleRepo.Deactivate(ctx, schedule.ID)
	}

	err := s.scheduleRepo.AdvanceNext(ctx, schedule.ID, schedule.NextPaymentDate, next)
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return ErrConflict
		}
		return err
	}
	schedule.NextPaymentDate = next
	return nil
}

// Deactivate turns a schedule off so the billing clock stops materializing
// payments for it. Already-created payments are untouched.
func (s *ScheduleService) Deactivate(ctx context.Context, id uint) error {
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}
	return s.scheduleRepo.Deactivate(ctx, id)
}

// DeactivateExpired turns off schedules belonging to leases that have ended
func (s *ScheduleService) DeactivateExpired(ctx context.Context, asOf time.Time) (int, error) {
	leases, err := s.leaseRepo.FindExpired(ctx, asOf)
	if err != nil {
		return 0, err
	}

	deactivated := 0
	for _, lease := range leases {
		schedules, err := s.scheduleRepo.FindByLeaseID(ctx, lease.ID)
		if err != nil {
			logger.Error(fmt.Sprintf("[Schedules] Failed to list schedules for lease %d: %v", lease.ID, err))
			continue
		}
		for _, schedule := range schedules {
			if !schedule.IsActive {
				continue
			}
			if err := s.scheduleRepo.Deactivate(ctx, schedule.ID); err != nil {
				logger.Error(fmt.Sprintf("[Schedules] Failed to deactivate schedule %d: %v", schedule.ID, err))
				continue
			}
			deactivated++
		}
		if err := s.leaseRepo.Deactivate(ctx, lease.ID); err != nil {
			logger.Error(fmt.Sprintf("[Schedules] Failed to deactivate lease %d: %v", lease.ID, err))
		}
	}
	return deactivated, nil
}

// firstRentDate returns the first occurrence of the rent day on or after
// the lease start
func firstRentDate(start time.Time, dayOfMonth int) time.Time {
	start = dateOnly(start)
	y, m, _ := start.Date()
	firstOfMonth := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfMonth.AddDate(0, 1, -1).Day()
	day := dayOfMonth
	if day > lastDay {
		day = lastDay
	}
	candidate := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	if candidate.Before(start) {
		sched := &models.PaymentSchedule{Frequency: models.FrequencyMonthly, DayOfMonth: &dayOfMonth}
		return sched.NextDateFrom(candidate)
	}
	return candidate
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
