package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimbuspm/billing-api/internal/config"
	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
	"github.com/nimbuspm/billing-api/pkg/logger"
)

// BillingService is the periodic clock that turns due schedules into
// payments, submits auto-pay charges, sends reminders, and assesses late
// fees. Every pass is safe to re-run: all creation goes through the unique
// keys in the database.
type BillingService struct {
	scheduleRepo  repository.ScheduleRepository
	paymentRepo   repository.PaymentRepository
	schedules     *ScheduleService
	payments      *PaymentService
	notifications *NotificationService
	cfg           *config.Config
}

func NewBillingService(
	scheduleRepo repository.ScheduleRepository,
	paymentRepo repository.PaymentRepository,
	schedules *ScheduleService,
	payments *PaymentService,
	notifications *NotificationService,
	cfg *config.Config,
) *BillingService {
	return &BillingService{
		scheduleRepo:  scheduleRepo,
		paymentRepo:   paymentRepo,
		schedules:     schedules,
		payments:      payments,
		notifications: notifications,
		cfg:           cfg,
	}
}

// BillingRunResult summarizes one clock pass
type BillingRunResult struct {
	SchedulesDue     int       `json:"schedules_due"`
	PaymentsCreated  int       `json:"payments_created"`
	ChargesSucceeded int       `json:"charges_succeeded"`
	ChargesFailed    int       `json:"charges_failed"`
	MethodMissing    int       `json:"method_missing"`
	Errors           int       `json:"errors"`
	StartedAt        time.Time `json:"started_at"`
	Duration         string    `json:"duration"`
}

// RunOnce executes one billing pass over all due schedules. A single
// schedule's failure is counted and skipped, never aborts the pass.
func (s *BillingService) RunOnce(ctx context.Context) (*BillingRunResult, error) {
	start := time.Now()
	result := &BillingRunResult{StartedAt: start}

	due, err := s.scheduleRepo.FindDue(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	result.SchedulesDue = len(due)

	for i := range due {
		schedule := &due[i]
		if err := s.processSchedule(ctx, schedule, result); err != nil {
			result.Errors++
			logger.Error(fmt.Sprintf("[Billing] Schedule %d failed: %v", schedule.ID, err))
		}
	}

	result.Duration = time.Since(start).String()
	logger.Info(fmt.Sprintf("[Billing] Pass complete: %d due, %d created, %d succeeded, %d failed, %d missing method, %d errors (%s)",
		result.SchedulesDue, result.PaymentsCreated, result.ChargesSucceeded,
		result.ChargesFailed, result.MethodMissing, result.Errors, result.Duration))
	return result, nil
}

func (s *BillingService) processSchedule(ctx context.Context, schedule *models.PaymentSchedule, result *BillingRunResult) error {
	payment, created, err := s.schedules.MaterializePayment(ctx, schedule)
	if err != nil {
		return err
	}
	if created {
		result.PaymentsCreated++
	}

	if !schedule.AutoPay {
		// Manual-pay schedules advance as soon as the period's payment
		// exists; collection is the tenant's move.
		if created {
			if err := s.schedules.AdvanceToNext(ctx, schedule); err != nil && !errors.Is(err, ErrConflict) {
				return err
			}
		}
		return nil
	}

	switch payment.Status {
	case models.PaymentStatusPending, models.PaymentStatusFailed:
		// Chargeable this pass.
	case models.PaymentStatusSucceeded:
		// Collected on an earlier pass but the advance was lost (crash
		// between charge and advance). Finish the advance now.
		return s.advanceAfterSuccess(ctx, schedule)
	default:
		// Mid-flight with the gateway, or written off. Nothing to do.
		return nil
	}

	err = s.payments.Charge(ctx, payment)
	switch {
	case err == nil:
	case errors.Is(err, ErrPaymentMethodRequired):
		result.MethodMissing++
		return nil
	case errors.Is(err, ErrConflict):
		// Another worker is charging this payment right now.
		return nil
	default:
		return err
	}

	switch payment.Status {
	case models.PaymentStatusSucceeded:
		result.ChargesSucceeded++
		return s.advanceAfterSuccess(ctx, schedule)
	case models.PaymentStatusFailed:
		result.ChargesFailed++
	}
	// Failed or still processing: the schedule stays put so the next pass
	// (or the webhook-driven retry path) picks the period up again.
	return nil
}

func (s *BillingService) advanceAfterSuccess(ctx context.Context, schedule *models.PaymentSchedule) error {
	if err := s.schedules.AdvanceToNext(ctx, schedule); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}
	return nil
}

// SendDueReminders notifies payers whose pending payments come due within
// the next day. Each payment is reminded once.
func (s *BillingService) SendDueReminders(ctx context.Context) (int, error) {
	now := time.Now()
	horizon := now.AddDate(0, 0, 1)

	payments, err := s.paymentRepo.FindDueSoon(ctx, now, horizon)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range payments {
		payment := &payments[i]
		event := models.NewBillingEvent(models.BillingEventPaymentDueReminder, payment, "")
		s.notifications.Dispatch(ctx, []models.BillingEvent{event})
		s.notifications.enqueueEmail(payment.ID, func(ctx context.Context, user *models.User, p *models.Payment) error {
			return s.notifications.email.SendDueReminder(ctx, user, p)
		})
		if err := s.paymentRepo.MarkDueReminderSent(ctx, payment.ID, now); err != nil {
			logger.Error(fmt.Sprintf("[Billing] Failed to mark reminder sent for payment %d: %v", payment.ID, err))
			continue
		}
		sent++
	}

	if sent > 0 {
		logger.Info(fmt.Sprintf("[Billing] Sent %d due reminders", sent))
	}
	return sent, nil
}

// SendOverdueNotices notifies payers whose payments have slipped past the
// due date. Each payment is noticed once.
func (s *BillingService) SendOverdueNotices(ctx context.Context) (int, error) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	payments, err := s.paymentRepo.FindOverdueUnnotified(ctx, today)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range payments {
		payment := &payments[i]
		event := models.NewBillingEvent(models.BillingEventPaymentOverdue, payment, "")
		s.notifications.Dispatch(ctx, []models.BillingEvent{event})
		s.notifications.enqueueEmail(payment.ID, func(ctx context.Context, user *models.User, p *models.Payment) error {
			return s.notifications.email.SendOverdueNotice(ctx, user, p)
		})
		if err := s.paymentRepo.MarkOverdueReminderSent(ctx, payment.ID, now); err != nil {
			logger.Error(fmt.Sprintf("[Billing] Failed to mark overdue notice sent for payment %d: %v", payment.ID, err))
			continue
		}
		sent++
	}

	if sent > 0 {
		logger.Info(fmt.Sprintf("[Billing] Sent %d overdue notices", sent))
	}
	return sent, nil
}

// ApplyLateFees creates late-fee payments for rent overdue past the grace
// period. The unique index on late_fee_source_id guarantees at most one
// fee per overdue payment no matter how many passes run concurrently.
func (s *BillingService) ApplyLateFees(ctx context.Context) (int, error) {
	now := time.Now()
	overdue, err := s.paymentRepo.FindOverdueRent(ctx, now, s.cfg.LateFeeGraceDays)
	if err != nil {
		return 0, err
	}

	assessed := 0
	for i := range overdue {
		payment := &overdue[i]
		amount := payment.CalculateLateFee(s.cfg.LateFeeFlat, s.cfg.LateFeePercent, s.cfg.LateFeeGraceDays)
		if amount <= 0 {
			continue
		}

		sourceID := payment.ID
		fee := &models.Payment{
			PaymentNumber:   models.NewPaymentNumber(now),
			LeaseID:         payment.LeaseID,
			PayerID:         payment.PayerID,
			Amount:          amount,
			PaymentType:     models.PaymentTypeLateFee,
			Status:          models.PaymentStatusPending,
			DueDate:         time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
			LateFeeSourceID: &sourceID,
		}

		created, wasNew, err := s.paymentRepo.CreateLateFee(ctx, fee)
		if err != nil {
			logger.Error(fmt.Sprintf("[Billing] Failed to create late fee for payment %s: %v", payment.PaymentNumber, err))
			continue
		}
		if !wasNew {
			continue
		}

		assessed++
		logger.Info(fmt.Sprintf("[Billing] Assessed late fee %s ($%.2f) on payment %s",
			created.PaymentNumber, amount, payment.PaymentNumber))
		event := models.NewBillingEvent(models.BillingEventLateFeeAssessed, created,
			fmt.Sprintf("for overdue payment %s", payment.PaymentNumber))
		s.notifications.Dispatch(ctx, []models.BillingEvent{event})
	}
	return assessed, nil
}
