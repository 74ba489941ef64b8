package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimbuspm/billing-api/internal/config"
	"github.com/nimbuspm/billing-api/internal/gateway"
	"github.com/nimbuspm/billing-api/internal/jobs"
	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
	"github.com/nimbuspm/billing-api/internal/statemachine"
	"github.com/nimbuspm/billing-api/pkg/logger"

	"gorm.io/gorm"
)

// PaymentService orchestrates the payment lifecycle: charge submission,
// manual retry/cancel/refund, and queries. Every status write goes through
// the state machine and a compare-and-swap on the prior status.
type PaymentService struct {
	paymentRepo   repository.PaymentRepository
	methodRepo    repository.PaymentMethodRepository
	gw            gateway.Client
	notifications *NotificationService
	audit         *AuditService
	cfg           *config.Config
	retryPolicy   jobs.RetryPolicy
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	methodRepo repository.PaymentMethodRepository,
	gw gateway.Client,
	notifications *NotificationService,
	audit *AuditService,
	cfg *config.Config,
) *PaymentService {
	return &PaymentService{
		paymentRepo:   paymentRepo,
		methodRepo:    methodRepo,
		gw:            gw,
		notifications: notifications,
		audit:         audit,
		cfg:           cfg,
		retryPolicy:   jobs.DefaultGatewayPolicy(cfg.GatewayMaxRetries, gateway.IsRetryable),
	}
}

// CreatePaymentInput are the fields for a manually created one-off payment
type CreatePaymentInput struct {
	LeaseID     uint      `json:"lease_id" binding:"required"`
	PayerID     uint      `json:"payer_id" binding:"required"`
	Amount      float64   `json:"amount" binding:"required"`
	PaymentType string    `json:"payment_type" binding:"required"`
	DueDate     time.Time `json:"due_date" binding:"required"`
}

var validPaymentTypes = map[string]bool{
	models.PaymentTypeRent:            true,
	models.PaymentTypeSecurityDeposit: true,
	models.PaymentTypeLateFee:         true,
	models.PaymentTypeUtility:         true,
	models.PaymentTypeMaintenanceFee:  true,
	models.PaymentTypeOther:           true,
}

// Create creates a one-off pending payment. Creating a second non-canceled
// payment for the same (lease, type, due date) returns the existing one.
func (s *PaymentService) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !validPaymentTypes[input.PaymentType] {
		return nil, fmt.Errorf("%w: unknown payment type %q", ErrValidation, input.PaymentType)
	}

	payment := &models.Payment{
		PaymentNumber: models.NewPaymentNumber(time.Now()),
		LeaseID:       input.LeaseID,
		PayerID:       input.PayerID,
		Amount:        input.Amount,
		PaymentType:   input.PaymentType,
		Status:        models.PaymentStatusPending,
		DueDate:       dateOnly(input.DueDate),
	}

	existing, created, err := s.paymentRepo.CreateIdempotent(ctx, payment)
	if err != nil {
		return nil, err
	}
	if !created {
		return existing, ErrDuplicate
	}
	return existing, nil
}

func (s *PaymentService) FindByID(ctx context.Context, id uint) (*models.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return payment, nil
}

// FindByNumber resolves a payment by its human-facing payment number, the
// reference printed in receipts and notifications.
func (s *PaymentService) FindByNumber(ctx context.Context, number string) (*models.Payment, error) {
	payment, err := s.paymentRepo.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (s *PaymentService) List(ctx context.Context, query repository.PaymentListQuery) ([]models.Payment, int64, error) {
	return s.paymentRepo.List(ctx, query)
}

func (s *PaymentService) Stats(ctx context.Context) (*repository.PaymentStats, error) {
	return s.paymentRepo.Stats(ctx, time.Now())
}

// Charge submits a payment to the gateway and applies the synchronous
// outcome. The billing clock and manual retries both land here. A payment
// still mid-flight with the gateway (processing, or pending younger than
// the grace window on the retry path) is left alone.
func (s *PaymentService) Charge(ctx context.Context, payment *models.Payment) error {
	method, err := s.usableMethod(ctx, payment)
	if err != nil {
		return err
	}

	priorStatus := payment.Status
	pfsm := statemachine.NewPaymentFSM(payment)
	switch priorStatus {
	case models.PaymentStatusPending:
		if _, err := pfsm.MarkProcessing(ctx); err != nil {
			return err
		}
	case models.PaymentStatusFailed:
		if _, err := pfsm.MarkRetrying(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: cannot charge payment in state %s", ErrInvalidState, priorStatus)
	}

	// Claim the row before touching the gateway, recording the method this
	// attempt will charge. A concurrent charger that already claimed it
	// turns this attempt into a no-op.
	methodID := method.ID
	payment.PaymentMethodID = &methodID
	if err := s.persistWithCheck(ctx, payment, priorStatus); err != nil {
		return err
	}

	// One idempotency key per charge attempt: network-level retries within
	// the policy reuse it, so the gateway never creates two intents for one
	// attempt. A later manual retry is a new attempt and gets a new key.
	idemKey := uuid.NewString()

	var intent *gateway.Intent
	chargeErr := s.retryPolicy.Run(ctx, func(ctx context.Context) error {
		var err error
		intent, err = s.gw.CreateIntent(ctx, gateway.CreateIntentParams{
			Amount:           payment.Amount,
			PaymentMethodRef: method.GatewayRef,
			Description:      fmt.Sprintf("%s %s", payment.PaymentType, payment.PaymentNumber),
			IdempotencyKey:   idemKey,
		})
		return err
	})

	if chargeErr != nil {
		return s.applyFailure(ctx, payment, chargeErr.Error())
	}

	payment.GatewayIntentID = &intent.ID
	return s.ApplyIntentResult(ctx, payment, intent)
}

// ApplyIntentResult applies an intent outcome to a processing payment, the
// same way the reconciler applies a webhook. An intent still processing
// leaves the payment processing; the webhook will finish it.
func (s *PaymentService) ApplyIntentResult(ctx context.Context, payment *models.Payment, intent *gateway.Intent) error {
	switch intent.Status {
	case gateway.IntentStatusSucceeded:
		pfsm := statemachine.NewPaymentFSM(payment)
		events, err := pfsm.MarkSucceeded(ctx, intent.ChargeID, time.Now())
		if err != nil {
			return err
		}
		if err := s.persistWithCheck(ctx, payment, models.PaymentStatusProcessing); err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("[Payments] Payment %s succeeded (charge %s)", payment.PaymentNumber, intent.ChargeID))
		s.notifications.Dispatch(ctx, events)
		return nil

	case gateway.IntentStatusFailed:
		reason := intent.FailureMessage
		if reason == "" {
			reason = intent.FailureCode
		}
		return s.applyFailure(ctx, payment, reason)

	default:
		// Still processing; persist the intent reference and wait for the
		// webhook.
		return s.persistWithCheck(ctx, payment, models.PaymentStatusProcessing)
	}
}

func (s *PaymentService) applyFailure(ctx context.Context, payment *models.Payment, reason string) error {
	pfsm := statemachine.NewPaymentFSM(payment)
	events, err := pfsm.MarkFailed(ctx, reason)
	if err != nil {
		return err
	}
	if err := s.persistWithCheck(ctx, payment, models.PaymentStatusProcessing); err != nil {
		return err
	}
	logger.Warn(fmt.Sprintf("[Payments] Payment %s failed: %s", payment.PaymentNumber, reason))
	s.notifications.Dispatch(ctx, events)
	return nil
}

// Retry re-submits a failed (or stale pending) payment to the gateway on
// the same payment row.
func (s *PaymentService) Retry(ctx context.Context, paymentID, actorID uint, ip string) (*models.Payment, error) {
	payment, err := s.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.IsRetryEligible(s.cfg.RetryGraceWindow) {
		return nil, ErrNotRetryable
	}

	if err := s.audit.Log(ctx, actorID, "RETRY", "Payment", payment.ID,
		fmt.Sprintf("Manual retry of payment %s", payment.PaymentNumber), ip); err != nil {
		logger.Error(fmt.Sprintf("[Payments] Failed to write audit entry: %v", err))
	}

	if err := s.Charge(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// Cancel cancels a pending or processing payment. The gateway intent, if
// one exists, is canceled best-effort; the local state is authoritative.
func (s *PaymentService) Cancel(ctx context.Context, paymentID, actorID uint, ip string) (*models.Payment, error) {
	payment, err := s.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	priorStatus := payment.Status
	pfsm := statemachine.NewPaymentFSM(payment)
	if _, err := pfsm.MarkCanceled(ctx); err != nil {
		if errors.Is(err, statemachine.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: payment %s is %s", ErrInvalidState, payment.PaymentNumber, priorStatus)
		}
		return nil, err
	}
	if err := s.persistWithCheck(ctx, payment, priorStatus); err != nil {
		return nil, err
	}

	if payment.GatewayIntentID != nil {
		if _, err := s.gw.CancelIntent(ctx, *payment.GatewayIntentID); err != nil {
			logger.Warn(fmt.Sprintf("[Payments] Failed to cancel gateway intent %s: %v", *payment.GatewayIntentID, err))
		}
	}

	if err := s.audit.Log(ctx, actorID, "CANCEL", "Payment", payment.ID,
		fmt.Sprintf("Canceled payment %s", payment.PaymentNumber), ip); err != nil {
		logger.Error(fmt.Sprintf("[Payments] Failed to write audit entry: %v", err))
	}
	return payment, nil
}

// Refund refunds a succeeded payment through the gateway. A zero amount
// means a full refund; a partial amount must not exceed what was collected.
func (s *PaymentService) Refund(ctx context.Context, paymentID uint, amount float64, actorID uint, ip string) (*models.Payment, error) {
	payment, err := s.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.MayRefund() {
		return nil, fmt.Errorf("%w: payment %s is %s", ErrInvalidState, payment.PaymentNumber, payment.Status)
	}
	if payment.GatewayIntentID == nil {
		return nil, fmt.Errorf("%w: payment %s has no gateway intent", ErrInvalidState, payment.PaymentNumber)
	}
	if amount == 0 {
		amount = payment.Amount
	}
	if amount < 0 || amount > payment.Amount {
		return nil, fmt.Errorf("%w: refund amount %.2f exceeds payment amount %.2f", ErrValidation, amount, payment.Amount)
	}

	refund, err := s.gw.CreateRefund(ctx, *payment.GatewayIntentID, amount)
	if err != nil {
		return nil, fmt.Errorf("gateway refund failed: %w", err)
	}

	pfsm := statemachine.NewPaymentFSM(payment)
	events, err := pfsm.MarkRefunded(ctx, fmt.Sprintf("refund %s", refund.ID))
	if err != nil {
		return nil, err
	}
	if err := s.persistWithCheck(ctx, payment, models.PaymentStatusSucceeded); err != nil {
		return nil, err
	}

	if err := s.audit.Log(ctx, actorID, "REFUND", "Payment", payment.ID,
		fmt.Sprintf("Refunded payment %s ($%.2f, refund %s)", payment.PaymentNumber, amount, refund.ID), ip); err != nil {
		logger.Error(fmt.Sprintf("[Payments] Failed to write audit entry: %v", err))
	}

	s.notifications.Dispatch(ctx, events)
	return payment, nil
}

// usableMethod resolves the payer's default usable payment method. Having
// none is a business outcome, not an error path: the payment stays pending
// and the payer is told to add a method.
func (s *PaymentService) usableMethod(ctx context.Context, payment *models.Payment) (*models.PaymentMethod, error) {
	method, err := s.methodRepo.FindDefaultForUser(ctx, payment.PayerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.notifications.Dispatch(ctx, []models.BillingEvent{
				models.NewBillingEvent(models.BillingEventPaymentMethodRequired, payment, ""),
			})
			return nil, ErrPaymentMethodRequired
		}
		return nil, err
	}
	return method, nil
}

func (s *PaymentService) persistWithCheck(ctx context.Context, payment *models.Payment, expectedStatus string) error {
	err := s.paymentRepo.UpdateWithStatusCheck(ctx, payment, expectedStatus)
	if errors.Is(err, repository.ErrStaleStatus) {
		return ErrConflict
	}
	return err
}
