package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimbuspm/billing-api/internal/gateway"
	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
	"github.com/nimbuspm/billing-api/internal/statemachine"
	"github.com/nimbuspm/billing-api/pkg/logger"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReconcilerService translates gateway webhook events into payment state
// transitions, exactly once in effect. Delivery is at-least-once and
// unordered, so every handler here must be an idempotent, commutative
// application against the payment's current status.
type ReconcilerService struct {
	eventRepo     repository.GatewayEventRepository
	paymentRepo   repository.PaymentRepository
	methodRepo    repository.PaymentMethodRepository
	userRepo      repository.UserRepository
	notifications *NotificationService
}

func NewReconcilerService(
	eventRepo repository.GatewayEventRepository,
	paymentRepo repository.PaymentRepository,
	methodRepo repository.PaymentMethodRepository,
	userRepo repository.UserRepository,
	notifications *NotificationService,
) *ReconcilerService {
	return &ReconcilerService{
		eventRepo:     eventRepo,
		paymentRepo:   paymentRepo,
		methodRepo:    methodRepo,
		userRepo:      userRepo,
		notifications: notifications,
	}
}

// ApplyEvent processes one webhook event. Returning nil means the event is
// fully applied (or a recognized no-op) and the gateway may stop
// redelivering; returning an error releases the claim so a redelivery can
// try again.
func (s *ReconcilerService) ApplyEvent(ctx context.Context, event *gateway.WebhookEvent) error {
	claim := &models.GatewayEvent{
		EventID:    event.ID,
		Kind:       event.Kind,
		Payload:    datatypes.JSON(event.Data),
		ReceivedAt: time.Now(),
	}
	if intent, err := event.Intent(); err == nil && intent.ID != "" {
		claim.IntentID = &intent.ID
	}

	claimed, err := s.eventRepo.Claim(ctx, claim)
	if err != nil {
		return fmt.Errorf("failed to claim event %s: %w", event.ID, err)
	}
	if !claimed {
		// Redelivery of an event another worker already handled (or is
		// handling). Ack it.
		state := "already handled"
		if prior, err := s.eventRepo.FindByEventID(ctx, event.ID); err == nil && prior.ProcessedAt == nil {
			state = "in flight on another worker"
		}
		logger.Info(fmt.Sprintf("[Reconciler] Duplicate event %s (%s), %s, skipping", event.ID, event.Kind, state))
		return nil
	}

	if err := s.process(ctx, event); err != nil {
		// Give the redelivery a fresh claim.
		if relErr := s.eventRepo.Release(ctx, event.ID); relErr != nil {
			logger.Error(fmt.Sprintf("[Reconciler] Failed to release claim on event %s: %v", event.ID, relErr))
		}
		return err
	}

	if err := s.eventRepo.MarkProcessed(ctx, event.ID, time.Now()); err != nil {
		logger.Error(fmt.Sprintf("[Reconciler] Failed to mark event %s processed: %v", event.ID, err))
	}
	return nil
}

func (s *ReconcilerService) process(ctx context.Context, event *gateway.WebhookEvent) error {
	switch event.Kind {
	case gateway.EventIntentSucceeded, gateway.EventIntentFailed,
		gateway.EventIntentProcessing, gateway.EventIntentCanceled:
		return s.applyIntentEvent(ctx, event)

	case gateway.EventPaymentMethodAttached:
		return s.applyMethodAttached(ctx, event)

	case gateway.EventPaymentMethodDetached:
		return s.applyMethodDetached(ctx, event)

	default:
		// Forward compatibility: the gateway adds event kinds over time.
		logger.Warn(fmt.Sprintf("[Reconciler] Unknown event kind %s (event %s), ignoring", event.Kind, event.ID))
		return nil
	}
}

func (s *ReconcilerService) applyIntentEvent(ctx context.Context, event *gateway.WebhookEvent) error {
	intent, err := event.Intent()
	if err != nil {
		return fmt.Errorf("failed to decode intent from event %s: %w", event.ID, err)
	}

	payment, err := s.paymentRepo.FindByGatewayIntentID(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The gateway may notify about intents this system never
			// created. Ack and move on.
			logger.Warn(fmt.Sprintf("[Reconciler] No payment for intent %s (event %s), dropping", intent.ID, event.ID))
			s.recordAnomaly(ctx, event.ID, fmt.Sprintf("no payment for intent %s", intent.ID))
			return nil
		}
		return err
	}

	priorStatus := payment.Status
	pfsm := statemachine.NewPaymentFSM(payment)

	var events []models.BillingEvent
	switch event.Kind {
	case gateway.EventIntentSucceeded:
		// A success webhook can outrun the synchronous confirm response, so
		// the payment may still be pending here.
		if payment.Status == models.PaymentStatusPending {
			if _, err := pfsm.MarkProcessing(ctx); err != nil {
				return err
			}
		}
		events, err = pfsm.MarkSucceeded(ctx, intent.ChargeID, paidAtFrom(intent, event))
		if errors.Is(err, statemachine.ErrChargeConflict) {
			s.escalateChargeConflict(ctx, payment, intent)
			s.recordAnomaly(ctx, event.ID, fmt.Sprintf("charge conflict: payment %s holds %s, intent %s reports %s",
				payment.PaymentNumber, derefStr(payment.GatewayChargeID), intent.ID, intent.ChargeID))
			return nil
		}

	case gateway.EventIntentFailed:
		if payment.IsTerminal() {
			logger.Info(fmt.Sprintf("[Reconciler] Payment %s already %s, ignoring late failure event %s",
				payment.PaymentNumber, payment.Status, event.ID))
			return nil
		}
		reason := intent.FailureMessage
		if reason == "" {
			reason = intent.FailureCode
		}
		events, err = pfsm.MarkFailed(ctx, reason)

	case gateway.EventIntentProcessing:
		if payment.IsTerminal() || payment.Status == models.PaymentStatusFailed {
			// A delayed processing event must never downgrade a payment
			// that already resolved.
			return nil
		}
		events, err = pfsm.MarkProcessing(ctx)

	case gateway.EventIntentCanceled:
		if payment.IsTerminal() {
			return nil
		}
		events, err = pfsm.MarkCanceled(ctx)
	}

	if err != nil {
		if errors.Is(err, statemachine.ErrInvalidTransition) {
			// The event describes a state the payment cannot reach from
			// where it is now; a redelivery would fail identically. Ack it.
			logger.Warn(fmt.Sprintf("[Reconciler] Dropping event %s for payment %s: %v", event.ID, payment.PaymentNumber, err))
			s.recordAnomaly(ctx, event.ID, err.Error())
			return nil
		}
		return err
	}
	if payment.Status == priorStatus {
		// Transition was a recognized no-op, nothing to persist.
		return nil
	}

	if err := s.paymentRepo.UpdateWithStatusCheck(ctx, payment, priorStatus); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			// Lost the race to a concurrent writer. Fail the claim so the
			// redelivery reconciles against the new status.
			return fmt.Errorf("%w: payment %s changed while applying event %s", ErrConflict, payment.PaymentNumber, event.ID)
		}
		return err
	}

	logger.Info(fmt.Sprintf("[Reconciler] Event %s: payment %s %s -> %s",
		event.ID, payment.PaymentNumber, priorStatus, payment.Status))
	s.notifications.Dispatch(ctx, events)
	return nil
}

func (s *ReconcilerService) applyMethodAttached(ctx context.Context, event *gateway.WebhookEvent) error {
	info, err := event.PaymentMethod()
	if err != nil {
		return fmt.Errorf("failed to decode payment method from event %s: %w", event.ID, err)
	}

	user, err := s.userRepo.FindByGatewayCustomerID(ctx, info.CustomerRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn(fmt.Sprintf("[Reconciler] No user for gateway customer %s (event %s), dropping", info.CustomerRef, event.ID))
			return nil
		}
		return err
	}

	method := &models.PaymentMethod{
		UserID:     user.ID,
		GatewayRef: info.ID,
		Brand:      info.Brand,
		Last4:      info.Last4,
		IsDefault:  info.Default,
	}
	if err := s.methodRepo.Upsert(ctx, method); err != nil {
		return err
	}
	if info.Default {
		if err := s.methodRepo.SetDefault(ctx, user.ID, method.ID); err != nil {
			logger.Error(fmt.Sprintf("[Reconciler] Failed to set default method for user %d: %v", user.ID, err))
		}
	}
	logger.Info(fmt.Sprintf("[Reconciler] Attached payment method %s for user %d", info.ID, user.ID))
	return nil
}

func (s *ReconcilerService) applyMethodDetached(ctx context.Context, event *gateway.WebhookEvent) error {
	info, err := event.PaymentMethod()
	if err != nil {
		return fmt.Errorf("failed to decode payment method from event %s: %w", event.ID, err)
	}
	if err := s.methodRepo.MarkDetached(ctx, info.ID, time.Now()); err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("[Reconciler] Detached payment method %s", info.ID))
	return nil
}

// escalateChargeConflict records a success event naming a different charge
// than the one already on the payment. Redelivering cannot fix this; it
// needs a human, so the event is acked and admins are paged.
func (s *ReconcilerService) escalateChargeConflict(ctx context.Context, payment *models.Payment, intent *gateway.Intent) {
	msg := fmt.Sprintf("Payment %s already succeeded with charge %s but intent %s reports charge %s",
		payment.PaymentNumber, derefStr(payment.GatewayChargeID), intent.ID, intent.ChargeID)
	logger.Error("[Reconciler] " + msg)
	if err := s.notifications.NotifyAdmins(ctx, "Charge reconciliation conflict", msg, models.NotificationTypeSystem); err != nil {
		logger.Error(fmt.Sprintf("[Reconciler] Failed to notify admins: %v", err))
	}
}

// recordAnomaly keeps the reason an acked event could not be applied on its
// claim row, so dropped events stay inspectable after the fact.
func (s *ReconcilerService) recordAnomaly(ctx context.Context, eventID, reason string) {
	if err := s.eventRepo.MarkFailed(ctx, eventID, reason); err != nil {
		logger.Error(fmt.Sprintf("[Reconciler] Failed to record anomaly on event %s: %v", eventID, err))
	}
}

func paidAtFrom(intent *gateway.Intent, event *gateway.WebhookEvent) time.Time {
	if !intent.CreatedAt.IsZero() {
		return intent.CreatedAt
	}
	if event.CreatedAt > 0 {
		return time.Unix(event.CreatedAt, 0)
	}
	return time.Now()
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
