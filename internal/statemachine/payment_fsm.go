package statemachine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/nimbuspm/billing-api/internal/models"
)

// ErrChargeConflict is returned when a succeeded payment is reported
// succeeded again with a different gateway charge reference. That is not a
// duplicate delivery; it means two distinct charges claim the same payment
// and a human needs to look at it.
var ErrChargeConflict = errors.New("payment already succeeded with a different charge reference")

// ErrInvalidTransition is returned for transitions the state machine forbids
var ErrInvalidTransition = errors.New("invalid payment state transition")

// PaymentFSM wraps a payment with its state machine. Transitions mutate the
// payment in memory and return the domain events to dispatch; callers
// persist with a compare-and-swap on the prior status.
type PaymentFSM struct {
	payment *models.Payment
	fsm     *fsm.FSM
}

// NewPaymentFSM creates a new payment state machine seeded with the
// payment's current status
func NewPaymentFSM(payment *models.Payment) *PaymentFSM {
	pfsm := &PaymentFSM{
		payment: payment,
	}

	pfsm.fsm = fsm.NewFSM(
		payment.Status,
		fsm.Events{
			// pending → processing
			{Name: "process", Src: []string{models.PaymentStatusPending}, Dst: models.PaymentStatusProcessing},

			// processing → succeeded
			{Name: "succeed", Src: []string{models.PaymentStatusProcessing}, Dst: models.PaymentStatusSucceeded},

			// pending/processing → failed
			{Name: "fail", Src: []string{models.PaymentStatusPending, models.PaymentStatusProcessing}, Dst: models.PaymentStatusFailed},

			// pending/processing → canceled
			{Name: "cancel", Src: []string{models.PaymentStatusPending, models.PaymentStatusProcessing}, Dst: models.PaymentStatusCanceled},

			// failed → processing (a retry reuses the same payment row)
			{Name: "retry", Src: []string{models.PaymentStatusFailed}, Dst: models.PaymentStatusProcessing},

			// succeeded → refunded
			{Name: "refund", Src: []string{models.PaymentStatusSucceeded}, Dst: models.PaymentStatusRefunded},
		},
		fsm.Callbacks{},
	)

	return pfsm
}

// MarkProcessing transitions the payment to processing. Calling it on a
// payment that is already processing is a no-op so a delayed
// intent.processing webhook does not error.
func (p *PaymentFSM) MarkProcessing(ctx context.Context) ([]models.BillingEvent, error) {
	if p.payment.Status == models.PaymentStatusProcessing {
		return nil, nil
	}
	if !p.payment.MayProcess() {
		return nil, fmt.Errorf("%w: cannot process payment in state %s", ErrInvalidTransition, p.payment.Status)
	}

	if err := p.fsm.Event(ctx, "process"); err != nil {
		return nil, fmt.Errorf("failed to mark payment processing: %w", err)
	}

	p.payment.Status = p.fsm.Current()
	return nil, nil
}

// MarkSucceeded transitions the payment to succeeded, recording the gateway
// charge reference and paid time. Re-applying the same charge reference to
// an already-succeeded payment is a silent no-op; a different reference is
// a reconciliation conflict.
func (p *PaymentFSM) MarkSucceeded(ctx context.Context, chargeRef string, paidAt time.Time) ([]models.BillingEvent, error) {
	if p.payment.Status == models.PaymentStatusSucceeded {
		if p.payment.GatewayChargeID != nil && *p.payment.GatewayChargeID == chargeRef {
			return nil, nil
		}
		return nil, ErrChargeConflict
	}
	if !p.payment.MaySucceed() {
		return nil, fmt.Errorf("%w: cannot succeed payment in state %s", ErrInvalidTransition, p.payment.Status)
	}

	if err := p.fsm.Event(ctx, "succeed"); err != nil {
		return nil, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}

	p.payment.Status = p.fsm.Current()
	p.payment.GatewayChargeID = &chargeRef
	p.payment.PaidAt = &paidAt
	p.payment.FailureReason = nil

	return []models.BillingEvent{
		models.NewBillingEvent(models.BillingEventPaymentSucceeded, p.payment, ""),
	}, nil
}

// MarkFailed transitions the payment to failed and records the reason
func (p *PaymentFSM) MarkFailed(ctx context.Context, reason string) ([]models.BillingEvent, error) {
	if !p.payment.MayFail() {
		return nil, fmt.Errorf("%w: cannot fail payment in state %s", ErrInvalidTransition, p.payment.Status)
	}

	if err := p.fsm.Event(ctx, "fail"); err != nil {
		return nil, fmt.Errorf("failed to mark payment failed: %w", err)
	}

	p.payment.Status = p.fsm.Current()
	p.payment.FailureReason = &reason

	return []models.BillingEvent{
		models.NewBillingEvent(models.BillingEventPaymentFailed, p.payment, reason),
	}, nil
}

// MarkCanceled transitions the payment to canceled. Allowed only from
// pending or processing; a confirmed charge must go through a refund.
func (p *PaymentFSM) MarkCanceled(ctx context.Context) ([]models.BillingEvent, error) {
	if !p.payment.MayCancel() {
		return nil, fmt.Errorf("%w: cannot cancel payment in state %s", ErrInvalidTransition, p.payment.Status)
	}

	if err := p.fsm.Event(ctx, "cancel"); err != nil {
		return nil, fmt.Errorf("failed to cancel payment: %w", err)
	}

	p.payment.Status = p.fsm.Current()
	return nil, nil
}

// MarkRetrying transitions a failed payment back to processing for a new
// charge attempt on the same payment row
func (p *PaymentFSM) MarkRetrying(ctx context.Context) ([]models.BillingEvent, error) {
	if p.payment.Status != models.PaymentStatusFailed {
		return nil, fmt.Errorf("%w: cannot retry payment in state %s", ErrInvalidTransition, p.payment.Status)
	}

	if err := p.fsm.Event(ctx, "retry"); err != nil {
		return nil, fmt.Errorf("failed to retry payment: %w", err)
	}

	p.payment.Status = p.fsm.Current()
	p.payment.FailureReason = nil
	return nil, nil
}

// MarkRefunded transitions a succeeded payment to refunded
func (p *PaymentFSM) MarkRefunded(ctx context.Context, detail string) ([]models.BillingEvent, error) {
	if !p.payment.MayRefund() {
		return nil, fmt.Errorf("%w: cannot refund payment in state %s", ErrInvalidTransition, p.payment.Status)
	}

	if err := p.fsm.Event(ctx, "refund"); err != nil {
		return nil, fmt.Errorf("failed to refund payment: %w", err)
	}

	p.payment.Status = p.fsm.Current()
	return []models.BillingEvent{
		models.NewBillingEvent(models.BillingEventRefundIssued, p.payment, detail),
	}, nil
}

// Current returns the current state
func (p *PaymentFSM) Current() string {
	return p.fsm.Current()
}

// Can checks if a transition is possible
func (p *PaymentFSM) Can(event string) bool {
	return p.fsm.Can(event)
}
