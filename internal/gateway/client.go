package gateway

import (
	"context"
	"errors"
	"time"
)

// Intent status constants as reported by the gateway
const (
	IntentStatusProcessing = "processing"
	IntentStatusSucceeded  = "succeeded"
	IntentStatusFailed     = "failed"
	IntentStatusCanceled   = "canceled"
)

// Webhook event kinds the gateway delivers
const (
	EventIntentSucceeded       = "intent.succeeded"
	EventIntentFailed          = "intent.failed"
	EventIntentProcessing      = "intent.processing"
	EventIntentCanceled        = "intent.canceled"
	EventPaymentMethodAttached = "payment_method.attached"
	EventPaymentMethodDetached = "payment_method.detached"
)

// Intent is the gateway's view of one charge attempt
type Intent struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	Amount         float64   `json:"amount"`
	ChargeID       string    `json:"charge_id,omitempty"`
	FailureCode    string    `json:"failure_code,omitempty"`
	FailureMessage string    `json:"failure_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Refund is the gateway's record of money returned to the payer
type Refund struct {
	ID       string  `json:"id"`
	IntentID string  `json:"intent_id"`
	Amount   float64 `json:"amount"`
	Status   string  `json:"status"`
}

// PaymentMethodInfo describes a stored payment method held by the gateway
type PaymentMethodInfo struct {
	ID          string `json:"id"`
	CustomerRef string `json:"customer_ref"`
	Brand       string `json:"brand"`
	Last4       string `json:"last4"`
	Default     bool   `json:"default"`
}

// CreateIntentParams are the inputs for a new charge intent. IdempotencyKey
// is sent as the gateway's dedup key so the same local attempt never
// creates two intents.
type CreateIntentParams struct {
	Amount           float64 `json:"amount"`
	PaymentMethodRef string  `json:"payment_method_ref"`
	CustomerRef      string  `json:"customer_ref,omitempty"`
	Description      string  `json:"description,omitempty"`
	IdempotencyKey   string  `json:"-"`
}

// Client is the payment gateway API surface the engine depends on. The
// gateway is an opaque remote service; all calls block on network I/O and
// honor context cancellation.
type Client interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	ConfirmIntent(ctx context.Context, intentID string) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
	CreateRefund(ctx context.Context, intentID string, amount float64) (*Refund, error)
	AttachPaymentMethod(ctx context.Context, customerRef, methodRef string) (*PaymentMethodInfo, error)
	DetachPaymentMethod(ctx context.Context, methodRef string) error
}

// Error is a gateway-reported failure. Retryable errors (network faults,
// 5xx, rate limits) may be resubmitted by the caller's retry policy;
// definitive declines are terminal.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Code != "" {
		return "gateway: " + e.Code + ": " + e.Message
	}
	return "gateway: " + e.Message
}

// IsRetryable reports whether err is a transient gateway failure worth
// retrying. Plain network errors (no typed response at all) count as
// retryable.
func IsRetryable(err error) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return err != nil
}
