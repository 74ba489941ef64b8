package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Payment is the authoritative record of one money movement against a lease.
// Rows are never deleted; every lifecycle change goes through the state
// machine in internal/statemachine.
type Payment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	PaymentNumber   string     `gorm:"uniqueIndex;not null" json:"payment_number"`
	LeaseID         uint       `gorm:"not null;index" json:"lease_id"`
	PayerID         uint       `gorm:"not null;index" json:"payer_id"`
	PaymentMethodID *uint      `gorm:"index" json:"payment_method_id"`
	Amount          float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	PaymentType     string     `gorm:"not null;index" json:"payment_type"`
	Status          string     `gorm:"default:pending;not null;index" json:"status"`
	DueDate         time.Time  `gorm:"type:date;not null;index" json:"due_date"`
	PaidAt          *time.Time `json:"paid_at"`
	FailureReason   *string    `gorm:"type:text" json:"failure_reason,omitempty"`

	// External gateway references
	GatewayIntentID *string `gorm:"uniqueIndex" json:"gateway_intent_id,omitempty"`
	GatewayChargeID *string `gorm:"index" json:"gateway_charge_id,omitempty"`

	// Dedup key for late fees: the overdue payment this fee penalizes.
	// Deliberately a real indexed column, not a metadata attribute, so the
	// uniqueness guarantee lives in the database.
	LateFeeSourceID *uint `gorm:"index" json:"late_fee_source_id,omitempty"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	DueReminderSentAt     *time.Time `gorm:"column:due_reminder_sent_at" json:"-"`
	OverdueReminderSentAt *time.Time `gorm:"column:overdue_reminder_sent_at" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Associations
	Lease         Lease          `gorm:"foreignKey:LeaseID" json:"lease,omitempty"`
	Payer         User           `gorm:"foreignKey:PayerID" json:"payer,omitempty"`
	PaymentMethod *PaymentMethod `gorm:"foreignKey:PaymentMethodID" json:"payment_method,omitempty"`
}

// TableName specifies the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

// Payment status constants
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusSucceeded  = "succeeded"
	PaymentStatusFailed     = "failed"
	PaymentStatusCanceled   = "canceled"
	PaymentStatusRefunded   = "refunded"
)

// Payment type constants
const (
	PaymentTypeRent            = "rent"
	PaymentTypeSecurityDeposit = "security_deposit"
	PaymentTypeLateFee         = "late_fee"
	PaymentTypeUtility         = "utility"
	PaymentTypeMaintenanceFee  = "maintenance_fee"
	PaymentTypeOther           = "other"
)

// NewPaymentNumber generates the externally quotable business key,
// format PAY-YYYYMM-<random6>.
func NewPaymentNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("PAY-%s-%s", now.Format("200601"), suffix)
}

// MayProcess returns true if the payment can transition to processing
func (p *Payment) MayProcess() bool {
	return p.Status == PaymentStatusPending
}

// MaySucceed returns true if the payment can transition to succeeded
func (p *Payment) MaySucceed() bool {
	return p.Status == PaymentStatusProcessing
}

// MayFail returns true if the payment can transition to failed
func (p *Payment) MayFail() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusProcessing
}

// MayCancel returns true if the payment can still be canceled.
// After the gateway has confirmed success the only way out is a refund.
func (p *Payment) MayCancel() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusProcessing
}

// MayRefund returns true if the payment can transition to refunded
func (p *Payment) MayRefund() bool {
	return p.Status == PaymentStatusSucceeded
}

// IsTerminal returns true for states a later-arriving gateway event must
// never regress: succeeded, refunded, canceled.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusSucceeded, PaymentStatusRefunded, PaymentStatusCanceled:
		return true
	}
	return false
}

// IsOverdue returns true if the payment is past its due date and has not
// been collected or written off.
func (p *Payment) IsOverdue() bool {
	if p.IsTerminal() {
		return false
	}
	today := truncateToDay(time.Now())
	return truncateToDay(p.DueDate).Before(today)
}

// DaysOverdue returns the number of whole days past the due date
func (p *Payment) DaysOverdue() int {
	if !p.IsOverdue() {
		return 0
	}
	return int(truncateToDay(time.Now()).Sub(truncateToDay(p.DueDate)).Hours() / 24)
}

// IsRetryEligible reports whether a new charge attempt may be made.
// Failed payments are always eligible. Pending payments become eligible
// only after the grace window, so an attempt that is still mid-flight with
// the gateway is not double-charged.
func (p *Payment) IsRetryEligible(graceWindow time.Duration) bool {
	switch p.Status {
	case PaymentStatusFailed:
		return true
	case PaymentStatusPending:
		return time.Since(p.CreatedAt) > graceWindow
	}
	return false
}

// LateFeeApplicable returns true for overdue rent payments past the
// configured threshold of days
func (p *Payment) LateFeeApplicable(thresholdDays int) bool {
	return p.PaymentType == PaymentTypeRent && p.IsOverdue() && p.DaysOverdue() >= thresholdDays
}

// CalculateLateFee returns flat + percent-of-amount, or 0 when no fee applies
func (p *Payment) CalculateLateFee(flat, percent float64, thresholdDays int) float64 {
	if !p.LateFeeApplicable(thresholdDays) {
		return 0
	}
	return flat + p.Amount*percent/100.0
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// PaymentResponse is the JSON response format for payments
type PaymentResponse struct {
	ID              uint       `json:"id"`
	PaymentNumber   string     `json:"payment_number"`
	LeaseID         uint       `json:"lease_id"`
	PayerID         uint       `json:"payer_id"`
	Amount          float64    `json:"amount"`
	PaymentType     string     `json:"payment_type"`
	Status          string     `json:"status"`
	DueDate         time.Time  `json:"due_date"`
	PaidAt          *time.Time `json:"paid_at"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	GatewayIntentID *string    `json:"gateway_intent_id,omitempty"`
	GatewayChargeID *string    `json:"gateway_charge_id,omitempty"`
	OverdueDays     int        `json:"overdue_days"`
	PayerName       string     `json:"payer_name,omitempty"`
	PayerEmail      string     `json:"payer_email,omitempty"`
	PropertyRef     string     `json:"property_ref,omitempty"`
}

// ToResponse converts Payment to PaymentResponse
func (p *Payment) ToResponse() PaymentResponse {
	resp := PaymentResponse{
		ID:              p.ID,
		PaymentNumber:   p.PaymentNumber,
		LeaseID:         p.LeaseID,
		PayerID:         p.PayerID,
		Amount:          p.Amount,
		PaymentType:     p.PaymentType,
		Status:          p.Status,
		DueDate:         p.DueDate,
		PaidAt:          p.PaidAt,
		FailureReason:   p.FailureReason,
		GatewayIntentID: p.GatewayIntentID,
		GatewayChargeID: p.GatewayChargeID,
		OverdueDays:     p.DaysOverdue(),
	}

	if p.Payer.ID != 0 {
		resp.PayerName = p.Payer.FullName
		resp.PayerEmail = p.Payer.Email
	}
	if p.Lease.ID != 0 {
		resp.PropertyRef = p.Lease.PropertyRef
	}

	return resp
}
