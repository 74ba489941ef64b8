package models

import (
	"fmt"
	"time"
)

// BillingEvent is a domain event produced by a payment state transition.
// Transitions return these instead of firing side effects so the state
// machine stays pure; the notification dispatcher delivers them afterwards.
type BillingEvent struct {
	Kind          string    `json:"kind"`
	PaymentID     uint      `json:"payment_id"`
	PaymentNumber string    `json:"payment_number"`
	PayerID       uint      `json:"payer_id"`
	Amount        float64   `json:"amount"`
	DueDate       time.Time `json:"due_date"`
	Detail        string    `json:"detail,omitempty"`
}

// BillingEvent kinds, mirroring the notification types delivered to the sink
const (
	BillingEventPaymentSucceeded      = NotificationTypePaymentSucceeded
	BillingEventPaymentFailed         = NotificationTypePaymentFailed
	BillingEventPaymentDueReminder    = NotificationTypePaymentDueReminder
	BillingEventPaymentOverdue        = NotificationTypePaymentOverdue
	BillingEventPaymentMethodRequired = NotificationTypePaymentMethodRequired
	BillingEventLateFeeAssessed       = NotificationTypeLateFeeAssessed
	BillingEventRefundIssued          = NotificationTypeRefundIssued
)

// Describe renders the notification title and message for this event
func (e BillingEvent) Describe() (title, message string) {
	switch e.Kind {
	case BillingEventPaymentSucceeded:
		title = "Payment received"
		message = fmt.Sprintf("Payment %s for $%.2f was received.", e.PaymentNumber, e.Amount)
	case BillingEventPaymentFailed:
		title = "Payment failed"
		message = fmt.Sprintf("Payment %s for $%.2f could not be processed.", e.PaymentNumber, e.Amount)
		if e.Detail != "" {
			message = fmt.Sprintf("%s Reason: %s", message, e.Detail)
		}
	case BillingEventPaymentDueReminder:
		title = "Payment due soon"
		message = fmt.Sprintf("Payment %s for $%.2f is due on %s.", e.PaymentNumber, e.Amount, e.DueDate.Format("January 2, 2006"))
	case BillingEventPaymentOverdue:
		title = "Payment overdue"
		message = fmt.Sprintf("Payment %s for $%.2f was due on %s.", e.PaymentNumber, e.Amount, e.DueDate.Format("January 2, 2006"))
	case BillingEventPaymentMethodRequired:
		title = "Payment method required"
		message = fmt.Sprintf("Payment %s for $%.2f needs a payment method on file.", e.PaymentNumber, e.Amount)
	case BillingEventLateFeeAssessed:
		title = "Late fee assessed"
		message = fmt.Sprintf("A late fee of $%.2f was assessed for overdue rent.", e.Amount)
	case BillingEventRefundIssued:
		title = "Refund issued"
		message = fmt.Sprintf("A refund of $%.2f was issued for payment %s.", e.Amount, e.PaymentNumber)
	default:
		title = "Billing update"
		message = fmt.Sprintf("Payment %s was updated.", e.PaymentNumber)
	}
	return title, message
}

// NewBillingEvent builds an event for the given payment
func NewBillingEvent(kind string, p *Payment, detail string) BillingEvent {
	return BillingEvent{
		Kind:          kind,
		PaymentID:     p.ID,
		PaymentNumber: p.PaymentNumber,
		PayerID:       p.PayerID,
		Amount:        p.Amount,
		DueDate:       p.DueDate,
		Detail:        detail,
	}
}
