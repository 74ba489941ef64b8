package models

import (
	"time"
)

// PaymentSchedule is a recurring obligation on a lease. The billing clock
// materializes one Payment per period from it.
type PaymentSchedule struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	LeaseID         uint       `gorm:"not null;index" json:"lease_id"`
	PaymentType     string     `gorm:"not null" json:"payment_type"`
	Amount          float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Frequency       string     `gorm:"not null" json:"frequency"`
	StartDate       time.Time  `gorm:"type:date;not null" json:"start_date"`
	EndDate         *time.Time `gorm:"type:date" json:"end_date"`
	NextPaymentDate time.Time  `gorm:"type:date;not null;index" json:"next_payment_date"`
	DayOfMonth      *int       `json:"day_of_month"`
	IsActive        bool       `gorm:"default:true;index" json:"is_active"`
	AutoPay         bool       `gorm:"default:false" json:"auto_pay"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Associations
	Lease Lease `gorm:"foreignKey:LeaseID" json:"lease,omitempty"`
}

// TableName specifies the table name for PaymentSchedule
func (PaymentSchedule) TableName() string {
	return "payment_schedules"
}

// Frequency constants
const (
	FrequencyWeekly    = "weekly"
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyAnnually  = "annually"
)

// NextDateFrom computes the payment date following from. Monthly schedules
// with a day-of-month anchor land on the anchor day of the following month,
// clamped to that month's last day when the anchor exceeds it (anchor 31 in
// February yields Feb 28, or Feb 29 in a leap year).
func (s *PaymentSchedule) NextDateFrom(from time.Time) time.Time {
	y, m, d := from.Date()
	from = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	switch s.Frequency {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyMonthly:
		anchor := d
		if s.DayOfMonth != nil && *s.DayOfMonth >= 1 && *s.DayOfMonth <= 31 {
			anchor = *s.DayOfMonth
		}
		return anchoredMonthAdd(from, 1, anchor)
	case FrequencyQuarterly:
		return anchoredMonthAdd(from, 3, d)
	case FrequencyAnnually:
		return from.AddDate(1, 0, 0)
	default:
		return anchoredMonthAdd(from, 1, d)
	}
}

// IsExpiredAfter reports whether next would run past the schedule's end date
func (s *PaymentSchedule) IsExpiredAfter(next time.Time) bool {
	return s.EndDate != nil && next.After(*s.EndDate)
}

// IsDue reports whether the schedule's next payment date is asOf or earlier
func (s *PaymentSchedule) IsDue(asOf time.Time) bool {
	y, m, d := asOf.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ny, nm, nd := s.NextPaymentDate.Date()
	next := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return s.IsActive && !next.After(day)
}

// anchoredMonthAdd adds months and lands on the anchor day, clamped to the
// target month's last day. Plain AddDate would overflow Jan 31 + 1 month
// into March.
func anchoredMonthAdd(from time.Time, months, anchor int) time.Time {
	y, m, _ := from.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := anchor
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, time.UTC)
}

// PaymentScheduleResponse is the JSON response format for schedules
type PaymentScheduleResponse struct {
	ID              uint       `json:"id"`
	LeaseID         uint       `json:"lease_id"`
	PaymentType     string     `json:"payment_type"`
	Amount          float64    `json:"amount"`
	Frequency       string     `json:"frequency"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	NextPaymentDate time.Time  `json:"next_payment_date"`
	DayOfMonth      *int       `json:"day_of_month"`
	IsActive        bool       `json:"is_active"`
	AutoPay         bool       `json:"auto_pay"`
}

// ToResponse converts PaymentSchedule to PaymentScheduleResponse
func (s *PaymentSchedule) ToResponse() PaymentScheduleResponse {
	return PaymentScheduleResponse{
		ID:              s.ID,
		LeaseID:         s.LeaseID,
		PaymentType:     s.PaymentType,
		Amount:          s.Amount,
		Frequency:       s.Frequency,
		StartDate:       s.StartDate,
		EndDate:         s.EndDate,
		NextPaymentDate: s.NextPaymentDate,
		DayOfMonth:      s.DayOfMonth,
		IsActive:        s.IsActive,
		AutoPay:         s.AutoPay,
	}
}
