package services

import (
	"context"
	"testing"
	"time"

	"github.com/nimbuspm/billing-api/internal/config"
	"github.com/nimbuspm/billing-api/internal/gateway"
	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type billingFixture struct {
	scheduleRepo *mockScheduleRepo
	paymentRepo  *mockPaymentRepo
	methodRepo   *mockMethodRepo
	leaseRepo    *mockLeaseRepo
	userRepo     *mockUserRepo
	notifRepo    *mockNotificationRepo
	gw           *mockGatewayClient
	billing      *BillingService
}

func newBillingFixture() *billingFixture {
	f := &billingFixture{
		scheduleRepo: &mockScheduleRepo{},
		paymentRepo:  &mockPaymentRepo{},
		methodRepo:   &mockMethodRepo{},
		leaseRepo:    &mockLeaseRepo{},
		userRepo:     &mockUserRepo{},
		notifRepo:    &mockNotificationRepo{},
		gw:           &mockGatewayClient{},
	}

	cfg := &config.Config{
		LateFeeFlat:       50,
		LateFeePercent:    5,
		LateFeeGraceDays:  5,
		GatewayMaxRetries: 1,
		RetryGraceWindow:  time.Hour,
	}

	notifications := newTestNotificationService(f.notifRepo, f.userRepo, f.paymentRepo)
	audit := NewAuditService(&mockAuditRepo{})
	schedules := NewScheduleService(f.scheduleRepo, f.paymentRepo, f.leaseRepo)
	payments := NewPaymentService(f.paymentRepo, f.methodRepo, f.gw, notifications, audit, cfg)
	f.billing = NewBillingService(f.scheduleRepo, f.paymentRepo, schedules, payments, notifications, cfg)
	return f
}

func dueSchedule(autoPay bool) models.PaymentSchedule {
	return models.PaymentSchedule{
		ID:              7,
		LeaseID:         3,
		PaymentType:     models.PaymentTypeRent,
		Amount:          1500,
		Frequency:       models.FrequencyMonthly,
		NextPaymentDate: testDate(2024, time.March, 1),
		IsActive:        true,
		AutoPay:         autoPay,
		Lease:           models.Lease{ID: 3, TenantUserID: 42},
	}
}

func TestBillingService_RunOnce_AutoPayChargesAndAdvances(t *testing.T) {
	f := newBillingFixture()

	f.scheduleRepo.mockFindDue = func(ctx context.Context, asOf time.Time) ([]models.PaymentSchedule, error) {
		return []models.PaymentSchedule{dueSchedule(true)}, nil
	}
	f.paymentRepo.mockCreateIdempotent = func(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
		payment.ID = 11
		return payment, true, nil
	}
	f.methodRepo.mockFindDefaultForUser = func(ctx context.Context, userID uint) (*models.PaymentMethod, error) {
		assert.Equal(t, uint(42), userID)
		return &models.PaymentMethod{ID: 9, UserID: userID, GatewayRef: "pm_1"}, nil
	}

	var lastPersistedMethodID *uint
	f.paymentRepo.mockUpdateWithStatusCheck = func(ctx context.Context, p *models.Payment, expectedStatus string) error {
		lastPersistedMethodID = p.PaymentMethodID
		return nil
	}

	var intentParams gateway.CreateIntentParams
	f.gw.mockCreateIntent = func(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
		intentParams = params
		return &gateway.Intent{ID: "in_1", Status: gateway.IntentStatusSucceeded, ChargeID: "ch_1"}, nil
	}

	advanced := false
	f.scheduleRepo.mockAdvanceNext = func(ctx context.Context, id uint, expected, next time.Time) error {
		advanced = true
		assert.Equal(t, testDate(2024, time.March, 1), expected)
		assert.Equal(t, testDate(2024, time.April, 1), next)
		return nil
	}

	result, err := f.billing.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.SchedulesDue)
	assert.Equal(t, 1, result.PaymentsCreated)
	assert.Equal(t, 1, result.ChargesSucceeded)
	assert.Equal(t, 0, result.ChargesFailed)
	assert.Equal(t, 0, result.Errors)
	assert.True(t, advanced)
	assert.Equal(t, 1500.0, intentParams.Amount)
	assert.Equal(t, "pm_1", intentParams.PaymentMethodRef)
	assert.NotEmpty(t, intentParams.IdempotencyKey)
	require.NotNil(t, lastPersistedMethodID)
	assert.Equal(t, uint(9), *lastPersistedMethodID)
}

func TestBillingService_RunOnce_RerunCreatesNoDuplicates(t *testing.T) {
	f := newBillingFixture()

	f.scheduleRepo.mockFindDue = func(ctx context.Context, asOf time.Time) ([]models.PaymentSchedule, error) {
		return []models.PaymentSchedule{dueSchedule(true)}, nil
	}

	// Collected on an earlier pass; only the advance was lost.
	charge := "ch_1"
	f.paymentRepo.mockCreateIdempotent = func(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
		return &models.Payment{
			ID:              11,
			Status:          models.PaymentStatusSucceeded,
			GatewayChargeID: &charge,
		}, false, nil
	}
	f.gw.mockCreateIntent = func(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
		t.Fatal("an already collected period must not be charged again")
		return nil, nil
	}

	advanced := false
	f.scheduleRepo.mockAdvanceNext = func(ctx context.Context, id uint, expected, next time.Time) error {
		advanced = true
		return nil
	}

	result, err := f.billing.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.PaymentsCreated)
	assert.Equal(t, 0, result.ChargesSucceeded)
	assert.True(t, advanced)
}

func TestBillingService_RunOnce_MissingMethodLeavesPaymentPending(t *testing.T) {
	f := newBillingFixture()

	f.scheduleRepo.mockFindDue = func(ctx context.Context, asOf time.Time) ([]models.PaymentSchedule, error) {
		return []models.PaymentSchedule{dueSchedule(true)}, nil
	}

	var payment *models.Payment
	f.paymentRepo.mockCreateIdempotent = func(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
		p.ID = 11
		payment = p
		return p, true, nil
	}
	f.methodRepo.mockFindDefaultForUser = func(ctx context.Context, userID uint) (*models.PaymentMethod, error) {
		return nil, gorm.ErrRecordNotFound
	}
	f.paymentRepo.mockUpdateWithStatusCheck = func(ctx context.Context, p *models.Payment, expectedStatus string) error {
		t.Fatal("a payment without a method must not change status")
		return nil
	}

	var notified []models.Notification
	f.notifRepo.mockCreate = func(ctx context.Context, n *models.Notification) error {
		notified = append(notified, *n)
		return nil
	}

	result, err := f.billing.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.MethodMissing)
	assert.Equal(t, 0, result.ChargesFailed)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	require.Len(t, notified, 1)
	assert.Equal(t, uint(42), notified[0].UserID)
}

func TestBillingService_RunOnce_ManualScheduleAdvancesWithoutCharging(t *testing.T) {
	f := newBillingFixture()

	f.scheduleRepo.mockFindDue = func(ctx context.Context, asOf time.Time) ([]models.PaymentSchedule, error) {
		return []models.PaymentSchedule{dueSchedule(false)}, nil
	}
	f.paymentRepo.mockCreateIdempotent = func(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
		payment.ID = 11
		return payment, true, nil
	}
	f.gw.mockCreateIntent = func(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
		t.Fatal("manual-pay schedules are never charged by the clock")
		return nil, nil
	}

	advanced := false
	f.scheduleRepo.mockAdvanceNext = func(ctx context.Context, id uint, expected, next time.Time) error {
		advanced = true
		return nil
	}

	result, err := f.billing.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PaymentsCreated)
	assert.Equal(t, 0, result.ChargesSucceeded)
	assert.True(t, advanced)
}

func TestBillingService_RunOnce_DeclineMarksFailedAndHoldsSchedule(t *testing.T) {
	f := newBillingFixture()

	f.scheduleRepo.mockFindDue = func(ctx context.Context, asOf time.Time) ([]models.PaymentSchedule, error) {
		return []models.PaymentSchedule{dueSchedule(true)}, nil
	}

	var payment *models.Payment
	f.paymentRepo.mockCreateIdempotent = func(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
		p.ID = 11
		payment = p
		return p, true, nil
	}
	f.methodRepo.mockFindDefaultForUser = func(ctx context.Context, userID uint) (*models.PaymentMethod, error) {
		return &models.PaymentMethod{ID: 9, UserID: userID, GatewayRef: "pm_1"}, nil
	}
	f.gw.mockCreateIntent = func(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
		return nil, &gateway.Error{Code: "card_declined", Message: "insufficient funds", Retryable: false}
	}
	f.scheduleRepo.mockAdvanceNext = func(ctx context.Context, id uint, expected, next time.Time) error {
		t.Fatal("a failed charge must not advance the schedule")
		return nil
	}

	result, err := f.billing.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChargesFailed)
	assert.Equal(t, 0, result.ChargesSucceeded)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	require.NotNil(t, payment.FailureReason)
	assert.Contains(t, *payment.FailureReason, "card_declined")
}

func TestBillingService_RunOnce_OneBadScheduleDoesNotAbortThePass(t *testing.T) {
	f := newBillingFixture()

	broken := dueSchedule(false)
	broken.ID = 1
	broken.LeaseID = 1
	healthy := dueSchedule(false)
	healthy.ID = 2
	healthy.LeaseID = 2
	healthy.Lease = models.Lease{ID: 2, TenantUserID: 42}

	f.scheduleRepo.mockFindDue = func(ctx context.Context, asOf time.Time) ([]models.PaymentSchedule, error) {
		return []models.PaymentSchedule{broken, healthy}, nil
	}
	f.paymentRepo.mockCreateIdempotent = func(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
		if payment.LeaseID == 1 {
			return nil, false, gorm.ErrInvalidTransaction
		}
		payment.ID = 11
		return payment, true, nil
	}
	f.scheduleRepo.mockAdvanceNext = func(ctx context.Context, id uint, expected, next time.Time) error {
		return nil
	}

	result, err := f.billing.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.SchedulesDue)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, result.PaymentsCreated)
}

func TestBillingService_ApplyLateFees(t *testing.T) {
	f := newBillingFixture()

	overdue := models.Payment{
		ID:            5,
		PaymentNumber: "PAY-202403-AAAA11",
		LeaseID:       3,
		PayerID:       42,
		Amount:        1000,
		PaymentType:   models.PaymentTypeRent,
		Status:        models.PaymentStatusPending,
		DueDate:       time.Now().AddDate(0, 0, -10),
	}
	f.paymentRepo.mockFindOverdueRent = func(ctx context.Context, asOf time.Time, minDaysOverdue int) ([]models.Payment, error) {
		assert.Equal(t, 5, minDaysOverdue)
		return []models.Payment{overdue}, nil
	}

	var fee *models.Payment
	f.paymentRepo.mockCreateLateFee = func(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
		fee = p
		return p, true, nil
	}

	assessed, err := f.billing.ApplyLateFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, assessed)
	require.NotNil(t, fee)
	// 50 flat plus 5% of 1000.
	assert.Equal(t, 100.0, fee.Amount)
	assert.Equal(t, models.PaymentTypeLateFee, fee.PaymentType)
	require.NotNil(t, fee.LateFeeSourceID)
	assert.Equal(t, uint(5), *fee.LateFeeSourceID)
	assert.Equal(t, uint(42), fee.PayerID)
}

func TestBillingService_ApplyLateFees_OncePerSourcePayment(t *testing.T) {
	f := newBillingFixture()

	overdue := models.Payment{
		ID:          5,
		Amount:      1000,
		PaymentType: models.PaymentTypeRent,
		Status:      models.PaymentStatusPending,
		DueDate:     time.Now().AddDate(0, 0, -10),
	}
	f.paymentRepo.mockFindOverdueRent = func(ctx context.Context, asOf time.Time, minDaysOverdue int) ([]models.Payment, error) {
		return []models.Payment{overdue}, nil
	}
	f.paymentRepo.mockCreateLateFee = func(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
		// A fee referencing this source already exists.
		return p, false, nil
	}

	assessed, err := f.billing.ApplyLateFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, assessed)
}

func TestBillingService_SendDueReminders_RemindsOnce(t *testing.T) {
	f := newBillingFixture()

	f.paymentRepo.mockFindDueSoon = func(ctx context.Context, from, to time.Time) ([]models.Payment, error) {
		return []models.Payment{{ID: 5, PayerID: 42, Status: models.PaymentStatusPending}}, nil
	}

	var marked []uint
	f.paymentRepo.mockMarkDueReminderSent = func(ctx context.Context, id uint, at time.Time) error {
		marked = append(marked, id)
		return nil
	}

	var notified []models.Notification
	f.notifRepo.mockCreate = func(ctx context.Context, n *models.Notification) error {
		notified = append(notified, *n)
		return nil
	}

	sent, err := f.billing.SendDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []uint{5}, marked)
	require.Len(t, notified, 1)
	assert.Equal(t, uint(42), notified[0].UserID)
}
