package services

import (
	"context"
	"time"

	"github.com/nimbuspm/billing-api/internal/gateway"
	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
	"gorm.io/gorm"
)

type mockPaymentRepo struct {
	repository.PaymentRepository
	mockCreateIdempotent      func(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error)
	mockCreateLateFee         func(ctx context.Context, fee *models.Payment) (*models.Payment, bool, error)
	mockFindByID              func(ctx context.Context, id uint) (*models.Payment, error)
	mockFindByGatewayIntentID func(ctx context.Context, intentID string) (*models.Payment, error)
	mockFindByNumber          func(ctx context.Context, number string) (*models.Payment, error)
	mockUpdateWithStatusCheck func(ctx context.Context, payment *models.Payment, expectedStatus string) error
	mockFindOverdueRent       func(ctx context.Context, asOf time.Time, minDaysOverdue int) ([]models.Payment, error)
	mockFindDueSoon           func(ctx context.Context, from, to time.Time) ([]models.Payment, error)
	mockMarkDueReminderSent   func(ctx context.Context, id uint, at time.Time) error
}

func (m *mockPaymentRepo) CreateIdempotent(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	return m.mockCreateIdempotent(ctx, payment)
}

func (m *mockPaymentRepo) CreateLateFee(ctx context.Context, fee *models.Payment) (*models.Payment, bool, error) {
	return m.mockCreateLateFee(ctx, fee)
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id uint) (*models.Payment, error) {
	return m.mockFindByID(ctx, id)
}

func (m *mockPaymentRepo) FindByGatewayIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	return m.mockFindByGatewayIntentID(ctx, intentID)
}

func (m *mockPaymentRepo) FindByNumber(ctx context.Context, number string) (*models.Payment, error) {
	return m.mockFindByNumber(ctx, number)
}

func (m *mockPaymentRepo) UpdateWithStatusCheck(ctx context.Context, payment *models.Payment, expectedStatus string) error {
	if m.mockUpdateWithStatusCheck != nil {
		return m.mockUpdateWithStatusCheck(ctx, payment, expectedStatus)
	}
	return nil
}

func (m *mockPaymentRepo) FindOverdueRent(ctx context.Context, asOf time.Time, minDaysOverdue int) ([]models.Payment, error) {
	return m.mockFindOverdueRent(ctx, asOf, minDaysOverdue)
}

func (m *mockPaymentRepo) FindDueSoon(ctx context.Context, from, to time.Time) ([]models.Payment, error) {
	return m.mockFindDueSoon(ctx, from, to)
}

func (m *mockPaymentRepo) MarkDueReminderSent(ctx context.Context, id uint, at time.Time) error {
	return m.mockMarkDueReminderSent(ctx, id, at)
}

type mockScheduleRepo struct {
	repository.ScheduleRepository
	mockCreate        func(ctx context.Context, schedule *models.PaymentSchedule) error
	mockFindByID      func(ctx context.Context, id uint) (*models.PaymentSchedule, error)
	mockFindByLeaseID func(ctx context.Context, leaseID uint) ([]models.PaymentSchedule, error)
	mockFindDue       func(ctx context.Context, asOf time.Time) ([]models.PaymentSchedule, error)
	mockAdvanceNext   func(ctx context.Context, id uint, expected, next time.Time) error
	mockDeactivate    func(ctx context.Context, id uint) error
	mockSetAutoPay    func(ctx context.Context, id uint, enabled bool) error
}

func (m *mockScheduleRepo) Create(ctx context.Context, schedule *models.PaymentSchedule) error {
	return m.mockCreate(ctx, schedule)
}

func (m *mockScheduleRepo) FindByID(ctx context.Context, id uint) (*models.PaymentSchedule, error) {
	return m.mockFindByID(ctx, id)
}

func (m *mockScheduleRepo) FindByLeaseID(ctx context.Context, leaseID uint) ([]models.PaymentSchedule, error) {
	return m.mockFindByLeaseID(ctx, leaseID)
}

func (m *mockScheduleRepo) FindDue(ctx context.Context, asOf time.Time) ([]models.PaymentSchedule, error) {
	return m.mockFindDue(ctx, asOf)
}

func (m *mockScheduleRepo) AdvanceNext(ctx context.Context, id uint, expected, next time.Time) error {
	return m.mockAdvanceNext(ctx, id, expected, next)
}

func (m *mockScheduleRepo) Deactivate(ctx context.Context, id uint) error {
	return m.mockDeactivate(ctx, id)
}

func (m *mockScheduleRepo) SetAutoPay(ctx context.Context, id uint, enabled bool) error {
	return m.mockSetAutoPay(ctx, id, enabled)
}

type mockLeaseRepo struct {
	repository.LeaseRepository
	mockCreate       func(ctx context.Context, lease *models.Lease) error
	mockFindByID     func(ctx context.Context, id uint) (*models.Lease, error)
	mockFindByTenant func(ctx context.Context, tenantUserID uint) ([]models.Lease, error)
	mockFindActive   func(ctx context.Context) ([]models.Lease, error)
	mockFindExpired  func(ctx context.Context, asOf time.Time) ([]models.Lease, error)
	mockDeactivate   func(ctx context.Context, id uint) error
}

func (m *mockLeaseRepo) Create(ctx context.Context, lease *models.Lease) error {
	return m.mockCreate(ctx, lease)
}

func (m *mockLeaseRepo) FindByID(ctx context.Context, id uint) (*models.Lease, error) {
	return m.mockFindByID(ctx, id)
}

func (m *mockLeaseRepo) FindByTenant(ctx context.Context, tenantUserID uint) ([]models.Lease, error) {
	return m.mockFindByTenant(ctx, tenantUserID)
}

func (m *mockLeaseRepo) FindActive(ctx context.Context) ([]models.Lease, error) {
	return m.mockFindActive(ctx)
}

func (m *mockLeaseRepo) FindExpired(ctx context.Context, asOf time.Time) ([]models.Lease, error) {
	return m.mockFindExpired(ctx, asOf)
}

func (m *mockLeaseRepo) Deactivate(ctx context.Context, id uint) error {
	return m.mockDeactivate(ctx, id)
}

type mockEventRepo struct {
	repository.GatewayEventRepository
	mockClaim         func(ctx context.Context, event *models.GatewayEvent) (bool, error)
	mockRelease       func(ctx context.Context, eventID string) error
	mockMarkProcessed func(ctx context.Context, eventID string, at time.Time) error
	mockMarkFailed    func(ctx context.Context, eventID string, reason string) error
	mockFindByEventID func(ctx context.Context, eventID string) (*models.GatewayEvent, error)
}

func (m *mockEventRepo) Claim(ctx context.Context, event *models.GatewayEvent) (bool, error) {
	return m.mockClaim(ctx, event)
}

func (m *mockEventRepo) Release(ctx context.Context, eventID string) error {
	if m.mockRelease != nil {
		return m.mockRelease(ctx, eventID)
	}
	return nil
}

func (m *mockEventRepo) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	if m.mockMarkProcessed != nil {
		return m.mockMarkProcessed(ctx, eventID, at)
	}
	return nil
}

func (m *mockEventRepo) MarkFailed(ctx context.Context, eventID string, reason string) error {
	if m.mockMarkFailed != nil {
		return m.mockMarkFailed(ctx, eventID, reason)
	}
	return nil
}

func (m *mockEventRepo) FindByEventID(ctx context.Context, eventID string) (*models.GatewayEvent, error) {
	if m.mockFindByEventID != nil {
		return m.mockFindByEventID(ctx, eventID)
	}
	return nil, gorm.ErrRecordNotFound
}

type mockMethodRepo struct {
	repository.PaymentMethodRepository
	mockUpsert             func(ctx context.Context, method *models.PaymentMethod) error
	mockFindDefaultForUser func(ctx context.Context, userID uint) (*models.PaymentMethod, error)
	mockSetDefault         func(ctx context.Context, userID, methodID uint) error
	mockMarkDetached       func(ctx context.Context, ref string, at time.Time) error
}

func (m *mockMethodRepo) Upsert(ctx context.Context, method *models.PaymentMethod) error {
	return m.mockUpsert(ctx, method)
}

func (m *mockMethodRepo) FindDefaultForUser(ctx context.Context, userID uint) (*models.PaymentMethod, error) {
	return m.mockFindDefaultForUser(ctx, userID)
}

func (m *mockMethodRepo) SetDefault(ctx context.Context, userID, methodID uint) error {
	return m.mockSetDefault(ctx, userID, methodID)
}

func (m *mockMethodRepo) MarkDetached(ctx context.Context, ref string, at time.Time) error {
	return m.mockMarkDetached(ctx, ref, at)
}

type mockUserRepo struct {
	repository.UserRepository
	mockFindByID                func(ctx context.Context, id uint) (*models.User, error)
	mockFindByEmail             func(ctx context.Context, email string) (*models.User, error)
	mockFindByGatewayCustomerID func(ctx context.Context, customerRef string) (*models.User, error)
	mockFindAdmins              func(ctx context.Context) ([]models.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	return m.mockFindByID(ctx, id)
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.mockFindByEmail(ctx, email)
}

func (m *mockUserRepo) FindByGatewayCustomerID(ctx context.Context, customerRef string) (*models.User, error) {
	return m.mockFindByGatewayCustomerID(ctx, customerRef)
}

func (m *mockUserRepo) FindAdmins(ctx context.Context) ([]models.User, error) {
	return m.mockFindAdmins(ctx)
}

type mockNotificationRepo struct {
	repository.NotificationRepository
	mockCreate func(ctx context.Context, notification *models.Notification) error
}

func (m *mockNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	if m.mockCreate != nil {
		return m.mockCreate(ctx, notification)
	}
	return nil
}

type mockAuditRepo struct {
	repository.AuditRepository
	mockCreate func(ctx context.Context, entry *models.AuditLog) error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	if m.mockCreate != nil {
		return m.mockCreate(ctx, entry)
	}
	return nil
}

type mockGatewayClient struct {
	gateway.Client
	mockCreateIntent func(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error)
	mockCancelIntent func(ctx context.Context, intentID string) (*gateway.Intent, error)
	mockCreateRefund func(ctx context.Context, intentID string, amount float64) (*gateway.Refund, error)
}

func (m *mockGatewayClient) CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
	return m.mockCreateIntent(ctx, params)
}

func (m *mockGatewayClient) CancelIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	if m.mockCancelIntent != nil {
		return m.mockCancelIntent(ctx, intentID)
	}
	return &gateway.Intent{ID: intentID, Status: gateway.IntentStatusCanceled}, nil
}

func (m *mockGatewayClient) CreateRefund(ctx context.Context, intentID string, amount float64) (*gateway.Refund, error) {
	return m.mockCreateRefund(ctx, intentID, amount)
}

// newTestNotificationService builds a notification service backed by mocks
// with no worker, so nothing runs asynchronously during a test.
func newTestNotificationService(notifRepo *mockNotificationRepo, userRepo *mockUserRepo, paymentRepo *mockPaymentRepo) *NotificationService {
	return NewNotificationService(notifRepo, userRepo, paymentRepo, nil, nil)
}
