package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nimbuspm/billing-api/internal/gateway"
	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func webhookEvent(t *testing.T, id, kind string, payload any) *gateway.WebhookEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &gateway.WebhookEvent{
		ID:        id,
		Kind:      kind,
		CreatedAt: time.Now().Unix(),
		Data:      data,
	}
}

func newTestReconciler(
	eventRepo *mockEventRepo,
	paymentRepo *mockPaymentRepo,
	methodRepo *mockMethodRepo,
	userRepo *mockUserRepo,
	notifRepo *mockNotificationRepo,
) *ReconcilerService {
	notifications := newTestNotificationService(notifRepo, userRepo, paymentRepo)
	return NewReconcilerService(eventRepo, paymentRepo, methodRepo, userRepo, notifications)
}

func TestReconcilerService_DuplicateEventIsAcked(t *testing.T) {
	eventRepo := &mockEventRepo{}
	paymentRepo := &mockPaymentRepo{}
	service := newTestReconciler(eventRepo, paymentRepo, nil, nil, &mockNotificationRepo{})

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		return false, nil
	}
	processedAt := time.Now().Add(-time.Minute)
	eventRepo.mockFindByEventID = func(ctx context.Context, eventID string) (*models.GatewayEvent, error) {
		return &models.GatewayEvent{EventID: eventID, ProcessedAt: &processedAt}, nil
	}
	paymentRepo.mockFindByGatewayIntentID = func(ctx context.Context, intentID string) (*models.Payment, error) {
		t.Fatal("duplicate event must not be processed")
		return nil, nil
	}

	event := webhookEvent(t, "evt_1", gateway.EventIntentSucceeded, gateway.Intent{ID: "in_1", ChargeID: "ch_1"})
	err := service.ApplyEvent(context.Background(), event)
	assert.NoError(t, err)
}

func TestReconcilerService_SucceededEventFromPending(t *testing.T) {
	eventRepo := &mockEventRepo{}
	paymentRepo := &mockPaymentRepo{}
	notifRepo := &mockNotificationRepo{}
	service := newTestReconciler(eventRepo, paymentRepo, nil, nil, notifRepo)

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		require.Equal(t, "evt_1", event.EventID)
		require.NotNil(t, event.IntentID)
		assert.Equal(t, "in_1", *event.IntentID)
		return true, nil
	}
	processed := false
	eventRepo.mockMarkProcessed = func(ctx context.Context, eventID string, at time.Time) error {
		processed = true
		return nil
	}

	// The webhook outran the synchronous confirm: the payment is still
	// pending when the success event lands.
	payment := &models.Payment{
		ID:            5,
		PaymentNumber: "PAY-202403-AAAA11",
		PayerID:       42,
		Status:        models.PaymentStatusPending,
	}
	paymentRepo.mockFindByGatewayIntentID = func(ctx context.Context, intentID string) (*models.Payment, error) {
		return payment, nil
	}

	var persistedFrom string
	paymentRepo.mockUpdateWithStatusCheck = func(ctx context.Context, p *models.Payment, expectedStatus string) error {
		persistedFrom = expectedStatus
		return nil
	}

	var notified []models.Notification
	notifRepo.mockCreate = func(ctx context.Context, n *models.Notification) error {
		notified = append(notified, *n)
		return nil
	}

	event := webhookEvent(t, "evt_1", gateway.EventIntentSucceeded, gateway.Intent{ID: "in_1", ChargeID: "ch_1"})
	err := service.ApplyEvent(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	require.NotNil(t, payment.GatewayChargeID)
	assert.Equal(t, "ch_1", *payment.GatewayChargeID)
	assert.NotNil(t, payment.PaidAt)
	assert.Equal(t, models.PaymentStatusPending, persistedFrom)
	assert.True(t, processed)
	require.Len(t, notified, 1)
	assert.Equal(t, uint(42), notified[0].UserID)
}

func TestReconcilerService_SucceededEventIsIdempotent(t *testing.T) {
	eventRepo := &mockEventRepo{}
	paymentRepo := &mockPaymentRepo{}
	service := newTestReconciler(eventRepo, paymentRepo, nil, nil, &mockNotificationRepo{})

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		return true, nil
	}

	charge := "ch_1"
	paidAt := time.Now().Add(-time.Hour)
	paymentRepo.mockFindByGatewayIntentID = func(ctx context.Context, intentID string) (*models.Payment, error) {
		return &models.Payment{
			ID:              5,
			Status:          models.PaymentStatusSucceeded,
			GatewayChargeID: &charge,
			PaidAt:          &paidAt,
		}, nil
	}
	paymentRepo.mockUpdateWithStatusCheck = func(ctx context.Context, p *models.Payment, expectedStatus string) error {
		t.Fatal("re-applying the same charge must not persist anything")
		return nil
	}

	event := webhookEvent(t, "evt_2", gateway.EventIntentSucceeded, gateway.Intent{ID: "in_1", ChargeID: "ch_1"})
	err := service.ApplyEvent(context.Background(), event)
	assert.NoError(t, err)
}

func TestReconcilerService_LateFailureNeverRegressesTerminal(t *testing.T) {
	eventRepo := &mockEventRepo{}
	paymentRepo := &mockPaymentRepo{}
	service := newTestReconciler(eventRepo, paymentRepo, nil, nil, &mockNotificationRepo{})

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		return true, nil
	}

	charge := "ch_1"
	payment := &models.Payment{
		ID:              5,
		Status:          models.PaymentStatusSucceeded,
		GatewayChargeID: &charge,
	}
	paymentRepo.mockFindByGatewayIntentID = func(ctx context.Context, intentID string) (*models.Payment, error) {
		return payment, nil
	}
	paymentRepo.mockUpdateWithStatusCheck = func(ctx context.Context, p *models.Payment, expectedStatus string) error {
		t.Fatal("late failure event must not touch a terminal payment")
		return nil
	}

	event := webhookEvent(t, "evt_3", gateway.EventIntentFailed,
		gateway.Intent{ID: "in_1", FailureCode: "card_declined"})
	err := service.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
}

func TestReconcilerService_DelayedProcessingEventIsDropped(t *testing.T) {
	eventRepo := &mockEventRepo{}
	paymentRepo := &mockPaymentRepo{}
	service := newTestReconciler(eventRepo, paymentRepo, nil, nil, &mockNotificationRepo{})

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		return true, nil
	}
	payment := &models.Payment{ID: 5, Status: models.PaymentStatusFailed}
	paymentRepo.mockFindByGatewayIntentID = func(ctx context.Context, intentID string) (*models.Payment, error) {
		return payment, nil
	}
	paymentRepo.mockUpdateWithStatusCheck = func(ctx context.Context, p *models.Payment, expectedStatus string) error {
		t.Fatal("delayed processing event must not downgrade a resolved payment")
		return nil
	}

	event := webhookEvent(t, "evt_4", gateway.EventIntentProcessing, gateway.Intent{ID: "in_1"})
	err := service.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
}

func TestReconcilerService_UnknownIntentIsDropped(t *testing.T) {
	eventRepo := &mockEventRepo{}
	paymentRepo := &mockPaymentRepo{}
	service := newTestReconciler(eventRepo, paymentRepo, nil, nil, &mockNotificationRepo{})

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		return true, nil
	}
	paymentRepo.mockFindByGatewayIntentID = func(ctx context.Context, intentID string) (*models.Payment, error) {
		return nil, gorm.ErrRecordNotFound
	}

	var anomaly string
	eventRepo.mockMarkFailed = func(ctx context.Context, eventID string, reason string) error {
		assert.Equal(t, "evt_5", eventID)
		anomaly = reason
		return nil
	}

	event := webhookEvent(t, "evt_5", gateway.EventIntentSucceeded, gateway.Intent{ID: "in_unknown", ChargeID: "ch_1"})
	err := service.ApplyEvent(context.Background(), event)
	assert.NoError(t, err)
	assert.Contains(t, anomaly, "in_unknown")
}

func TestReconcilerService_UnknownKindIsAcked(t *testing.T) {
	eventRepo := &mockEventRepo{}
	service := newTestReconciler(eventRepo, &mockPaymentRepo{}, nil, nil, &mockNotificationRepo{})

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		return true, nil
	}
	processed := false
	eventRepo.mockMarkProcessed = func(ctx context.Context, eventID string, at time.Time) error {
		processed = true
		return nil
	}

	event := webhookEvent(t, "evt_6", "dispute.opened", map[string]string{"id": "dp_1"})
	err := service.ApplyEvent(context.Background(), event)
	assert.NoError(t, err)
	assert.True(t, processed)
}

func TestReconcilerService_ChargeConflictEscalatesToAdmins(t *testing.T) {
	eventRepo := &mockEventRepo{}
	paymentRepo := &mockPaymentRepo{}
	userRepo := &mockUserRepo{}
	notifRepo := &mockNotificationRepo{}
	service := newTestReconciler(eventRepo, paymentRepo, nil, userRepo, notifRepo)

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		return true, nil
	}
	processed := false
	eventRepo.mockMarkProcessed = func(ctx context.Context, eventID string, at time.Time) error {
		processed = true
		return nil
	}

	charge := "ch_A"
	paymentRepo.mockFindByGatewayIntentID = func(ctx context.Context, intentID string) (*models.Payment, error) {
		return &models.Payment{
			ID:              5,
			PaymentNumber:   "PAY-202403-AAAA11",
			Status:          models.PaymentStatusSucceeded,
			GatewayChargeID: &charge,
		}, nil
	}
	userRepo.mockFindAdmins = func(ctx context.Context) ([]models.User, error) {
		return []models.User{{ID: 1}, {ID: 2}}, nil
	}

	var notified []models.Notification
	notifRepo.mockCreate = func(ctx context.Context, n *models.Notification) error {
		notified = append(notified, *n)
		return nil
	}

	var anomaly string
	eventRepo.mockMarkFailed = func(ctx context.Context, eventID string, reason string) error {
		anomaly = reason
		return nil
	}

	event := webhookEvent(t, "evt_7", gateway.EventIntentSucceeded, gateway.Intent{ID: "in_1", ChargeID: "ch_B"})
	err := service.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, notified, 2)
	assert.Equal(t, uint(1), notified[0].UserID)
	assert.Equal(t, uint(2), notified[1].UserID)
	assert.Contains(t, anomaly, "ch_A")
	assert.Contains(t, anomaly, "ch_B")
}

func TestReconcilerService_StaleStatusReleasesClaim(t *testing.T) {
	eventRepo := &mockEventRepo{}
	paymentRepo := &mockPaymentRepo{}
	service := newTestReconciler(eventRepo, paymentRepo, nil, nil, &mockNotificationRepo{})

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		return true, nil
	}
	released := false
	eventRepo.mockRelease = func(ctx context.Context, eventID string) error {
		released = true
		assert.Equal(t, "evt_8", eventID)
		return nil
	}
	eventRepo.mockMarkProcessed = func(ctx context.Context, eventID string, at time.Time) error {
		t.Fatal("a failed application must not be marked processed")
		return nil
	}

	paymentRepo.mockFindByGatewayIntentID = func(ctx context.Context, intentID string) (*models.Payment, error) {
		return &models.Payment{ID: 5, Status: models.PaymentStatusPending}, nil
	}
	paymentRepo.mockUpdateWithStatusCheck = func(ctx context.Context, p *models.Payment, expectedStatus string) error {
		return repository.ErrStaleStatus
	}

	event := webhookEvent(t, "evt_8", gateway.EventIntentSucceeded, gateway.Intent{ID: "in_1", ChargeID: "ch_1"})
	err := service.ApplyEvent(context.Background(), event)
	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, released)
}

func TestReconcilerService_MethodAttachedUpsertsForUser(t *testing.T) {
	eventRepo := &mockEventRepo{}
	methodRepo := &mockMethodRepo{}
	userRepo := &mockUserRepo{}
	service := newTestReconciler(eventRepo, &mockPaymentRepo{}, methodRepo, userRepo, &mockNotificationRepo{})

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		return true, nil
	}
	userRepo.mockFindByGatewayCustomerID = func(ctx context.Context, customerRef string) (*models.User, error) {
		assert.Equal(t, "cus_1", customerRef)
		return &models.User{ID: 42}, nil
	}

	var upserted *models.PaymentMethod
	methodRepo.mockUpsert = func(ctx context.Context, method *models.PaymentMethod) error {
		method.ID = 9
		upserted = method
		return nil
	}
	defaultSet := false
	methodRepo.mockSetDefault = func(ctx context.Context, userID, methodID uint) error {
		defaultSet = true
		assert.Equal(t, uint(42), userID)
		assert.Equal(t, uint(9), methodID)
		return nil
	}

	event := webhookEvent(t, "evt_9", gateway.EventPaymentMethodAttached, gateway.PaymentMethodInfo{
		ID:          "pm_1",
		CustomerRef: "cus_1",
		Brand:       "visa",
		Last4:       "4242",
		Default:     true,
	})
	err := service.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, upserted)
	assert.Equal(t, uint(42), upserted.UserID)
	assert.Equal(t, "pm_1", upserted.GatewayRef)
	assert.Equal(t, "visa", upserted.Brand)
	assert.True(t, defaultSet)
}

func TestReconcilerService_MethodDetached(t *testing.T) {
	eventRepo := &mockEventRepo{}
	methodRepo := &mockMethodRepo{}
	service := newTestReconciler(eventRepo, &mockPaymentRepo{}, methodRepo, nil, &mockNotificationRepo{})

	eventRepo.mockClaim = func(ctx context.Context, event *models.GatewayEvent) (bool, error) {
		return true, nil
	}

	detached := false
	methodRepo.mockMarkDetached = func(ctx context.Context, ref string, at time.Time) error {
		detached = true
		assert.Equal(t, "pm_1", ref)
		return nil
	}

	event := webhookEvent(t, "evt_10", gateway.EventPaymentMethodDetached, gateway.PaymentMethodInfo{ID: "pm_1"})
	err := service.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, detached)
}
