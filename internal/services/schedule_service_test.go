package services

import (
	"context"
	"testing"
	"time"

	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestScheduleService_MaterializePayment_BuildsFromSchedule(t *testing.T) {
	paymentRepo := &mockPaymentRepo{}
	service := NewScheduleService(nil, paymentRepo, nil)

	schedule := &models.PaymentSchedule{
		ID:              7,
		LeaseID:         3,
		PaymentType:     models.PaymentTypeRent,
		Amount:          1500,
		Frequency:       models.FrequencyMonthly,
		NextPaymentDate: testDate(2024, time.March, 1),
		IsActive:        true,
		Lease:           models.Lease{ID: 3, TenantUserID: 42},
	}

	paymentRepo.mockCreateIdempotent = func(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
		payment.ID = 11
		return payment, true, nil
	}

	payment, created, err := service.MaterializePayment(context.Background(), schedule)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint(3), payment.LeaseID)
	assert.Equal(t, uint(42), payment.PayerID)
	assert.Equal(t, 1500.0, payment.Amount)
	assert.Equal(t, models.PaymentTypeRent, payment.PaymentType)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, testDate(2024, time.March, 1), payment.DueDate)
	assert.NotEmpty(t, payment.PaymentNumber)
}

func TestScheduleService_MaterializePayment_ReturnsExistingForPeriod(t *testing.T) {
	paymentRepo := &mockPaymentRepo{}
	service := NewScheduleService(nil, paymentRepo, nil)

	existing := &models.Payment{
		ID:      99,
		LeaseID: 3,
		Status:  models.PaymentStatusProcessing,
		DueDate: testDate(2024, time.March, 1),
	}
	paymentRepo.mockCreateIdempotent = func(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
		return existing, false, nil
	}

	schedule := &models.PaymentSchedule{
		ID:              7,
		LeaseID:         3,
		NextPaymentDate: testDate(2024, time.March, 1),
		Lease:           models.Lease{ID: 3, TenantUserID: 42},
	}

	payment, created, err := service.MaterializePayment(context.Background(), schedule)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint(99), payment.ID)
	assert.Equal(t, models.PaymentStatusProcessing, payment.Status)
}

func TestScheduleService_AdvanceToNext_MonthlyClampsShortMonth(t *testing.T) {
	scheduleRepo := &mockScheduleRepo{}
	service := NewScheduleService(scheduleRepo, nil, nil)

	anchor := 31
	schedule := &models.PaymentSchedule{
		ID:              7,
		Frequency:       models.FrequencyMonthly,
		DayOfMonth:      &anchor,
		NextPaymentDate: testDate(2024, time.January, 31),
		IsActive:        true,
	}

	var gotExpected, gotNext time.Time
	scheduleRepo.mockAdvanceNext = func(ctx context.Context, id uint, expected, next time.Time) error {
		gotExpected, gotNext = expected, next
		return nil
	}

	err := service.AdvanceToNext(context.Background(), schedule)
	require.NoError(t, err)
	assert.Equal(t, testDate(2024, time.January, 31), gotExpected)
	assert.Equal(t, testDate(2024, time.February, 29), gotNext)
	assert.Equal(t, testDate(2024, time.February, 29), schedule.NextPaymentDate)
}

func TestScheduleService_AdvanceToNext_DeactivatesPastEndDate(t *testing.T) {
	scheduleRepo := &mockScheduleRepo{}
	service := NewScheduleService(scheduleRepo, nil, nil)

	end := testDate(2024, time.March, 15)
	schedule := &models.PaymentSchedule{
		ID:              7,
		Frequency:       models.FrequencyMonthly,
		NextPaymentDate: testDate(2024, time.March, 1),
		EndDate:         &end,
		IsActive:        true,
	}

	deactivated := false
	advanced := false
	scheduleRepo.mockDeactivate = func(ctx context.Context, id uint) error {
		deactivated = true
		assert.Equal(t, uint(7), id)
		return nil
	}
	scheduleRepo.mockAdvanceNext = func(ctx context.Context, id uint, expected, next time.Time) error {
		advanced = true
		return nil
	}

	err := service.AdvanceToNext(context.Background(), schedule)
	require.NoError(t, err)
	assert.True(t, deactivated)
	assert.False(t, advanced)
}

func TestScheduleService_AdvanceToNext_LostRaceReturnsConflict(t *testing.T) {
	scheduleRepo := &mockScheduleRepo{}
	service := NewScheduleService(scheduleRepo, nil, nil)

	schedule := &models.PaymentSchedule{
		ID:              7,
		Frequency:       models.FrequencyMonthly,
		NextPaymentDate: testDate(2024, time.March, 1),
		IsActive:        true,
	}
	scheduleRepo.mockAdvanceNext = func(ctx context.Context, id uint, expected, next time.Time) error {
		return repository.ErrStaleStatus
	}

	err := service.AdvanceToNext(context.Background(), schedule)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, testDate(2024, time.March, 1), schedule.NextPaymentDate)
}

func TestScheduleService_CreatePaymentForCurrentPeriod_AdvancesOnlyWhenCreated(t *testing.T) {
	scheduleRepo := &mockScheduleRepo{}
	paymentRepo := &mockPaymentRepo{}
	service := NewScheduleService(scheduleRepo, paymentRepo, nil)

	schedule := &models.PaymentSchedule{
		ID:              7,
		LeaseID:         3,
		Frequency:       models.FrequencyMonthly,
		NextPaymentDate: testDate(2024, time.March, 1),
		IsActive:        true,
		Lease:           models.Lease{ID: 3, TenantUserID: 42},
	}
	scheduleRepo.mockFindByID = func(ctx context.Context, id uint) (*models.PaymentSchedule, error) {
		return schedule, nil
	}

	advances := 0
	scheduleRepo.mockAdvanceNext = func(ctx context.Context, id uint, expected, next time.Time) error {
		advances++
		return nil
	}

	created := true
	paymentRepo.mockCreateIdempotent = func(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
		return payment, created, nil
	}

	_, err := service.CreatePaymentForCurrentPeriod(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, advances)

	// Second call in the same period finds the existing payment and must
	// not advance again.
	created = false
	_, err = service.CreatePaymentForCurrentPeriod(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, advances)
}

func TestScheduleService_CreateForLease_RejectsInactiveLease(t *testing.T) {
	leaseRepo := &mockLeaseRepo{}
	service := NewScheduleService(nil, nil, leaseRepo)

	leaseRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Lease, error) {
		return &models.Lease{ID: id, Active: false}, nil
	}

	schedule, err := service.CreateForLease(context.Background(), 3)
	assert.Nil(t, schedule)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestScheduleService_CreateForLease_CreatesRentScheduleAndDeposit(t *testing.T) {
	scheduleRepo := &mockScheduleRepo{}
	paymentRepo := &mockPaymentRepo{}
	leaseRepo := &mockLeaseRepo{}
	service := NewScheduleService(scheduleRepo, paymentRepo, leaseRepo)

	leaseRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Lease, error) {
		return &models.Lease{
			ID:              id,
			TenantUserID:    42,
			MonthlyRent:     1500,
			SecurityDeposit: 3000,
			RentDayOfMonth:  5,
			StartDate:       testDate(2024, time.March, 10),
			Active:          true,
		}, nil
	}
	scheduleRepo.mockCreate = func(ctx context.Context, schedule *models.PaymentSchedule) error {
		schedule.ID = 7
		return nil
	}

	var deposit *models.Payment
	paymentRepo.mockCreateIdempotent = func(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
		deposit = payment
		return payment, true, nil
	}

	schedule, err := service.CreateForLease(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentTypeRent, schedule.PaymentType)
	assert.Equal(t, 1500.0, schedule.Amount)
	assert.Equal(t, models.FrequencyMonthly, schedule.Frequency)
	// Lease starts March 10 with rent due on the 5th, so the first rent
	// date is April 5.
	assert.Equal(t, testDate(2024, time.April, 5), schedule.NextPaymentDate)
	assert.True(t, schedule.IsActive)

	require.NotNil(t, deposit)
	assert.Equal(t, models.PaymentTypeSecurityDeposit, deposit.PaymentType)
	assert.Equal(t, 3000.0, deposit.Amount)
	assert.Equal(t, testDate(2024, time.March, 10), deposit.DueDate)
}

func TestScheduleService_DeactivateExpired(t *testing.T) {
	scheduleRepo := &mockScheduleRepo{}
	leaseRepo := &mockLeaseRepo{}
	service := NewScheduleService(scheduleRepo, nil, leaseRepo)

	leaseRepo.mockFindExpired = func(ctx context.Context, asOf time.Time) ([]models.Lease, error) {
		return []models.Lease{{ID: 3, Active: true}}, nil
	}
	scheduleRepo.mockFindByLeaseID = func(ctx context.Context, leaseID uint) ([]models.PaymentSchedule, error) {
		return []models.PaymentSchedule{
			{ID: 7, LeaseID: leaseID, IsActive: true},
			{ID: 8, LeaseID: leaseID, IsActive: false},
		}, nil
	}

	var deactivatedSchedules []uint
	scheduleRepo.mockDeactivate = func(ctx context.Context, id uint) error {
		deactivatedSchedules = append(deactivatedSchedules, id)
		return nil
	}
	leaseDeactivated := false
	leaseRepo.mockDeactivate = func(ctx context.Context, id uint) error {
		leaseDeactivated = true
		return nil
	}

	count, err := service.DeactivateExpired(context.Background(), testDate(2024, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []uint{7}, deactivatedSchedules)
	assert.True(t, leaseDeactivated)
}
