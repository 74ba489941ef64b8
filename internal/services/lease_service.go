package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"

	"gorm.io/gorm"
)

// LeaseService maintains the local lease mirror. Lease agreements are
// owned by an upstream system; this service only ingests the fields
// billing needs and answers lookups for the API.
type LeaseService struct {
	leaseRepo repository.LeaseRepository
}

func NewLeaseService(leaseRepo repository.LeaseRepository) *LeaseService {
	return &LeaseService{leaseRepo: leaseRepo}
}

// CreateLeaseInput mirrors the lease fields billing cares about.
type CreateLeaseInput struct {
	TenantUserID    uint       `json:"tenant_user_id" binding:"required"`
	PropertyRef     string     `json:"property_ref" binding:"required"`
	MonthlyRent     float64    `json:"monthly_rent" binding:"required"`
	SecurityDeposit float64    `json:"security_deposit"`
	RentDayOfMonth  int        `json:"rent_day_of_month"`
	StartDate       time.Time  `json:"start_date" binding:"required"`
	EndDate         *time.Time `json:"end_date"`
}

// Create ingests a lease from the upstream system of record.
func (s *LeaseService) Create(ctx context.Context, input CreateLeaseInput) (*models.Lease, error) {
	if input.MonthlyRent <= 0 {
		return nil, fmt.Errorf("%w: monthly rent must be positive", ErrValidation)
	}
	if input.SecurityDeposit < 0 {
		return nil, fmt.Errorf("%w: security deposit cannot be negative", ErrValidation)
	}
	if input.RentDayOfMonth == 0 {
		input.RentDayOfMonth = 1
	}
	if input.RentDayOfMonth < 1 || input.RentDayOfMonth > 31 {
		return nil, fmt.Errorf("%w: rent day must be between 1 and 31", ErrValidation)
	}
	if input.EndDate != nil && !input.EndDate.After(input.StartDate) {
		return nil, fmt.Errorf("%w: end date must be after start date", ErrValidation)
	}

	lease := &models.Lease{
		TenantUserID:    input.TenantUserID,
		PropertyRef:     input.PropertyRef,
		MonthlyRent:     input.MonthlyRent,
		SecurityDeposit: input.SecurityDeposit,
		RentDayOfMonth:  input.RentDayOfMonth,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		Active:          true,
	}
	if err := s.leaseRepo.Create(ctx, lease); err != nil {
		return nil, err
	}
	return lease, nil
}

func (s *LeaseService) FindByID(ctx context.Context, id uint) (*models.Lease, error) {
	lease, err := s.leaseRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return lease, nil
}

// FindForTenant returns the leases billed to a single tenant.
func (s *LeaseService) FindForTenant(ctx context.Context, tenantUserID uint) ([]models.Lease, error) {
	return s.leaseRepo.FindByTenant(ctx, tenantUserID)
}

// FindActive returns every lease still generating charges.
func (s *LeaseService) FindActive(ctx context.Context) ([]models.Lease, error) {
	return s.leaseRepo.FindActive(ctx)
}
