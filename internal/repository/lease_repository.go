package repository

import (
	"context"
	"time"

	"github.com/nimbuspm/billing-api/internal/models"

	"gorm.io/gorm"
)

// LeaseRepository defines the interface for lease data access
type LeaseRepository interface {
	Create(ctx context.Context, lease *models.Lease) error
	FindByID(ctx context.Context, id uint) (*models.Lease, error)
	FindByTenant(ctx context.Context, tenantUserID uint) ([]models.Lease, error)
	FindActive(ctx context.Context) ([]models.Lease, error)
	// FindExpired returns active leases whose end date has passed as of the
	// given time.
	FindExpired(ctx context.Context, asOf time.Time) ([]models.Lease, error)
	Deactivate(ctx context.Context, id uint) error
}

type leaseRepository struct {
	db *gorm.DB
}

// NewLeaseRepository creates a new lease repository
func NewLeaseRepository(db *gorm.DB) LeaseRepository {
	return &leaseRepository{db: db}
}

func (r *leaseRepository) Create(ctx context.Context, lease *models.Lease) error {
	return r.db.WithContext(ctx).Create(lease).Error
}

func (r *leaseRepository) FindByID(ctx context.Context, id uint) (*models.Lease, error) {
	var lease models.Lease
	err := r.db.WithContext(ctx).
		Preload("Tenant").
		First(&lease, id).Error
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

func (r *leaseRepository) FindByTenant(ctx context.Context, tenantUserID uint) ([]models.Lease, error) {
	var leases []models.Lease
	err := r.db.WithContext(ctx).
		Where("tenant_user_id = ?", tenantUserID).
		Order("created_at DESC").
		Find(&leases).Error
	return leases, err
}

func (r *leaseRepository) FindActive(ctx context.Context) ([]models.Lease, error) {
	var leases []models.Lease
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&leases).Error
	return leases, err
}

func (r *leaseRepository) FindExpired(ctx context.Context, asOf time.Time) ([]models.Lease, error) {
	var leases []models.Lease
	err := r.db.WithContext(ctx).
		Where("active = ? AND end_date IS NOT NULL AND end_date < ?", true, asOf).
		Find(&leases).Error
	return leases, err
}

func (r *leaseRepository) Deactivate(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Lease{}).
		Where("id = ?", id).
		Update("active", false).Error
}
