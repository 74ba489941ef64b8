package repository

import (
	"context"
	"time"

	"github.com/nimbuspm/billing-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentMethodRepository defines the interface for payment method data access
type PaymentMethodRepository interface {
	// Upsert creates the method or refreshes an existing row with the same
	// gateway reference. Webhook redeliveries of payment_method.attached
	// land here.
	Upsert(ctx context.Context, method *models.PaymentMethod) error
	FindByID(ctx context.Context, id uint) (*models.PaymentMethod, error)
	FindByGatewayRef(ctx context.Context, ref string) (*models.PaymentMethod, error)
	FindByUserID(ctx context.Context, userID uint) ([]models.PaymentMethod, error)
	FindDefaultForUser(ctx context.Context, userID uint) (*models.PaymentMethod, error)
	SetDefault(ctx context.Context, userID, methodID uint) error
	MarkDetached(ctx context.Context, ref string, at time.Time) error
}

type paymentMethodRepository struct {
	db *gorm.DB
}

// NewPaymentMethodRepository creates a new payment method repository
func NewPaymentMethodRepository(db *gorm.DB) PaymentMethodRepository {
	return &paymentMethodRepository{db: db}
}

func (r *paymentMethodRepository) Upsert(ctx context.Context, method *models.PaymentMethod) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_ref"}},
			DoUpdates: clause.AssignmentColumns([]string{"brand", "last4", "detached_at", "updated_at"}),
		}).
		Create(method).Error
}

func (r *paymentMethodRepository) FindByID(ctx context.Context, id uint) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	if err := r.db.WithContext(ctx).First(&method, id).Error; err != nil {
		return nil, err
	}
	return &method, nil
}

func (r *paymentMethodRepository) FindByGatewayRef(ctx context.Context, ref string) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("gateway_ref = ?", ref).
		First(&method).Error
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (r *paymentMethodRepository) FindByUserID(ctx context.Context, userID uint) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND detached_at IS NULL", userID).
		Order("is_default DESC, created_at DESC").
		Find(&methods).Error
	return methods, err
}

func (r *paymentMethodRepository) FindDefaultForUser(ctx context.Context, userID uint) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ? AND detached_at IS NULL", userID, true).
		First(&method).Error
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (r *paymentMethodRepository) SetDefault(ctx context.Context, userID, methodID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PaymentMethod{}).
			Where("user_id = ?", userID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.PaymentMethod{}).
			Where("id = ? AND user_id = ?", methodID, userID).
			Update("is_default", true).Error
	})
}

func (r *paymentMethodRepository) MarkDetached(ctx context.Context, ref string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentMethod{}).
		Where("gateway_ref = ?", ref).
		Updates(map[string]interface{}{
			"detached_at": at,
			"is_default":  false,
		}).Error
}
