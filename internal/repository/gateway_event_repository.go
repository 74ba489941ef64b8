package repository

import (
	"context"
	"time"

	"github.com/nimbuspm/billing-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GatewayEventRepository defines the interface for webhook event claims.
// An event is claimed before processing so redelivered webhooks become
// acked no-ops.
type GatewayEventRepository interface {
	// Claim records the event ID. Returns false when the event was already
	// claimed by an earlier delivery.
	Claim(ctx context.Context, event *models.GatewayEvent) (bool, error)
	// Release removes a claim after a processing failure so the gateway's
	// redelivery gets another chance.
	Release(ctx context.Context, eventID string) error
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error
	MarkFailed(ctx context.Context, eventID string, reason string) error
	FindByEventID(ctx context.Context, eventID string) (*models.GatewayEvent, error)
}

type gatewayEventRepository struct {
	db *gorm.DB
}

// NewGatewayEventRepository creates a new gateway event repository
func NewGatewayEventRepository(db *gorm.DB) GatewayEventRepository {
	return &gatewayEventRepository{db: db}
}

func (r *gatewayEventRepository) Claim(ctx context.Context, event *models.GatewayEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gatewayEventRepository) Release(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&models.GatewayEvent{}).Error
}

func (r *gatewayEventRepository) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.GatewayEvent{}).
		Where("event_id = ?", eventID).
		Update("processed_at", at).Error
}

func (r *gatewayEventRepository) MarkFailed(ctx context.Context, eventID string, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.GatewayEvent{}).
		Where("event_id = ?", eventID).
		Update("error", reason).Error
}

func (r *gatewayEventRepository) FindByEventID(ctx context.Context, eventID string) (*models.GatewayEvent, error) {
	var event models.GatewayEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
