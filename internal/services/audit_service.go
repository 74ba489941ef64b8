package services

import (
	"context"

	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
)

type AuditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Log records an audit entry
func (s *AuditService) Log(ctx context.Context, userID uint, action, entity string, entityID uint, details, ip string) error {
	entry := &models.AuditLog{
		UserID:    userID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Details:   details,
		IPAddress: ip,
	}
	return s.repo.Create(ctx, entry)
}

// History returns the audit trail for an entity
func (s *AuditService) History(ctx context.Context, entity string, entityID uint) ([]models.AuditLog, error) {
	return s.repo.FindByEntity(ctx, entity, entityID)
}
