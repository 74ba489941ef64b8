package handlers

import (
	"github.com/nimbuspm/billing-api/internal/config"
	"github.com/nimbuspm/billing-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health       *HealthHandler
	Auth         *AuthHandler
	Payment      *PaymentHandler
	Lease        *LeaseHandler
	Schedule     *ScheduleHandler
	Billing      *BillingHandler
	Webhook      *WebhookHandler
	Notification *NotificationHandler
	Job          *JobHandler
}

// NewHandlers creates all handler instances
func NewHandlers(svcs *services.Services, cfg *config.Config) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(),
		Auth:         NewAuthHandler(svcs.Auth),
		Payment:      NewPaymentHandler(svcs.Payment, svcs.Export),
		Lease:        NewLeaseHandler(svcs.Lease),
		Schedule:     NewScheduleHandler(svcs.Schedule),
		Billing:      NewBillingHandler(svcs.Billing),
		Webhook:      NewWebhookHandler(svcs.Reconciler, cfg.GatewayWebhookSecret),
		Notification: NewNotificationHandler(svcs.Notification),
		Job:          NewJobHandler(svcs.Job),
	}
}
