package services

import (
	"github.com/nimbuspm/billing-api/internal/config"
	"github.com/nimbuspm/billing-api/internal/gateway"
	"github.com/nimbuspm/billing-api/internal/jobs"
	"github.com/nimbuspm/billing-api/internal/repository"
)

// Services holds all service instances
type Services struct {
	Auth         *AuthService
	Payment      *PaymentService
	Lease        *LeaseService
	Schedule     *ScheduleService
	Billing      *BillingService
	Reconciler   *ReconcilerService
	Notification *NotificationService
	Email        *EmailService
	Export       *ExportService
	Audit        *AuditService
	Job          *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, gw gateway.Client, cfg *config.Config) *Services {
	emailSvc := NewEmailService(cfg)
	notificationSvc := NewNotificationService(repos.Notification, repos.User, repos.Payment, emailSvc, worker)
	auditSvc := NewAuditService(repos.Audit)

	scheduleSvc := NewScheduleService(repos.Schedule, repos.Payment, repos.Lease)
	paymentSvc := NewPaymentService(repos.Payment, repos.PaymentMethod, gw, notificationSvc, auditSvc, cfg)
	billingSvc := NewBillingService(repos.Schedule, repos.Payment, scheduleSvc, paymentSvc, notificationSvc, cfg)
	reconcilerSvc := NewReconcilerService(repos.GatewayEvent, repos.Payment, repos.PaymentMethod, repos.User, notificationSvc)

	return &Services{
		Auth:         NewAuthService(repos.User, cfg),
		Payment:      paymentSvc,
		Lease:        NewLeaseService(repos.Lease),
		Schedule:     scheduleSvc,
		Billing:      billingSvc,
		Reconciler:   reconcilerSvc,
		Notification: notificationSvc,
		Email:        emailSvc,
		Export:       NewExportService(repos.Payment),
		Audit:        auditSvc,
		Job:          NewJobService(worker),
	}
}
