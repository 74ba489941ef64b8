package services

import (
	"context"
	"fmt"

	"github.com/nimbuspm/billing-api/internal/jobs"
	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
	"github.com/nimbuspm/billing-api/pkg/logger"
)

// EmailSender is the subset of EmailService used for billing notifications
type EmailSender interface {
	SendPaymentReceipt(ctx context.Context, user *models.User, payment *models.Payment) error
	SendPaymentFailed(ctx context.Context, user *models.User, payment *models.Payment) error
	SendDueReminder(ctx context.Context, user *models.User, payment *models.Payment) error
	SendOverdueNotice(ctx context.Context, user *models.User, payment *models.Payment) error
}

type NotificationService struct {
	repo        repository.NotificationRepository
	userRepo    repository.UserRepository
	paymentRepo repository.PaymentRepository
	email       EmailSender
	worker      *jobs.Worker
}

func NewNotificationService(
	repo repository.NotificationRepository,
	userRepo repository.UserRepository,
	paymentRepo repository.PaymentRepository,
	email EmailSender,
	worker *jobs.Worker,
) *NotificationService {
	return &NotificationService{
		repo:        repo,
		userRepo:    userRepo,
		paymentRepo: paymentRepo,
		email:       email,
		worker:      worker,
	}
}

func (s *NotificationService) FindByUser(ctx context.Context, userID uint, query *repository.ListQuery) ([]models.Notification, int64, error) {
	return s.repo.FindByUser(ctx, userID, query)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uint) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uint) error {
	return s.repo.MarkAsRead(ctx, id, userID)
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) NotifyUser(ctx context.Context, userID uint, title, message, notifType string) error {
	notification := &models.Notification{
		UserID:           userID,
		Title:            title,
		Message:          message,
		NotificationType: &notifType,
	}
	return s.repo.Create(ctx, notification)
}

func (s *NotificationService) NotifyAdmins(ctx context.Context, title, message, notifType string) error {
	admins, err := s.userRepo.FindAdmins(ctx)
	if err != nil {
		return err
	}
	for _, admin := range admins {
		notification := &models.Notification{
			UserID:           admin.ID,
			Title:            title,
			Message:          message,
			NotificationType: &notifType,
		}
		s.repo.Create(ctx, notification)
	}
	return nil
}

// Dispatch fans out billing events produced by a state transition. In-app
// notifications are written inline; emails go through the worker so a slow
// provider never blocks the billing pass or a webhook response.
func (s *NotificationService) Dispatch(ctx context.Context, events []models.BillingEvent) {
	for _, event := range events {
		if err := s.dispatchOne(ctx, event); err != nil {
			logger.Error(fmt.Sprintf("[Notifications] Failed to dispatch %s for payment %d: %v",
				event.Kind, event.PaymentID, err))
		}
	}
}

func (s *NotificationService) dispatchOne(ctx context.Context, event models.BillingEvent) error {
	title, message := event.Describe()
	if err := s.NotifyUser(ctx, event.PayerID, title, message, event.Kind); err != nil {
		return err
	}

	switch event.Kind {
	case models.BillingEventPaymentSucceeded:
		s.enqueueEmail(event.PaymentID, func(ctx context.Context, user *models.User, payment *models.Payment) error {
			return s.email.SendPaymentReceipt(ctx, user, payment)
		})
	case models.BillingEventPaymentFailed:
		s.enqueueEmail(event.PaymentID, func(ctx context.Context, user *models.User, payment *models.Payment) error {
			return s.email.SendPaymentFailed(ctx, user, payment)
		})
	}
	return nil
}

func (s *NotificationService) enqueueEmail(paymentID uint, send func(ctx context.Context, user *models.User, payment *models.Payment) error) {
	if s.worker == nil || s.email == nil {
		return
	}
	s.worker.EnqueueAsync(func(ctx context.Context) error {
		payment, err := s.paymentRepo.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		user, err := s.userRepo.FindByID(ctx, payment.PayerID)
		if err != nil {
			return err
		}
		return send(ctx, user, payment)
	})
}
