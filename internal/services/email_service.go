package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/nimbuspm/billing-api/internal/config"
	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/pkg/logger"
	"github.com/resend/resend-go/v2"
)

//go:embed templates/email/*.html
var emailTemplates embed.FS

type EmailService struct {
	config       *config.Config
	resendClient *resend.Client
}

func NewEmailService(cfg *config.Config) *EmailService {
	client := resend.NewClient(cfg.ResendAPIKey)
	return &EmailService{
		config:       cfg,
		resendClient: client,
	}
}

func (s *EmailService) SendPaymentReceipt(ctx context.Context, user *models.User, payment *models.Payment) error {
	data := struct {
		Name          string
		PaymentNumber string
		Amount        float64
		PaidAt        string
	}{
		Name:          user.FullName,
		PaymentNumber: payment.PaymentNumber,
		Amount:        payment.Amount,
	}
	if payment.PaidAt != nil {
		data.PaidAt = payment.PaidAt.Format("January 2, 2006")
	}

	return s.send(user.Email, "Payment received", "payment_receipt.html", data)
}

func (s *EmailService) SendPaymentFailed(ctx context.Context, user *models.User, payment *models.Payment) error {
	reason := ""
	if payment.FailureReason != nil {
		reason = *payment.FailureReason
	}
	data := struct {
		Name          string
		PaymentNumber string
		Amount        float64
		Reason        string
	}{
		Name:          user.FullName,
		PaymentNumber: payment.PaymentNumber,
		Amount:        payment.Amount,
		Reason:        reason,
	}

	return s.send(user.Email, "Payment failed", "payment_failed.html", data)
}

func (s *EmailService) SendDueReminder(ctx context.Context, user *models.User, payment *models.Payment) error {
	data := struct {
		Name          string
		PaymentNumber string
		Amount        float64
		DueDate       string
	}{
		Name:          user.FullName,
		PaymentNumber: payment.PaymentNumber,
		Amount:        payment.Amount,
		DueDate:       payment.DueDate.Format("January 2, 2006"),
	}

	return s.send(user.Email, "Upcoming payment reminder", "payment_due_reminder.html", data)
}

func (s *EmailService) SendOverdueNotice(ctx context.Context, user *models.User, payment *models.Payment) error {
	data := struct {
		Name          string
		PaymentNumber string
		Amount        float64
		DueDate       string
		DaysOverdue   int
	}{
		Name:          user.FullName,
		PaymentNumber: payment.PaymentNumber,
		Amount:        payment.Amount,
		DueDate:       payment.DueDate.Format("January 2, 2006"),
		DaysOverdue:   payment.DaysOverdue(),
	}

	return s.send(user.Email, "Payment overdue", "payment_overdue.html", data)
}

func (s *EmailService) send(to, subject, templateName string, data interface{}) error {
	body, err := s.renderTemplate(templateName, data)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    s.config.FromEmail,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	if _, err := s.resendClient.Emails.Send(params); err != nil {
		logger.Error(fmt.Sprintf("Failed to send email to %s: %v", to, err))
		return err
	}

	logger.Info(fmt.Sprintf("📧 [Email Sent] To: %s | Subject: %s", to, subject))
	return nil
}

func (s *EmailService) renderTemplate(name string, data interface{}) (string, error) {
	tmpl, err := template.ParseFS(emailTemplates, "templates/email/"+name)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return buf.String(), nil
}
