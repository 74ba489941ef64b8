package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimbuspm/billing-api/internal/gateway"
	"github.com/nimbuspm/billing-api/internal/services"
	"github.com/nimbuspm/billing-api/pkg/logger"
)

// WebhookHandler is the gateway's webhook ingress. Responses drive the
// gateway's redelivery: 2xx stops it, anything else makes it try again.
type WebhookHandler struct {
	reconciler    *services.ReconcilerService
	webhookSecret string
}

func NewWebhookHandler(reconciler *services.ReconcilerService, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, webhookSecret: webhookSecret}
}

// @Summary Gateway Webhook
// @Description Receive a signed payment gateway event
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /webhooks/gateway [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	event, err := gateway.ParseWebhook(payload, c.GetHeader("Gateway-Signature"), h.webhookSecret, time.Now())
	if err != nil {
		// A forged or stale signature is final; redelivering the same bytes
		// cannot make it valid.
		logger.Warn(fmt.Sprintf("[Webhooks] Rejected delivery: %v", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
		return
	}

	if err := h.reconciler.ApplyEvent(c.Request.Context(), event); err != nil {
		// Processing failed after the signature checked out. Non-2xx makes
		// the gateway redeliver, which is what we want for transient
		// failures and lost races.
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrConflict) {
			status = http.StatusConflict
		}
		logger.Error(fmt.Sprintf("[Webhooks] Failed to process event %s: %v", event.ID, err))
		c.JSON(status, gin.H{"error": "Event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": event.ID})
}
