package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimbuspm/billing-api/internal/services"
)

type BillingHandler struct {
	billingService *services.BillingService
}

func NewBillingHandler(billingService *services.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

// @Summary Run Billing Pass
// @Description Trigger one billing clock pass immediately (also runs on the configured interval)
// @Tags Billing
// @Produce json
// @Success 200 {object} services.BillingRunResult
// @Security BearerAuth
// @Router /billing/run [post]
func (h *BillingHandler) Run(c *gin.Context) {
	result, err := h.billingService.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Assess Late Fees
// @Description Run the late fee pass immediately
// @Tags Billing
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /billing/late_fees [post]
func (h *BillingHandler) ApplyLateFees(c *gin.Context) {
	assessed, err := h.billingService.ApplyLateFees(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"late_fees_assessed": assessed})
}
