package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimbuspm/billing-api/internal/middleware"
	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/nimbuspm/billing-api/internal/repository"
	"github.com/nimbuspm/billing-api/internal/services"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	exportService  *services.ExportService
}

func NewPaymentHandler(paymentService *services.PaymentService, exportService *services.ExportService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, exportService: exportService}
}

// @Summary List Payments
// @Description Get a paginated list of payments
// @Tags Payments
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param status query string false "Filter by status"
// @Param payment_type query string false "Filter by type"
// @Param lease_id query int false "Filter by lease"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /payments [get]
func (h *PaymentHandler) Index(c *gin.Context) {
	query := repository.PaymentListQuery{
		Status:      c.Query("status"),
		PaymentType: c.Query("payment_type"),
	}
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if leaseID, err := strconv.ParseUint(c.Query("lease_id"), 10, 32); err == nil {
		query.LeaseID = uint(leaseID)
	}
	if from, err := time.Parse("2006-01-02", c.Query("from")); err == nil {
		query.FromDate = &from
	}
	if to, err := time.Parse("2006-01-02", c.Query("to")); err == nil {
		query.ToDate = &to
	}

	// Tenants only see their own payments
	if !middleware.IsAdmin(c) {
		query.PayerID = middleware.GetUserID(c)
	}

	payments, total, err := h.paymentService.List(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var responses []interface{}
	for i := range payments {
		responses = append(responses, payments[i].ToResponse())
	}

	perPage := query.PerPage
	if perPage < 1 {
		perPage = 20
	}
	c.JSON(http.StatusOK, gin.H{
		"payments": responses,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    perPage,
			"total":       total,
			"total_pages": (total + int64(perPage) - 1) / int64(perPage),
		},
	})
}

// @Summary Show Payment
// @Description Get a single payment by id or payment number
// @Tags Payments
// @Produce json
// @Param payment_id path string true "Payment ID or payment number"
// @Success 200 {object} models.PaymentResponse
// @Security BearerAuth
// @Router /payments/{payment_id} [get]
func (h *PaymentHandler) Show(c *gin.Context) {
	param := c.Param("payment_id")

	var payment *models.Payment
	var err error
	if id, parseErr := strconv.ParseUint(param, 10, 32); parseErr == nil {
		payment, err = h.paymentService.FindByID(c.Request.Context(), uint(id))
	} else {
		// Payment numbers show up in receipts and notification emails, so
		// support lookups by number as well as by id.
		payment, err = h.paymentService.FindByNumber(c.Request.Context(), param)
	}
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !middleware.IsAdmin(c) && payment.PayerID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this payment"})
		return
	}

	c.JSON(http.StatusOK, payment.ToResponse())
}

// @Summary Create Payment
// @Description Create a one-off pending payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body services.CreatePaymentInput true "Payment"
// @Success 201 {object} models.PaymentResponse
// @Security BearerAuth
// @Router /payments [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	var input services.CreatePaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.paymentService.Create(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicate):
			// The period already has a live payment; return it.
			c.JSON(http.StatusOK, payment.ToResponse())
		case errors.Is(err, services.ErrValidation):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, payment.ToResponse())
}

// @Summary Retry Payment
// @Description Re-submit a failed payment to the gateway
// @Tags Payments
// @Produce json
// @Param payment_id path int true "Payment ID"
// @Success 200 {object} models.PaymentResponse
// @Security BearerAuth
// @Router /payments/{payment_id}/retry [post]
func (h *PaymentHandler) Retry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("payment_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment id"})
		return
	}

	payment, err := h.paymentService.Retry(c.Request.Context(), uint(id), middleware.GetUserID(c), c.ClientIP())
	if err != nil {
		h.renderActionError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment.ToResponse())
}

// @Summary Cancel Payment
// @Description Cancel a pending or processing payment
// @Tags Payments
// @Produce json
// @Param payment_id path int true "Payment ID"
// @Success 200 {object} models.PaymentResponse
// @Security BearerAuth
// @Router /payments/{payment_id}/cancel [post]
func (h *PaymentHandler) Cancel(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("payment_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment id"})
		return
	}

	payment, err := h.paymentService.Cancel(c.Request.Context(), uint(id), middleware.GetUserID(c), c.ClientIP())
	if err != nil {
		h.renderActionError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment.ToResponse())
}

type refundRequest struct {
	Amount float64 `json:"amount"`
}

// @Summary Refund Payment
// @Description Refund a succeeded payment, in full or partially
// @Tags Payments
// @Accept json
// @Produce json
// @Param payment_id path int true "Payment ID"
// @Param request body refundRequest false "Refund amount (omit for full refund)"
// @Success 200 {object} models.PaymentResponse
// @Security BearerAuth
// @Router /payments/{payment_id}/refund [post]
func (h *PaymentHandler) Refund(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("payment_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment id"})
		return
	}

	var req refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refund payload"})
			return
		}
	}

	payment, err := h.paymentService.Refund(c.Request.Context(), uint(id), req.Amount, middleware.GetUserID(c), c.ClientIP())
	if err != nil {
		h.renderActionError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment.ToResponse())
}

// @Summary Payment Stats
// @Description Get payment counts and amounts by status
// @Tags Payments
// @Produce json
// @Success 200 {object} repository.PaymentStats
// @Security BearerAuth
// @Router /payments/stats [get]
func (h *PaymentHandler) Stats(c *gin.Context) {
	stats, err := h.paymentService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary Export Monthly Report
// @Description Download the monthly billing report as CSV or XLSX
// @Tags Payments
// @Produce octet-stream
// @Param year query int true "Year (YYYY)"
// @Param month query int true "Month (1-12)"
// @Param format query string false "csv or xlsx" default(csv)
// @Security BearerAuth
// @Router /payments/export [get]
func (h *PaymentHandler) Export(c *gin.Context) {
	year, _ := strconv.Atoi(c.Query("year"))
	month, _ := strconv.Atoi(c.Query("month"))
	if month < 1 || month > 12 || year < 2000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid month or year"})
		return
	}

	var (
		data     []byte
		filename string
		mime     string
		err      error
	)
	switch c.DefaultQuery("format", "csv") {
	case "xlsx":
		data, filename, err = h.exportService.ExportMonthXLSX(c.Request.Context(), year, time.Month(month))
		mime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		data, filename, err = h.exportService.ExportMonthCSV(c.Request.Context(), year, time.Month(month))
		mime = "text/csv"
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, mime, data)
}

func (h *PaymentHandler) renderActionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
	case errors.Is(err, services.ErrNotRetryable), errors.Is(err, services.ErrInvalidState):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Payment was modified concurrently, retry the operation"})
	case errors.Is(err, services.ErrPaymentMethodRequired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
