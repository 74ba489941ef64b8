package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nimbuspm/billing-api/internal/services"
)

type ScheduleHandler struct {
	scheduleService *services.ScheduleService
}

func NewScheduleHandler(scheduleService *services.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService}
}

// @Summary List Lease Schedules
// @Description Get the payment schedules for a lease
// @Tags Schedules
// @Produce json
// @Param lease_id path int true "Lease ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /leases/{lease_id}/schedules [get]
func (h *ScheduleHandler) IndexByLease(c *gin.Context) {
	leaseID, err := strconv.ParseUint(c.Param("lease_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lease id"})
		return
	}

	schedules, err := h.scheduleService.FindByLease(c.Request.Context(), uint(leaseID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var responses []interface{}
	for i := range schedules {
		responses = append(responses, schedules[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"schedules": responses})
}

// @Summary Activate Lease Billing
// @Description Create the recurring rent schedule (and deposit payment) for an active lease
// @Tags Schedules
// @Produce json
// @Param lease_id path int true "Lease ID"
// @Success 201 {object} models.PaymentScheduleResponse
// @Security BearerAuth
// @Router /leases/{lease_id}/schedules [post]
func (h *ScheduleHandler) CreateForLease(c *gin.Context) {
	leaseID, err := strconv.ParseUint(c.Param("lease_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lease id"})
		return
	}

	schedule, err := h.scheduleService.CreateForLease(c.Request.Context(), uint(leaseID))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Lease not found"})
		case errors.Is(err, services.ErrValidation):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, schedule.ToResponse())
}

type autoPayRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// @Summary Toggle Auto-Pay
// @Description Enable or disable auto-pay on a schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param schedule_id path int true "Schedule ID"
// @Param request body autoPayRequest true "Auto-pay flag"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /schedules/{schedule_id}/auto_pay [put]
func (h *ScheduleHandler) SetAutoPay(c *gin.Context) {
	scheduleID, err := strconv.ParseUint(c.Param("schedule_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule id"})
		return
	}

	var req autoPayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled flag is required"})
		return
	}

	if err := h.scheduleService.SetAutoPay(c.Request.Context(), uint(scheduleID), *req.Enabled); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"auto_pay": *req.Enabled})
}

// @Summary Deactivate Schedule
// @Description Stop the recurring schedule; existing payments are untouched
// @Tags Schedules
// @Produce json
// @Param schedule_id path int true "Schedule ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /schedules/{schedule_id} [delete]
func (h *ScheduleHandler) Deactivate(c *gin.Context) {
	scheduleID, err := strconv.ParseUint(c.Param("schedule_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule id"})
		return
	}

	if err := h.scheduleService.Deactivate(c.Request.Context(), uint(scheduleID)); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule deactivated"})
}

// @Summary Create Period Payment
// @Description Materialize the schedule's current period payment on demand
// @Tags Schedules
// @Produce json
// @Param schedule_id path int true "Schedule ID"
// @Success 201 {object} models.PaymentResponse
// @Security BearerAuth
// @Router /schedules/{schedule_id}/payments [post]
func (h *ScheduleHandler) CreatePayment(c *gin.Context) {
	scheduleID, err := strconv.ParseUint(c.Param("schedule_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule id"})
		return
	}

	payment, err := h.scheduleService.CreatePaymentForCurrentPeriod(c.Request.Context(), uint(scheduleID))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		case errors.Is(err, services.ErrValidation):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, payment.ToResponse())
}
