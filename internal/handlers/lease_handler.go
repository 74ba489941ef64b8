package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimbuspm/billing-api/internal/middleware"
	"github.com/nimbuspm/billing-api/internal/services"
)

type LeaseHandler struct {
	leaseService *services.LeaseService
}

func NewLeaseHandler(leaseService *services.LeaseService) *LeaseHandler {
	return &LeaseHandler{leaseService: leaseService}
}

// @Summary List Leases
// @Description Admins see all active leases, tenants see their own
// @Tags Leases
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /leases [get]
func (h *LeaseHandler) Index(c *gin.Context) {
	var (
		leases interface{}
		err    error
	)
	if middleware.IsAdmin(c) {
		leases, err = h.leaseService.FindActive(c.Request.Context())
	} else {
		leases, err = h.leaseService.FindForTenant(c.Request.Context(), middleware.GetUserID(c))
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"leases": leases})
}

// @Summary Create Lease
// @Description Ingest a lease from the upstream property system
// @Tags Leases
// @Accept json
// @Produce json
// @Param request body services.CreateLeaseInput true "Lease"
// @Success 201 {object} models.Lease
// @Security BearerAuth
// @Router /leases [post]
func (h *LeaseHandler) Create(c *gin.Context) {
	var input services.CreateLeaseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lease, err := h.leaseService.Create(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, lease)
}
