package delivery

import (
	"net/http"
	"strconv"

	leaddto "leadmail-backend/internal/lead/dto"
	"leadmail-backend/internal/lead/usecase"

	"github.com/gin-gonic/gin"
)

// LeadHandler handles lead-related HTTP requests
type LeadHandler struct {
	leadUsecase usecase.LeadUsecase
}

// NewLeadHandler creates a new LeadHandler
func NewLeadHandler(leadUsecase usecase.LeadUsecase) *LeadHandler {
	return &LeadHandler{
		leadUsecase: leadUsecase,
	}
}

// GetLeads returns the authenticated user's leads
// GET /api/leads?status=contacted&limit=50&offset=0
func (h *LeadHandler) GetLeads(c *gin.Context) {
	userID := c.GetString("userID")

	status := c.Query("status")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	var statusPtr *string
	if status != "" {
		statusPtr = &status
	}

	leads, total, err := h.leadUsecase.GetUserLeads(userID, statusPtr, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leads": leads,
		"total": total,
	})
}

// GetLeadByID returns a specific lead
// GET /api/leads/:id
func (h *LeadHandler) GetLeadByID(c *gin.Context) {
	userID := c.GetString("userID")
	leadID := c.Param("id")

	lead, err := h.leadUsecase.GetLeadByID(userID, leadID)
	if err != nil {
		writeLeadError(c, err)
		return
	}

	c.JSON(http.StatusOK, lead)
}

// CreateLead creates a new lead
// POST /api/leads
func (h *LeadHandler) CreateLead(c *gin.Context) {
	userID := c.GetString("userID")

	var req leaddto.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lead, err := h.leadUsecase.CreateLead(userID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, lead)
}

// UpdateLead updates an existing lead
// PUT /api/leads/:id
func (h *LeadHandler) UpdateLead(c *gin.Context) {
	userID := c.GetString("userID")
	leadID := c.Param("id")

	var req leaddto.UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lead, err := h.leadUsecase.UpdateLead(userID, leadID, &req)
	if err != nil {
		writeLeadError(c, err)
		return
	}

	c.JSON(http.StatusOK, lead)
}

// DeleteLead deletes a lead
// DELETE /api/leads/:id
func (h *LeadHandler) DeleteLead(c *gin.Context) {
	userID := c.GetString("userID")
	leadID := c.Param("id")

	if err := h.leadUsecase.DeleteLead(userID, leadID); err != nil {
		writeLeadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "lead deleted"})
}

// LogCall records a call transcript against a lead
// POST /api/leads/:id/calls
func (h *LeadHandler) LogCall(c *gin.Context) {
	userID := c.GetString("userID")
	leadID := c.Param("id")

	var req leaddto.LogCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	callLog, err := h.leadUsecase.LogCall(c.Request.Context(), userID, leadID, &req)
	if err != nil {
		writeLeadError(c, err)
		return
	}

	c.JSON(http.StatusCreated, callLog)
}

// GetCallLogs returns the call history for a lead
// GET /api/leads/:id/calls
func (h *LeadHandler) GetCallLogs(c *gin.Context) {
	userID := c.GetString("userID")
	leadID := c.Param("id")

	logs, err := h.leadUsecase.GetCallLogs(userID, leadID)
	if err != nil {
		writeLeadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"calls": logs})
}

func writeLeadError(c *gin.Context, err error) {
	switch err.Error() {
	case "lead not found":
		c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
	case "unauthorized":
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
