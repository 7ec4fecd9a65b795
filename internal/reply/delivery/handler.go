package delivery

import (
	"net/http"
	"strconv"

	authdomain "leadmail-backend/internal/auth/domain"
	replydto "leadmail-backend/internal/reply/dto"
	"leadmail-backend/internal/reply/usecase"
	"leadmail-backend/pkg/ai"
	"leadmail-backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// ReplyHandler handles reply-related HTTP requests
type ReplyHandler struct {
	replyUsecase usecase.ReplyUsecase
}

// NewReplyHandler creates a new ReplyHandler
func NewReplyHandler(replyUsecase usecase.ReplyUsecase) *ReplyHandler {
	return &ReplyHandler{
		replyUsecase: replyUsecase,
	}
}

// GetReplies returns the user's stored replies
// GET /api/replies?limit=50&offset=0
func (h *ReplyHandler) GetReplies(c *gin.Context) {
	userID := c.GetString("userID")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	replies, total, err := h.replyUsecase.GetReplies(userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"replies": replies,
		"total":   total,
	})
}

// MarkRead marks one reply as read
// PATCH /api/replies/:id/read
func (h *ReplyHandler) MarkRead(c *gin.Context) {
	userID := c.GetString("userID")
	replyID := c.Param("id")

	if err := h.replyUsecase.MarkRead(userID, replyID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
}

// DeleteReply deletes a reply and tombstones it against re-import.
// ?trash=true also moves the mailbox message to trash.
// DELETE /api/replies/:id
func (h *ReplyHandler) DeleteReply(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)
	replyID := c.Param("id")
	alsoTrash := c.Query("trash") == "true"

	if err := h.replyUsecase.DeleteReply(c.Request.Context(), user, replyID, alsoTrash); err != nil {
		if err.Error() == "reply not found" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Reply not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reply deleted"})
}

// Refresh runs a manual sync now and reports how many replies were found
// POST /api/replies/refresh
func (h *ReplyHandler) Refresh(c *gin.Context) {
	userID := c.GetString("userID")

	n, err := h.replyUsecase.RefreshNow(c.Request.Context(), userID)
	if err != nil {
		writeSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"new": n})
}

// SyncStatus reports the engine's scheduling state
// GET /api/replies/sync-status
func (h *ReplyHandler) SyncStatus(c *gin.Context) {
	userID := c.GetString("userID")

	status, err := h.replyUsecase.SyncStatus(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

// GenerateOutreach asks the AI collaborator for an email draft
// POST /api/replies/generate
func (h *ReplyHandler) GenerateOutreach(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	var req replydto.GenerateOutreachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lead := ai.LeadContext{
		Name:    req.LeadName,
		Company: req.LeadCompany,
		Email:   req.LeadEmail,
		Notes:   req.LeadNotes,
	}

	draft, err := h.replyUsecase.GenerateOutreach(c.Request.Context(), lead, req.Instruction, user.Name, req.AttachmentNames)
	if err != nil {
		if apperrors.IsGenerationFailed(err) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "draft generation failed, try again"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, draft)
}

// SendOutreach sends an outreach email and records it for reply matching
// POST /api/replies/send
func (h *ReplyHandler) SendOutreach(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	var req replydto.SendOutreachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sent, err := h.replyUsecase.SendOutreach(c.Request.Context(), user, req.To, req.Subject, req.Body)
	if err != nil {
		writeSyncError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sent)
}

func writeSyncError(c *gin.Context, err error) {
	switch {
	case apperrors.IsAuthExpired(err):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "mailbox authorization expired, sign in with Google again"})
	case apperrors.IsRemoteUnavailable(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": "mailbox temporarily unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
