package api

import (
	authUsecase "leadmail-backend/internal/auth/usecase"
	leadDelivery "leadmail-backend/internal/lead/delivery"
	leadUsecasePkg "leadmail-backend/internal/lead/usecase"
	replyDelivery "leadmail-backend/internal/reply/delivery"
	replyUsecasePkg "leadmail-backend/internal/reply/usecase"
	taskDelivery "leadmail-backend/internal/task/delivery"
	taskUsecasePkg "leadmail-backend/internal/task/usecase"
	"leadmail-backend/pkg/config"
	"leadmail-backend/pkg/sse"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase  authUsecase.AuthUsecase
	sseManager   *sse.Manager
	config       *config.Config
	leadHandler  *leadDelivery.LeadHandler
	replyHandler *replyDelivery.ReplyHandler
	taskHandler  *taskDelivery.TaskHandler
}

func NewHandler(
	authUc authUsecase.AuthUsecase,
	leadUc leadUsecasePkg.LeadUsecase,
	replyUc replyUsecasePkg.ReplyUsecase,
	taskUc taskUsecasePkg.TaskUsecase,
	sseManager *sse.Manager,
	cfg *config.Config,
) *Handler {
	return &Handler{
		authUsecase:  authUc,
		sseManager:   sseManager,
		config:       cfg,
		leadHandler:  leadDelivery.NewLeadHandler(leadUc),
		replyHandler: replyDelivery.NewReplyHandler(replyUc),
		taskHandler:  taskDelivery.NewTaskHandler(taskUc),
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.sseManager, h.leadHandler, h.replyHandler, h.taskHandler)

	return r.Run(addr)
}
