package api

import (
	"net/http"

	"leadmail-backend/internal/auth/delivery"
	authUsecase "leadmail-backend/internal/auth/usecase"
	leadDelivery "leadmail-backend/internal/lead/delivery"
	replyDelivery "leadmail-backend/internal/reply/delivery"
	taskDelivery "leadmail-backend/internal/task/delivery"
	"leadmail-backend/pkg/sse"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, sseManager *sse.Manager, leadHandler *leadDelivery.LeadHandler, replyHandler *replyDelivery.ReplyHandler, taskHandler *taskDelivery.TaskHandler) {
	authHandler := delivery.NewAuthHandler(authUsecase)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// SSE endpoint
		api.GET("/events", delivery.AuthMiddleware(authUsecase), func(c *gin.Context) {
			userID := c.GetString("userID")
			sseManager.ServeHTTP(c, userID)
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/google", authHandler.GoogleSignIn)
			auth.POST("/refresh", authHandler.Refresh)
			auth.GET("/me", delivery.AuthMiddleware(authUsecase), authHandler.Me)
			auth.POST("/logout", delivery.AuthMiddleware(authUsecase), authHandler.Logout)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(delivery.AuthMiddleware(authUsecase))
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
		}

		// Lead routes (protected)
		leads := api.Group("/leads")
		leads.Use(delivery.AuthMiddleware(authUsecase))
		{
			leads.GET("", leadHandler.GetLeads)
			leads.POST("", leadHandler.CreateLead)
			leads.GET("/:id", leadHandler.GetLeadByID)
			leads.PUT("/:id", leadHandler.UpdateLead)
			leads.DELETE("/:id", leadHandler.DeleteLead)
			leads.POST("/:id/calls", leadHandler.LogCall)
			leads.GET("/:id/calls", leadHandler.GetCallLogs)
		}

		// Reply routes (protected)
		replies := api.Group("/replies")
		replies.Use(delivery.AuthMiddleware(authUsecase))
		{
			replies.GET("", replyHandler.GetReplies)
			replies.PATCH("/:id/read", replyHandler.MarkRead)
			replies.DELETE("/:id", replyHandler.DeleteReply)
			replies.POST("/refresh", replyHandler.Refresh)
			replies.GET("/sync-status", replyHandler.SyncStatus)
			replies.POST("/generate", replyHandler.GenerateOutreach)
			replies.POST("/send", replyHandler.SendOutreach)
		}

		// Task routes (protected)
		tasks := api.Group("/tasks")
		tasks.Use(delivery.AuthMiddleware(authUsecase))
		{
			tasks.GET("", taskHandler.GetTasks)
			tasks.POST("", taskHandler.CreateTask)
			tasks.GET("/:id", taskHandler.GetTaskByID)
			tasks.PUT("/:id", taskHandler.UpdateTask)
			tasks.DELETE("/:id", taskHandler.DeleteTask)
			tasks.POST("/extract", taskHandler.ExtractTasks)
		}
	}
}
