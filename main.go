package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	api "leadmail-backend/cmd/api"
	authdomain "leadmail-backend/internal/auth/domain"
	authRepo "leadmail-backend/internal/auth/repository"
	authUsecase "leadmail-backend/internal/auth/usecase"
	leaddomain "leadmail-backend/internal/lead/domain"
	leadRepo "leadmail-backend/internal/lead/repository"
	leadUsecase "leadmail-backend/internal/lead/usecase"
	"leadmail-backend/internal/notification"
	replydomain "leadmail-backend/internal/reply/domain"
	replyRepo "leadmail-backend/internal/reply/repository"
	replyUsecase "leadmail-backend/internal/reply/usecase"
	taskdomain "leadmail-backend/internal/task/domain"
	taskRepo "leadmail-backend/internal/task/repository"
	"leadmail-backend/internal/task/scheduler"
	taskUsecase "leadmail-backend/internal/task/usecase"
	"leadmail-backend/pkg/ai"
	"leadmail-backend/pkg/config"
	"leadmail-backend/pkg/database"
	"leadmail-backend/pkg/fcm"
	"leadmail-backend/pkg/gmail"
	"leadmail-backend/pkg/sse"

	"github.com/robfig/cron/v3"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{}, &authdomain.RefreshToken{}, &authdomain.FCMToken{},
		&leaddomain.Lead{}, &leaddomain.CallLog{},
		&taskdomain.Task{},
		&replydomain.Reply{}, &replydomain.SentMessage{}, &replydomain.ReplyTombstone{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	leadRepository := leadRepo.NewGormLeadRepository(db)
	taskRepository := taskRepo.NewGormTaskRepository(db)
	replyRepository := replyRepo.NewGormReplyRepository(db)

	// Initialize SSE Manager
	sseManager := sse.NewManager()
	go sseManager.Run()

	// Initialize Gmail service
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)

	// Initialize FCM Client (optional)
	var fcmClient *fcm.Client
	if cfg.FirebaseCredentials != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
			fcmClient = nil
		}
	} else {
		log.Printf("[WARN] No Firebase credentials configured, FCM disabled")
	}

	// Initialize AI service (optional)
	var aiService ai.GeneratorService
	if cfg.OpenAIAPIKey != "" {
		aiService, err = ai.NewGeneratorService(ai.Config{
			Provider:      ai.ProviderOpenAI,
			OpenAIAPIKey:  cfg.OpenAIAPIKey,
			OpenAIBaseURL: cfg.OpenAIBaseURL,
			OpenAIModel:   cfg.OpenAIModel,
		})
		if err != nil {
			log.Printf("[WARN] Failed to initialize AI service: %v", err)
		}
	} else {
		log.Printf("[WARN] OPENAI_API_KEY not set, AI generation disabled")
	}

	// Resolve the Pub/Sub topic: short name for the listener, full resource
	// name for the Gmail watch call
	topicName := cfg.GooglePubSubTopic
	if parts := strings.Split(topicName, "/"); len(parts) > 1 {
		topicName = parts[len(parts)-1]
	}
	watchTopic := ""
	if cfg.GoogleProjectID != "" && topicName != "" {
		watchTopic = fmt.Sprintf("projects/%s/topics/%s", cfg.GoogleProjectID, topicName)
	}

	// Engine manager: one sync engine per signed-in Google user
	engineManager := replyUsecase.NewEngineManager(gmailService, replyRepository, replyUsecase.EngineConfig{
		PollFloor:        cfg.SyncPollFloor,
		PollCeiling:      cfg.SyncPollCeiling,
		BackupInterval:   cfg.SyncBackupInterval,
		BatchWidth:       cfg.SyncBatchWidth,
		RecencyDays:      cfg.SyncRecencyDays,
		WatchTopic:       watchTopic,
		WatchRenewalLead: cfg.WatchRenewalLead,
	})

	// Initialize use cases
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, fcmTokenRepo, cfg)
	authUsecaseInstance.SetSyncActivator(engineManager)
	engineManager.SetTokenPersister(authUsecaseInstance)

	replyUsecaseInstance := replyUsecase.NewReplyUsecase(
		replyRepository, engineManager, gmailService, aiService,
		sseManager, fcmClient, fcmTokenRepo, authUsecaseInstance,
	)
	engineManager.SetNotifier(replyUsecaseInstance)

	leadUsecaseInstance := leadUsecase.NewLeadUsecase(leadRepository)
	taskUsecaseInstance := taskUsecase.NewTaskUsecase(taskRepository)
	if aiService != nil {
		leadUsecaseInstance.SetGeneratorService(aiService)
		taskUsecaseInstance.SetGeneratorService(aiService)
	}
	leadUsecaseInstance.SetTaskCreator(taskUsecaseInstance)

	// Initialize Notification Service (Pub/Sub pull listener)
	if cfg.GoogleProjectID != "" {
		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, sseManager, userRepo, engineManager, cfg.GoogleCredentials)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, push notifications disabled")
	}

	// Resume reply monitoring for users who were signed in before the restart
	googleUsers, err := userRepo.ListGoogleUsers()
	if err != nil {
		log.Printf("[WARN] Failed to list Google users for sync resume: %v", err)
	} else {
		for _, user := range googleUsers {
			engineManager.StartForUser(user)
		}
		log.Printf("Resumed reply monitoring for %d users", len(googleUsers))
	}
	defer engineManager.StopAll()

	// Task reminder scheduler (FCM)
	reminderScheduler := scheduler.NewTaskReminderScheduler(taskRepository, fcmTokenRepo, fcmClient)
	reminderScheduler.Start()
	defer reminderScheduler.Stop()

	// Nightly prune of the sent-message log at 03:00
	cronRunner := cron.New()
	if _, err := cronRunner.AddFunc("0 3 * * *", func() {
		replyUsecaseInstance.PruneAllSentMessages(cfg.SentKeepCount)
	}); err != nil {
		log.Printf("[WARN] Failed to schedule sent-message prune: %v", err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	// Initialize HTTP handler and start the server
	handler := api.NewHandler(authUsecaseInstance, leadUsecaseInstance, replyUsecaseInstance, taskUsecaseInstance, sseManager, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
