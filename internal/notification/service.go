package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	authrepo "leadmail-backend/internal/auth/repository"
	replyUsecase "leadmail-backend/internal/reply/usecase"
	"leadmail-backend/pkg/sse"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// MailboxNotification is the payload Gmail publishes to the Pub/Sub topic
// when a watched mailbox changes.
type MailboxNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service pulls mailbox change notifications from Pub/Sub and forwards them
// to the engine manager as sync triggers. Each accepted notification also
// reaches the UI as an SSE event.
type Service struct {
	pubsubClient *pubsub.Client
	sseManager   *sse.Manager
	userRepo     authrepo.UserRepository
	engines      *replyUsecase.EngineManager
	topicName    string
	subName      string

	// Per-user monotonic historyId so a redelivered notification is dropped
	// before it reaches the engine. Receive handlers run concurrently.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

// NewService creates the Pub/Sub listener. Subscription name follows the
// topic-sub convention.
func NewService(projectID, topicName string, sseManager *sse.Manager, userRepo authrepo.UserRepository, engines *replyUsecase.EngineManager, credentialsFile string) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &Service{
		pubsubClient:  client,
		sseManager:    sseManager,
		userRepo:      userRepo,
		engines:       engines,
		topicName:     topicName,
		subName:       topicName + "-sub",
		lastHistoryID: make(map[string]uint64),
	}, nil
}

// Start blocks receiving messages until the context is cancelled. Run it in
// its own goroutine.
func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic %s does not exist, push notifications disabled", s.topicName)
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *Service) handleMessage(msg *pubsub.Message) {
	var notification MailboxNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}

	log.Printf("[PubSub] Notification for %s (historyId: %d)", notification.EmailAddress, notification.HistoryID)

	user, err := s.userRepo.FindByEmail(notification.EmailAddress)
	if err != nil {
		log.Printf("[PubSub] Error finding user by email %s: %v", notification.EmailAddress, err)
		return
	}
	if user == nil {
		log.Printf("[PubSub] No user for email %s", notification.EmailAddress)
		return
	}

	// HistoryIds from Gmail only move forward; anything at or below the last
	// seen value is a redelivery
	s.mu.Lock()
	if last, seen := s.lastHistoryID[user.ID]; seen && notification.HistoryID <= last {
		s.mu.Unlock()
		log.Printf("[PubSub] Duplicate notification for user %s dropped (historyId %d <= %d)", user.ID, notification.HistoryID, last)
		return
	}
	s.lastHistoryID[user.ID] = notification.HistoryID
	s.mu.Unlock()

	// Hand the trigger to the user's sync engine; it runs the incremental
	// sync, persists new replies and fans out its own notifications
	s.engines.TriggerPushForEmail(notification.EmailAddress, notification.HistoryID, time.Now())

	// Tell connected tabs a sync is underway so they can refresh shortly
	s.sseManager.SendToUser(user.ID, "reply_sync", map[string]interface{}{
		"email":     notification.EmailAddress,
		"historyId": notification.HistoryID,
		"timestamp": time.Now(),
	})
}
