package usecase

import (
	"context"
	"errors"
	"log"
	"time"

	authdomain "leadmail-backend/internal/auth/domain"
	authrepo "leadmail-backend/internal/auth/repository"
	"leadmail-backend/internal/reply/domain"
	"leadmail-backend/internal/reply/repository"
	"leadmail-backend/pkg/ai"
	"leadmail-backend/pkg/fcm"
	"leadmail-backend/pkg/sse"

	"golang.org/x/oauth2"
)

// ReplyUsecase exposes the reply store and the outreach send path to the
// HTTP layer, and fans new-reply events out to SSE and FCM.
type ReplyUsecase interface {
	GetReplies(userID string, limit, offset int) ([]*domain.Reply, int64, error)
	MarkRead(userID, replyID string) error

	// DeleteReply removes the reply locally and tombstones it against
	// re-import; alsoTrash additionally moves the mailbox message to trash.
	DeleteReply(ctx context.Context, user *authdomain.User, replyID string, alsoTrash bool) error

	// RefreshNow runs one sync on the user's engine and surfaces the error.
	RefreshNow(ctx context.Context, userID string) (int, error)
	SyncStatus(userID string) (*EngineStatus, error)

	GenerateOutreach(ctx context.Context, lead ai.LeadContext, instruction, senderName string, attachmentNames []string) (*ai.EmailDraft, error)
	SendOutreach(ctx context.Context, user *authdomain.User, to, subject, body string) (*domain.SentMessage, error)

	// NotifyNewReplies implements ReplyNotifier for the engine manager.
	NotifyNewReplies(userID string, replies []*domain.Reply)

	// PruneAllSentMessages trims every user's sent-message log; wired to the
	// nightly cron job.
	PruneAllSentMessages(keep int)
}

type replyUsecase struct {
	repo       repository.ReplyRepository
	manager    *EngineManager
	provider   domain.MailboxProvider
	aiService  ai.GeneratorService
	sseManager *sse.Manager
	fcmClient  *fcm.Client
	fcmRepo    authrepo.FCMTokenRepository

	tokenPersister TokenPersister
}

// NewReplyUsecase creates a new instance of replyUsecase. aiService,
// sseManager and fcmClient may be nil; the corresponding features degrade to
// no-ops.
func NewReplyUsecase(
	repo repository.ReplyRepository,
	manager *EngineManager,
	provider domain.MailboxProvider,
	aiService ai.GeneratorService,
	sseManager *sse.Manager,
	fcmClient *fcm.Client,
	fcmRepo authrepo.FCMTokenRepository,
	tokenPersister TokenPersister,
) ReplyUsecase {
	return &replyUsecase{
		repo:           repo,
		manager:        manager,
		provider:       provider,
		aiService:      aiService,
		sseManager:     sseManager,
		fcmClient:      fcmClient,
		fcmRepo:        fcmRepo,
		tokenPersister: tokenPersister,
	}
}

func (u *replyUsecase) GetReplies(userID string, limit, offset int) ([]*domain.Reply, int64, error) {
	return u.repo.GetReplies(userID, limit, offset)
}

func (u *replyUsecase) MarkRead(userID, replyID string) error {
	if err := u.repo.MarkRead(userID, replyID); err != nil {
		return err
	}
	u.emit(userID, "reply_read", map[string]string{"id": replyID})
	return nil
}

func (u *replyUsecase) DeleteReply(ctx context.Context, user *authdomain.User, replyID string, alsoTrash bool) error {
	// Grab the remote id before the record disappears
	reply, err := u.repo.GetReplyByID(replyID)
	if err != nil {
		return err
	}

	if err := u.repo.DeleteReply(user.ID, replyID); err != nil {
		return err
	}

	// Best effort: the tombstone already suppresses re-import even when the
	// mailbox copy survives
	if alsoTrash && reply != nil && reply.RemoteMessageID != "" && user.AccessToken != "" {
		onRefresh := u.refreshCallback(user.ID)
		if err := u.provider.TrashMessage(ctx, user.AccessToken, user.RefreshToken, reply.RemoteMessageID, onRefresh); err != nil {
			log.Printf("[ReplyUsecase] Trash message %s for user %s: %v", reply.RemoteMessageID, user.ID, err)
		}
	}

	u.emit(user.ID, "reply_deleted", map[string]string{"id": replyID})
	return nil
}

func (u *replyUsecase) RefreshNow(ctx context.Context, userID string) (int, error) {
	engine := u.manager.Get(userID)
	if engine == nil {
		return 0, errors.New("reply monitoring is not running for this account")
	}
	n, err := engine.SyncNow(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		u.emit(userID, "reply_sync", map[string]int{"new": n})
	}
	return n, nil
}

func (u *replyUsecase) SyncStatus(userID string) (*EngineStatus, error) {
	engine := u.manager.Get(userID)
	if engine == nil {
		return nil, errors.New("reply monitoring is not running for this account")
	}
	status := engine.Status()
	return &status, nil
}

func (u *replyUsecase) GenerateOutreach(ctx context.Context, lead ai.LeadContext, instruction, senderName string, attachmentNames []string) (*ai.EmailDraft, error) {
	if u.aiService == nil {
		return nil, errors.New("AI service not configured")
	}
	return u.aiService.GenerateOutreachEmail(ctx, lead, instruction, senderName, attachmentNames)
}

// SendOutreach sends the email through the mailbox and records it in the
// sent-message log so future inbox messages in the same thread are
// recognized as replies.
func (u *replyUsecase) SendOutreach(ctx context.Context, user *authdomain.User, to, subject, body string) (*domain.SentMessage, error) {
	if user.AccessToken == "" {
		return nil, errors.New("no mailbox credentials on file, sign in with Google first")
	}

	userID := user.ID
	result, err := u.provider.SendMessage(ctx, user.AccessToken, user.RefreshToken, user.Name, user.Email, to, subject, body, u.refreshCallback(userID))
	if err != nil {
		return nil, err
	}

	sent := &domain.SentMessage{
		UserID:           userID,
		RemoteMessageID:  result.RemoteMessageID,
		ThreadID:         result.ThreadID,
		RecipientAddress: to,
		SentAt:           time.Now(),
	}
	if err := u.repo.AddSentMessage(sent); err != nil {
		// The mail is already out; a failed log write only weakens future
		// reply matching
		log.Printf("[ReplyUsecase] Failed to record sent message %s: %v", result.RemoteMessageID, err)
		return sent, nil
	}

	u.emit(userID, "outreach_sent", sent)
	return sent, nil
}

func (u *replyUsecase) NotifyNewReplies(userID string, replies []*domain.Reply) {
	u.emit(userID, "new_replies", replies)

	if u.fcmClient == nil || u.fcmRepo == nil {
		return
	}
	tokens, err := u.fcmRepo.GetTokensByUserID(userID)
	if err != nil {
		log.Printf("[ReplyUsecase] FCM tokens for user %s: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	first := replies[0]
	title := "New reply from " + first.SenderName
	if first.SenderName == "" {
		title = "New reply from " + first.SenderAddress
	}
	if len(replies) > 1 {
		title = "You have new replies"
	}

	notification := fcm.Notification{
		Title: title,
		Body:  first.Subject,
		Data: map[string]string{
			"type":         "new_reply",
			"reply_id":     first.ID,
			"click_action": "/replies",
		},
	}

	failed, err := u.fcmClient.SendToDevices(context.Background(), tokens, notification)
	if err != nil {
		log.Printf("[ReplyUsecase] FCM push for user %s: %v", userID, err)
		return
	}
	for _, token := range failed {
		u.fcmRepo.DeleteToken(token)
	}
}

func (u *replyUsecase) PruneAllSentMessages(keep int) {
	userIDs, err := u.repo.ListUserIDsWithSentMessages()
	if err != nil {
		log.Printf("[ReplyUsecase] Sent-message prune: %v", err)
		return
	}
	for _, userID := range userIDs {
		removed, err := u.repo.PruneSentMessages(userID, keep)
		if err != nil {
			log.Printf("[ReplyUsecase] Sent-message prune for user %s: %v", userID, err)
			continue
		}
		if removed > 0 {
			log.Printf("[ReplyUsecase] Pruned %d sent-message records for user %s", removed, userID)
		}
	}
}

func (u *replyUsecase) refreshCallback(userID string) domain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		if u.tokenPersister == nil {
			return nil
		}
		return u.tokenPersister.UpdateGoogleTokens(userID, token.AccessToken, token.RefreshToken, token.Expiry.Unix())
	}
}

func (u *replyUsecase) emit(userID, eventType string, payload interface{}) {
	if u.sseManager != nil {
		u.sseManager.SendToUser(userID, eventType, payload)
	}
}
