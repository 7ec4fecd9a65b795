package repository

import (
	"leadmail-backend/internal/reply/domain"
)

// ReplyRepository defines the persistence contract for replies, sent-message
// records and tombstones. AddReply enforces the dedup invariant: a second
// insert with the same remote id, or the same fallback key, returns
// apperrors.ErrDuplicateReply and leaves the store unchanged.
type ReplyRepository interface {
	AddReply(reply *domain.Reply) error
	GetReplies(userID string, limit, offset int) ([]*domain.Reply, int64, error)
	GetReplyByID(id string) (*domain.Reply, error)
	MarkRead(userID, replyID string) error

	// DeleteReply removes the reply and writes its tombstone in one
	// transaction
	DeleteReply(userID, replyID string) error
	GetTombstoneKeys(userID string) (map[string]struct{}, error)

	AddSentMessage(msg *domain.SentMessage) error
	GetSentMessageIDs(userID string) ([]string, error)
	PruneSentMessages(userID string, keep int) (int64, error)
	ListUserIDsWithSentMessages() ([]string, error)
}
