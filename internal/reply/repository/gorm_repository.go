package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"leadmail-backend/internal/reply/domain"
	"leadmail-backend/pkg/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormReplyRepository implements ReplyRepository using GORM
type gormReplyRepository struct {
	db *gorm.DB
}

// NewGormReplyRepository creates a new GORM-based ReplyRepository
func NewGormReplyRepository(db *gorm.DB) ReplyRepository {
	return &gormReplyRepository{db: db}
}

func (r *gormReplyRepository) AddReply(reply *domain.Reply) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if reply.RemoteMessageID != "" {
			err := tx.Model(&domain.Reply{}).
				Where("user_id = ? AND remote_message_id = ?", reply.UserID, reply.RemoteMessageID).
				Count(&count).Error
			if err != nil {
				return err
			}
		} else {
			// No remote id: fall back to the composite key, second precision
			err := tx.Model(&domain.Reply{}).
				Where("user_id = ? AND remote_message_id = '' AND LOWER(sender_address) = ? AND subject = ? AND received_at BETWEEN ? AND ?",
					reply.UserID,
					strings.ToLower(reply.SenderAddress),
					reply.Subject,
					reply.ReceivedAt.Truncate(time.Second),
					reply.ReceivedAt.Truncate(time.Second).Add(time.Second-time.Nanosecond)).
				Count(&count).Error
			if err != nil {
				return err
			}
		}
		if count > 0 {
			return fmt.Errorf("%w: message already stored", apperrors.ErrDuplicateReply)
		}

		if reply.ID == "" {
			reply.ID = uuid.New().String()
		}
		reply.CreatedAt = time.Now()
		reply.UpdatedAt = time.Now()
		return tx.Create(reply).Error
	})
}

func (r *gormReplyRepository) GetReplies(userID string, limit, offset int) ([]*domain.Reply, int64, error) {
	var replies []*domain.Reply
	var total int64

	query := r.db.Model(&domain.Reply{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("received_at DESC").
		Limit(limit).Offset(offset).Find(&replies).Error

	return replies, total, err
}

func (r *gormReplyRepository) GetReplyByID(id string) (*domain.Reply, error) {
	var reply domain.Reply
	err := r.db.Where("id = ?", id).First(&reply).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reply, nil
}

func (r *gormReplyRepository) MarkRead(userID, replyID string) error {
	return r.db.Model(&domain.Reply{}).
		Where("id = ? AND user_id = ?", replyID, userID).
		Updates(map[string]interface{}{
			"read":       true,
			"updated_at": time.Now(),
		}).Error
}

func (r *gormReplyRepository) DeleteReply(userID, replyID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var reply domain.Reply
		err := tx.Where("id = ? AND user_id = ?", replyID, userID).First(&reply).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("reply not found")
			}
			return err
		}

		tombstone := &domain.ReplyTombstone{
			Key:           domain.TombstoneKeyForReply(&reply),
			UserID:        userID,
			SenderAddress: reply.SenderAddress,
			Subject:       reply.Subject,
			ReceivedAt:    reply.ReceivedAt,
			DeletedAt:     time.Now(),
		}
		// The same message deleted twice writes the same key
		if err := tx.Save(tombstone).Error; err != nil {
			return err
		}

		return tx.Delete(&domain.Reply{}, "id = ?", reply.ID).Error
	})
}

func (r *gormReplyRepository) GetTombstoneKeys(userID string) (map[string]struct{}, error) {
	var keys []string
	err := r.db.Model(&domain.ReplyTombstone{}).
		Where("user_id = ?", userID).
		Pluck("key", &keys).Error
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

func (r *gormReplyRepository) AddSentMessage(msg *domain.SentMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()
	return r.db.Create(msg).Error
}

func (r *gormReplyRepository) GetSentMessageIDs(userID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&domain.SentMessage{}).
		Where("user_id = ?", userID).
		Order("sent_at DESC").
		Pluck("remote_message_id", &ids).Error
	return ids, err
}

// PruneSentMessages keeps the most recent `keep` sent records for a user and
// deletes the rest. Returns the number of rows removed.
func (r *gormReplyRepository) PruneSentMessages(userID string, keep int) (int64, error) {
	sub := r.db.Model(&domain.SentMessage{}).
		Select("id").
		Where("user_id = ?", userID).
		Order("sent_at DESC").
		Limit(keep)

	result := r.db.Where("user_id = ? AND id NOT IN (?)", userID, sub).
		Delete(&domain.SentMessage{})
	return result.RowsAffected, result.Error
}

func (r *gormReplyRepository) ListUserIDsWithSentMessages() ([]string, error) {
	var ids []string
	err := r.db.Model(&domain.SentMessage{}).
		Distinct("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}
