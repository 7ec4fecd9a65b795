package domain

import (
	"fmt"
	"strings"
	"time"
)

// Reply is an inbound message judged to be a response to an outreach email
// this application sent. Uniqueness: RemoteMessageID when present, otherwise
// the (sender, subject, receivedAt) composite, the same key tombstones use.
type Reply struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	UserID          string    `json:"user_id" gorm:"index;not null"`
	SenderName      string    `json:"sender_name"`
	SenderAddress   string    `json:"sender_address" gorm:"index"`
	Subject         string    `json:"subject"`
	Body            string    `json:"body"`
	ReceivedAt      time.Time `json:"received_at"`
	Read            bool      `json:"read" gorm:"default:false"`
	RemoteMessageID string    `json:"remote_message_id" gorm:"index:idx_user_remote,unique,where:remote_message_id <> ''"`
	ThreadID        string    `json:"thread_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SentMessage records an outreach email this application sent. Immutable;
// used only for reply-matching by thread membership and pruned to the most
// recent N per user.
type SentMessage struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	UserID           string    `json:"user_id" gorm:"index;not null"`
	RemoteMessageID  string    `json:"remote_message_id" gorm:"index"`
	ThreadID         string    `json:"thread_id"`
	RecipientAddress string    `json:"recipient_address"`
	SentAt           time.Time `json:"sent_at" gorm:"index"`
	CreatedAt        time.Time `json:"created_at"`
}

// ReplyTombstone suppresses re-import of a user-deleted reply. A later full
// sync that re-observes the underlying message finds the tombstone and skips
// it. Tombstones never expire.
type ReplyTombstone struct {
	Key           string    `json:"key" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"index;not null"`
	SenderAddress string    `json:"sender_address"`
	Subject       string    `json:"subject"`
	ReceivedAt    time.Time `json:"received_at"`
	DeletedAt     time.Time `json:"deleted_at"`
}

var keySanitizer = strings.NewReplacer(
	".", "_", "#", "_", "$", "_", "[", "_", "]", "_", "/", "_", "|", "_",
)

// TombstoneKey builds the composite key used both to write tombstones on
// delete and to check candidates during sync. receivedAt is truncated to
// second precision so the key survives serialization round trips.
func TombstoneKey(senderAddress, subject string, receivedAt time.Time) string {
	return fmt.Sprintf("%s|%s|%d",
		keySanitizer.Replace(strings.ToLower(strings.TrimSpace(senderAddress))),
		keySanitizer.Replace(strings.TrimSpace(subject)),
		receivedAt.Unix())
}

// TombstoneKeyForReply derives the key from an existing record.
func TombstoneKeyForReply(r *Reply) string {
	return TombstoneKey(r.SenderAddress, r.Subject, r.ReceivedAt)
}
