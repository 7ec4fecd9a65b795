package domain

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is invoked when the OAuth access token is refreshed so the
// caller can persist the new token.
type TokenUpdateFunc = func(token *oauth2.Token) error

// MessageStub is the lightweight listing entry returned by the mailbox.
type MessageStub struct {
	ID       string
	ThreadID string
}

// MessageDetail is a fully fetched inbound message.
type MessageDetail struct {
	ID         string
	ThreadID   string
	SenderName string
	SenderAddr string
	Subject    string
	Body       string
	MessageID  string // RFC 822 Message-ID header
	InReplyTo  string
	LabelIDs   []string
	ReceivedAt time.Time
	Unread     bool
}

// CandidateFilter narrows the server-side listing query: inbox messages not
// sent by ownerAddress, within the recency window.
type CandidateFilter struct {
	OwnerAddress string
	RecencyDays  int
	UnreadOnly   bool
	PageSize     int64
}

// HistoryEvent is a message-added entry from the incremental change log.
type HistoryEvent struct {
	MessageID string
	ThreadID  string
	LabelIDs  []string
}

// HistoryPage is the result of one ListHistorySince call.
type HistoryPage struct {
	Events          []HistoryEvent
	LatestHistoryID uint64
}

// SendResult identifies a message accepted by the mailbox for delivery.
type SendResult struct {
	RemoteMessageID string
	ThreadID        string
}

// WatchSubscription is an active push-notification registration. The mailbox
// backend expires these after 7 days; the engine renews ahead of expiry.
type WatchSubscription struct {
	HistoryID uint64
	ExpiresAt time.Time
}

// MailboxProvider wraps the remote mailbox API. Implementations hold no local
// state; every call carries the user's tokens. Errors are classified with the
// apperrors sentinels and never retried inside the provider; retry policy
// lives in the sync engine.
type MailboxProvider interface {
	ListCandidateMessages(ctx context.Context, accessToken, refreshToken string, filter CandidateFilter, pageToken string, onTokenRefresh TokenUpdateFunc) ([]MessageStub, string, error)
	GetMessageDetail(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) (*MessageDetail, error)
	GetThreadMessageIDs(ctx context.Context, accessToken, refreshToken, threadID string, onTokenRefresh TokenUpdateFunc) ([]string, error)
	ListHistorySince(ctx context.Context, accessToken, refreshToken string, historyID uint64, onTokenRefresh TokenUpdateFunc) (*HistoryPage, error)
	GetCurrentHistoryID(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (uint64, error)
	SendMessage(ctx context.Context, accessToken, refreshToken, fromName, fromEmail, to, subject, body string, onTokenRefresh TokenUpdateFunc) (*SendResult, error)
	TrashMessage(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) error
	Watch(ctx context.Context, accessToken, refreshToken, topicName string, onTokenRefresh TokenUpdateFunc) (*WatchSubscription, error)
	StopWatch(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) error
}
