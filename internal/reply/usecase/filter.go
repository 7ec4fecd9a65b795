package usecase

import (
	"context"

	"leadmail-backend/internal/reply/domain"
)

// ReplyFilter decides whether an inbound message is a response to an email
// this application sent. In-Reply-To headers are unreliable across mail
// clients, so the authoritative test is thread co-membership with a recorded
// sent message.
type ReplyFilter struct {
	provider domain.MailboxProvider
}

// NewReplyFilter creates a filter backed by the given mailbox provider
func NewReplyFilter(provider domain.MailboxProvider) *ReplyFilter {
	return &ReplyFilter{provider: provider}
}

// IsReplyToUs fetches the thread's member ids and tests the intersection with
// the sent-message set. An empty sent set can never match, so the provider is
// not called at all.
func (f *ReplyFilter) IsReplyToUs(ctx context.Context, accessToken, refreshToken, threadID string, sentIDs map[string]struct{}, onTokenRefresh domain.TokenUpdateFunc) (bool, error) {
	if len(sentIDs) == 0 {
		return false, nil
	}

	memberIDs, err := f.provider.GetThreadMessageIDs(ctx, accessToken, refreshToken, threadID, onTokenRefresh)
	if err != nil {
		return false, err
	}

	for _, id := range memberIDs {
		if _, ok := sentIDs[id]; ok {
			return true, nil
		}
	}
	return false, nil
}
