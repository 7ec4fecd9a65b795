package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/mail"
	"strings"
	"time"

	replydomain "leadmail-backend/internal/reply/domain"
	"leadmail-backend/pkg/apperrors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc = replydomain.TokenUpdateFunc

type Service struct {
	clientID     string
	clientSecret string
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// getGmailService creates a Gmail service bound to the user's tokens
func (s *Service) getGmailService(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	tokenSource := config.TokenSource(ctx, token)

	// Wrap token source to detect refreshes
	wrappedSource := &notifyTokenSource{
		src:      tokenSource,
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return srv, nil
}

// classifyError maps Gmail API failures onto the sentinel taxonomy. The
// history endpoint signals an expired cursor with 404.
func classifyError(err error, historyCall bool) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return fmt.Errorf("%w: %v", apperrors.ErrAuthExpired, err)
		case gerr.Code == 403 && strings.Contains(gerr.Message, "insufficient"):
			return fmt.Errorf("%w: %v", apperrors.ErrAuthExpired, err)
		case gerr.Code == 404 && historyCall:
			return fmt.Errorf("%w: %v", apperrors.ErrCursorExpired, err)
		}
	}

	// oauth2 reports an unusable refresh token without a googleapi code
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", apperrors.ErrAuthExpired, err)
	}

	return fmt.Errorf("%w: %v", apperrors.ErrRemoteUnavailable, err)
}

// ListCandidateMessages runs the server-side inbound query: inbox messages in
// the recency window, excluding anything from the owner's own address. One
// page per call; restart from the returned page token.
func (s *Service) ListCandidateMessages(ctx context.Context, accessToken, refreshToken string, filter replydomain.CandidateFilter, pageToken string, onTokenRefresh TokenUpdateFunc) ([]replydomain.MessageStub, string, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, "", classifyError(err, false)
	}

	q := "in:inbox"
	if filter.OwnerAddress != "" {
		q += " -from:" + filter.OwnerAddress
	}
	if filter.RecencyDays > 0 {
		q += fmt.Sprintf(" newer_than:%dd", filter.RecencyDays)
	}
	if filter.UnreadOnly {
		q += " is:unread"
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 100
	}

	call := srv.Users.Messages.List("me").Q(q).MaxResults(pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, "", classifyError(err, false)
	}

	stubs := make([]replydomain.MessageStub, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		stubs = append(stubs, replydomain.MessageStub{ID: m.Id, ThreadID: m.ThreadId})
	}

	return stubs, resp.NextPageToken, nil
}

// GetMessageDetail fetches headers, decoded body and label state for one message
func (s *Service) GetMessageDetail(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) (*replydomain.MessageDetail, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, classifyError(err, false)
	}

	msg, err := srv.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err, false)
	}

	return convertMessage(msg), nil
}

// GetThreadMessageIDs returns the ids of every message in the conversation
func (s *Service) GetThreadMessageIDs(ctx context.Context, accessToken, refreshToken, threadID string, onTokenRefresh TokenUpdateFunc) ([]string, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, classifyError(err, false)
	}

	thread, err := srv.Users.Threads.Get("me", threadID).Format("minimal").Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err, false)
	}

	ids := make([]string, 0, len(thread.Messages))
	for _, m := range thread.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// ListHistorySince pages the change log from the given cursor and collects
// message-added events. Returns ErrCursorExpired when the backend no longer
// recognizes the cursor, which forces a full resync upstream.
func (s *Service) ListHistorySince(ctx context.Context, accessToken, refreshToken string, historyID uint64, onTokenRefresh TokenUpdateFunc) (*replydomain.HistoryPage, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, classifyError(err, false)
	}

	page := &replydomain.HistoryPage{LatestHistoryID: historyID}
	seen := make(map[string]bool)

	call := srv.Users.History.List("me").StartHistoryId(historyID).MaxResults(100)
	err = call.Pages(ctx, func(resp *gmail.ListHistoryResponse) error {
		if resp.HistoryId > page.LatestHistoryID {
			page.LatestHistoryID = resp.HistoryId
		}
		for _, h := range resp.History {
			if h.Id > page.LatestHistoryID {
				page.LatestHistoryID = h.Id
			}
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				page.Events = append(page.Events, replydomain.HistoryEvent{
					MessageID: added.Message.Id,
					ThreadID:  added.Message.ThreadId,
					LabelIDs:  added.Message.LabelIds,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, classifyError(err, true)
	}

	return page, nil
}

// GetCurrentHistoryID is the cheap metadata call used to adopt a fresh cursor
func (s *Service) GetCurrentHistoryID(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (uint64, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return 0, classifyError(err, false)
	}

	profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return 0, classifyError(err, false)
	}

	return profile.HistoryId, nil
}

// SendMessage sends an outreach email and returns the backend-assigned
// message and thread identifiers so the caller can record them for
// reply-matching.
func (s *Service) SendMessage(ctx context.Context, accessToken, refreshToken, fromName, fromEmail, to, subject, body string, onTokenRefresh TokenUpdateFunc) (*replydomain.SendResult, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, classifyError(err, false)
	}

	var emailMsg bytes.Buffer

	if fromName != "" && fromEmail != "" {
		encodedName := fmt.Sprintf("=?utf-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(fromName)))
		emailMsg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", encodedName, fromEmail))
	}
	emailMsg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	// Encode subject to handle non-ASCII characters (RFC 2047)
	encodedSubject := fmt.Sprintf("=?utf-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(subject)))
	emailMsg.WriteString(fmt.Sprintf("Subject: %s\r\n", encodedSubject))
	emailMsg.WriteString("MIME-Version: 1.0\r\n")
	emailMsg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	emailMsg.WriteString(body)

	msg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(emailMsg.Bytes()),
	}

	sent, err := srv.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err, false)
	}

	return &replydomain.SendResult{
		RemoteMessageID: sent.Id,
		ThreadID:        sent.ThreadId,
	}, nil
}

// TrashMessage moves a message to trash
func (s *Service) TrashMessage(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return classifyError(err, false)
	}

	modifyReq := &gmail.ModifyMessageRequest{
		AddLabelIds: []string{"TRASH"},
	}

	_, err = srv.Users.Messages.Modify("me", messageID, modifyReq).Context(ctx).Do()
	return classifyError(err, false)
}

// Watch registers push notifications for the user's inbox. Any existing watch
// is stopped first to avoid "only one user push notification client allowed".
func (s *Service) Watch(ctx context.Context, accessToken, refreshToken, topicName string, onTokenRefresh TokenUpdateFunc) (*replydomain.WatchSubscription, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, classifyError(err, false)
	}

	_ = srv.Users.Stop("me").Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}

	resp, err := srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		log.Printf("[Gmail] Watch API error: %v", err)
		return nil, classifyError(err, false)
	}
	log.Printf("[Gmail] Watch started. Expiration: %d, HistoryId: %d", resp.Expiration, resp.HistoryId)

	return &replydomain.WatchSubscription{
		HistoryID: resp.HistoryId,
		ExpiresAt: time.UnixMilli(resp.Expiration),
	}, nil
}

// StopWatch cancels push notifications for the user's inbox
func (s *Service) StopWatch(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return classifyError(err, false)
	}

	if err := srv.Users.Stop("me").Context(ctx).Do(); err != nil {
		return classifyError(err, false)
	}
	return nil
}

// Helper functions

func convertMessage(msg *gmail.Message) *replydomain.MessageDetail {
	from := getHeader(msg.Payload.Headers, "From")
	senderName, senderAddr := splitAddress(from)

	return &replydomain.MessageDetail{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		SenderName: senderName,
		SenderAddr: senderAddr,
		Subject:    getHeader(msg.Payload.Headers, "Subject"),
		Body:       extractBody(msg.Payload),
		MessageID:  getHeader(msg.Payload.Headers, "Message-ID"),
		InReplyTo:  getHeader(msg.Payload.Headers, "In-Reply-To"),
		LabelIDs:   msg.LabelIds,
		ReceivedAt: time.Unix(msg.InternalDate/1000, 0),
		Unread:     hasLabel(msg.LabelIds, "UNREAD"),
	}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// splitAddress parses "Name <email@example.com>" into its parts, decoding any
// RFC 2047 encoded display name.
func splitAddress(from string) (name, address string) {
	if addr, err := mail.ParseAddress(from); err == nil {
		name = addr.Name
		address = addr.Address
	} else {
		address = strings.TrimSpace(from)
		if idx := strings.Index(from, "<"); idx > 0 {
			name = strings.TrimSpace(from[:idx])
			address = strings.Trim(strings.TrimSpace(from[idx:]), "<>")
		}
	}
	dec := new(mime.WordDecoder)
	if decoded, err := dec.DecodeHeader(name); err == nil {
		name = decoded
	}
	if name == "" {
		name = address
	}
	return name, address
}

// extractBody prefers text/plain, falls back to text/html, walking nested
// multipart trees and decoding the base64url transfer encoding.
func extractBody(payload *gmail.MessagePart) string {
	// The payload itself may carry the body
	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(data)
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				data, err := base64.URLEncoding.DecodeString(part.Body.Data)
				if err == nil {
					switch part.MimeType {
					case "text/plain":
						if plainBody == "" {
							plainBody = string(data)
						}
					case "text/html":
						if htmlBody == "" {
							htmlBody = string(data)
						}
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody
	}
	return htmlBody
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
