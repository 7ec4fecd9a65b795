package usecase

import (
	"log"
	"strings"
	"sync"
	"time"

	authdomain "leadmail-backend/internal/auth/domain"
	"leadmail-backend/internal/reply/domain"
	"leadmail-backend/internal/reply/repository"

	"golang.org/x/oauth2"
)

// TokenPersister stores refreshed Gmail OAuth tokens for a user. Satisfied by
// the auth usecase.
type TokenPersister interface {
	UpdateGoogleTokens(userID, accessToken, refreshToken string, expiry int64) error
}

// ReplyNotifier receives new replies as the engines persist them.
type ReplyNotifier interface {
	NotifyNewReplies(userID string, replies []*domain.Reply)
}

// EngineManager owns one SyncEngine per signed-in Google user. It is the
// bridge between the auth flow (start on sign-in, stop on logout), the push
// listener (TriggerPushForEmail) and process shutdown (StopAll).
type EngineManager struct {
	mu         sync.Mutex
	engines    map[string]*SyncEngine // keyed by user id
	emailIndex map[string]string      // lowercased email -> user id

	provider domain.MailboxProvider
	repo     repository.ReplyRepository
	cfg      EngineConfig

	tokenPersister TokenPersister
	notifier       ReplyNotifier
}

// NewEngineManager creates an empty manager.
func NewEngineManager(provider domain.MailboxProvider, repo repository.ReplyRepository, cfg EngineConfig) *EngineManager {
	return &EngineManager{
		engines:    make(map[string]*SyncEngine),
		emailIndex: make(map[string]string),
		provider:   provider,
		repo:       repo,
		cfg:        cfg,
	}
}

func (m *EngineManager) SetTokenPersister(p TokenPersister) {
	m.tokenPersister = p
}

func (m *EngineManager) SetNotifier(n ReplyNotifier) {
	m.notifier = n
}

// StartForUser creates and starts an engine for the user. An engine already
// running for the same user is restarted with the fresh tokens.
func (m *EngineManager) StartForUser(user *authdomain.User) {
	if user.AccessToken == "" {
		log.Printf("[EngineManager] User %s has no Gmail tokens, engine not started", user.ID)
		return
	}

	m.mu.Lock()
	old := m.engines[user.ID]
	delete(m.engines, user.ID)
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	userID := user.ID
	engine := NewSyncEngine(EngineParams{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
		Provider:     m.provider,
		Repo:         m.repo,
		Config:       m.cfg,
		PersistTokens: func(token *oauth2.Token) error {
			if m.tokenPersister == nil {
				return nil
			}
			return m.tokenPersister.UpdateGoogleTokens(userID, token.AccessToken, token.RefreshToken, token.Expiry.Unix())
		},
		OnNewReplies: func(replies []*domain.Reply) {
			if m.notifier != nil {
				m.notifier.NotifyNewReplies(userID, replies)
			}
		},
	})

	m.mu.Lock()
	m.engines[user.ID] = engine
	m.emailIndex[strings.ToLower(user.Email)] = user.ID
	m.mu.Unlock()

	engine.Start()
}

// StopForUser stops and discards the user's engine, if any.
func (m *EngineManager) StopForUser(userID string) {
	m.mu.Lock()
	engine := m.engines[userID]
	delete(m.engines, userID)
	for email, id := range m.emailIndex {
		if id == userID {
			delete(m.emailIndex, email)
		}
	}
	m.mu.Unlock()

	if engine != nil {
		engine.Stop()
	}
}

// Get returns the user's running engine, or nil.
func (m *EngineManager) Get(userID string) *SyncEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engines[userID]
}

// TriggerPushForEmail routes a push notification to the engine monitoring
// the given mailbox address. Unknown addresses are ignored.
func (m *EngineManager) TriggerPushForEmail(email string, historyID uint64, timestamp time.Time) {
	m.mu.Lock()
	userID, ok := m.emailIndex[strings.ToLower(email)]
	var engine *SyncEngine
	if ok {
		engine = m.engines[userID]
	}
	m.mu.Unlock()

	if engine == nil {
		log.Printf("[EngineManager] Push for unmonitored address %s ignored", email)
		return
	}
	engine.TriggerPush(historyID, timestamp)
}

// StopAll tears down every engine; used on process shutdown.
func (m *EngineManager) StopAll() {
	m.mu.Lock()
	engines := make([]*SyncEngine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.engines = make(map[string]*SyncEngine)
	m.emailIndex = make(map[string]string)
	m.mu.Unlock()

	for _, e := range engines {
		e.Stop()
	}
}
