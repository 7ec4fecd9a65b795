package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"leadmail-backend/internal/reply/domain"
	"leadmail-backend/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is an in-memory mailbox. Counters track which API surfaces a
// sync touched.
type fakeProvider struct {
	mu sync.Mutex

	messages map[string]*domain.MessageDetail
	threads  map[string][]string
	history  []domain.HistoryEvent
	cursor   uint64

	cursorExpired bool
	listErr       error

	listCalls    int
	detailCalls  int
	threadCalls  int
	historyCalls int
	profileCalls int
	watchCalls   int
	stopCalls    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		messages: make(map[string]*domain.MessageDetail),
		threads:  make(map[string][]string),
		cursor:   100,
	}
}

func (p *fakeProvider) addMessage(d *domain.MessageDetail) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[d.ID] = d
	p.threads[d.ThreadID] = append(p.threads[d.ThreadID], d.ID)
}

func (p *fakeProvider) addThreadMember(threadID, messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads[threadID] = append(p.threads[threadID], messageID)
}

func (p *fakeProvider) ListCandidateMessages(ctx context.Context, _, _ string, _ domain.CandidateFilter, pageToken string, _ domain.TokenUpdateFunc) ([]domain.MessageStub, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.listErr != nil {
		return nil, "", p.listErr
	}
	var stubs []domain.MessageStub
	for _, d := range p.messages {
		stubs = append(stubs, domain.MessageStub{ID: d.ID, ThreadID: d.ThreadID})
	}
	return stubs, "", nil
}

func (p *fakeProvider) GetMessageDetail(ctx context.Context, _, _, messageID string, _ domain.TokenUpdateFunc) (*domain.MessageDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detailCalls++
	d, ok := p.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: message %s not found", apperrors.ErrRemoteUnavailable, messageID)
	}
	return d, nil
}

func (p *fakeProvider) GetThreadMessageIDs(ctx context.Context, _, _, threadID string, _ domain.TokenUpdateFunc) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threadCalls++
	return p.threads[threadID], nil
}

func (p *fakeProvider) ListHistorySince(ctx context.Context, _, _ string, historyID uint64, _ domain.TokenUpdateFunc) (*domain.HistoryPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.historyCalls++
	if p.cursorExpired {
		return nil, fmt.Errorf("%w: startHistoryId %d", apperrors.ErrCursorExpired, historyID)
	}
	return &domain.HistoryPage{Events: p.history, LatestHistoryID: p.cursor}, nil
}

func (p *fakeProvider) GetCurrentHistoryID(ctx context.Context, _, _ string, _ domain.TokenUpdateFunc) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profileCalls++
	return p.cursor, nil
}

func (p *fakeProvider) SendMessage(ctx context.Context, _, _, _, _, _, _, _ string, _ domain.TokenUpdateFunc) (*domain.SendResult, error) {
	return &domain.SendResult{RemoteMessageID: "sent-1", ThreadID: "t-sent"}, nil
}

func (p *fakeProvider) TrashMessage(ctx context.Context, _, _, _ string, _ domain.TokenUpdateFunc) error {
	return nil
}

func (p *fakeProvider) Watch(ctx context.Context, _, _, _ string, _ domain.TokenUpdateFunc) (*domain.WatchSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchCalls++
	return &domain.WatchSubscription{HistoryID: p.cursor, ExpiresAt: time.Now().Add(7 * 24 * time.Hour)}, nil
}

func (p *fakeProvider) StopWatch(ctx context.Context, _, _ string, _ domain.TokenUpdateFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCalls++
	return nil
}

// fakeReplyRepo is an in-memory reply store enforcing the same uniqueness
// contract as the real one.
type fakeReplyRepo struct {
	mu         sync.Mutex
	replies    map[string]*domain.Reply // keyed by id
	remoteIDs  map[string]string        // userID|remoteID -> reply id
	tombstones map[string]struct{}
	sentIDs    []string
	nextID     int
}

func newFakeReplyRepo() *fakeReplyRepo {
	return &fakeReplyRepo{
		replies:    make(map[string]*domain.Reply),
		remoteIDs:  make(map[string]string),
		tombstones: make(map[string]struct{}),
	}
}

func (r *fakeReplyRepo) AddReply(reply *domain.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reply.RemoteMessageID != "" {
		key := reply.UserID + "|" + reply.RemoteMessageID
		if _, exists := r.remoteIDs[key]; exists {
			return apperrors.ErrDuplicateReply
		}
		r.remoteIDs[key] = reply.ID
	} else {
		fallback := domain.TombstoneKeyForReply(reply)
		for _, existing := range r.replies {
			if existing.UserID == reply.UserID && existing.RemoteMessageID == "" &&
				domain.TombstoneKeyForReply(existing) == fallback {
				return apperrors.ErrDuplicateReply
			}
		}
	}

	r.nextID++
	if reply.ID == "" {
		reply.ID = fmt.Sprintf("r%d", r.nextID)
	}
	r.replies[reply.ID] = reply
	return nil
}

func (r *fakeReplyRepo) GetReplies(userID string, limit, offset int) ([]*domain.Reply, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Reply
	for _, reply := range r.replies {
		if reply.UserID == userID {
			out = append(out, reply)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeReplyRepo) GetReplyByID(id string) (*domain.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replies[id], nil
}

func (r *fakeReplyRepo) MarkRead(userID, replyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reply, ok := r.replies[replyID]; ok && reply.UserID == userID {
		reply.Read = true
	}
	return nil
}

func (r *fakeReplyRepo) DeleteReply(userID, replyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reply, ok := r.replies[replyID]
	if !ok || reply.UserID != userID {
		return fmt.Errorf("reply not found")
	}
	r.tombstones[domain.TombstoneKeyForReply(reply)] = struct{}{}
	delete(r.replies, replyID)
	delete(r.remoteIDs, userID+"|"+reply.RemoteMessageID)
	return nil
}

func (r *fakeReplyRepo) GetTombstoneKeys(userID string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{}, len(r.tombstones))
	for k := range r.tombstones {
		out[k] = struct{}{}
	}
	return out, nil
}

func (r *fakeReplyRepo) AddSentMessage(msg *domain.SentMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentIDs = append(r.sentIDs, msg.RemoteMessageID)
	return nil
}

func (r *fakeReplyRepo) GetSentMessageIDs(userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sentIDs...), nil
}

func (r *fakeReplyRepo) PruneSentMessages(userID string, keep int) (int64, error) {
	return 0, nil
}

func (r *fakeReplyRepo) ListUserIDsWithSentMessages() ([]string, error) {
	return []string{"u1"}, nil
}

func (r *fakeReplyRepo) replyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

func newTestEngine(provider *fakeProvider, repo *fakeReplyRepo, cfg EngineConfig) *SyncEngine {
	return NewSyncEngine(EngineParams{
		UserID:       "u1",
		Email:        "me@example.com",
		AccessToken:  "access",
		RefreshToken: "refresh",
		Provider:     provider,
		Repo:         repo,
		Config:       cfg,
	})
}

func TestFullSyncEmptySentSetSkipsMailbox(t *testing.T) {
	provider := newFakeProvider()
	provider.addMessage(&domain.MessageDetail{ID: "m2", ThreadID: "t1", SenderAddr: "client@x.com"})
	repo := newFakeReplyRepo()

	engine := newTestEngine(provider, repo, EngineConfig{})

	res, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewCount)
	assert.Equal(t, 0, provider.listCalls, "mailbox must not be queried with an empty sent set")
	assert.Equal(t, 0, provider.profileCalls)
}

func TestFullSyncImportsReplyOnce(t *testing.T) {
	provider := newFakeProvider()
	received := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	provider.addThreadMember("t1", "m1")
	provider.addMessage(&domain.MessageDetail{
		ID: "m2", ThreadID: "t1",
		SenderAddr: "client@x.com", SenderName: "Client",
		Subject: "Re: Offer", Body: "Sounds good",
		ReceivedAt: received, Unread: true,
	})

	repo := newFakeReplyRepo()
	repo.sentIDs = []string{"m1"}

	engine := newTestEngine(provider, repo, EngineConfig{})

	res, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewCount)
	require.Equal(t, 1, repo.replyCount())

	replies, _, err := repo.GetReplies("u1", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, "client@x.com", replies[0].SenderAddress)
	assert.Equal(t, "Re: Offer", replies[0].Subject)

	// The same candidate list on a second pass yields nothing new
	res, err = engine.RunFullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewCount)
	assert.Equal(t, 1, repo.replyCount())
}

func TestFullSyncFiltersOutForeignThreads(t *testing.T) {
	provider := newFakeProvider()
	provider.addMessage(&domain.MessageDetail{
		ID: "m3", ThreadID: "t2",
		SenderAddr: "stranger@y.com", Subject: "Newsletter",
	})

	repo := newFakeReplyRepo()
	repo.sentIDs = []string{"m1"}

	engine := newTestEngine(provider, repo, EngineConfig{})

	res, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewCount)
	assert.Equal(t, 0, repo.replyCount())
}

func TestTombstoneSuppressesReimport(t *testing.T) {
	provider := newFakeProvider()
	received := time.Date(2026, 8, 21, 9, 30, 0, 0, time.UTC)
	provider.addThreadMember("t1", "m1")
	provider.addMessage(&domain.MessageDetail{
		ID: "m2", ThreadID: "t1",
		SenderAddr: "client@x.com", Subject: "Re: Offer", ReceivedAt: received,
	})

	repo := newFakeReplyRepo()
	repo.sentIDs = []string{"m1"}

	engine := newTestEngine(provider, repo, EngineConfig{})

	res, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.NewCount)

	replies, _, err := repo.GetReplies("u1", 50, 0)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteReply("u1", replies[0].ID))
	require.Equal(t, 0, repo.replyCount())

	// Re-observing the same underlying message must not resurrect it
	res, err = engine.RunFullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewCount)
	assert.Equal(t, 0, repo.replyCount())
}

func TestIncrementalCursorMonotonicity(t *testing.T) {
	provider := newFakeProvider()
	repo := newFakeReplyRepo()
	repo.sentIDs = []string{"m1"}

	engine := newTestEngine(provider, repo, EngineConfig{})

	_, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(100), engine.Cursor())

	for i := 1; i <= 5; i++ {
		provider.mu.Lock()
		provider.cursor = 100 + uint64(i)
		provider.mu.Unlock()

		_, err := engine.RunIncrementalSync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(100+i), engine.Cursor(), "cursor must track the freshest value")
	}
}

func TestIncrementalAdvancesCursorWithoutNewReplies(t *testing.T) {
	provider := newFakeProvider()
	repo := newFakeReplyRepo()
	repo.sentIDs = []string{"m1"}

	engine := newTestEngine(provider, repo, EngineConfig{})
	_, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	provider.mu.Lock()
	provider.cursor = 250
	provider.history = nil
	provider.mu.Unlock()

	n, err := engine.RunIncrementalSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, uint64(250), engine.Cursor())
}

func TestExpiredCursorFallsBackToFullSync(t *testing.T) {
	provider := newFakeProvider()
	repo := newFakeReplyRepo()
	repo.sentIDs = []string{"m1"}

	engine := newTestEngine(provider, repo, EngineConfig{})
	_, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)
	listCallsBefore := provider.listCalls

	provider.mu.Lock()
	provider.cursorExpired = true
	provider.cursor = 300
	provider.mu.Unlock()

	n, err := engine.RunIncrementalSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Greater(t, provider.listCalls, listCallsBefore, "expired cursor must trigger a full scan")
	assert.NotZero(t, engine.Cursor())
	assert.Equal(t, uint64(300), engine.Cursor())
}

func TestIncrementalLabelPrefilter(t *testing.T) {
	provider := newFakeProvider()
	received := time.Date(2026, 8, 22, 14, 0, 0, 0, time.UTC)
	provider.addThreadMember("t1", "m1")
	provider.addMessage(&domain.MessageDetail{
		ID: "m2", ThreadID: "t1",
		SenderAddr: "client@x.com", Subject: "Re: Offer", ReceivedAt: received,
	})

	repo := newFakeReplyRepo()
	repo.sentIDs = []string{"m1"}

	engine := newTestEngine(provider, repo, EngineConfig{})
	_, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, repo.replyCount())
	detailCallsBefore := provider.detailCalls

	provider.mu.Lock()
	provider.cursor = 150
	provider.history = []domain.HistoryEvent{
		// Our own outgoing mail: label pre-filter must drop it without a
		// detail fetch
		{MessageID: "m9", ThreadID: "t9", LabelIDs: []string{"SENT"}},
		// Not in the inbox at all
		{MessageID: "m10", ThreadID: "t10", LabelIDs: []string{"DRAFT"}},
	}
	provider.mu.Unlock()

	n, err := engine.RunIncrementalSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, detailCallsBefore, provider.detailCalls)
}

func TestIncrementalImportsInboxAddition(t *testing.T) {
	provider := newFakeProvider()
	received := time.Date(2026, 8, 23, 8, 0, 0, 0, time.UTC)
	provider.addThreadMember("t1", "m1")

	repo := newFakeReplyRepo()
	repo.sentIDs = []string{"m1"}

	engine := newTestEngine(provider, repo, EngineConfig{})
	_, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	provider.addMessage(&domain.MessageDetail{
		ID: "m2", ThreadID: "t1",
		SenderAddr: "client@x.com", Subject: "Re: Offer", ReceivedAt: received,
	})
	provider.mu.Lock()
	provider.cursor = 120
	provider.history = []domain.HistoryEvent{
		{MessageID: "m2", ThreadID: "t1", LabelIDs: []string{"INBOX", "UNREAD"}},
	}
	provider.mu.Unlock()

	n, err := engine.RunIncrementalSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, repo.replyCount())
	assert.Equal(t, uint64(120), engine.Cursor())

	// A replayed history window does not double-import
	n, err = engine.RunIncrementalSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, repo.replyCount())
}

func TestNextPollIntervalBackoff(t *testing.T) {
	cfg := EngineConfig{PollFloor: 10 * time.Second, PollCeiling: 60 * time.Second}

	// Three consecutive idle polls: I * 1.5^3, capped at the ceiling
	interval := 10 * time.Second
	for i := 0; i < 3; i++ {
		interval = nextPollInterval(interval, 0, false, cfg)
	}
	assert.Equal(t, 33750*time.Millisecond, interval)

	// Growth stops at the ceiling
	for i := 0; i < 10; i++ {
		interval = nextPollInterval(interval, 0, false, cfg)
	}
	assert.Equal(t, 60*time.Second, interval)

	// A poll that found replies resets to the floor
	assert.Equal(t, 10*time.Second, nextPollInterval(interval, 3, false, cfg))

	// Errors back off twice as fast
	assert.Equal(t, 20*time.Second, nextPollInterval(10*time.Second, 0, true, cfg))
	assert.Equal(t, 60*time.Second, nextPollInterval(40*time.Second, 0, true, cfg))
}

func TestSyncNowSurfacesBusy(t *testing.T) {
	provider := newFakeProvider()
	repo := newFakeReplyRepo()

	engine := newTestEngine(provider, repo, EngineConfig{})
	engine.busy.Store(true)

	_, err := engine.SyncNow(context.Background())
	require.Error(t, err)

	engine.busy.Store(false)
	n, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStopIsIdempotent(t *testing.T) {
	provider := newFakeProvider()
	repo := newFakeReplyRepo()

	engine := newTestEngine(provider, repo, EngineConfig{
		PollFloor:   time.Hour,
		PollCeiling: 2 * time.Hour,
	})

	engine.Start()
	engine.Stop()
	engine.Stop()

	// Stop before Start must not panic either
	fresh := newTestEngine(provider, repo, EngineConfig{})
	fresh.Stop()
	fresh.Stop()
}

func TestPushReplayIsDeduplicated(t *testing.T) {
	provider := newFakeProvider()
	repo := newFakeReplyRepo()
	repo.sentIDs = []string{"m1"}

	// Long floor so only pushes drive syncs during the test window
	engine := newTestEngine(provider, repo, EngineConfig{
		PollFloor:   time.Hour,
		PollCeiling: 2 * time.Hour,
	})

	engine.Start()
	defer engine.Stop()

	// Wait for the initial full sync to settle
	require.Eventually(t, func() bool {
		return engine.Cursor() != 0
	}, 2*time.Second, 10*time.Millisecond)

	provider.mu.Lock()
	historyBefore := provider.historyCalls
	provider.mu.Unlock()

	ts := time.Now()
	engine.TriggerPush(200, ts)

	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return provider.historyCalls == historyBefore+1
	}, 2*time.Second, 10*time.Millisecond)

	// Same timestamp again: a replayed delivery, must not trigger another sync
	engine.TriggerPush(200, ts)
	time.Sleep(200 * time.Millisecond)

	provider.mu.Lock()
	assert.Equal(t, historyBefore+1, provider.historyCalls)
	provider.mu.Unlock()

	// A genuinely newer push goes through
	engine.TriggerPush(201, ts.Add(time.Second))
	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return provider.historyCalls == historyBefore+2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchModeRegistersAndStops(t *testing.T) {
	provider := newFakeProvider()
	repo := newFakeReplyRepo()
	repo.sentIDs = []string{"m1"}

	engine := newTestEngine(provider, repo, EngineConfig{
		PollFloor:      time.Hour,
		PollCeiling:    2 * time.Hour,
		BackupInterval: time.Hour,
		WatchTopic:     "projects/p/topics/mail-updates",
	})

	engine.Start()

	require.Eventually(t, func() bool {
		return engine.Status().Watching
	}, 2*time.Second, 10*time.Millisecond)

	engine.Stop()

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, 1, provider.watchCalls)
	assert.Equal(t, 1, provider.stopCalls, "teardown must cancel the watch")
}
