package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"leadmail-backend/internal/reply/domain"
	"leadmail-backend/internal/reply/repository"
	"leadmail-backend/pkg/apperrors"

	"golang.org/x/oauth2"
)

// EngineConfig holds the sync engine tunables. Zero values are replaced with
// the design defaults in NewSyncEngine so tests can set only what they need.
type EngineConfig struct {
	PollFloor        time.Duration
	PollCeiling      time.Duration
	BackupInterval   time.Duration
	BatchWidth       int
	RecencyDays      int
	PageSize         int64
	MaxPages         int
	WatchTopic       string // fully qualified Pub/Sub topic, empty disables push
	WatchRenewalLead time.Duration
}

func (c *EngineConfig) applyDefaults() {
	if c.PollFloor <= 0 {
		c.PollFloor = 15 * time.Second
	}
	if c.PollCeiling <= 0 {
		c.PollCeiling = 60 * time.Second
	}
	if c.BackupInterval <= 0 {
		c.BackupInterval = 5 * time.Minute
	}
	if c.BatchWidth <= 0 {
		c.BatchWidth = 5
	}
	if c.RecencyDays <= 0 {
		c.RecencyDays = 30
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
	if c.WatchRenewalLead <= 0 {
		c.WatchRenewalLead = 24 * time.Hour
	}
}

// PushTrigger is one push notification forwarded to the engine. Timestamp
// monotonicity dedups replayed deliveries.
type PushTrigger struct {
	HistoryID uint64
	Timestamp time.Time
}

// SyncResult reports one full-sync pass. NextPageToken is non-empty when the
// scan stopped at the page cap and more candidates remain.
type SyncResult struct {
	NewCount      int
	NextPageToken string
}

// EngineStatus is a read-only snapshot for the sync-status endpoint.
type EngineStatus struct {
	Watching       bool      `json:"watching"`
	WatchExpiresAt time.Time `json:"watch_expires_at,omitempty"`
	Cursor         uint64    `json:"cursor"`
	Busy           bool      `json:"busy"`
}

// EngineParams bundles the per-user dependencies for NewSyncEngine.
type EngineParams struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string

	Provider domain.MailboxProvider
	Repo     repository.ReplyRepository
	Config   EngineConfig

	// PersistTokens stores refreshed OAuth tokens; may be nil.
	PersistTokens domain.TokenUpdateFunc
	// OnNewReplies fires after a sync pass persists new replies; may be nil.
	OnNewReplies func(replies []*domain.Reply)
}

// SyncEngine monitors one user's mailbox for replies. All scheduling state
// (interval, cursor, busy flag, watch subscription) lives on the instance so
// independent engines never interfere. The top-level loop is the single
// writer of that state; overlapping sync triggers are dropped via the busy
// flag, and store-level dedup guards against double-import across instances.
type SyncEngine struct {
	userID string
	email  string

	mu           sync.Mutex // guards tokens and watch state
	accessToken  string
	refreshToken string
	watchExpiry  time.Time
	watching     bool

	provider domain.MailboxProvider
	repo     repository.ReplyRepository
	filter   *ReplyFilter
	cfg      EngineConfig

	persistTokens domain.TokenUpdateFunc
	onNewReplies  func(replies []*domain.Reply)

	cursor atomic.Uint64
	busy   atomic.Bool

	pushCh   chan PushTrigger
	lastPush time.Time // loop-local, written only by run()

	ctx      context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSyncEngine creates a stopped engine. Call Start to begin monitoring.
func NewSyncEngine(p EngineParams) *SyncEngine {
	p.Config.applyDefaults()
	return &SyncEngine{
		userID:        p.UserID,
		email:         p.Email,
		accessToken:   p.AccessToken,
		refreshToken:  p.RefreshToken,
		provider:      p.Provider,
		repo:          p.Repo,
		filter:        NewReplyFilter(p.Provider),
		cfg:           p.Config,
		persistTokens: p.PersistTokens,
		onNewReplies:  p.OnNewReplies,
		pushCh:        make(chan PushTrigger, 8),
	}
}

// Start launches the scheduling loop. Calling Start twice is a no-op.
func (e *SyncEngine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.wg.Add(1)
	go e.run()
	log.Printf("[SyncEngine] Started for user %s (%s)", e.userID, e.email)
}

// Stop tears the engine down: cancels the loop, stops timers and cancels the
// active watch best-effort. Safe to call multiple times and before Start.
func (e *SyncEngine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()

		e.mu.Lock()
		watching := e.watching
		access, refresh := e.accessToken, e.refreshToken
		e.watching = false
		e.mu.Unlock()

		if watching {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.provider.StopWatch(ctx, access, refresh, e.handleTokenRefresh); err != nil {
				log.Printf("[SyncEngine] StopWatch for user %s: %v", e.userID, err)
			}
		}
		log.Printf("[SyncEngine] Stopped for user %s", e.userID)
	})
}

// TriggerPush forwards a push notification to the scheduling loop. Never
// blocks; when the buffer is full the trigger is dropped, which is safe
// because the in-flight sync will observe the same mailbox state.
func (e *SyncEngine) TriggerPush(historyID uint64, timestamp time.Time) {
	select {
	case e.pushCh <- PushTrigger{HistoryID: historyID, Timestamp: timestamp}:
	default:
		log.Printf("[SyncEngine] Push buffer full for user %s, trigger dropped", e.userID)
	}
}

// SyncNow runs one sync pass on behalf of a user action and surfaces the
// error to the caller, unlike the background loop which only logs and backs
// off. Returns the number of new replies.
func (e *SyncEngine) SyncNow(ctx context.Context) (int, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return 0, errors.New("a sync is already in progress")
	}
	defer e.busy.Store(false)

	if e.cursor.Load() == 0 {
		res, err := e.RunFullSync(ctx)
		if err != nil {
			return 0, err
		}
		return res.NewCount, nil
	}
	return e.RunIncrementalSync(ctx)
}

// Status reports the engine's current scheduling state.
func (e *SyncEngine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineStatus{
		Watching:       e.watching,
		WatchExpiresAt: e.watchExpiry,
		Cursor:         e.cursor.Load(),
		Busy:           e.busy.Load(),
	}
}

// Cursor exposes the current history cursor, mainly for tests.
func (e *SyncEngine) Cursor() uint64 {
	return e.cursor.Load()
}

func (e *SyncEngine) run() {
	defer e.wg.Done()

	// One full sync immediately, regardless of push availability
	if e.busy.CompareAndSwap(false, true) {
		if res, err := e.RunFullSync(e.ctx); err != nil {
			log.Printf("[SyncEngine] Initial full sync for user %s: %v", e.userID, err)
		} else {
			log.Printf("[SyncEngine] Initial full sync for user %s: %d new replies", e.userID, res.NewCount)
		}
		e.busy.Store(false)
	}

	watchMode := false
	var renewCh <-chan time.Time
	var renewTimer *time.Timer

	if e.cfg.WatchTopic != "" {
		if sub, err := e.registerWatch(e.ctx); err != nil {
			log.Printf("[SyncEngine] Watch setup failed for user %s, falling back to polling: %v", e.userID, err)
		} else {
			watchMode = true
			renewTimer = time.NewTimer(time.Until(sub.ExpiresAt.Add(-e.cfg.WatchRenewalLead)))
			renewCh = renewTimer.C
		}
	}
	if renewTimer != nil {
		defer renewTimer.Stop()
	}

	interval := e.cfg.PollFloor
	if watchMode {
		interval = e.cfg.BackupInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return

		case trig := <-e.pushCh:
			if !trig.Timestamp.After(e.lastPush) {
				log.Printf("[SyncEngine] Replayed push dropped for user %s (historyId=%d)", e.userID, trig.HistoryID)
				continue
			}
			e.lastPush = trig.Timestamp
			if e.busy.CompareAndSwap(false, true) {
				if n, err := e.RunIncrementalSync(e.ctx); err != nil {
					log.Printf("[SyncEngine] Push-triggered sync for user %s: %v", e.userID, err)
				} else if n > 0 {
					log.Printf("[SyncEngine] Push-triggered sync for user %s: %d new replies", e.userID, n)
				}
				e.busy.Store(false)
			}

		case <-renewCh:
			if sub, err := e.registerWatch(e.ctx); err != nil {
				// Renewal failed: degrade to adaptive polling and retry the
				// watch after the backup interval
				log.Printf("[SyncEngine] Watch renewal failed for user %s, polling until retry: %v", e.userID, err)
				watchMode = false
				interval = e.cfg.PollFloor
				renewTimer.Reset(e.cfg.BackupInterval)
			} else {
				watchMode = true
				interval = e.cfg.BackupInterval
				renewTimer.Reset(time.Until(sub.ExpiresAt.Add(-e.cfg.WatchRenewalLead)))
			}

		case <-timer.C:
			var newCount int
			var err error
			if e.busy.CompareAndSwap(false, true) {
				newCount, err = e.syncOnce(e.ctx)
				e.busy.Store(false)
				if err != nil {
					log.Printf("[SyncEngine] Scheduled sync for user %s: %v", e.userID, err)
				}
			}
			if !watchMode {
				interval = nextPollInterval(interval, newCount, err != nil, e.cfg)
			}
			timer.Reset(interval)
			continue
		}
		// Push and renewal arms reschedule the timer too so the backup tick
		// starts counting from the most recent activity
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)
	}
}

// nextPollInterval implements the adaptive polling policy: geometric growth
// (factor 1.5) while idle, faster growth (factor 2) after an error, reset to
// the floor when replies were found, never above the ceiling.
func nextPollInterval(current time.Duration, newCount int, failed bool, cfg EngineConfig) time.Duration {
	var next time.Duration
	switch {
	case failed:
		next = current * 2
	case newCount > 0:
		return cfg.PollFloor
	default:
		next = current + current/2
	}
	if next > cfg.PollCeiling {
		next = cfg.PollCeiling
	}
	return next
}

// syncOnce picks the strategy by state: full when no cursor exists yet,
// incremental otherwise.
func (e *SyncEngine) syncOnce(ctx context.Context) (int, error) {
	if e.cursor.Load() == 0 {
		res, err := e.RunFullSync(ctx)
		if err != nil {
			return 0, err
		}
		return res.NewCount, nil
	}
	return e.RunIncrementalSync(ctx)
}

// RunFullSync scans the inbox from scratch: list candidates server-side,
// fetch details in bounded-width batches, filter by thread membership,
// skip tombstoned messages and persist the rest. The store's uniqueness
// invariant absorbs anything already imported.
func (e *SyncEngine) RunFullSync(ctx context.Context) (*SyncResult, error) {
	sentIDs, err := e.repo.GetSentMessageIDs(e.userID)
	if err != nil {
		return nil, fmt.Errorf("load sent message ids: %w", err)
	}

	// Nothing sent from this identity means nothing in the inbox can be a
	// reply to us. Skip the mailbox entirely.
	if len(sentIDs) == 0 {
		return &SyncResult{}, nil
	}

	sentSet := make(map[string]struct{}, len(sentIDs))
	for _, id := range sentIDs {
		sentSet[id] = struct{}{}
	}

	tombstones, err := e.repo.GetTombstoneKeys(e.userID)
	if err != nil {
		return nil, fmt.Errorf("load tombstones: %w", err)
	}

	access, refresh := e.tokens()

	// Grab the cursor before the scan; messages arriving mid-scan are picked
	// up by the first incremental pass
	cursor, err := e.provider.GetCurrentHistoryID(ctx, access, refresh, e.handleTokenRefresh)
	if err != nil {
		return nil, err
	}

	candidateFilter := domain.CandidateFilter{
		OwnerAddress: e.email,
		RecencyDays:  e.cfg.RecencyDays,
		PageSize:     e.cfg.PageSize,
	}

	newCount := 0
	pageToken := ""
	for page := 0; ; page++ {
		stubs, next, err := e.provider.ListCandidateMessages(ctx, access, refresh, candidateFilter, pageToken, e.handleTokenRefresh)
		if err != nil {
			return nil, err
		}

		newCount += e.processCandidates(ctx, stubs, sentSet, tombstones)

		if next == "" {
			break
		}
		if page+1 >= e.cfg.MaxPages {
			e.cursor.Store(cursor)
			return &SyncResult{NewCount: newCount, NextPageToken: next}, nil
		}
		pageToken = next
	}

	e.cursor.Store(cursor)
	return &SyncResult{NewCount: newCount}, nil
}

// RunIncrementalSync advances from the local cursor via the mailbox change
// log. Cursor expiry and any unexpected failure fall back to a full sync;
// the cursor advances to the freshly fetched value even when no new replies
// were found.
func (e *SyncEngine) RunIncrementalSync(ctx context.Context) (int, error) {
	access, refresh := e.tokens()

	current, err := e.provider.GetCurrentHistoryID(ctx, access, refresh, e.handleTokenRefresh)
	if err != nil {
		return 0, err
	}

	local := e.cursor.Load()
	if local == 0 {
		res, err := e.RunFullSync(ctx)
		if err != nil {
			return 0, err
		}
		if e.cursor.Load() == 0 {
			e.cursor.Store(current)
		}
		return res.NewCount, nil
	}

	page, err := e.provider.ListHistorySince(ctx, access, refresh, local, e.handleTokenRefresh)
	if err != nil {
		if apperrors.IsCursorExpired(err) {
			log.Printf("[SyncEngine] Cursor %d expired for user %s, running full sync", local, e.userID)
		} else if apperrors.IsAuthExpired(err) {
			return 0, err
		} else {
			// History call failed for some other reason; a full scan
			// self-heals whatever state the change log lost
			log.Printf("[SyncEngine] History fetch failed for user %s, falling back to full sync: %v", e.userID, err)
		}
		res, fullErr := e.RunFullSync(ctx)
		if fullErr != nil {
			return 0, fullErr
		}
		return res.NewCount, nil
	}

	// Cheap label pre-filter before any detail fetch: inbox additions that we
	// did not send ourselves
	var candidates []domain.MessageStub
	for _, ev := range page.Events {
		if hasLabel(ev.LabelIDs, "INBOX") && !hasLabel(ev.LabelIDs, "SENT") {
			candidates = append(candidates, domain.MessageStub{ID: ev.MessageID, ThreadID: ev.ThreadID})
		}
	}

	newCount := 0
	if len(candidates) > 0 {
		sentIDs, err := e.repo.GetSentMessageIDs(e.userID)
		if err != nil {
			return 0, fmt.Errorf("load sent message ids: %w", err)
		}
		sentSet := make(map[string]struct{}, len(sentIDs))
		for _, id := range sentIDs {
			sentSet[id] = struct{}{}
		}

		tombstones, err := e.repo.GetTombstoneKeys(e.userID)
		if err != nil {
			return 0, fmt.Errorf("load tombstones: %w", err)
		}

		newCount = e.processCandidates(ctx, candidates, sentSet, tombstones)
	}

	// Unconditional advance: an empty change window still moves the cursor
	e.cursor.Store(current)
	return newCount, nil
}

// processCandidates fetches details and applies the reply filter in batches
// of the configured width, then persists survivors. Per-item failures are
// logged and skipped; one bad message never aborts the batch.
func (e *SyncEngine) processCandidates(ctx context.Context, stubs []domain.MessageStub, sentSet map[string]struct{}, tombstones map[string]struct{}) int {
	access, refresh := e.tokens()
	newCount := 0
	var newReplies []*domain.Reply

	for start := 0; start < len(stubs); start += e.cfg.BatchWidth {
		end := start + e.cfg.BatchWidth
		if end > len(stubs) {
			end = len(stubs)
		}
		batch := stubs[start:end]
		details := make([]*domain.MessageDetail, len(batch))

		var wg sync.WaitGroup
		for i, stub := range batch {
			wg.Add(1)
			go func(i int, stub domain.MessageStub) {
				defer wg.Done()
				detail, err := e.provider.GetMessageDetail(ctx, access, refresh, stub.ID, e.handleTokenRefresh)
				if err != nil {
					log.Printf("[SyncEngine] Detail fetch for message %s: %v", stub.ID, err)
					return
				}
				ok, err := e.filter.IsReplyToUs(ctx, access, refresh, detail.ThreadID, sentSet, e.handleTokenRefresh)
				if err != nil {
					log.Printf("[SyncEngine] Thread check for message %s: %v", stub.ID, err)
					return
				}
				if ok {
					details[i] = detail
				}
			}(i, stub)
		}
		wg.Wait()

		for _, detail := range details {
			if detail == nil {
				continue
			}
			key := domain.TombstoneKey(detail.SenderAddr, detail.Subject, detail.ReceivedAt)
			if _, dead := tombstones[key]; dead {
				continue
			}

			reply := &domain.Reply{
				UserID:          e.userID,
				SenderName:      detail.SenderName,
				SenderAddress:   detail.SenderAddr,
				Subject:         detail.Subject,
				Body:            detail.Body,
				ReceivedAt:      detail.ReceivedAt,
				Read:            !detail.Unread,
				RemoteMessageID: detail.ID,
				ThreadID:        detail.ThreadID,
			}
			if err := e.repo.AddReply(reply); err != nil {
				if apperrors.IsDuplicateReply(err) {
					continue
				}
				log.Printf("[SyncEngine] Persist reply %s: %v", detail.ID, err)
				continue
			}
			newCount++
			newReplies = append(newReplies, reply)
		}
	}

	if len(newReplies) > 0 && e.onNewReplies != nil {
		e.onNewReplies(newReplies)
	}
	return newCount
}

func (e *SyncEngine) registerWatch(ctx context.Context) (*domain.WatchSubscription, error) {
	access, refresh := e.tokens()
	sub, err := e.provider.Watch(ctx, access, refresh, e.cfg.WatchTopic, e.handleTokenRefresh)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.watching = true
	e.watchExpiry = sub.ExpiresAt
	e.mu.Unlock()

	if e.cursor.Load() == 0 && sub.HistoryID > 0 {
		e.cursor.Store(sub.HistoryID)
	}
	log.Printf("[SyncEngine] Watch registered for user %s, expires %s", e.userID, sub.ExpiresAt.Format(time.RFC3339))
	return sub, nil
}

func (e *SyncEngine) tokens() (string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accessToken, e.refreshToken
}

// handleTokenRefresh keeps the in-memory tokens current and hands the new
// token to the persistence hook.
func (e *SyncEngine) handleTokenRefresh(token *oauth2.Token) error {
	e.mu.Lock()
	e.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		e.refreshToken = token.RefreshToken
	}
	e.mu.Unlock()

	if e.persistTokens != nil {
		return e.persistTokens(token)
	}
	return nil
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}
