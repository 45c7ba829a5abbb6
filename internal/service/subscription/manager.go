package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/domain/event"
	"github.com/vertextoedge/drive-mirror/internal/metrics"
	"github.com/vertextoedge/drive-mirror/internal/port"
)

// Config contains subscription manager configuration
type Config struct {
	CallbackURL   string
	ChannelToken  string
	TTL           time.Duration
	RenewBefore   time.Duration
	RenewInterval time.Duration
	MaxAttempts   int
	Backoff       time.Duration
}

// DefaultConfig returns default subscription configuration
func DefaultConfig() *Config {
	return &Config{
		TTL:           24 * time.Hour,
		RenewBefore:   2 * time.Hour,
		RenewInterval: 30 * time.Minute,
		MaxAttempts:   5,
		Backoff:       2 * time.Second,
	}
}

// Manager owns every watch subscription. It registers channels for the
// managed folders, renews them before Drive expires them, and maps
// inbound channel ids back to folders.
type Manager struct {
	config *Config
	remote port.RemoteDrive
	repo   port.SubscriptionRepository
	events event.EventDispatcher
	logger *zap.Logger
	clock  clockwork.Clock

	mu        sync.Mutex
	managed   map[string]domain.FolderRef          // folder id -> scope
	active    map[string]*domain.WatchSubscription // folder id -> current channel
	byChannel map[string]*domain.WatchSubscription // channel id -> channel
	failures  map[string]error                     // folder id -> last registration error
	locks     map[string]*sync.Mutex               // folder id -> registration lock
	baseCtx   context.Context
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a new Manager. Registrations started before Start run under
// ctx, so cancelling it aborts them. clock may be nil for the real clock.
func New(ctx context.Context, cfg *Config, remote port.RemoteDrive, repo port.SubscriptionRepository, events event.EventDispatcher, clock clockwork.Clock, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Manager{
		config:    cfg,
		remote:    remote,
		repo:      repo,
		events:    events,
		logger:    logger,
		clock:     clock,
		managed:   make(map[string]domain.FolderRef),
		active:    make(map[string]*domain.WatchSubscription),
		byChannel: make(map[string]*domain.WatchSubscription),
		failures:  make(map[string]error),
		locks:     make(map[string]*sync.Mutex),
		baseCtx:   ctx,
	}
}

// Load restores persisted, unexpired subscriptions so channels registered
// before a restart still resolve to their folder.
func (m *Manager) Load() error {
	subs, err := m.repo.ListSubscriptions()
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}

	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, sub := range subs {
		if sub.IsExpired(now) {
			continue
		}
		m.byChannel[sub.ID] = sub
		if cur, ok := m.active[sub.FolderID]; !ok || sub.ExpiresAt.After(cur.ExpiresAt) {
			m.active[sub.FolderID] = sub
		}
		loaded++
	}

	m.logger.Info("subscriptions loaded", zap.Int("count", loaded))
	m.updateGaugesLocked(now)
	return nil
}

// Start renews subscriptions on every sweep and blocks until ctx is done
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("subscription manager already running")
	}
	m.running = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.baseCtx = ctx
	m.mu.Unlock()

	m.logger.Info("subscription manager started",
		zap.String("callback_url", m.config.CallbackURL),
		zap.Duration("ttl", m.config.TTL),
		zap.Duration("renew_interval", m.config.RenewInterval))

	if err := m.RenewAll(ctx); err != nil {
		m.logger.Error("initial subscription sweep incomplete", zap.Error(err))
	}

	ticker := m.clock.NewTicker(m.config.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			m.logger.Info("subscription manager stopped")
			return nil
		case <-ticker.Chan():
			if err := m.RenewAll(ctx); err != nil {
				m.logger.Error("subscription sweep incomplete", zap.Error(err))
			}
		}
	}
}

// Stop stops the manager
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
}

// Track adds folders to the managed set and registers channels for the
// ones without a live subscription in the background.
func (m *Manager) Track(refs []domain.FolderRef) {
	now := m.clock.Now()

	m.mu.Lock()
	ctx := m.baseCtx
	var pending []domain.FolderRef
	for _, ref := range refs {
		m.managed[ref.FolderID] = ref
		if sub, ok := m.active[ref.FolderID]; !ok || sub.NeedsRenewal(now, m.config.RenewBefore) {
			pending = append(pending, ref)
		}
	}
	m.updateGaugesLocked(now)
	m.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	for _, ref := range pending {
		m.wg.Add(1)
		go func(ref domain.FolderRef) {
			defer m.wg.Done()
			if err := m.ensure(ctx, ref); err != nil {
				m.logger.Warn("subscription not established", zap.String("folder_id", ref.FolderID), zap.Error(err))
			}
		}(ref)
	}
}

// Untrack stops managing folders and stops their channels
func (m *Manager) Untrack(folderIDs []string) {
	m.mu.Lock()
	var stale []*domain.WatchSubscription
	for _, id := range folderIDs {
		delete(m.managed, id)
		delete(m.failures, id)
		if sub, ok := m.active[id]; ok {
			stale = append(stale, sub)
			delete(m.active, id)
			delete(m.byChannel, sub.ID)
		}
	}
	m.updateGaugesLocked(m.clock.Now())
	ctx := m.baseCtx
	m.mu.Unlock()

	for _, sub := range stale {
		m.stopChannel(ctx, sub)
	}
}

// Wait blocks until background registrations started by Track finish
func (m *Manager) Wait() {
	m.wg.Wait()
}

// EnsureSubscribed adds ref to the managed set and registers a channel for
// it unless a live one is not yet due for renewal. Every registration
// attempt uses a fresh channel id. A renewed folder's previous channel is
// stopped afterwards.
func (m *Manager) EnsureSubscribed(ctx context.Context, ref domain.FolderRef) error {
	m.mu.Lock()
	m.managed[ref.FolderID] = ref
	m.mu.Unlock()
	return m.ensure(ctx, ref)
}

// ensure registers a channel for a managed folder. A folder untracked while
// its registration is in flight has the new channel stopped, not published.
func (m *Manager) ensure(ctx context.Context, ref domain.FolderRef) error {
	lock := m.folderLock(ref.FolderID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	_, managed := m.managed[ref.FolderID]
	previous := m.active[ref.FolderID]
	m.mu.Unlock()

	if !managed {
		return nil
	}
	if previous != nil && !previous.NeedsRenewal(m.clock.Now(), m.config.RenewBefore) {
		return nil
	}

	sub, attempts, err := m.register(ctx, ref)
	if err != nil {
		m.mu.Lock()
		_, managed = m.managed[ref.FolderID]
		if managed {
			m.failures[ref.FolderID] = err
			m.updateGaugesLocked(m.clock.Now())
		}
		m.mu.Unlock()
		if !managed {
			return nil
		}

		m.events.Dispatch(event.NewSubscriptionFailed(ref.FolderID, ref.FolderName, attempts, err))
		return fmt.Errorf("%w: folder %s after %d attempts: %w", domain.ErrSubscriptionFailed, ref.FolderID, attempts, err)
	}

	// save before publishing; Untrack only deletes rows of published channels
	if err := m.repo.SaveSubscription(sub); err != nil {
		m.logger.Warn("failed to persist subscription", zap.String("channel_id", sub.ID), zap.Error(err))
	}

	m.mu.Lock()
	_, managed = m.managed[ref.FolderID]
	if managed {
		m.active[ref.FolderID] = sub
		m.byChannel[sub.ID] = sub
		delete(m.failures, ref.FolderID)
		if previous != nil {
			delete(m.byChannel, previous.ID)
		}
		m.updateGaugesLocked(m.clock.Now())
	}
	m.mu.Unlock()

	if !managed {
		m.logger.Info("folder untracked during registration, stopping its channel",
			zap.String("folder_id", ref.FolderID),
			zap.String("channel_id", sub.ID))
		m.stopChannel(ctx, sub)
		return nil
	}

	m.events.Dispatch(event.NewSubscriptionRegistered(sub.ID, sub.FolderID, sub.FolderName, sub.ExpiresAt, previous != nil))

	if previous != nil {
		m.stopChannel(ctx, previous)
	}
	return nil
}

func (m *Manager) register(ctx context.Context, ref domain.FolderRef) (*domain.WatchSubscription, int, error) {
	backoff := retry.WithMaxRetries(uint64(m.config.MaxAttempts-1), retry.NewExponential(m.config.Backoff))
	attempts := 0
	var sub *domain.WatchSubscription

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		channelID := uuid.NewString()

		resp, err := m.remote.Watch(ctx, &port.WatchRequest{
			FolderID:  ref.FolderID,
			ChannelID: channelID,
			Address:   m.config.CallbackURL,
			Token:     m.config.ChannelToken,
			TTL:       m.config.TTL,
		})
		if err != nil {
			m.logger.Debug("watch registration attempt failed",
				zap.String("folder_id", ref.FolderID),
				zap.Int("attempt", attempts),
				zap.Error(err))
			return retry.RetryableError(err)
		}

		sub = &domain.WatchSubscription{
			ID:           channelID,
			FolderID:     ref.FolderID,
			FolderName:   ref.FolderName,
			RootID:       ref.RootID,
			ResourceID:   resp.ResourceID,
			RegisteredAt: m.clock.Now(),
			ExpiresAt:    resp.ExpiresAt,
		}
		return nil
	})
	return sub, attempts, err
}

func (m *Manager) stopChannel(ctx context.Context, sub *domain.WatchSubscription) {
	if err := m.remote.StopWatch(ctx, sub.ID, sub.ResourceID); err != nil {
		m.logger.Debug("failed to stop channel", zap.String("channel_id", sub.ID), zap.Error(err))
	}
	if err := m.repo.DeleteSubscription(sub.ID); err != nil {
		m.logger.Warn("failed to delete subscription", zap.String("channel_id", sub.ID), zap.Error(err))
	}
}

func (m *Manager) folderLock(folderID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[folderID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[folderID] = lock
	}
	return lock
}

// RenewAll ensures a live subscription for every managed folder
func (m *Manager) RenewAll(ctx context.Context) error {
	m.mu.Lock()
	refs := make([]domain.FolderRef, 0, len(m.managed))
	for _, ref := range m.managed {
		refs = append(refs, ref)
	}
	m.mu.Unlock()

	sort.Slice(refs, func(a, b int) bool { return refs[a].FolderID < refs[b].FolderID })

	var errs []error
	for _, ref := range refs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.ensure(ctx, ref); err != nil {
			errs = append(errs, err)
		}
	}

	if m.Degraded() {
		m.logger.Error("change notifications degraded, relying on scheduled sync",
			zap.Int("failed_folders", len(errs)))
	}
	return errors.Join(errs...)
}

// Lookup returns the live subscription registered under channelID
func (m *Manager) Lookup(channelID string) (domain.WatchSubscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.byChannel[channelID]
	if !ok || sub.IsExpired(m.clock.Now()) {
		return domain.WatchSubscription{}, false
	}
	return *sub, true
}

// Degraded returns true if a managed folder has no live subscription
func (m *Manager) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degradedLocked(m.clock.Now())
}

func (m *Manager) degradedLocked(now time.Time) bool {
	for id := range m.managed {
		sub, ok := m.active[id]
		if !ok || sub.IsExpired(now) {
			return true
		}
	}
	return false
}

func (m *Manager) updateGaugesLocked(now time.Time) {
	metrics.SubscriptionsActive.Set(float64(len(m.active)))
	if m.degradedLocked(now) {
		metrics.SubscriptionDegraded.Set(1)
	} else {
		metrics.SubscriptionDegraded.Set(0)
	}
}

// Status is a snapshot of one managed folder's subscription state
type Status struct {
	FolderID   string     `json:"folder_id"`
	FolderName string     `json:"folder_name"`
	RootID     string     `json:"root_id"`
	ChannelID  string     `json:"channel_id,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Snapshot returns the state of every managed folder, sorted by folder id
func (m *Manager) Snapshot() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]Status, 0, len(m.managed))
	for id, ref := range m.managed {
		st := Status{FolderID: id, FolderName: ref.FolderName, RootID: ref.RootID}
		if sub, ok := m.active[id]; ok {
			expires := sub.ExpiresAt
			st.ChannelID = sub.ID
			st.ExpiresAt = &expires
		}
		if err, ok := m.failures[id]; ok {
			st.LastError = err.Error()
		}
		statuses = append(statuses, st)
	}

	sort.Slice(statuses, func(a, b int) bool { return statuses[a].FolderID < statuses[b].FolderID })
	return statuses
}
