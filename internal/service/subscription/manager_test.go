package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/port"
)

// fakeWatcher implements port.RemoteDrive, answering only watch calls
type fakeWatcher struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	ttl      time.Duration
	failures int // number of upcoming Watch calls to reject
	requests []port.WatchRequest
	stopped  []string

	// held, when set, parks the next Watch call until release is closed
	held    chan struct{}
	release chan struct{}
}

// holdNextWatch parks the next Watch call; the returned channel closes once it is parked
func (f *fakeWatcher) holdNextWatch(release chan struct{}) <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = make(chan struct{})
	f.release = release
	return f.held
}

func (f *fakeWatcher) ListFolders(ctx context.Context, parentID string) ([]domain.RemoteFolder, error) {
	return nil, nil
}

func (f *fakeWatcher) ListFiles(ctx context.Context, parentID string, mimePrefixes []string) ([]domain.RemoteFile, error) {
	return nil, nil
}

func (f *fakeWatcher) GetFileContent(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	return nil, 0, domain.ErrNotFound
}

func (f *fakeWatcher) Watch(ctx context.Context, req *port.WatchRequest) (*port.WatchResponse, error) {
	f.mu.Lock()
	held, release := f.held, f.release
	f.held, f.release = nil, nil
	f.mu.Unlock()
	if held != nil {
		close(held)
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, *req)
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("%w: watch: quota exceeded", domain.ErrRemoteUnavailable)
	}
	return &port.WatchResponse{
		ResourceID: "res-" + req.FolderID,
		ExpiresAt:  f.clock.Now().Add(f.ttl),
	}, nil
}

func (f *fakeWatcher) StopWatch(ctx context.Context, channelID, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, channelID)
	return nil
}

func (f *fakeWatcher) watchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeRepo implements port.SubscriptionRepository in memory
type fakeRepo struct {
	mu   sync.Mutex
	subs map[string]*domain.WatchSubscription
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{subs: make(map[string]*domain.WatchSubscription)}
}

func (r *fakeRepo) SaveSubscription(sub *domain.WatchSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *fakeRepo) GetSubscription(channelID string) (*domain.WatchSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[channelID], nil
}

func (r *fakeRepo) ListSubscriptions() ([]*domain.WatchSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var subs []*domain.WatchSubscription
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	return subs, nil
}

func (r *fakeRepo) DeleteSubscription(channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, channelID)
	return nil
}

func (r *fakeRepo) DeleteExpiredSubscriptions(before time.Time) (int, error) {
	return 0, nil
}

func (r *fakeRepo) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id := range r.subs {
		ids = append(ids, id)
	}
	return ids
}

// fakeClock is the part of the clockwork fake clock the tests drive
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntil(n int)
}

var logoRef = domain.FolderRef{RootID: "ROOT", FolderID: "F1", FolderName: "Logo"}

func newTestManager(t *testing.T) (*Manager, *fakeWatcher, *fakeRepo, fakeClock) {
	t.Helper()
	return newTestManagerWithContext(t, context.Background())
}

func newTestManagerWithContext(t *testing.T, ctx context.Context) (*Manager, *fakeWatcher, *fakeRepo, fakeClock) {
	t.Helper()
	var clock fakeClock = clockwork.NewFakeClockAt(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))
	remote := &fakeWatcher{clock: clock, ttl: 4 * time.Hour}
	repo := newFakeRepo()
	cfg := &Config{
		CallbackURL:   "https://mirror.example.com/notifications",
		ChannelToken:  "secret",
		TTL:           4 * time.Hour,
		RenewBefore:   time.Hour,
		RenewInterval: time.Hour,
		MaxAttempts:   3,
		Backoff:       time.Millisecond,
	}
	return New(ctx, cfg, remote, repo, nil, clock, zap.NewNop()), remote, repo, clock
}

func TestManager_EnsureSubscribedRegistersOnce(t *testing.T) {
	m, remote, repo, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.EnsureSubscribed(ctx, logoRef))
	require.NoError(t, m.EnsureSubscribed(ctx, logoRef))
	assert.Equal(t, 1, remote.watchCount(), "a fresh subscription is not re-registered")

	req := remote.requests[0]
	assert.Equal(t, "F1", req.FolderID)
	assert.Equal(t, "https://mirror.example.com/notifications", req.Address)
	assert.Equal(t, "secret", req.Token)
	assert.Equal(t, 4*time.Hour, req.TTL)

	sub, ok := m.Lookup(req.ChannelID)
	require.True(t, ok)
	assert.Equal(t, logoRef, sub.Ref())
	assert.Equal(t, "res-F1", sub.ResourceID)
	assert.Equal(t, []string{req.ChannelID}, repo.ids())
	assert.False(t, m.Degraded())
}

func TestManager_RenewalUsesFreshIDAndStopsOldChannel(t *testing.T) {
	m, remote, repo, clock := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.EnsureSubscribed(ctx, logoRef))
	oldID := remote.requests[0].ChannelID

	clock.Advance(3 * time.Hour)
	require.NoError(t, m.RenewAll(ctx))

	require.Equal(t, 2, remote.watchCount())
	newID := remote.requests[1].ChannelID
	assert.NotEqual(t, oldID, newID)
	assert.Equal(t, []string{oldID}, remote.stopped)

	_, ok := m.Lookup(oldID)
	assert.False(t, ok)
	_, ok = m.Lookup(newID)
	assert.True(t, ok)
	assert.Equal(t, []string{newID}, repo.ids())
}

func TestManager_RetriesWithBackoff(t *testing.T) {
	m, remote, _, _ := newTestManager(t)
	remote.failures = 2

	require.NoError(t, m.EnsureSubscribed(context.Background(), logoRef))
	assert.Equal(t, 3, remote.watchCount())

	ids := make(map[string]bool)
	for _, req := range remote.requests {
		ids[req.ChannelID] = true
	}
	assert.Len(t, ids, 3, "every attempt uses its own channel id")
}

func TestManager_FailureDegrades(t *testing.T) {
	m, remote, _, _ := newTestManager(t)
	remote.failures = 10

	err := m.EnsureSubscribed(context.Background(), logoRef)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSubscriptionFailed))
	assert.True(t, errors.Is(err, domain.ErrRemoteUnavailable))
	assert.Equal(t, 3, remote.watchCount())
	assert.True(t, m.Degraded())

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "F1", snap[0].FolderID)
	assert.Nil(t, snap[0].ExpiresAt)
	assert.Contains(t, snap[0].LastError, "quota exceeded")

	remote.failures = 0
	require.NoError(t, m.RenewAll(context.Background()))
	assert.False(t, m.Degraded())
	assert.Empty(t, m.Snapshot()[0].LastError)
}

func TestManager_ExpiredSubscriptionIsNotLookedUp(t *testing.T) {
	m, remote, _, clock := newTestManager(t)

	require.NoError(t, m.EnsureSubscribed(context.Background(), logoRef))
	id := remote.requests[0].ChannelID

	clock.Advance(4 * time.Hour)
	_, ok := m.Lookup(id)
	assert.False(t, ok)
	assert.True(t, m.Degraded())
}

func TestManager_LoadRestoresLiveSubscriptions(t *testing.T) {
	m, _, repo, clock := newTestManager(t)
	now := clock.Now()

	require.NoError(t, repo.SaveSubscription(&domain.WatchSubscription{
		ID: "live", FolderID: "F1", FolderName: "Logo", RootID: "ROOT", ResourceID: "res-F1",
		RegisteredAt: now.Add(-time.Hour), ExpiresAt: now.Add(3 * time.Hour),
	}))
	require.NoError(t, repo.SaveSubscription(&domain.WatchSubscription{
		ID: "dead", FolderID: "F2", FolderName: "Video", RootID: "ROOT",
		RegisteredAt: now.Add(-5 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	require.NoError(t, m.Load())

	sub, ok := m.Lookup("live")
	require.True(t, ok)
	assert.Equal(t, "Logo", sub.FolderName)
	_, ok = m.Lookup("dead")
	assert.False(t, ok)
}

func TestManager_TrackAndUntrack(t *testing.T) {
	m, remote, repo, _ := newTestManager(t)

	m.Track([]domain.FolderRef{logoRef, {RootID: "ROOT", FolderID: "F2", FolderName: "Video"}})
	m.Wait()
	assert.Equal(t, 2, remote.watchCount())
	assert.Len(t, m.Snapshot(), 2)

	// tracking again does not register again
	m.Track([]domain.FolderRef{logoRef})
	m.Wait()
	assert.Equal(t, 2, remote.watchCount())

	m.Untrack([]string{"F2"})
	assert.Len(t, m.Snapshot(), 1)
	assert.Len(t, remote.stopped, 1)
	assert.Len(t, repo.ids(), 1)
}

func TestManager_StartSweepsOnTicker(t *testing.T) {
	m, remote, _, clock := newTestManager(t)
	m.Track([]domain.FolderRef{logoRef})
	m.Wait()
	require.Equal(t, 1, remote.watchCount())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	// the initial sweep finds a fresh subscription; wait for the ticker
	clock.BlockUntil(1)
	assert.Equal(t, 1, remote.watchCount())

	clock.Advance(3 * time.Hour)
	require.Eventually(t, func() bool {
		return remote.watchCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestManager_UntrackDuringRegistration(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		wantStopped int
	}{
		{"registration succeeds", 0, 1},
		{"registration fails", 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, remote, repo, _ := newTestManager(t)
			remote.failures = tt.failures
			release := make(chan struct{})
			held := remote.holdNextWatch(release)

			m.Track([]domain.FolderRef{logoRef})
			<-held
			m.Untrack([]string{"F1"})
			close(release)
			m.Wait()

			require.NotZero(t, remote.watchCount())
			channelID := remote.requests[0].ChannelID
			assert.Len(t, remote.stopped, tt.wantStopped)
			if tt.wantStopped > 0 {
				assert.Equal(t, channelID, remote.stopped[0])
			}
			assert.Empty(t, repo.ids())
			_, ok := m.Lookup(channelID)
			assert.False(t, ok)
			assert.Empty(t, m.Snapshot())
			assert.False(t, m.Degraded())
		})
	}
}

func TestManager_RegistrationsFollowConstructionContext(t *testing.T) {
	t.Run("cancelled before track", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m, remote, repo, _ := newTestManagerWithContext(t, ctx)

		m.Track([]domain.FolderRef{logoRef})
		m.Wait()

		assert.Zero(t, remote.watchCount())
		assert.Empty(t, repo.ids())
		assert.Len(t, m.Snapshot(), 1, "the folder stays managed for the next sweep")
	})

	t.Run("cancelled during registration", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		m, remote, repo, _ := newTestManagerWithContext(t, ctx)
		remote.failures = 10
		release := make(chan struct{})
		held := remote.holdNextWatch(release)

		m.Track([]domain.FolderRef{logoRef})
		<-held
		cancel()
		close(release)
		m.Wait()

		assert.Equal(t, 1, remote.watchCount(), "no retries after shutdown")
		assert.Empty(t, repo.ids())
	})
}
