package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/port"
)

// mockMirror implements the cleanup part of port.MirrorStore for testing
type mockMirror struct {
	port.MirrorStore

	mu                   sync.Mutex
	cleanTempFilesCount  int
	cleanTempFilesErr    error
	cleanTempFilesCalled int
	lastMaxAge           time.Duration
}

func (m *mockMirror) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanTempFilesCalled++
	m.lastMaxAge = olderThan
	return m.cleanTempFilesCount, m.cleanTempFilesErr
}

// mockRepo implements port.SyncRunRepository and port.SubscriptionRepository for testing
type mockRepo struct {
	mu              sync.Mutex
	runsBefore      []time.Time
	subsBefore      []time.Time
	deleteRunsErr   error
	deleteSubsCount int
}

func (m *mockRepo) RecordRun(run *domain.SyncRun) error { return nil }
func (m *mockRepo) ListRecentRuns(limit int) ([]*port.RunRecord, error) {
	return nil, nil
}
func (m *mockRepo) DeleteRunsBefore(before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runsBefore = append(m.runsBefore, before)
	return 2, m.deleteRunsErr
}

func (m *mockRepo) SaveSubscription(sub *domain.WatchSubscription) error { return nil }
func (m *mockRepo) GetSubscription(channelID string) (*domain.WatchSubscription, error) {
	return nil, nil
}
func (m *mockRepo) ListSubscriptions() ([]*domain.WatchSubscription, error) {
	return nil, nil
}
func (m *mockRepo) DeleteSubscription(channelID string) error {
	return nil
}
func (m *mockRepo) DeleteExpiredSubscriptions(before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subsBefore = append(m.subsBefore, before)
	return m.deleteSubsCount, nil
}

func (m *mockRepo) calls() (runs, subs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runsBefore), len(m.subsBefore)
}

func TestService_New(t *testing.T) {
	logger := zap.NewNop()
	repo := &mockRepo{}

	// Test with nil config (should use defaults)
	s := New(nil, &mockMirror{}, repo, repo, logger)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.config.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", s.config.CleanupInterval, time.Hour)
	}
	if s.config.RunHistoryMaxAge != 7*24*time.Hour {
		t.Errorf("RunHistoryMaxAge = %v, want %v", s.config.RunHistoryMaxAge, 7*24*time.Hour)
	}

	// Zero values fall back to defaults
	s = New(&Config{TempFileMaxAge: 6 * time.Hour}, &mockMirror{}, repo, repo, logger)
	if s.config.TempFileMaxAge != 6*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", s.config.TempFileMaxAge, 6*time.Hour)
	}
	if s.config.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", s.config.CleanupInterval, time.Hour)
	}
}

func TestService_RunOnce(t *testing.T) {
	mirror := &mockMirror{cleanTempFilesCount: 3}
	repo := &mockRepo{deleteSubsCount: 1}

	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	s := New(&Config{TempFileMaxAge: 2 * time.Hour, RunHistoryMaxAge: 48 * time.Hour}, mirror, repo, repo, zap.NewNop())
	s.now = func() time.Time { return now }

	s.RunOnce()

	if mirror.cleanTempFilesCalled != 1 {
		t.Errorf("CleanOldTempFiles called %d times, want 1", mirror.cleanTempFilesCalled)
	}
	if mirror.lastMaxAge != 2*time.Hour {
		t.Errorf("temp max age = %v, want %v", mirror.lastMaxAge, 2*time.Hour)
	}
	if len(repo.runsBefore) != 1 || !repo.runsBefore[0].Equal(now.Add(-48*time.Hour)) {
		t.Errorf("DeleteRunsBefore = %v, want [%v]", repo.runsBefore, now.Add(-48*time.Hour))
	}
	if len(repo.subsBefore) != 1 || !repo.subsBefore[0].Equal(now) {
		t.Errorf("DeleteExpiredSubscriptions = %v, want [%v]", repo.subsBefore, now)
	}
}

func TestService_RunOnceContinuesAfterErrors(t *testing.T) {
	mirror := &mockMirror{cleanTempFilesErr: errors.New("walk failed")}
	repo := &mockRepo{deleteRunsErr: errors.New("db locked")}

	s := New(nil, mirror, repo, repo, zap.NewNop())
	s.RunOnce()

	runs, subs := repo.calls()
	if runs != 1 || subs != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", runs, subs)
	}
}

func TestService_StartStop(t *testing.T) {
	mirror := &mockMirror{}
	repo := &mockRepo{}

	cfg := &Config{
		CleanupInterval:  10 * time.Millisecond,
		TempFileMaxAge:   time.Hour,
		RunHistoryMaxAge: time.Hour,
	}
	s := New(cfg, mirror, repo, repo, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	// Start in goroutine
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	// Wait for maintenance to run at least once
	time.Sleep(50 * time.Millisecond)

	cancel()
	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	mirror.mu.Lock()
	called := mirror.cleanTempFilesCalled
	mirror.mu.Unlock()
	if called == 0 {
		t.Error("CleanOldTempFiles was not called")
	}

	runs, subs := repo.calls()
	if runs == 0 || subs == 0 {
		t.Errorf("calls = (%d, %d), want both > 0", runs, subs)
	}
}

func TestService_DoubleStart(t *testing.T) {
	repo := &mockRepo{}
	s := New(nil, &mockMirror{}, repo, repo, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Start(ctx)
	time.Sleep(10 * time.Millisecond)

	if err := s.Start(ctx); err == nil {
		t.Error("second Start() = nil, want error")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", cfg.CleanupInterval, time.Hour)
	}
	if cfg.TempFileMaxAge != 24*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", cfg.TempFileMaxAge, 24*time.Hour)
	}
	if cfg.RunHistoryMaxAge != 7*24*time.Hour {
		t.Errorf("RunHistoryMaxAge = %v, want %v", cfg.RunHistoryMaxAge, 7*24*time.Hour)
	}
}
