package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/domain/event"
	"github.com/vertextoedge/drive-mirror/internal/metrics"
	"github.com/vertextoedge/drive-mirror/internal/port"
	"github.com/vertextoedge/drive-mirror/internal/service/subscription"
	"github.com/vertextoedge/drive-mirror/internal/util/ratelimiter"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr          string
	AdminUsername     string
	AdminPassword     string
	AdminSyncInterval time.Duration
	ChannelToken      string
	AcceptedStates    []string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:          "0.0.0.0:8080",
		AdminUsername:     "admin",
		AdminSyncInterval: 30 * time.Second,
		AcceptedStates:    []string{"update"},
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// SyncService is the part of the syncer the HTTP surface drives
type SyncService interface {
	Dispatch(ref domain.FolderRef, trigger domain.Trigger) error
	Resolve(folderID string) (domain.FolderRef, bool)
	RootRefs() []domain.FolderRef
	Inventory(ctx context.Context, rootID string) ([]domain.RemoteFile, error)
}

// SubscriptionView exposes the subscription manager's channel table
type SubscriptionView interface {
	Lookup(channelID string) (domain.WatchSubscription, bool)
	Snapshot() []subscription.Status
	Degraded() bool
}

// Server represents the HTTP API server
type Server struct {
	config        *Config
	store         port.Store
	logger        *zap.Logger
	server        *http.Server
	notifyHandler *NotifyHandler
	adminHandler  *AdminHandler
	fileHandler   *FileHandler
	debugHandler  *DebugHandler
}

// New creates a new HTTP server. subs may be nil when notifications are
// not configured; the receiver then acknowledges and drops everything.
func New(cfg *Config, store port.Store, syncer SyncService, subs SubscriptionView, mirror port.DiskStats, stats *event.MetricsHandler, events event.EventDispatcher, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		store:  store,
		logger: logger,
	}

	s.notifyHandler = NewNotifyHandler(syncer, subs, cfg.ChannelToken, cfg.AcceptedStates, events, logger)
	s.adminHandler = NewAdminHandler(syncer, ratelimiter.New(cfg.AdminSyncInterval), logger)
	s.fileHandler = NewFileHandler(syncer, logger)
	s.debugHandler = NewDebugHandler(store, subs, mirror, stats, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	// Change notifications from the remote drive
	mux.HandleFunc("/notifications", s.notifyHandler.HandleNotification)

	// Inventory API
	mux.HandleFunc("/api/files/", s.fileHandler.HandleInventory)

	// On-demand sync, disabled without an admin password
	if cfg.AdminPassword != "" {
		adminAuth := BasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, logger)
		mux.HandleFunc("/admin/sync", adminAuth(s.adminHandler.HandleSync))
	}

	// Debug endpoints
	mux.HandleFunc("/debug/subscriptions", s.debugHandler.HandleSubscriptions)
	mux.HandleFunc("/debug/runs", s.debugHandler.HandleRuns)
	mux.HandleFunc("/debug/stats", s.debugHandler.HandleStats)

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.store.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy","time":"` + time.Now().Format(time.RFC3339) + `"}`))
}
