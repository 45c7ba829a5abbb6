package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/adapter/filesystem"
	"github.com/vertextoedge/drive-mirror/internal/adapter/gdrive"
	"github.com/vertextoedge/drive-mirror/internal/adapter/sqlite"
	"github.com/vertextoedge/drive-mirror/internal/config"
	"github.com/vertextoedge/drive-mirror/internal/domain/event"
	"github.com/vertextoedge/drive-mirror/internal/logger"
	"github.com/vertextoedge/drive-mirror/internal/service/syncer"
)

// app holds the components shared by the serve and sync commands
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	lock   *filesystem.MirrorLock
	store  *sqlite.Store
	mirror *filesystem.Manager
	remote *gdrive.Client
	events *event.InMemoryDispatcher
	stats  *event.MetricsHandler
	syncer *syncer.Syncer
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// newApp locks the mirror and wires storage, the Drive client and the syncer
func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}

	a.lock, err = filesystem.AcquireLock(cfg.Mirror.RootDir)
	if err != nil {
		log.Sync()
		return nil, err
	}

	a.mirror, err = filesystem.NewManagerWithFs(afero.NewOsFs(), cfg.Mirror.RootDir, cfg.Mirror.GetBufferSize())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create mirror store: %w", err)
	}

	dbPath := cfg.GetDatabasePath()
	a.store, err = sqlite.Open(dbPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	a.remote, err = gdrive.NewClient(ctx, &gdrive.ClientConfig{
		CredentialsFile: cfg.Drive.CredentialsFile,
		PageSize:        int64(cfg.Drive.PageSize),
	}, log.Named("gdrive"))
	if err != nil {
		a.close()
		return nil, err
	}

	a.events = event.NewInMemoryDispatcher(false)
	a.stats = event.NewMetricsHandler()
	a.events.Subscribe(event.NewLoggingHandler(log.Named("events")))
	a.events.Subscribe(a.stats)

	roots := make([]*syncer.Root, 0, len(cfg.Mirror.Roots))
	for _, rc := range cfg.Mirror.Roots {
		roots = append(roots, syncer.NewRoot(rc.FolderID, filepath.Join(cfg.Mirror.RootDir, rc.LocalDir), rc.AllowedFolders))
	}

	a.syncer = syncer.New(&syncer.Config{
		FullScanInterval:  cfg.Sync.GetFullScanInterval(),
		SyncOnStart:       cfg.Sync.SyncOnStart,
		FolderConcurrency: cfg.Mirror.FolderConcurrency,
		MediaPrefixes:     cfg.Drive.MediaPrefixes(),
		ListTimeout:       cfg.Drive.GetListTimeout(),
		FetchTimeout:      cfg.Drive.GetFetchTimeout(),
		MaxMirrorSize:     cfg.Mirror.GetMaxSizeBytes(),
		MaxDiskUsagePct:   float64(cfg.Mirror.MaxDiskUsagePercent),
	}, roots, a.remote, a.mirror, a.store, a.events, log.Named("syncer"))

	log.Info("mirror opened",
		zap.String("root_dir", cfg.Mirror.RootDir),
		zap.String("database", dbPath),
		zap.Int("roots", len(roots)))

	return a, nil
}

func (a *app) close() {
	if a.events != nil {
		a.events.Wait()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("failed to close database", zap.Error(err))
		}
	}
	if a.lock != nil {
		if err := a.lock.Release(); err != nil {
			a.log.Error("failed to release mirror lock", zap.Error(err))
		}
	}
	a.log.Sync()
}
