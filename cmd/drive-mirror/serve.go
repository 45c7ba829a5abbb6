package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/service/maintenance"
	"github.com/vertextoedge/drive-mirror/internal/service/server"
	"github.com/vertextoedge/drive-mirror/internal/service/subscription"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the mirror service with the notification receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServe(cmd.Context())
		},
	})
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	log := a.log
	log.Info("starting drive-mirror", zap.String("version", version), zap.String("config", configPath))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscriptions are optional; without a callback address the mirror
	// only follows the periodic scan and admin triggers.
	var manager *subscription.Manager
	var subs server.SubscriptionView
	if cfg.Notify.Enabled() {
		manager = subscription.New(ctx, &subscription.Config{
			CallbackURL:   cfg.Notify.CallbackURL,
			ChannelToken:  cfg.Notify.ChannelToken,
			TTL:           cfg.Notify.GetSubscriptionTTL(),
			RenewBefore:   cfg.Notify.GetRenewBefore(),
			RenewInterval: cfg.Notify.GetRenewInterval(),
			MaxAttempts:   cfg.Notify.MaxRegisterAttempts,
			Backoff:       cfg.Notify.GetRegisterBackoff(),
		}, a.remote, a.store, a.events, nil, log.Named("subscription"))

		if err := manager.Load(); err != nil {
			log.Error("failed to restore subscriptions", zap.Error(err))
		}
		a.syncer.SetTracker(manager)
		manager.Track(a.syncer.RootRefs())
		subs = manager
	} else {
		log.Warn("notify.callback_url not set, change notifications disabled")
	}

	maintenanceService := maintenance.New(&maintenance.Config{
		CleanupInterval:  cfg.Maintenance.GetCleanupInterval(),
		TempFileMaxAge:   cfg.Maintenance.GetTempFileMaxAge(),
		RunHistoryMaxAge: cfg.Maintenance.GetRunHistoryMaxAge(),
	}, a.mirror, a.store, a.store, log.Named("maintenance"))

	httpServer := server.New(&server.Config{
		BindAddr:          cfg.HTTP.BindAddr,
		AdminUsername:     cfg.HTTP.AdminUsername,
		AdminPassword:     cfg.HTTP.AdminPassword,
		AdminSyncInterval: cfg.HTTP.GetAdminSyncInterval(),
		ChannelToken:      cfg.Notify.ChannelToken,
		AcceptedStates:    cfg.Notify.AcceptedStates,
		ReadTimeout:       cfg.HTTP.GetReadTimeout(),
		WriteTimeout:      cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:       cfg.HTTP.GetIdleTimeout(),
	}, a.store, a.syncer, subs, a.mirror, a.stats, a.events, log.Named("http"))

	// Start HTTP server
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	// Start syncer
	go func() {
		if err := a.syncer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("syncer stopped with error", zap.Error(err))
		}
	}()

	// Start subscription renewal
	if manager != nil {
		go func() {
			if err := manager.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("subscription manager stopped with error", zap.Error(err))
			}
		}()
	}

	// Start maintenance service
	go func() {
		if err := maintenanceService.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	log.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("mirror_dir", cfg.Mirror.RootDir),
		zap.Bool("notifications", manager != nil))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping services...")
	case runErr = <-serverErr:
		if runErr != nil {
			log.Error("HTTP server failed", zap.Error(runErr))
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	a.syncer.Stop()
	maintenanceService.Stop()
	if manager != nil {
		manager.Stop()
		manager.Wait()
	}
	a.syncer.Wait()

	log.Info("application stopped successfully")
	return runErr
}
