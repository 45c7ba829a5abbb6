package event

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/metrics"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case FileMirrored:
		h.logger.Info("file mirrored",
			zap.String("root_id", e.RootID),
			zap.String("folder", e.FolderName),
			zap.String("file", e.FileName),
			zap.String("identity", e.Identity),
			zap.Int64("size", e.Size),
			zap.Bool("replaced", e.Replaced),
		)
	case FileRemoved:
		h.logger.Info("file removed",
			zap.String("root_id", e.RootID),
			zap.String("folder", e.FolderName),
			zap.String("file", e.FileName),
			zap.String("identity", e.Identity),
			zap.String("reason", e.Reason),
		)
	case FileFailed:
		h.logger.Warn("file reconcile failed",
			zap.String("root_id", e.RootID),
			zap.String("folder", e.FolderName),
			zap.String("file", e.FileName),
			zap.String("identity", e.Identity),
			zap.String("reason", e.Reason),
			zap.String("error", e.Error),
		)
	case FolderReconciled:
		h.logger.Info("folder reconciled",
			zap.String("root_id", e.RootID),
			zap.String("folder", e.FolderName),
			zap.Int("downloaded", e.Downloaded),
			zap.Int("removed", e.Removed),
			zap.Int("failed", e.Failed),
			zap.Bool("aborted", e.Aborted),
			zap.Duration("duration", e.Duration),
		)
	case SubscriptionRegistered:
		h.logger.Info("subscription registered",
			zap.String("channel_id", e.ChannelID),
			zap.String("folder_id", e.FolderID),
			zap.String("folder", e.FolderName),
			zap.Time("expires_at", e.ExpiresAt),
			zap.Bool("renewal", e.Renewal),
		)
	case SubscriptionFailed:
		h.logger.Error("subscription registration failed",
			zap.String("folder_id", e.FolderID),
			zap.String("folder", e.FolderName),
			zap.Int("attempts", e.Attempts),
			zap.String("error", e.Error),
		)
	case NotificationReceived:
		h.logger.Debug("notification received",
			zap.String("channel_id", e.ChannelID),
			zap.String("state", e.State),
			zap.String("result", e.Result),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"} // Handle all events
}

// MetricsHandler feeds events into the prometheus collectors and keeps
// process-local totals for the debug endpoints.
type MetricsHandler struct {
	filesMirrored   atomic.Int64
	filesRemoved    atomic.Int64
	filesFailed     atomic.Int64
	bytesMirrored   atomic.Int64
	notifications   atomic.Int64
	foldersAborted  atomic.Int64
	registrations   atomic.Int64
	registrationErr atomic.Int64
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case FileMirrored:
		h.filesMirrored.Add(1)
		h.bytesMirrored.Add(e.Size)
		metrics.FilesDownloadedTotal.WithLabelValues(e.RootID).Inc()
		metrics.BytesDownloadedTotal.WithLabelValues(e.RootID).Add(float64(e.Size))
	case FileRemoved:
		h.filesRemoved.Add(1)
		metrics.FilesRemovedTotal.WithLabelValues(e.RootID).Inc()
	case FileFailed:
		h.filesFailed.Add(1)
		metrics.FileFailuresTotal.WithLabelValues(e.RootID, e.Reason).Inc()
	case FolderReconciled:
		result := "ok"
		if e.Aborted {
			result = "aborted"
			h.foldersAborted.Add(1)
		}
		metrics.FolderRunsTotal.WithLabelValues(e.RootID, result).Inc()
		metrics.FolderRunDuration.WithLabelValues(e.RootID).Observe(e.Duration.Seconds())
	case NotificationReceived:
		h.notifications.Add(1)
		metrics.NotificationsTotal.WithLabelValues(e.Result).Inc()
	case SubscriptionRegistered:
		h.registrations.Add(1)
		metrics.SubscriptionRegistrationsTotal.WithLabelValues("ok").Inc()
	case SubscriptionFailed:
		h.registrationErr.Add(1)
		metrics.SubscriptionRegistrationsTotal.WithLabelValues("failed").Inc()
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		"file.mirrored",
		"file.removed",
		"file.failed",
		"folder.reconciled",
		"notification.received",
		"subscription.registered",
		"subscription.failed",
	}
}

// GetMetrics returns current metrics
func (h *MetricsHandler) GetMetrics() map[string]int64 {
	return map[string]int64{
		"files_mirrored":       h.filesMirrored.Load(),
		"files_removed":        h.filesRemoved.Load(),
		"files_failed":         h.filesFailed.Load(),
		"bytes_mirrored":       h.bytesMirrored.Load(),
		"folders_aborted":      h.foldersAborted.Load(),
		"notifications":        h.notifications.Load(),
		"subscriptions_ok":     h.registrations.Load(),
		"subscriptions_failed": h.registrationErr.Load(),
	}
}
