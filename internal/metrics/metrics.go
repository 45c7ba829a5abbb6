package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mirror metrics
var (
	FilesDownloadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_mirror_files_downloaded_total",
			Help: "Total files written to the local mirror",
		},
		[]string{"root"},
	)

	BytesDownloadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_mirror_bytes_downloaded_total",
			Help: "Total bytes written to the local mirror",
		},
		[]string{"root"},
	)

	FilesRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_mirror_files_removed_total",
			Help: "Total files removed from the local mirror",
		},
		[]string{"root"},
	)

	FileFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_mirror_file_failures_total",
			Help: "Total per-file reconcile failures",
		},
		[]string{"root", "reason"},
	)

	FolderRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_mirror_folder_runs_total",
			Help: "Total folder reconcile runs",
		},
		[]string{"root", "result"},
	)

	FolderRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drive_mirror_folder_run_duration_seconds",
			Help:    "Time to reconcile one folder",
			Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0},
		},
		[]string{"root"},
	)
)

// Notification metrics
var (
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_mirror_notifications_total",
			Help: "Total change notifications received",
		},
		[]string{"result"},
	)

	SubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drive_mirror_subscriptions_active",
			Help: "Number of tracked watch subscriptions",
		},
	)

	SubscriptionRegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_mirror_subscription_registrations_total",
			Help: "Total watch subscription registrations",
		},
		[]string{"result"},
	)

	SubscriptionDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drive_mirror_subscription_degraded",
			Help: "1 when at least one folder has no live subscription",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_mirror_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		FilesDownloadedTotal,
		BytesDownloadedTotal,
		FilesRemovedTotal,
		FileFailuresTotal,
		FolderRunsTotal,
		FolderRunDuration,
		NotificationsTotal,
		SubscriptionsActive,
		SubscriptionRegistrationsTotal,
		SubscriptionDegraded,
		HTTPRequestsTotal,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
