package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/domain/event"
	"github.com/vertextoedge/drive-mirror/internal/port"
	"github.com/vertextoedge/drive-mirror/internal/service/subscription"
)

const defaultRunLimit = 20

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	store  port.Store
	subs   SubscriptionView
	mirror port.DiskStats
	stats  *event.MetricsHandler
	logger *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(store port.Store, subs SubscriptionView, mirror port.DiskStats, stats *event.MetricsHandler, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		store:  store,
		subs:   subs,
		mirror: mirror,
		stats:  stats,
		logger: logger,
	}
}

// HandleSubscriptions reports every managed folder's channel state
func (h *DebugHandler) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"enabled":       h.subs != nil,
		"degraded":      false,
		"subscriptions": []subscription.Status{},
	}
	if h.subs != nil {
		response["degraded"] = h.subs.Degraded()
		response["subscriptions"] = h.subs.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleRuns lists recent sync runs, newest first
func (h *DebugHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.store.ListRecentRuns(limit)
	if err != nil {
		h.logger.Error("failed to list runs", zap.Error(err))
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*port.RunRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"runs": runs})
}

// HandleStats handles debug statistics requests
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{}
	if h.stats != nil {
		response["events"] = h.stats.GetMetrics()
	}

	if h.mirror != nil {
		size, err := h.mirror.MirrorSize()
		if err != nil {
			h.logger.Error("failed to compute mirror size", zap.Error(err))
			http.Error(w, "Failed to get mirror stats", http.StatusInternalServerError)
			return
		}
		response["mirror_bytes"] = size
		response["mirror_size"] = humanize.Bytes(uint64(size))

		if usage, err := h.mirror.DiskUsage(); err != nil {
			h.logger.Warn("failed to read disk usage", zap.Error(err))
		} else {
			response["disk_used_percent"] = usage.UsedPct
			response["disk_free"] = humanize.Bytes(usage.Free)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
