package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/util/ratelimiter"
)

// AdminHandler handles on-demand sync requests
type AdminHandler struct {
	syncer  SyncService
	limiter *ratelimiter.Limiter
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(syncer SyncService, limiter *ratelimiter.Limiter, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		syncer:  syncer,
		limiter: limiter,
		logger:  logger,
	}
}

type syncAccepted struct {
	Status string   `json:"status"`
	Scopes []string `json:"scopes"`
}

// HandleSync handles POST /admin/sync[?folder=<id>]. Without a folder every
// configured root is reconciled.
func (h *AdminHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var refs []domain.FolderRef
	if folderID := r.URL.Query().Get("folder"); folderID != "" {
		ref, ok := h.syncer.Resolve(folderID)
		if !ok {
			http.Error(w, "Folder not managed", http.StatusNotFound)
			return
		}
		refs = []domain.FolderRef{ref}
	} else {
		refs = h.syncer.RootRefs()
	}

	if allowed, wait := h.limiter.Allow(); !allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(wait.Seconds()))))
		http.Error(w, "Sync recently triggered", http.StatusTooManyRequests)
		return
	}

	resp := syncAccepted{Status: "accepted"}
	for _, ref := range refs {
		if err := h.syncer.Dispatch(ref, domain.TriggerAdmin); err != nil {
			h.logger.Error("failed to dispatch admin sync",
				zap.String("root_id", ref.RootID),
				zap.String("folder_id", ref.FolderID),
				zap.Error(err))
			http.Error(w, "Sync unavailable", http.StatusServiceUnavailable)
			return
		}
		resp.Scopes = append(resp.Scopes, ref.FolderID)
	}

	h.logger.Info("admin sync dispatched", zap.Strings("scopes", resp.Scopes))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}
