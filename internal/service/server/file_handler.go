package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/domain"
)

// FileHandler serves the remote inventory of configured roots
type FileHandler struct {
	syncer SyncService
	logger *zap.Logger
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(syncer SyncService, logger *zap.Logger) *FileHandler {
	return &FileHandler{
		syncer: syncer,
		logger: logger,
	}
}

type inventoryResponse struct {
	Files []domain.RemoteFile `json:"files"`
}

// HandleInventory handles GET /api/files/{rootFolderId}
func (h *FileHandler) HandleInventory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rootID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/files/"), "/")
	if rootID == "" || strings.Contains(rootID, "/") {
		http.Error(w, "Invalid folder id", http.StatusBadRequest)
		return
	}

	files, err := h.syncer.Inventory(r.Context(), rootID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownRoot) {
			http.Error(w, "Folder not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to read inventory", zap.String("root_id", rootID), zap.Error(err))
		http.Error(w, "Failed to list files", http.StatusInternalServerError)
		return
	}

	if files == nil {
		files = []domain.RemoteFile{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(inventoryResponse{Files: files})
}
