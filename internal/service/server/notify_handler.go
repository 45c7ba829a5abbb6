package server

import (
	"crypto/subtle"
	"io"
	"net/http"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/domain/event"
)

// Headers set by the remote drive on every change notification
const (
	HeaderChannelID     = "X-Goog-Channel-ID"
	HeaderChannelToken  = "X-Goog-Channel-Token"
	HeaderResourceID    = "X-Goog-Resource-ID"
	HeaderResourceState = "X-Goog-Resource-State"
)

// Notification outcomes, reported in events and metrics
const (
	ResultDispatched     = "dispatched"
	ResultIgnored        = "ignored"
	ResultUnknownChannel = "unknown_channel"
	ResultRejected       = "rejected"
)

// NotifyHandler receives change notifications. It always acknowledges
// with 200 so the remote drive does not redeliver.
type NotifyHandler struct {
	syncer   SyncService
	subs     SubscriptionView
	token    string
	accepted mapset.Set[string]
	events   event.EventDispatcher
	logger   *zap.Logger
}

// NewNotifyHandler creates a new NotifyHandler
func NewNotifyHandler(syncer SyncService, subs SubscriptionView, token string, acceptedStates []string, events event.EventDispatcher, logger *zap.Logger) *NotifyHandler {
	if events == nil {
		events = event.NewNullDispatcher()
	}
	return &NotifyHandler{
		syncer:   syncer,
		subs:     subs,
		token:    token,
		accepted: mapset.NewSet(acceptedStates...),
		events:   events,
		logger:   logger,
	}
}

// HandleNotification handles POST /notifications
func (h *NotifyHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	io.Copy(io.Discard, io.LimitReader(r.Body, 64*1024))

	channelID := r.Header.Get(HeaderChannelID)
	state := r.Header.Get(HeaderResourceState)

	result := h.route(channelID, state, r.Header)
	h.events.Dispatch(event.NewNotificationReceived(channelID, state, result))

	w.WriteHeader(http.StatusOK)
}

func (h *NotifyHandler) route(channelID, state string, header http.Header) string {
	if channelID == "" {
		return ResultRejected
	}

	if h.subs == nil {
		return ResultUnknownChannel
	}

	sub, ok := h.subs.Lookup(channelID)
	if !ok {
		return ResultUnknownChannel
	}

	if h.token != "" && subtle.ConstantTimeCompare([]byte(header.Get(HeaderChannelToken)), []byte(h.token)) != 1 {
		h.logger.Warn("notification with bad channel token",
			zap.String("channel_id", channelID),
			zap.String("folder_id", sub.FolderID))
		return ResultRejected
	}

	if resourceID := header.Get(HeaderResourceID); sub.ResourceID != "" && resourceID != sub.ResourceID {
		h.logger.Warn("notification resource mismatch",
			zap.String("channel_id", channelID),
			zap.String("resource_id", resourceID),
			zap.String("expected", sub.ResourceID))
		return ResultRejected
	}

	if !h.accepted.Contains(state) {
		return ResultIgnored
	}

	if err := h.syncer.Dispatch(sub.Ref(), domain.TriggerNotification); err != nil {
		h.logger.Warn("failed to dispatch notification",
			zap.String("channel_id", channelID),
			zap.String("folder_id", sub.FolderID),
			zap.Error(err))
		return ResultIgnored
	}

	return ResultDispatched
}
