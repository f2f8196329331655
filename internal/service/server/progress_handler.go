package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/domain/event"
)

// progressBuffer bounds the snapshots queued for one slow client
const progressBuffer = 64

// ProgressHandler streams progress snapshots as server-sent events
type ProgressHandler struct {
	progress event.Subscriber
	logger   *zap.Logger
}

// NewProgressHandler creates a new ProgressHandler
func NewProgressHandler(progress event.Subscriber, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress: progress,
		logger:   logger,
	}
}

// HandleStream subscribes for the lifetime of the request and writes every
// snapshot as one data line. ?load_id= restricts the stream to one load.
// Snapshots are dropped while the client's queue is full.
func (h *ProgressHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		http.Error(w, "Progress stream not available", http.StatusServiceUnavailable)
		return
	}

	rc := http.NewResponseController(w)
	rc.SetWriteDeadline(time.Time{})

	loadID := r.URL.Query().Get("load_id")
	queue := make(chan domain.LoadProgress, progressBuffer)

	unsubscribe := h.progress.Subscribe(func(p domain.LoadProgress) {
		if loadID != "" && p.LoadID != loadID {
			return
		}
		select {
		case queue <- p:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": subscribed\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Warn("progress stream cannot flush", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case p := <-queue:
			data, err := json.Marshal(p)
			if err != nil {
				h.logger.Error("failed to encode progress", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
