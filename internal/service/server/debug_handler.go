package server

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/inkpress/assetloader/internal/port"
)

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	store  port.Store
	assets port.AssetStore
	logger *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(store port.Store, assets port.AssetStore, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		store:  store,
		assets: assets,
		logger: logger,
	}
}

// HandleStats handles debug statistics requests
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		h.logger.Error("failed to get load stats", zap.Error(err))
		http.Error(w, "Failed to get load stats", http.StatusInternalServerError)
		return
	}

	cacheSize, err := h.assets.GetCacheSize()
	if err != nil {
		h.logger.Error("failed to get cache size", zap.Error(err))
		http.Error(w, "Failed to get cache size", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"loads":            stats,
		"cache_size_bytes": cacheSize,
		"cache_size":       humanize.IBytes(uint64(cacheSize)),
	}

	// Disk usage is best effort
	if usage, err := h.assets.GetDiskUsage(); err == nil {
		response["disk"] = usage
	} else {
		h.logger.Debug("disk usage unavailable", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, response)
}
