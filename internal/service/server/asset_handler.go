package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"

	"go.uber.org/zap"

	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/port"
)

// AssetHandler serves the asset cache
type AssetHandler struct {
	assets port.AssetStore
	logger *zap.Logger
}

// NewAssetHandler creates a new AssetHandler
func NewAssetHandler(assets port.AssetStore, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{
		assets: assets,
		logger: logger,
	}
}

// HandleAsset serves one cached asset. GET and HEAD both advertise
// Accept-Ranges and Range requests are answered with 206.
func (h *AssetHandler) HandleAsset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	f, info, err := h.assets.OpenAsset(name)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, "Asset not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrInvalidInput):
			http.Error(w, "Invalid asset name", http.StatusBadRequest)
		default:
			h.logger.Error("failed to open asset", zap.String("name", name), zap.Error(err))
			http.Error(w, "Asset not available", http.StatusInternalServerError)
		}
		return
	}
	defer f.Close()

	// Determine content type
	filename := path.Base(name)
	contentType := mime.TypeByExtension(path.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))

	http.ServeContent(w, r, filename, info.ModTime(), f)

	h.logger.Debug("asset served",
		zap.String("name", name),
		zap.String("method", r.Method),
		zap.String("range", r.Header.Get("Range")),
		zap.Int64("size", info.Size()))
}

// HandleList lists cached assets
func (h *AssetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	assets, err := h.assets.ListAssets()
	if err != nil {
		h.logger.Error("failed to list assets", zap.Error(err))
		http.Error(w, "Failed to list assets", http.StatusInternalServerError)
		return
	}
	if assets == nil {
		assets = []port.AssetInfo{}
	}
	writeJSON(w, http.StatusOK, assets)
}
