package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/port"
	"github.com/inkpress/assetloader/internal/service/fetcher"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// APIHandler exposes fetches and load history
type APIHandler struct {
	store   port.Store
	fetcher Fetcher
	logger  *zap.Logger
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(store port.Store, f Fetcher, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		store:   store,
		fetcher: f,
		logger:  logger,
	}
}

// errorResponse is the JSON body of failed API calls
type errorResponse struct {
	Error  string             `json:"error"`
	Record *domain.LoadRecord `json:"record,omitempty"`
}

// HandleFetch runs a fetch and returns its record
func (h *APIHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetcher.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	// Large assets outlive the server write timeout
	http.NewResponseController(w).SetWriteDeadline(time.Time{})

	record, err := h.fetcher.Fetch(r.Context(), req)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, domain.ErrEmptyURL),
			errors.Is(err, domain.ErrInvalidChunkSize),
			errors.Is(err, domain.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrCacheFull):
			status = http.StatusInsufficientStorage
		case r.Context().Err() != nil:
			h.logger.Debug("fetch cancelled by client", zap.String("url", req.URL))
			return
		}
		writeJSON(w, status, errorResponse{Error: err.Error(), Record: record})
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// HandleList returns recent load records, newest first
func (h *APIHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := h.store.List(limit)
	if err != nil {
		h.logger.Error("failed to list loads", zap.Error(err))
		http.Error(w, "Failed to list loads", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*domain.LoadRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleGet returns one load record
func (h *APIHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	record, err := h.store.Get(id)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "load not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to get load", zap.String("id", id), zap.Error(err))
		http.Error(w, "Failed to get load", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
