package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/insightlabs/insight-engine/pkg/models"
	"github.com/insightlabs/insight-engine/pkg/services"
)

// IndexHandler exposes index builds, reads and recommendations over HTTP.
type IndexHandler struct {
	indexes services.IndexService
	logger  *zap.Logger
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(indexes services.IndexService, logger *zap.Logger) *IndexHandler {
	return &IndexHandler{indexes: indexes, logger: logger.Named("index-handler")}
}

// RegisterRoutes registers the index routes on the given mux.
func (h *IndexHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/datasets/{dataset_id}/index", h.Build)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/index", h.Get)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/index/status", h.Status)
	mux.HandleFunc("DELETE /api/datasets/{dataset_id}/index", h.Invalidate)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/recommendations", h.Recommendations)
}

// Build handles POST /api/datasets/{dataset_id}/index. The optional JSON
// body carries build options; an empty body uses the configured defaults.
// The build runs synchronously and responds with the finished index.
func (h *IndexHandler) Build(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}

	var opts models.IndexBuildOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	idx, err := h.indexes.BuildIndex(r.Context(), id, opts)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, idx)
}

// Get handles GET /api/datasets/{dataset_id}/index.
func (h *IndexHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	idx, err := h.indexes.GetIndex(r.Context(), id)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, idx)
}

// Status handles GET /api/datasets/{dataset_id}/index/status.
func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	rec, err := h.indexes.GetStatus(r.Context(), id)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, rec)
}

// Invalidate handles DELETE /api/datasets/{dataset_id}/index.
func (h *IndexHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	if err := h.indexes.Invalidate(r.Context(), id); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recommendations handles GET /api/datasets/{dataset_id}/recommendations.
// Recommendations are derived on the fly from the stored index.
func (h *IndexHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	idx, err := h.indexes.GetIndex(r.Context(), id)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	recs := services.GenerateRecommendations(idx)
	_ = WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dataset_id":      id,
		"recommendations": recs,
	})
}
