package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightlabs/insight-engine/pkg/services"
)

// maxCSVUploadBytes bounds a single CSV upload body.
const maxCSVUploadBytes = 256 << 20

// DatasetHandler exposes the dataset registry over HTTP.
type DatasetHandler struct {
	datasets services.DatasetService
	logger   *zap.Logger
}

// NewDatasetHandler creates a new DatasetHandler.
func NewDatasetHandler(datasets services.DatasetService, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{datasets: datasets, logger: logger.Named("dataset-handler")}
}

// RegisterRoutes registers the dataset routes on the given mux.
func (h *DatasetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/datasets", h.Register)
	mux.HandleFunc("GET /api/datasets", h.List)
	mux.HandleFunc("GET /api/datasets/{dataset_id}", h.Get)
	mux.HandleFunc("DELETE /api/datasets/{dataset_id}", h.Delete)
	mux.HandleFunc("POST /api/datasets/{dataset_id}/upload", h.UploadCSV)
}

// Register handles POST /api/datasets.
func (h *DatasetHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterDatasetInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	ds, err := h.datasets.Register(r.Context(), input)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, ds)
}

// List handles GET /api/datasets.
func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.datasets.List(r.Context())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]interface{}{"datasets": datasets})
}

// Get handles GET /api/datasets/{dataset_id}.
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	ds, err := h.datasets.Get(r.Context(), id)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, ds)
}

// Delete handles DELETE /api/datasets/{dataset_id}.
func (h *DatasetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	if err := h.datasets.Delete(r.Context(), id); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadCSV handles POST /api/datasets/{dataset_id}/upload. The request body
// is the raw CSV file, header row first.
func (h *DatasetHandler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxCSVUploadBytes)
	rows, err := h.datasets.UploadCSV(r.Context(), id, body)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dataset_id": id,
		"rows":       rows,
	})
}

// datasetID parses the dataset_id path value, writing a 400 on failure.
func datasetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("dataset_id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_dataset_id", "dataset_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
