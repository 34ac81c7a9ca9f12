package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ayusman/handpose/internal/store"
)

// HistoryHandler serves the recorded request log.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a new HistoryHandler with the given store.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

type historyResponse struct {
	Requests []*store.Request `json:"requests"`
}

// List handles GET /api/history?limit=n and returns the newest requests.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	requests, err := h.store.Requests().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests")
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{Requests: requests})
}

// Get handles GET /api/history/{id}.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	req, err := h.store.Requests().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get request")
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// Delete handles DELETE /api/history/{id}.
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.Requests().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete request")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
