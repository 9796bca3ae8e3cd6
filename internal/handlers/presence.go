package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// PresenceResponse reports whether a merchant currently has a live
// registered connection, and the depth of its offline backlog.
type PresenceResponse struct {
	MerchantID int64 `json:"merchant_id"`
	Online     bool  `json:"online"`
	Backlog    int64 `json:"backlog"`
}

// Presence handles merchant presence lookup for the consumer backend.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.Error(w, http.StatusBadRequest, "invalid merchant ID format")
		return
	}

	if h.directory != nil {
		exists, err := h.directory.MerchantExists(r.Context(), id)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "directory error")
			return
		}
		if !exists {
			h.Error(w, http.StatusNotFound, "merchant not found")
			return
		}
	}

	backlog, err := h.broker.OfflineLen(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "broker error")
		return
	}

	h.JSON(w, http.StatusOK, PresenceResponse{
		MerchantID: id,
		Online:     h.registry.IsOnline(id),
		Backlog:    backlog,
	})
}
