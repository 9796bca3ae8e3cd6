package handlers

import (
	"net/http"
)

// StatsResponse represents the relay stats endpoint response.
type StatsResponse struct {
	OnlineMerchants int   `json:"online_merchants"`
	MerchantQueue   int64 `json:"merchant_queue"`
	ConsumerQueue   int64 `json:"consumer_queue"`
}

// Stats reports online merchant count and work queue depths.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	merchantQ, consumerQ, err := h.broker.QueueLens(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to read queue depths")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		OnlineMerchants: h.registry.Count(),
		MerchantQueue:   merchantQ,
		ConsumerQueue:   consumerQ,
	})
}
