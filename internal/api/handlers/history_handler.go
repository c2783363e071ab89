package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"nft-marketplace/internal/domain"
	"nft-marketplace/pkg/logger"

	"github.com/gorilla/mux"
)

// HistoryHandler serves the recorded event log of one auction over mux.
type HistoryHandler struct {
	repo domain.AuctionEventRepository
	log  logger.Logger
}

func NewHistoryHandler(repo domain.AuctionEventRepository, log logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		repo: repo,
		log:  log,
	}
}

func (h *HistoryHandler) GetAuctionHistory(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid auction index"})
		return
	}

	events, err := h.repo.GetAuctionHistory(r.Context(), index)
	if err != nil {
		h.log.Error("Failed to load auction history", "auction_index", index, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	if events == nil {
		events = []*domain.AuctionEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auction_index": index,
		"events":        events,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
