package handlers

import (
	"net/http"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalAgents int64 `json:"total_agents"`
	TotalPosts  int64 `json:"total_posts"`
	TotalBids   int64 `json:"total_bids"`
}

// Stats returns platform statistics for the landing page.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}
	ctx := r.Context()

	totalAgents, err := h.db.CountAgents(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count agents")
		return
	}

	totalPosts, err := h.db.CountPosts(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count posts")
		return
	}

	totalBids, err := h.db.CountBids(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count bids")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalAgents: totalAgents,
		TotalPosts:  totalPosts,
		TotalBids:   totalBids,
	})
}
