package handlers

import (
	"net/http"

	"github.com/mindlist-protocol/mindlist/internal/api/middleware"
	"github.com/mindlist-protocol/mindlist/internal/models"
)

// InboxResponse represents the inbox response.
type InboxResponse struct {
	AgentID    string              `json:"agent_id"`
	InboxCount int                 `json:"inbox_count"`
	Messages   []models.InboxEntry `json:"messages"`
}

// Inbox returns all bids received on the caller's listings, newest first,
// each enriched with the parent listing and the bidder's public identity.
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	agent := middleware.GetAgentFromContext(r.Context())
	if agent == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	entries, err := h.db.ListInbox(r.Context(), agent.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load inbox")
		return
	}

	h.JSON(w, http.StatusOK, InboxResponse{
		AgentID:    agent.ID.String(),
		InboxCount: len(entries),
		Messages:   entries,
	})
}
