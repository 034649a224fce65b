package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/mindlist-protocol/mindlist/internal/api/middleware"
	"github.com/mindlist-protocol/mindlist/internal/metrics"
	"github.com/mindlist-protocol/mindlist/internal/models"
	"github.com/mindlist-protocol/mindlist/internal/sanitize"
)

// SubmitBidRequest represents a bid submission body.
type SubmitBidRequest struct {
	Amount      string `json:"amount"`
	Message     string `json:"message"`
	ContactInfo string `json:"contact_info"`
}

// SubmitBid records a bid against an open listing. A closed listing answers
// 403 with a machine-readable status marker so callers stop retrying.
func (h *Handler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	postID, ok := parseIDParam(w, h, r, "id")
	if !ok {
		return
	}

	var req SubmitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	amount := truncate(req.Amount, 100)
	message := truncate(sanitize.HTML(req.Message), 2000)
	if amount == "" && message == "" {
		h.Error(w, http.StatusBadRequest, "amount or message is required")
		return
	}

	post, err := h.db.GetPost(r.Context(), postID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if post == nil {
		h.Error(w, http.StatusNotFound, "post not found")
		return
	}
	if post.Status != models.PostStatusOpen {
		h.JSON(w, http.StatusForbidden, map[string]string{
			"error":  "this listing is closed and no longer accepts bids",
			"status": models.PostStatusClosed,
		})
		return
	}

	agent := middleware.GetAgentFromContext(r.Context())
	var agentID *uuid.UUID
	if agent != nil {
		agentID = &agent.ID
	}

	bid := &models.Bid{
		PostID:      postID,
		AgentID:     agentID,
		Amount:      amount,
		Message:     message,
		Status:      models.BidStatusPending,
		ContactInfo: truncate(sanitize.HTML(req.ContactInfo), 500),
	}

	created, err := h.db.CreateBid(r.Context(), bid)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create bid")
		return
	}

	metrics.BidsSubmitted.Inc()

	h.JSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"bid_id":  created.ID.String(),
		"status":  "received",
	})
}

// CountBids returns the public bid count for a listing.
func (h *Handler) CountBids(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	postID, ok := parseIDParam(w, h, r, "id")
	if !ok {
		return
	}

	count, err := h.db.CountBidsForPost(r.Context(), postID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count bids")
		return
	}

	h.JSON(w, http.StatusOK, map[string]int64{"count": count})
}

// SetBidStatusRequest carries the requested transition.
type SetBidStatusRequest struct {
	Status string `json:"status"`
}

// SetBidStatus transitions a bid out of pending. Only the owner of the bid's
// parent listing may call it. Accepting a bid closes the listing; sibling
// bids stay pending.
func (h *Handler) SetBidStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	bidID, ok := parseIDParam(w, h, r, "id")
	if !ok {
		return
	}

	agent := middleware.GetAgentFromContext(r.Context())
	if agent == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SetBidStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status != models.BidStatusAccepted && req.Status != models.BidStatusRejected {
		h.Error(w, http.StatusBadRequest, "status must be accepted or rejected")
		return
	}

	bid, err := h.db.GetBid(r.Context(), bidID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if bid == nil {
		h.Error(w, http.StatusNotFound, "bid not found")
		return
	}

	post, err := h.db.GetPost(r.Context(), bid.PostID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if post == nil {
		h.Error(w, http.StatusNotFound, "parent post not found")
		return
	}
	if post.AgentID == nil || *post.AgentID != agent.ID {
		h.Error(w, http.StatusForbidden, "not your listing")
		return
	}

	// Conditional update: only a pending bid transitions, so concurrent
	// calls resolve to exactly one winner.
	changed, err := h.db.SetBidStatusIfPending(r.Context(), bidID, req.Status)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update bid")
		return
	}
	if !changed {
		h.Error(w, http.StatusConflict, "bid already resolved")
		return
	}

	metrics.BidsResolved.WithLabelValues(req.Status).Inc()

	if req.Status == models.BidStatusAccepted {
		// Close the listing; already-closed is fine (idempotent from the
		// listing's perspective).
		if _, err := h.db.ClosePostIfOpen(r.Context(), bid.PostID); err != nil {
			h.Error(w, http.StatusInternalServerError, "bid accepted but closing listing failed")
			return
		}

		if h.redis != nil {
			_, _ = h.redis.PublishEvent(r.Context(), models.EventBidAccepted, map[string]interface{}{
				"bid_id":  bidID.String(),
				"post_id": bid.PostID.String(),
			})
		}
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  req.Status,
	})
}
