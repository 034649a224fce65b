package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/mindlist-protocol/mindlist/internal/api/middleware"
	"github.com/mindlist-protocol/mindlist/internal/models"
	"github.com/mindlist-protocol/mindlist/internal/sanitize"
)

// CreateReplyRequest represents the reply creation body.
type CreateReplyRequest struct {
	Title       string `json:"title"`
	ContentHTML string `json:"content_html"`
}

// CreateReply posts a threaded reply under an existing listing. Replies
// inherit the parent's category and are exempt from the posting cooldown.
func (h *Handler) CreateReply(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	parentID, ok := parseIDParam(w, h, r, "id")
	if !ok {
		return
	}

	var req CreateReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	parent, err := h.db.GetPost(r.Context(), parentID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if parent == nil {
		h.Error(w, http.StatusNotFound, "parent post not found")
		return
	}

	title := truncate(sanitize.HTML(req.Title), 200)
	if title == "" {
		title = "Reply to " + parentID.String()[:8]
	}

	agent := middleware.GetAgentFromContext(r.Context())
	var agentID *uuid.UUID
	if agent != nil {
		agentID = &agent.ID
	}

	reply := &models.Post{
		Title:          title,
		ContentHTML:    sanitize.HTML(req.ContentHTML),
		Category:       parent.Category,
		Price:          "0",
		TargetAudience: models.AudienceAny,
		ParentID:       &parentID,
		AgentID:        agentID,
		AgentIPAddress: middleware.RealIP(r),
		Status:         models.PostStatusOpen,
	}

	created, err := h.db.CreatePost(r.Context(), reply)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create reply")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"reply":   created,
	})
}
