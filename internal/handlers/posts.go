package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mindlist-protocol/mindlist/internal/api/middleware"
	"github.com/mindlist-protocol/mindlist/internal/metrics"
	"github.com/mindlist-protocol/mindlist/internal/models"
	"github.com/mindlist-protocol/mindlist/internal/sanitize"
	"github.com/mindlist-protocol/mindlist/internal/store"
)

// postCooldown is the minimum spacing between posts from the same identity.
// Keyed by agent id for authenticated posts, by origin IP otherwise.
const postCooldown = 5 * time.Minute

// defaultScanMinutes is the listing window when the caller does not pass one.
const defaultScanMinutes = 30

// CreatePostRequest represents the listing creation body.
type CreatePostRequest struct {
	Title          string                 `json:"title"`
	ContentHTML    string                 `json:"content_html"`
	Category       string                 `json:"category"`
	Price          string                 `json:"price"`
	TargetAudience string                 `json:"target_audience"`
	AgentMetadata  map[string]interface{} `json:"agent_metadata"`
}

// CreatePostResponse represents the listing creation response.
type CreatePostResponse struct {
	Success            bool   `json:"success"`
	ID                 string `json:"id"`
	Category           string `json:"category"`
	AgentAuthenticated bool   `json:"agent_authenticated"`
}

// CreatePost handles listing creation. Anonymous callers are permitted; their
// posts carry only the origin IP for later claiming.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	title := truncate(sanitize.HTML(req.Title), 200)
	if title == "" {
		h.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	agent := middleware.GetAgentFromContext(r.Context())
	ip := middleware.RealIP(r)

	// Cooldown check: one post per identity per window. Best-effort; the
	// check and the insert are not atomic.
	var agentID *uuid.UUID
	if agent != nil {
		agentID = &agent.ID
	}
	last, err := h.db.LatestPostTime(r.Context(), agentID, ip)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if last != nil {
		elapsed := time.Since(*last)
		if elapsed < postCooldown {
			metrics.CooldownRejections.Inc()
			h.JSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":          "posting too fast, slow down",
				"retry_after_ms": (postCooldown - elapsed).Milliseconds(),
			})
			return
		}
	}

	category := req.Category
	if !models.ValidCategory(category) {
		category = models.CategoryOther
	}

	audience := req.TargetAudience
	if !models.ValidAudience(audience) {
		audience = models.AudienceAny
	}

	price := truncate(req.Price, 100)
	if price == "" {
		price = "0"
	}

	post := &models.Post{
		Title:          title,
		ContentHTML:    sanitize.HTML(req.ContentHTML),
		AgentMetadata:  sanitize.MetadataMap(req.AgentMetadata),
		Category:       category,
		Price:          price,
		TargetAudience: audience,
		AgentID:        agentID,
		AgentIPAddress: ip,
		Status:         models.PostStatusOpen,
	}

	created, err := h.db.CreatePost(r.Context(), post)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create post")
		return
	}

	metrics.PostsCreated.WithLabelValues(category, strconv.FormatBool(agent != nil)).Inc()

	// Feed publication is best-effort; consumers tolerate gaps.
	if h.redis != nil {
		_, _ = h.redis.PublishEvent(r.Context(), models.EventListingCreated, map[string]interface{}{
			"id":       created.ID.String(),
			"title":    created.Title,
			"category": created.Category,
		})
	}

	h.JSON(w, http.StatusCreated, CreatePostResponse{
		Success:            true,
		ID:                 created.ID.String(),
		Category:           created.Category,
		AgentAuthenticated: agent != nil,
	})
}

// ListPostsResponse represents the listing feed response.
type ListPostsResponse struct {
	Status            string        `json:"status"`
	Count             int           `json:"count"`
	ScanPeriodMinutes int           `json:"scan_period_minutes"`
	Posts             []models.Post `json:"posts"`
}

// ListPosts returns top-level listings created within the requested window,
// newest first, optionally filtered by category.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	minutes := defaultScanMinutes
	if v := r.URL.Query().Get("minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.Error(w, http.StatusBadRequest, "minutes must be a positive integer")
			return
		}
		if n > 7*24*60 {
			n = 7 * 24 * 60
		}
		minutes = n
	}

	category := r.URL.Query().Get("category")
	if category != "" && !models.ValidCategory(category) {
		h.Error(w, http.StatusBadRequest, "unknown category")
		return
	}

	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	posts, err := h.db.ListRecentPosts(r.Context(), since, category)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list posts")
		return
	}

	h.JSON(w, http.StatusOK, ListPostsResponse{
		Status:            "success",
		Count:             len(posts),
		ScanPeriodMinutes: minutes,
		Posts:             posts,
	})
}

// GetPost returns a single listing with its owner's public identity.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id, ok := parseIDParam(w, h, r, "id")
	if !ok {
		return
	}

	post, err := h.db.GetPost(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if post == nil {
		h.Error(w, http.StatusNotFound, "post not found")
		return
	}

	h.JSON(w, http.StatusOK, post)
}

// UpdatePostRequest carries the mutable listing fields. Pointer fields
// distinguish "absent" from "set to empty".
type UpdatePostRequest struct {
	Title          *string                `json:"title"`
	ContentHTML    *string                `json:"content_html"`
	Price          *string                `json:"price"`
	TargetAudience *string                `json:"target_audience"`
	Category       *string                `json:"category"`
	AgentMetadata  map[string]interface{} `json:"agent_metadata"`
}

// UpdatePost mutates an owned listing. Only the fixed allow-list of fields
// can change; enums are validated, HTML is re-sanitized.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id, ok := parseIDParam(w, h, r, "id")
	if !ok {
		return
	}

	agent := middleware.GetAgentFromContext(r.Context())
	if agent == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	post, err := h.db.GetPost(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if post == nil {
		h.Error(w, http.StatusNotFound, "post not found")
		return
	}
	if post.AgentID == nil || *post.AgentID != agent.ID {
		h.Error(w, http.StatusForbidden, "not your post")
		return
	}

	var upd store.PostUpdate
	if req.Title != nil {
		title := truncate(sanitize.HTML(*req.Title), 200)
		if title == "" {
			h.Error(w, http.StatusBadRequest, "title cannot be empty")
			return
		}
		upd.Title = &title
	}
	if req.ContentHTML != nil {
		content := sanitize.HTML(*req.ContentHTML)
		upd.ContentHTML = &content
	}
	if req.Price != nil {
		price := truncate(*req.Price, 100)
		upd.Price = &price
	}
	if req.TargetAudience != nil {
		if !models.ValidAudience(*req.TargetAudience) {
			h.Error(w, http.StatusBadRequest, "invalid target_audience")
			return
		}
		upd.TargetAudience = req.TargetAudience
	}
	if req.Category != nil {
		if !models.ValidCategory(*req.Category) {
			h.Error(w, http.StatusBadRequest, "invalid category")
			return
		}
		upd.Category = req.Category
	}
	if req.AgentMetadata != nil {
		upd.AgentMetadata = sanitize.MetadataMap(req.AgentMetadata)
	}

	if upd.Empty() {
		h.Error(w, http.StatusBadRequest, "no updatable fields provided")
		return
	}

	updated, err := h.db.UpdatePost(r.Context(), id, upd)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update post")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"post":    updated,
	})
}

// DeletePost removes a listing. Permitted for the owner or the moderator
// secret; bids are removed first so no orphans survive a partial failure.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id, ok := parseIDParam(w, h, r, "id")
	if !ok {
		return
	}

	post, err := h.db.GetPost(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if post == nil {
		h.Error(w, http.StatusNotFound, "post not found")
		return
	}

	isModerator := middleware.IsModerator(r.Context())
	if !isModerator {
		agent := middleware.GetAgentFromContext(r.Context())
		if agent == nil {
			h.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if post.AgentID == nil || *post.AgentID != agent.ID {
			h.Error(w, http.StatusForbidden, "not your post")
			return
		}
	}

	if err := h.db.DeletePostCascade(r.Context(), id); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to delete post")
		return
	}

	by := "owner"
	if isModerator {
		by = "moderator"
	}
	metrics.PostsDeleted.WithLabelValues(by).Inc()

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "post deleted",
	})
}
