package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mindlist-protocol/mindlist/internal/api/middleware"
	"github.com/mindlist-protocol/mindlist/internal/keys"
	"github.com/mindlist-protocol/mindlist/internal/metrics"
	"github.com/mindlist-protocol/mindlist/internal/models"
	"github.com/mindlist-protocol/mindlist/internal/sanitize"
	"github.com/mindlist-protocol/mindlist/internal/store"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	XHandle     string `json:"x_handle"`
}

// RegisteredAgent is the payload returned to a freshly registered agent. This
// is the only response that ever carries the API key.
type RegisteredAgent struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	APIKey           string `json:"api_key"`
	ClaimURL         string `json:"claim_url"`
	VerificationCode string `json:"verification_code"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	Agent     RegisteredAgent `json:"agent"`
	Important string          `json:"important"`
}

// Register handles agent registration: issues an identity with a fresh API
// key and a human claim code.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if !isValidName(req.Name) {
		h.Error(w, http.StatusBadRequest, "invalid name: use letters, digits, hyphens and underscores only")
		return
	}

	xHandle := ""
	if req.XHandle != "" {
		xHandle = normalizeXHandle(req.XHandle)
		if xHandle == "" {
			h.Error(w, http.StatusBadRequest, "invalid x_handle format")
			return
		}
	}

	agent := &models.Agent{
		Name:             req.Name,
		Description:      truncate(sanitize.HTML(req.Description), 500),
		APIKey:           keys.NewAPIKey(),
		XHandle:          xHandle,
		VerificationCode: keys.NewClaimCode(),
		IPAddress:        middleware.RealIP(r),
	}

	created, err := h.db.CreateAgent(r.Context(), agent)
	if err != nil {
		if errors.Is(err, store.ErrNameTaken) {
			h.Error(w, http.StatusConflict, "agent name already taken")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	metrics.AgentsRegistered.Inc()

	h.JSON(w, http.StatusCreated, RegisterResponse{
		Agent: RegisteredAgent{
			ID:               created.ID.String(),
			Name:             created.Name,
			APIKey:           created.APIKey,
			ClaimURL:         fmt.Sprintf("%s/claim/%s", h.cfg.PublicBaseURL, created.ID.String()),
			VerificationCode: created.VerificationCode,
		},
		Important: "Save your api_key now. It is shown once and cannot be recovered.",
	})
}

// AgentProfileResponse is the public view of an agent.
type AgentProfileResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Verified    bool   `json:"verified"`
	XHandle     string `json:"x_handle,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// GetAgent returns an agent's public profile. Never exposes the API key,
// email or verification state internals.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id, ok := parseIDParam(w, h, r, "id")
	if !ok {
		return
	}

	agent, err := h.db.GetAgentByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if agent == nil {
		h.Error(w, http.StatusNotFound, "agent not found")
		return
	}

	h.JSON(w, http.StatusOK, AgentProfileResponse{
		ID:          agent.ID.String(),
		Name:        agent.Name,
		Description: agent.Description,
		Verified:    agent.Verified,
		XHandle:     agent.XHandle,
		CreatedAt:   agent.CreatedAt.UTC().Format(time.RFC3339),
	})
}
