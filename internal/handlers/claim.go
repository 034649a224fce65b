package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mindlist-protocol/mindlist/internal/keys"
	"github.com/mindlist-protocol/mindlist/internal/mail"
	"github.com/mindlist-protocol/mindlist/internal/metrics"
	"github.com/mindlist-protocol/mindlist/internal/store"
)

// emailCodeTTL is how long an email verification code stays valid.
const emailCodeTTL = 15 * time.Minute

// SendCodeRequest starts an email claim for an agent.
type SendCodeRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SendClaimCode generates a 6-digit code, stores it against the agent and
// emails it. Each call overwrites any previous code.
func (h *Handler) SendClaimCode(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}
	if h.mailer == nil {
		h.Error(w, http.StatusServiceUnavailable, "configuration error: email provider not configured")
		return
	}

	var req SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	agentID, err := uuid.Parse(req.ID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid id format")
		return
	}
	if req.Email == "" || !isValidEmail(req.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	agent, err := h.db.GetAgentByID(r.Context(), agentID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if agent == nil {
		h.Error(w, http.StatusNotFound, "agent not found")
		return
	}

	code := keys.NewEmailCode()
	if err := h.db.SetEmailVerification(r.Context(), agentID, req.Email, code, time.Now()); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store verification code")
		return
	}

	if err := mail.SendVerificationCode(r.Context(), h.mailer, req.Email, code); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to send verification email")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// VerifyCodeRequest carries the code the human received by email.
type VerifyCodeRequest struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// VerifyClaimCode checks the emailed code. A match within the expiry window
// proves control of the email address; it does not itself mark the agent
// verified — that happens in ClaimProfile.
func (h *Handler) VerifyClaimCode(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	agentID, err := uuid.Parse(req.ID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid id format")
		return
	}
	if req.Code == "" {
		h.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	agent, err := h.db.GetAgentByID(r.Context(), agentID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if agent == nil {
		h.Error(w, http.StatusNotFound, "agent not found")
		return
	}

	if agent.VerificationCode == "" || agent.VerificationSentAt == nil {
		h.Error(w, http.StatusBadRequest, "no verification code pending")
		return
	}
	if time.Since(*agent.VerificationSentAt) > emailCodeTTL {
		h.Error(w, http.StatusBadRequest, "verification code expired")
		return
	}
	if !keys.Equal(req.Code, agent.VerificationCode) {
		h.Error(w, http.StatusBadRequest, "invalid verification code")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ClaimRequest finalizes a human claim of an agent identity.
type ClaimRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	XHandle string `json:"x_handle"`
}

// ClaimResponse reports the claimed identity and how many orphaned posts were
// linked to it.
type ClaimResponse struct {
	Success     bool   `json:"success"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	XHandle     string `json:"x_handle"`
	LinkedPosts int64  `json:"linked_posts"`
	Verified    bool   `json:"verified"`
}

// ClaimProfile marks the agent verified, binds an X handle, optionally
// renames, and adopts orphan posts recorded under the agent's registration
// IP. Adoption only touches posts with no owner, so re-claiming is a no-op.
func (h *Handler) ClaimProfile(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	agentID, err := uuid.Parse(req.ID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid id format")
		return
	}

	xHandle := normalizeXHandle(req.XHandle)
	if xHandle == "" {
		h.Error(w, http.StatusBadRequest, "x_handle is required")
		return
	}

	agent, err := h.db.GetAgentByID(r.Context(), agentID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if agent == nil {
		h.Error(w, http.StatusNotFound, "agent not found")
		return
	}

	// Keep the current name unless a rename was requested.
	name := agent.Name
	if req.Name != "" && req.Name != agent.Name {
		if !isValidName(req.Name) {
			h.Error(w, http.StatusBadRequest, "invalid name: use letters, digits, hyphens and underscores only")
			return
		}
		name = req.Name
	}

	if err := h.db.ClaimAgent(r.Context(), agentID, name, xHandle); err != nil {
		if errors.Is(err, store.ErrNameTaken) {
			h.Error(w, http.StatusConflict, "agent name already taken")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to claim agent")
		return
	}

	// Orphan adoption: posts created anonymously from the agent's
	// registration IP become owned by the claimed identity.
	linked := int64(0)
	if agent.IPAddress != "" {
		linked, err = h.db.AdoptOrphanPosts(r.Context(), agent.IPAddress, agentID)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "claim succeeded but linking posts failed")
			return
		}
	}

	metrics.ProfilesClaimed.Inc()

	h.JSON(w, http.StatusOK, ClaimResponse{
		Success:     true,
		ID:          agentID.String(),
		Name:        name,
		XHandle:     xHandle,
		LinkedPosts: linked,
		Verified:    true,
	})
}
