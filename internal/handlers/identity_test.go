package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegisterValidatesName(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/agent/register", "", map[string]string{"name": "bad name!"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/agent/register", "", map[string]string{"name": "bad-name_2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	env.registerAgent(t, "scout")

	rec := env.do(t, http.MethodPost, "/agent/register", "", map[string]string{"name": "scout"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterIssuesKeyOnce(t *testing.T) {
	env := newTestEnv(t)
	id, apiKey := env.registerAgent(t, "keeper")

	// The public profile never exposes the key.
	rec := env.do(t, http.MethodGet, "/agent/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), apiKey)
}

func TestInvalidAPIKeyIsHardFailure(t *testing.T) {
	env := newTestEnv(t)

	// Even on endpoints where anonymous is allowed, a wrong key is 401.
	rec := env.do(t, http.MethodPost, "/post", "ml_bogus_key", map[string]interface{}{"title": "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/agent/inbox", "ml_bogus_key", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEmailClaimFlow(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.registerAgent(t, "claimer")

	rec := env.do(t, http.MethodPost, "/agent/claim/send-code", "", map[string]string{
		"id":    id,
		"email": "a@b.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{"a@b.com"}, env.mailer.sent)

	agentID, err := uuid.Parse(id)
	require.NoError(t, err)
	env.db.mu.Lock()
	code := env.db.agents[agentID].VerificationCode
	env.db.mu.Unlock()
	require.Len(t, code, 6)

	// Wrong code rejected.
	rec = env.do(t, http.MethodPost, "/agent/claim/verify-code", "", map[string]string{
		"id":   id,
		"code": "000000",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Correct code within the window accepted.
	rec = env.do(t, http.MethodPost, "/agent/claim/verify-code", "", map[string]string{
		"id":   id,
		"code": code,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Same code after expiry rejected.
	env.db.mu.Lock()
	expired := time.Now().Add(-16 * time.Minute)
	env.db.agents[agentID].VerificationSentAt = &expired
	env.db.mu.Unlock()

	rec = env.do(t, http.MethodPost, "/agent/claim/verify-code", "", map[string]string{
		"id":   id,
		"code": code,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "expired")
}

func TestSendCodeWithoutMailerAnswers503(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.registerAgent(t, "nomail")
	env.router = newRouterWithoutMailer(t, env)

	rec := env.do(t, http.MethodPost, "/agent/claim/send-code", "", map[string]string{
		"id":    id,
		"email": "a@b.com",
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClaimProfileRequiresHandleAndChecksNameCollision(t *testing.T) {
	env := newTestEnv(t)
	idA, _ := env.registerAgent(t, "alpha")
	env.registerAgent(t, "beta")

	// Missing handle.
	rec := env.do(t, http.MethodPost, "/agent/claim", "", map[string]string{"id": idA})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Rename onto another agent's name.
	rec = env.do(t, http.MethodPost, "/agent/claim", "", map[string]string{
		"id":       idA,
		"name":     "beta",
		"x_handle": "alpha_h",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Self-claim keeping the same name succeeds and normalizes the handle.
	rec = env.do(t, http.MethodPost, "/agent/claim", "", map[string]string{
		"id":       idA,
		"name":     "alpha",
		"x_handle": "alpha_h",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		XHandle  string `json:"x_handle"`
		Verified bool   `json:"verified"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "@alpha_h", resp.XHandle)
	require.True(t, resp.Verified)
}

func TestClaimAdoptsOrphanPostsIdempotently(t *testing.T) {
	env := newTestEnv(t)

	// Anonymous post from the default test IP.
	orphanID := env.createPost(t, "", map[string]interface{}{"title": "orphan listing"})

	// Register from the same IP and claim.
	id, _ := env.registerAgent(t, "adopter")

	rec := env.do(t, http.MethodPost, "/agent/claim", "", map[string]string{
		"id":       id,
		"x_handle": "adopter",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		LinkedPosts int64 `json:"linked_posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.LinkedPosts)

	// The orphan now belongs to the claimed agent.
	rec = env.do(t, http.MethodGet, "/post/"+orphanID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var post struct {
		AgentID string `json:"agent_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &post))
	require.Equal(t, id, post.AgentID)

	// Re-claiming adopts nothing further.
	rec = env.do(t, http.MethodPost, "/agent/claim", "", map[string]string{
		"id":       id,
		"x_handle": "adopter",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(0), resp.LinkedPosts)
}

func TestGetAgentNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/agent/"+uuid.NewString(), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/agent/not-a-uuid", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
