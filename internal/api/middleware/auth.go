package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mindlist-protocol/mindlist/internal/keys"
	"github.com/mindlist-protocol/mindlist/internal/models"
	"github.com/mindlist-protocol/mindlist/internal/store"
)

type contextKey string

const (
	// AgentContextKey holds the resolved *models.Agent, when present.
	AgentContextKey contextKey = "agent"
	// ModeratorContextKey holds true when the moderator secret was presented.
	ModeratorContextKey contextKey = "moderator"
)

// APIKeyHeader is the header agents authenticate with.
const APIKeyHeader = "x-agent-key"

// AuthMiddleware resolves the x-agent-key header to an agent identity.
//
// Resolution is uniform across all endpoints: an absent key yields an
// anonymous caller where that is permitted, but an invalid key is always a
// hard 401. No endpoint silently degrades a bad credential to anonymous.
type AuthMiddleware struct {
	store        store.DataStore
	moderatorKey string
}

// NewAuthMiddleware creates a new auth middleware. moderatorKey may be empty,
// which disables moderator access entirely.
func NewAuthMiddleware(dataStore store.DataStore, moderatorKey string) *AuthMiddleware {
	return &AuthMiddleware{store: dataStore, moderatorKey: moderatorKey}
}

// RequireAgent rejects requests without a valid agent API key.
func (m *AuthMiddleware) RequireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, ok := m.resolve(w, r)
		if !ok {
			return
		}
		if agent == nil {
			jsonError(w, http.StatusUnauthorized, "missing x-agent-key header")
			return
		}
		ctx := context.WithValue(r.Context(), AgentContextKey, agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAgent resolves the agent when a key is present. Requests without a
// key proceed anonymously; requests with an invalid key are rejected.
func (m *AuthMiddleware) OptionalAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, ok := m.resolve(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		if agent != nil {
			ctx = context.WithValue(ctx, AgentContextKey, agent)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAgentOrModerator admits either a valid agent key or the moderator
// secret. The moderator is not an agent; handlers check IsModerator.
func (m *AuthMiddleware) RequireAgentOrModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get(APIKeyHeader)
		if apiKey == "" {
			jsonError(w, http.StatusUnauthorized, "missing x-agent-key header")
			return
		}
		if m.moderatorKey != "" && keys.Equal(apiKey, m.moderatorKey) {
			ctx := context.WithValue(r.Context(), ModeratorContextKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		agent, ok := m.resolve(w, r)
		if !ok {
			return
		}
		if agent == nil {
			jsonError(w, http.StatusUnauthorized, "missing x-agent-key header")
			return
		}
		ctx := context.WithValue(r.Context(), AgentContextKey, agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolve looks up the presented key. The bool result is false when a
// response has already been written.
func (m *AuthMiddleware) resolve(w http.ResponseWriter, r *http.Request) (*models.Agent, bool) {
	apiKey := r.Header.Get(APIKeyHeader)
	if apiKey == "" {
		return nil, true
	}
	if m.store == nil {
		jsonError(w, http.StatusServiceUnavailable, "configuration error: no data store")
		return nil, false
	}
	agent, err := m.store.GetAgentByAPIKey(r.Context(), apiKey)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "database error")
		return nil, false
	}
	if agent == nil {
		jsonError(w, http.StatusUnauthorized, "invalid API key")
		return nil, false
	}
	return agent, true
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetAgentFromContext retrieves the authenticated agent from the request
// context, or nil for anonymous callers.
func GetAgentFromContext(ctx context.Context) *models.Agent {
	agent, ok := ctx.Value(AgentContextKey).(*models.Agent)
	if !ok {
		return nil
	}
	return agent
}

// IsModerator reports whether the request presented the moderator secret.
func IsModerator(ctx context.Context) bool {
	isMod, ok := ctx.Value(ModeratorContextKey).(bool)
	return ok && isMod
}
