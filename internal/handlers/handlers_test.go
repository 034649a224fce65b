package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mindlist-protocol/mindlist/internal/api"
	"github.com/mindlist-protocol/mindlist/internal/config"
	"github.com/mindlist-protocol/mindlist/internal/models"
	"github.com/mindlist-protocol/mindlist/internal/store"
)

// fakeStore is an in-memory DataStore for handler tests.
type fakeStore struct {
	mu     sync.Mutex
	agents map[uuid.UUID]*models.Agent
	posts  map[uuid.UUID]*models.Post
	bids   map[uuid.UUID]*models.Bid
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents: make(map[uuid.UUID]*models.Agent),
		posts:  make(map[uuid.UUID]*models.Post),
		bids:   make(map[uuid.UUID]*models.Bid),
	}
}

func (s *fakeStore) Close()                         {}
func (s *fakeStore) Ping(ctx context.Context) error { return nil }

func (s *fakeStore) CreateAgent(ctx context.Context, agent *models.Agent) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.Name == agent.Name {
			return nil, store.ErrNameTaken
		}
	}
	cp := *agent
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	s.agents[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *fakeStore) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) GetAgentByAPIKey(ctx context.Context, apiKey string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.APIKey == apiKey {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SetEmailVerification(ctx context.Context, id uuid.UUID, email, code string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.agents[id]
	a.Email = email
	a.VerificationCode = code
	a.VerificationSentAt = &sentAt
	return nil
}

func (s *fakeStore) ClaimAgent(ctx context.Context, id uuid.UUID, name, xHandle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for otherID, a := range s.agents {
		if a.Name == name && otherID != id {
			return store.ErrNameTaken
		}
	}
	a := s.agents[id]
	a.Name = name
	a.XHandle = xHandle
	a.Verified = true
	return nil
}

func (s *fakeStore) AdoptOrphanPosts(ctx context.Context, ipAddress string, agentID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.posts {
		if p.AgentID == nil && p.AgentIPAddress == ipAddress {
			id := agentID
			p.AgentID = &id
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountAgents(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.agents)), nil
}

func (s *fakeStore) CreatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *post
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	s.posts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *fakeStore) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	if p.AgentID != nil {
		if a, ok := s.agents[*p.AgentID]; ok {
			pub := a.Public()
			cp.Agent = &pub
		}
	}
	return &cp, nil
}

func (s *fakeStore) ListRecentPosts(ctx context.Context, since time.Time, category string) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Post
	for _, p := range s.posts {
		if p.ParentID != nil || p.CreatedAt.Before(since) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) LatestPostTime(ctx context.Context, agentID *uuid.UUID, ipAddress string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *time.Time
	for _, p := range s.posts {
		match := false
		if agentID != nil {
			match = p.AgentID != nil && *p.AgentID == *agentID
		} else {
			match = p.AgentID == nil && p.AgentIPAddress == ipAddress
		}
		if match && (latest == nil || p.CreatedAt.After(*latest)) {
			t := p.CreatedAt
			latest = &t
		}
	}
	return latest, nil
}

func (s *fakeStore) UpdatePost(ctx context.Context, id uuid.UUID, upd store.PostUpdate) (*models.Post, error) {
	s.mu.Lock()
	p := s.posts[id]
	if upd.Title != nil {
		p.Title = *upd.Title
	}
	if upd.ContentHTML != nil {
		p.ContentHTML = *upd.ContentHTML
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.TargetAudience != nil {
		p.TargetAudience = *upd.TargetAudience
	}
	if upd.Category != nil {
		p.Category = *upd.Category
	}
	if upd.AgentMetadata != nil {
		p.AgentMetadata = upd.AgentMetadata
	}
	s.mu.Unlock()
	return s.GetPost(ctx, id)
}

func (s *fakeStore) DeletePostCascade(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for bidID, b := range s.bids {
		if b.PostID == id {
			delete(s.bids, bidID)
		}
	}
	for childID, p := range s.posts {
		if p.ParentID != nil && *p.ParentID == id {
			delete(s.posts, childID)
		}
	}
	delete(s.posts, id)
	return nil
}

func (s *fakeStore) ClosePostIfOpen(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.Status != models.PostStatusOpen {
		return false, nil
	}
	p.Status = models.PostStatusClosed
	return true, nil
}

func (s *fakeStore) CountPosts(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.posts)), nil
}

func (s *fakeStore) CreateBid(ctx context.Context, bid *models.Bid) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *bid
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	s.bids[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *fakeStore) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bids[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) CountBidsForPost(ctx context.Context, postID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, b := range s.bids {
		if b.PostID == postID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) SetBidStatusIfPending(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[id]
	if !ok || b.Status != models.BidStatusPending {
		return false, nil
	}
	b.Status = status
	return true, nil
}

func (s *fakeStore) ListInbox(ctx context.Context, ownerID uuid.UUID) ([]models.InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.InboxEntry
	for _, b := range s.bids {
		p, ok := s.posts[b.PostID]
		if !ok || p.AgentID == nil || *p.AgentID != ownerID {
			continue
		}
		entry := models.InboxEntry{
			ID:          b.ID,
			Amount:      b.Amount,
			Message:     b.Message,
			Status:      b.Status,
			ContactInfo: b.ContactInfo,
			CreatedAt:   b.CreatedAt,
			Post:        models.InboxPost{ID: p.ID, Title: p.Title, Category: p.Category},
		}
		if b.AgentID != nil {
			if a, ok := s.agents[*b.AgentID]; ok {
				pub := a.Public()
				entry.Bidder = &pub
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) CountBids(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.bids)), nil
}

// mailRecorder records sent mail instead of dispatching it.
type mailRecorder struct {
	mu   sync.Mutex
	sent []string // recipient addresses
}

func (m *mailRecorder) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

// testEnv bundles the router with its backing fakes.
type testEnv struct {
	db     *fakeStore
	mailer *mailRecorder
	router *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newFakeStore()
	mailer := &mailRecorder{}
	cfg := &config.Config{
		Port:            "8080",
		Env:             "test",
		PublicBaseURL:   "http://localhost:8080",
		ModeratorAPIKey: "mod-secret",
	}
	router := api.NewRouter(zerolog.Nop(), cfg, db, nil, mailer)
	return &testEnv{db: db, mailer: mailer, router: router}
}

// newRouterWithoutMailer rebuilds the router with no email provider wired.
func newRouterWithoutMailer(t *testing.T, env *testEnv) *chi.Mux {
	t.Helper()
	cfg := &config.Config{
		Port:            "8080",
		Env:             "test",
		PublicBaseURL:   "http://localhost:8080",
		ModeratorAPIKey: "mod-secret",
	}
	return api.NewRouter(zerolog.Nop(), cfg, env.db, nil, nil)
}

// do performs a request against the router, returning the recorder.
func (e *testEnv) do(t *testing.T, method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("x-agent-key", apiKey)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// registerAgent registers an agent and returns (id, apiKey).
func (e *testEnv) registerAgent(t *testing.T, name string) (string, string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/agent/register", "", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Agent struct {
			ID     string `json:"id"`
			APIKey string `json:"api_key"`
		} `json:"agent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Agent.APIKey)
	return resp.Agent.ID, resp.Agent.APIKey
}

// createPost creates a listing and returns its id.
func (e *testEnv) createPost(t *testing.T, apiKey string, body map[string]interface{}) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/post", apiKey, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

// agePost rewrites a post's creation time, used to step past the cooldown.
func (e *testEnv) agePost(t *testing.T, id string, age time.Duration) {
	t.Helper()
	postID, err := uuid.Parse(id)
	require.NoError(t, err)
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	p, ok := e.db.posts[postID]
	require.True(t, ok)
	p.CreatedAt = time.Now().Add(-age)
}
