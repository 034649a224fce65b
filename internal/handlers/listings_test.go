package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreatePostAnonymousVsAuthenticated(t *testing.T) {
	env := newTestEnv(t)
	_, apiKey := env.registerAgent(t, "poster")

	rec := env.do(t, http.MethodPost, "/post", "", map[string]interface{}{"title": "anon listing"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var anon struct {
		AgentAuthenticated bool   `json:"agent_authenticated"`
		ID                 string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &anon))
	require.False(t, anon.AgentAuthenticated)

	rec = env.do(t, http.MethodPost, "/post", apiKey, map[string]interface{}{"title": "owned listing"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var owned struct {
		AgentAuthenticated bool   `json:"agent_authenticated"`
		ID                 string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &owned))
	require.True(t, owned.AgentAuthenticated)

	// Stored ownership matches the response flag.
	rec = env.do(t, http.MethodGet, "/post/"+anon.ID, "", nil)
	require.NotContains(t, rec.Body.String(), `"agent_id"`)
	rec = env.do(t, http.MethodGet, "/post/"+owned.ID, "", nil)
	require.Contains(t, rec.Body.String(), `"agent_id"`)
}

func TestCreatePostRequiresTitle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/post", "", map[string]interface{}{"content_html": "no title"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePostNormalizesCategoryAndSanitizes(t *testing.T) {
	env := newTestEnv(t)
	_, apiKey := env.registerAgent(t, "sanitizer")

	rec := env.do(t, http.MethodPost, "/post", apiKey, map[string]interface{}{
		"title":        "clean me",
		"category":     "weird-category",
		"content_html": "hello <b>world</b>",
		"agent_metadata": map[string]interface{}{
			"skills": []interface{}{"<i>go</i>", 42},
			"nested": map[string]interface{}{"note": "<u>deep</u>"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		ID       string `json:"id"`
		Category string `json:"category"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "other", resp.Category)

	rec = env.do(t, http.MethodGet, "/post/"+resp.ID, "", nil)
	var post struct {
		ContentHTML   string                 `json:"content_html"`
		AgentMetadata map[string]interface{} `json:"agent_metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &post))
	require.Equal(t, "hello world", post.ContentHTML)
	require.Equal(t, "go", post.AgentMetadata["skills"].([]interface{})[0])
	require.Equal(t, float64(42), post.AgentMetadata["skills"].([]interface{})[1])
	require.Equal(t, "deep", post.AgentMetadata["nested"].(map[string]interface{})["note"])
}

func TestPostingCooldown(t *testing.T) {
	env := newTestEnv(t)
	_, apiKey := env.registerAgent(t, "rapid")

	first := env.createPost(t, apiKey, map[string]interface{}{"title": "first"})

	rec := env.do(t, http.MethodPost, "/post", apiKey, map[string]interface{}{"title": "second"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp struct {
		RetryAfterMS int64 `json:"retry_after_ms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Greater(t, resp.RetryAfterMS, int64(0))
	require.LessOrEqual(t, resp.RetryAfterMS, (5 * time.Minute).Milliseconds())

	// After the window has elapsed, posting succeeds again.
	env.agePost(t, first, 6*time.Minute)
	rec = env.do(t, http.MethodPost, "/post", apiKey, map[string]interface{}{"title": "second"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestListPostsFiltersByWindowAndCategory(t *testing.T) {
	env := newTestEnv(t)
	_, apiKey := env.registerAgent(t, "lister")

	jobsID := env.createPost(t, apiKey, map[string]interface{}{"title": "a job", "category": "jobs"})
	env.agePost(t, jobsID, time.Minute)
	dataID := env.createPost(t, "", map[string]interface{}{"title": "a dataset", "category": "data"})
	env.agePost(t, dataID, 2*time.Hour)

	rec := env.do(t, http.MethodGet, "/post?minutes=30", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count int `json:"count"`
		Posts []struct {
			Title string `json:"title"`
		} `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	require.Equal(t, "a job", resp.Posts[0].Title)

	rec = env.do(t, http.MethodGet, "/post?minutes=180&category=data", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	require.Equal(t, "a dataset", resp.Posts[0].Title)

	rec = env.do(t, http.MethodGet, "/post?minutes=0", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplyInheritsCategoryAndDefaultTitle(t *testing.T) {
	env := newTestEnv(t)
	_, apiKey := env.registerAgent(t, "threader")
	parentID := env.createPost(t, apiKey, map[string]interface{}{"title": "parent", "category": "intel"})

	rec := env.do(t, http.MethodPost, "/post/"+parentID, "", map[string]interface{}{"content_html": "a reply"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Reply struct {
			Title    string `json:"title"`
			Category string `json:"category"`
			ParentID string `json:"parent_id"`
		} `json:"reply"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "intel", resp.Reply.Category)
	require.Equal(t, parentID, resp.Reply.ParentID)
	require.Equal(t, "Reply to "+parentID[:8], resp.Reply.Title)
}

func TestReplyToMissingParent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/post/00000000-0000-0000-0000-000000000099", "", map[string]interface{}{"title": "r"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePostOwnershipAndAllowList(t *testing.T) {
	env := newTestEnv(t)
	_, ownerKey := env.registerAgent(t, "owner")
	_, otherKey := env.registerAgent(t, "other")
	postID := env.createPost(t, ownerKey, map[string]interface{}{"title": "original", "category": "jobs"})

	// No key.
	rec := env.do(t, http.MethodPut, "/post/"+postID, "", map[string]interface{}{"title": "hijack"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong agent.
	rec = env.do(t, http.MethodPut, "/post/"+postID, otherKey, map[string]interface{}{"title": "hijack"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Bad enum.
	rec = env.do(t, http.MethodPut, "/post/"+postID, ownerKey, map[string]interface{}{"target_audience": "martian"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Owner update succeeds and re-sanitizes.
	rec = env.do(t, http.MethodPut, "/post/"+postID, ownerKey, map[string]interface{}{
		"title":           "updated <b>title</b>",
		"price":           "250 USD",
		"target_audience": "agent",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Post struct {
			Title          string `json:"title"`
			Price          string `json:"price"`
			TargetAudience string `json:"target_audience"`
		} `json:"post"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "updated title", resp.Post.Title)
	require.Equal(t, "250 USD", resp.Post.Price)
	require.Equal(t, "agent", resp.Post.TargetAudience)
}

func TestDeletePostOwnerAndModerator(t *testing.T) {
	env := newTestEnv(t)
	_, ownerKey := env.registerAgent(t, "deleter")
	_, otherKey := env.registerAgent(t, "bystander")

	ownPost := env.createPost(t, ownerKey, map[string]interface{}{"title": "mine"})

	// Another agent cannot delete.
	rec := env.do(t, http.MethodDelete, "/post/"+ownPost, otherKey, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Owner can.
	rec = env.do(t, http.MethodDelete, "/post/"+ownPost, ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/post/"+ownPost, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Moderator secret can delete anything, including anonymous posts.
	anonPost := env.createPost(t, "", map[string]interface{}{"title": "reported"})
	rec = env.do(t, http.MethodDelete, "/post/"+anonPost, "mod-secret", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestDeleteCascadesBids(t *testing.T) {
	env := newTestEnv(t)
	_, ownerKey := env.registerAgent(t, "cascade")
	postID := env.createPost(t, ownerKey, map[string]interface{}{"title": "doomed"})

	rec := env.do(t, http.MethodPost, "/post/"+postID+"/reply", "", map[string]interface{}{"amount": "10"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodDelete, "/post/"+postID, ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env.db.mu.Lock()
	defer env.db.mu.Unlock()
	require.Empty(t, env.db.bids)
}
