package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mindlist-protocol/mindlist/internal/models"
)

func TestSubmitBidRequiresAmountOrMessage(t *testing.T) {
	env := newTestEnv(t)
	_, apiKey := env.registerAgent(t, "seller")
	postID := env.createPost(t, apiKey, map[string]interface{}{"title": "for sale"})

	rec := env.do(t, http.MethodPost, "/post/"+postID+"/reply", "", map[string]interface{}{"contact_info": "x@y.z"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/post/"+postID+"/reply", "", map[string]interface{}{"message": "interested"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestSubmitBidOnMissingPost(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/post/"+uuid.NewString()+"/reply", "", map[string]interface{}{"amount": "5"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClosedListingRejectsBidsWithMarker(t *testing.T) {
	env := newTestEnv(t)
	_, apiKey := env.registerAgent(t, "closer")
	postID := env.createPost(t, apiKey, map[string]interface{}{"title": "closing soon"})

	id, err := uuid.Parse(postID)
	require.NoError(t, err)
	env.db.mu.Lock()
	env.db.posts[id].Status = models.PostStatusClosed
	env.db.mu.Unlock()

	rec := env.do(t, http.MethodPost, "/post/"+postID+"/reply", "", map[string]interface{}{"amount": "99"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "closed", resp.Status)
}

func TestCountBidsIsPublic(t *testing.T) {
	env := newTestEnv(t)
	_, apiKey := env.registerAgent(t, "counter")
	postID := env.createPost(t, apiKey, map[string]interface{}{"title": "count me"})

	for range [3]struct{}{} {
		rec := env.do(t, http.MethodPost, "/post/"+postID+"/reply", "", map[string]interface{}{"amount": "1"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/post/"+postID+"/reply", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(3), resp.Count)
}

func TestSetBidStatusAuthorization(t *testing.T) {
	env := newTestEnv(t)
	_, ownerKey := env.registerAgent(t, "lister-auth")
	_, strangerKey := env.registerAgent(t, "stranger")
	postID := env.createPost(t, ownerKey, map[string]interface{}{"title": "guarded"})

	rec := env.do(t, http.MethodPost, "/post/"+postID+"/reply", "", map[string]interface{}{"amount": "10"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var bid struct {
		BidID string `json:"bid_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bid))

	// Unknown status value.
	rec = env.do(t, http.MethodPost, "/bid/"+bid.BidID+"/status", ownerKey, map[string]string{"status": "maybe"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Not the listing owner.
	rec = env.do(t, http.MethodPost, "/bid/"+bid.BidID+"/status", strangerKey, map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// No key at all.
	rec = env.do(t, http.MethodPost, "/bid/"+bid.BidID+"/status", "", map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMarketplaceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, keyA := env.registerAgent(t, "agent-a")
	_, keyB := env.registerAgent(t, "agent-b")

	// A creates a listing.
	postID := env.createPost(t, keyA, map[string]interface{}{
		"title":    "Need X",
		"category": "jobs",
		"price":    "100 USD",
	})

	// B bids on it.
	rec := env.do(t, http.MethodPost, "/post/"+postID+"/reply", keyB, map[string]interface{}{
		"amount":  "80 USD",
		"message": "can deliver by friday",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var bidResp struct {
		BidID  string `json:"bid_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bidResp))
	require.Equal(t, "received", bidResp.Status)

	// A's inbox holds exactly that bid, with post context and bidder identity.
	rec = env.do(t, http.MethodGet, "/agent/inbox", keyA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox struct {
		InboxCount int `json:"inbox_count"`
		Messages   []struct {
			ID     string `json:"id"`
			Amount string `json:"amount"`
			Post   struct {
				Title string `json:"title"`
			} `json:"post"`
			Bidder struct {
				Name string `json:"name"`
			} `json:"bidder"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Equal(t, 1, inbox.InboxCount)
	require.Equal(t, bidResp.BidID, inbox.Messages[0].ID)
	require.Equal(t, "80 USD", inbox.Messages[0].Amount)
	require.Equal(t, "Need X", inbox.Messages[0].Post.Title)
	require.Equal(t, "agent-b", inbox.Messages[0].Bidder.Name)

	// B's inbox is empty.
	rec = env.do(t, http.MethodGet, "/agent/inbox", keyB, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Equal(t, 0, inbox.InboxCount)

	// A accepts the bid, which closes the listing.
	rec = env.do(t, http.MethodPost, "/bid/"+bidResp.BidID+"/status", keyA, map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/post/"+postID, "", nil)
	var post struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &post))
	require.Equal(t, "closed", post.Status)

	// A further bid fails with the closed marker.
	rec = env.do(t, http.MethodPost, "/post/"+postID+"/reply", "", map[string]interface{}{"amount": "90 USD"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"closed"`)
}

func TestAcceptIsAtMostOnce(t *testing.T) {
	env := newTestEnv(t)
	_, ownerKey := env.registerAgent(t, "once")
	postID := env.createPost(t, ownerKey, map[string]interface{}{"title": "single winner"})

	var bidIDs []string
	for range [2]struct{}{} {
		rec := env.do(t, http.MethodPost, "/post/"+postID+"/reply", "", map[string]interface{}{"amount": "10"})
		require.Equal(t, http.StatusCreated, rec.Code)
		var resp struct {
			BidID string `json:"bid_id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		bidIDs = append(bidIDs, resp.BidID)
	}

	// Accept the first bid.
	rec := env.do(t, http.MethodPost, "/bid/"+bidIDs[0]+"/status", ownerKey, map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Re-resolving the same bid conflicts.
	rec = env.do(t, http.MethodPost, "/bid/"+bidIDs[0]+"/status", ownerKey, map[string]string{"status": "rejected"})
	require.Equal(t, http.StatusConflict, rec.Code)

	// The sibling bid stays pending rather than being auto-rejected.
	sibling, err := uuid.Parse(bidIDs[1])
	require.NoError(t, err)
	env.db.mu.Lock()
	require.Equal(t, models.BidStatusPending, env.db.bids[sibling].Status)
	env.db.mu.Unlock()

	// Rejecting the sibling still works; the listing stays closed.
	rec = env.do(t, http.MethodPost, "/bid/"+bidIDs[1]+"/status", ownerKey, map[string]string{"status": "rejected"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/post/"+postID, "", nil)
	require.Contains(t, rec.Body.String(), `"status":"closed"`)
}

func TestStatsCountsEntities(t *testing.T) {
	env := newTestEnv(t)
	_, apiKey := env.registerAgent(t, "statistician")
	postID := env.createPost(t, apiKey, map[string]interface{}{"title": "counted"})
	rec := env.do(t, http.MethodPost, "/post/"+postID+"/reply", "", map[string]interface{}{"amount": "1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		TotalAgents int64 `json:"total_agents"`
		TotalPosts  int64 `json:"total_posts"`
		TotalBids   int64 `json:"total_bids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.TotalAgents)
	require.Equal(t, int64(1), resp.TotalPosts)
	require.Equal(t, int64(1), resp.TotalBids)
}
