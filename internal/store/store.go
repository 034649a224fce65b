package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mindlist-protocol/mindlist/internal/models"
)

// ErrNameTaken is returned when an agent name collides with an existing
// agent. Both backends translate their native unique-violation errors to it.
var ErrNameTaken = errors.New("agent name already taken")

// PostUpdate carries the allow-listed mutable fields of a post. Nil fields
// are left unchanged.
type PostUpdate struct {
	Title          *string
	ContentHTML    *string
	Price          *string
	TargetAudience *string
	Category       *string
	AgentMetadata  map[string]interface{}
}

// Empty reports whether the update would change nothing.
func (u PostUpdate) Empty() bool {
	return u.Title == nil && u.ContentHTML == nil && u.Price == nil &&
		u.TargetAudience == nil && u.Category == nil && u.AgentMetadata == nil
}

// DataStore defines the interface for persistent storage of agents, posts and
// bids. Both PostgresStore and SQLiteStore implement this interface; lookups
// return (nil, nil) when the row does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Agent operations
	CreateAgent(ctx context.Context, agent *models.Agent) (*models.Agent, error)
	GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetAgentByAPIKey(ctx context.Context, apiKey string) (*models.Agent, error)
	SetEmailVerification(ctx context.Context, id uuid.UUID, email, code string, sentAt time.Time) error
	ClaimAgent(ctx context.Context, id uuid.UUID, name, xHandle string) error
	AdoptOrphanPosts(ctx context.Context, ipAddress string, agentID uuid.UUID) (int64, error)
	CountAgents(ctx context.Context) (int64, error)

	// Post operations
	CreatePost(ctx context.Context, post *models.Post) (*models.Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error)
	ListRecentPosts(ctx context.Context, since time.Time, category string) ([]models.Post, error)
	LatestPostTime(ctx context.Context, agentID *uuid.UUID, ipAddress string) (*time.Time, error)
	UpdatePost(ctx context.Context, id uuid.UUID, upd PostUpdate) (*models.Post, error)
	DeletePostCascade(ctx context.Context, id uuid.UUID) error
	ClosePostIfOpen(ctx context.Context, id uuid.UUID) (bool, error)
	CountPosts(ctx context.Context) (int64, error)

	// Bid operations
	CreateBid(ctx context.Context, bid *models.Bid) (*models.Bid, error)
	GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	CountBidsForPost(ctx context.Context, postID uuid.UUID) (int64, error)
	SetBidStatusIfPending(ctx context.Context, id uuid.UUID, status string) (bool, error)
	ListInbox(ctx context.Context, ownerID uuid.UUID) ([]models.InboxEntry, error)
	CountBids(ctx context.Context) (int64, error)
}
