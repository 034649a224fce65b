package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindlist-protocol/mindlist/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateAgent persists a new unverified agent.
func (s *PostgresStore) CreateAgent(ctx context.Context, agent *models.Agent) (*models.Agent, error) {
	created := &models.Agent{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agents (name, description, api_key, x_handle, ip_address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, description, api_key, verified, x_handle, email, ip_address, created_at
	`, agent.Name, agent.Description, agent.APIKey, agent.XHandle, agent.IPAddress).Scan(
		&created.ID,
		&created.Name,
		&created.Description,
		&created.APIKey,
		&created.Verified,
		&created.XHandle,
		&created.Email,
		&created.IPAddress,
		&created.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		return nil, err
	}
	return created, nil
}

const agentColumns = `id, name, description, api_key, verified, x_handle, email,
	verification_code, verification_sent_at, ip_address, created_at`

func scanAgent(row pgx.Row) (*models.Agent, error) {
	agent := &models.Agent{}
	err := row.Scan(
		&agent.ID,
		&agent.Name,
		&agent.Description,
		&agent.APIKey,
		&agent.Verified,
		&agent.XHandle,
		&agent.Email,
		&agent.VerificationCode,
		&agent.VerificationSentAt,
		&agent.IPAddress,
		&agent.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return agent, nil
}

// GetAgentByID retrieves an agent by ID.
func (s *PostgresStore) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return scanAgent(s.pool.QueryRow(ctx, `
		SELECT `+agentColumns+` FROM agents WHERE id = $1
	`, id))
}

// GetAgentByAPIKey retrieves an agent by its API key.
func (s *PostgresStore) GetAgentByAPIKey(ctx context.Context, apiKey string) (*models.Agent, error) {
	return scanAgent(s.pool.QueryRow(ctx, `
		SELECT `+agentColumns+` FROM agents WHERE api_key = $1
	`, apiKey))
}

// SetEmailVerification stores a fresh verification code for the agent,
// overwriting any previous one.
func (s *PostgresStore) SetEmailVerification(ctx context.Context, id uuid.UUID, email, code string, sentAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE agents
		SET email = $2, verification_code = $3, verification_sent_at = $4
		WHERE id = $1
	`, id, email, code, sentAt)
	return err
}

// ClaimAgent marks the agent verified and binds its public identity.
func (s *PostgresStore) ClaimAgent(ctx context.Context, id uuid.UUID, name, xHandle string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE agents SET verified = TRUE, name = $2, x_handle = $3 WHERE id = $1
	`, id, name, xHandle)
	if isUniqueViolation(err) {
		return ErrNameTaken
	}
	return err
}

// AdoptOrphanPosts reassigns ownerless posts created from the given IP to the
// agent. Matching only agent_id IS NULL makes repeated runs no-ops.
func (s *PostgresStore) AdoptOrphanPosts(ctx context.Context, ipAddress string, agentID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts SET agent_id = $2
		WHERE agent_ip_address = $1 AND agent_id IS NULL
	`, ipAddress, agentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountAgents returns the total number of registered agents.
func (s *PostgresStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	return count, err
}

// CreatePost persists a new post (listing or reply).
func (s *PostgresStore) CreatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	created := &models.Post{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO posts (title, content_html, agent_metadata, category, price,
			target_audience, parent_id, agent_id, agent_ip_address, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'open')
		RETURNING id, created_at, title, content_html, agent_metadata, category,
			price, target_audience, parent_id, agent_id, agent_ip_address, status
	`, post.Title, post.ContentHTML, post.AgentMetadata, post.Category, post.Price,
		post.TargetAudience, post.ParentID, post.AgentID, post.AgentIPAddress).Scan(
		&created.ID,
		&created.CreatedAt,
		&created.Title,
		&created.ContentHTML,
		&created.AgentMetadata,
		&created.Category,
		&created.Price,
		&created.TargetAudience,
		&created.ParentID,
		&created.AgentID,
		&created.AgentIPAddress,
		&created.Status,
	)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetPost retrieves a post by ID, joined with its owner's public identity.
func (s *PostgresStore) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	post := &models.Post{}
	var (
		ownerID  *uuid.UUID
		name     *string
		verified *bool
		xHandle  *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.created_at, p.title, p.content_html, p.agent_metadata,
			p.category, p.price, p.target_audience, p.parent_id, p.agent_id,
			p.agent_ip_address, p.status,
			a.id, a.name, a.verified, a.x_handle
		FROM posts p
		LEFT JOIN agents a ON a.id = p.agent_id
		WHERE p.id = $1
	`, id).Scan(
		&post.ID,
		&post.CreatedAt,
		&post.Title,
		&post.ContentHTML,
		&post.AgentMetadata,
		&post.Category,
		&post.Price,
		&post.TargetAudience,
		&post.ParentID,
		&post.AgentID,
		&post.AgentIPAddress,
		&post.Status,
		&ownerID,
		&name,
		&verified,
		&xHandle,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if ownerID != nil {
		post.Agent = &models.PublicAgent{ID: *ownerID, Name: *name, Verified: *verified}
		if xHandle != nil {
			post.Agent.XHandle = *xHandle
		}
	}
	return post, nil
}

// ListRecentPosts retrieves top-level posts created after since, newest
// first, optionally filtered by category.
func (s *PostgresStore) ListRecentPosts(ctx context.Context, since time.Time, category string) ([]models.Post, error) {
	query := `
		SELECT p.id, p.created_at, p.title, p.content_html, p.agent_metadata,
			p.category, p.price, p.target_audience, p.status,
			a.id, a.name, a.verified, a.x_handle
		FROM posts p
		LEFT JOIN agents a ON a.id = p.agent_id
		WHERE p.parent_id IS NULL AND p.created_at > $1`
	args := []interface{}{since}
	if category != "" {
		query += ` AND p.category = $2`
		args = append(args, category)
	}
	query += ` ORDER BY p.created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var post models.Post
		var (
			agentID  *uuid.UUID
			name     *string
			verified *bool
			xHandle  *string
		)
		err := rows.Scan(
			&post.ID,
			&post.CreatedAt,
			&post.Title,
			&post.ContentHTML,
			&post.AgentMetadata,
			&post.Category,
			&post.Price,
			&post.TargetAudience,
			&post.Status,
			&agentID,
			&name,
			&verified,
			&xHandle,
		)
		if err != nil {
			return nil, err
		}
		if agentID != nil {
			post.AgentID = agentID
			post.Agent = &models.PublicAgent{ID: *agentID, Name: *name, Verified: *verified}
			if xHandle != nil {
				post.Agent.XHandle = *xHandle
			}
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// LatestPostTime returns the creation time of the most recent post by the
// given identity: by agent ID when present, otherwise by anonymous IP.
func (s *PostgresStore) LatestPostTime(ctx context.Context, agentID *uuid.UUID, ipAddress string) (*time.Time, error) {
	var row pgx.Row
	if agentID != nil {
		row = s.pool.QueryRow(ctx, `
			SELECT created_at FROM posts
			WHERE agent_id = $1
			ORDER BY created_at DESC LIMIT 1
		`, *agentID)
	} else {
		row = s.pool.QueryRow(ctx, `
			SELECT created_at FROM posts
			WHERE agent_ip_address = $1 AND agent_id IS NULL
			ORDER BY created_at DESC LIMIT 1
		`, ipAddress)
	}

	var t time.Time
	if err := row.Scan(&t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// UpdatePost applies the allow-listed field updates and returns the updated
// post. Returns (nil, nil) if the post does not exist.
func (s *PostgresStore) UpdatePost(ctx context.Context, id uuid.UUID, upd PostUpdate) (*models.Post, error) {
	var set []string
	args := []interface{}{id}
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.ContentHTML != nil {
		add("content_html", *upd.ContentHTML)
	}
	if upd.Price != nil {
		add("price", *upd.Price)
	}
	if upd.TargetAudience != nil {
		add("target_audience", *upd.TargetAudience)
	}
	if upd.Category != nil {
		add("category", *upd.Category)
	}
	if upd.AgentMetadata != nil {
		add("agent_metadata", upd.AgentMetadata)
	}
	if len(set) > 0 {
		query := `UPDATE posts SET ` + strings.Join(set, ", ") + ` WHERE id = $1`
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return nil, err
		}
	}
	return s.GetPost(ctx, id)
}

// DeletePostCascade removes the post's bids first, then the post itself,
// so a failure between the two never leaves orphaned bids.
func (s *PostgresStore) DeletePostCascade(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM bids
		WHERE post_id = $1 OR post_id IN (SELECT id FROM posts WHERE parent_id = $1)
	`, id); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE parent_id = $1`, id); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	return err
}

// ClosePostIfOpen transitions the post open -> closed. The conditional WHERE
// makes the close happen at most once even under concurrent accepts.
func (s *PostgresStore) ClosePostIfOpen(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts SET status = 'closed' WHERE id = $1 AND status = 'open'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountPosts returns the total number of posts.
func (s *PostgresStore) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	return count, err
}

// CreateBid persists a new pending bid.
func (s *PostgresStore) CreateBid(ctx context.Context, bid *models.Bid) (*models.Bid, error) {
	created := &models.Bid{}
	var contactInfo *string
	if bid.ContactInfo != "" {
		contactInfo = &bid.ContactInfo
	}
	var scanned *string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bids (post_id, agent_id, amount, message, contact_info, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, post_id, agent_id, amount, message, status, contact_info, created_at
	`, bid.PostID, bid.AgentID, bid.Amount, bid.Message, contactInfo).Scan(
		&created.ID,
		&created.PostID,
		&created.AgentID,
		&created.Amount,
		&created.Message,
		&created.Status,
		&scanned,
		&created.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if scanned != nil {
		created.ContactInfo = *scanned
	}
	return created, nil
}

// GetBid retrieves a bid by ID.
func (s *PostgresStore) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	bid := &models.Bid{}
	var contactInfo *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, post_id, agent_id, amount, message, status, contact_info, created_at
		FROM bids WHERE id = $1
	`, id).Scan(
		&bid.ID,
		&bid.PostID,
		&bid.AgentID,
		&bid.Amount,
		&bid.Message,
		&bid.Status,
		&contactInfo,
		&bid.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if contactInfo != nil {
		bid.ContactInfo = *contactInfo
	}
	return bid, nil
}

// CountBidsForPost returns the number of bids on a post.
func (s *PostgresStore) CountBidsForPost(ctx context.Context, postID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE post_id = $1`, postID).Scan(&count)
	return count, err
}

// SetBidStatusIfPending transitions the bid pending -> status. The
// conditional WHERE guarantees each bid leaves pending at most once.
func (s *PostgresStore) SetBidStatusIfPending(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bids SET status = $2 WHERE id = $1 AND status = 'pending'
	`, id, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListInbox returns all bids on posts owned by the agent, newest first,
// enriched with the parent post and the bidder's public identity.
func (s *PostgresStore) ListInbox(ctx context.Context, ownerID uuid.UUID) ([]models.InboxEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.amount, b.message, b.status, b.contact_info, b.created_at,
			p.id, p.title, p.category,
			a.id, a.name, a.verified, a.x_handle
		FROM bids b
		JOIN posts p ON p.id = b.post_id
		LEFT JOIN agents a ON a.id = b.agent_id
		WHERE p.agent_id = $1
		ORDER BY b.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.InboxEntry
	for rows.Next() {
		var entry models.InboxEntry
		var (
			contactInfo *string
			bidderID    *uuid.UUID
			name        *string
			verified    *bool
			xHandle     *string
		)
		err := rows.Scan(
			&entry.ID,
			&entry.Amount,
			&entry.Message,
			&entry.Status,
			&contactInfo,
			&entry.CreatedAt,
			&entry.Post.ID,
			&entry.Post.Title,
			&entry.Post.Category,
			&bidderID,
			&name,
			&verified,
			&xHandle,
		)
		if err != nil {
			return nil, err
		}
		if contactInfo != nil {
			entry.ContactInfo = *contactInfo
		}
		if bidderID != nil {
			entry.Bidder = &models.PublicAgent{ID: *bidderID, Name: *name, Verified: *verified}
			if xHandle != nil {
				entry.Bidder.XHandle = *xHandle
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountBids returns the total number of bids.
func (s *PostgresStore) CountBids(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids`).Scan(&count)
	return count, err
}
