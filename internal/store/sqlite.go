package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mindlist-protocol/mindlist/internal/models"
)

// SQLiteStore handles SQLite database operations. It exists for local
// development and tests; production runs on PostgreSQL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/mindlist.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/mindlist.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		api_key TEXT UNIQUE NOT NULL,
		verified INTEGER NOT NULL DEFAULT 0,
		x_handle TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		verification_code TEXT NOT NULL DEFAULT '',
		verification_sent_at DATETIME,
		ip_address TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		title TEXT NOT NULL,
		content_html TEXT NOT NULL DEFAULT '',
		agent_metadata TEXT NOT NULL DEFAULT '{}',
		category TEXT NOT NULL DEFAULT 'other',
		price TEXT NOT NULL DEFAULT '0',
		target_audience TEXT NOT NULL DEFAULT 'any',
		parent_id TEXT REFERENCES posts(id),
		agent_id TEXT REFERENCES agents(id),
		agent_ip_address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed'))
	);

	CREATE TABLE IF NOT EXISTS bids (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES posts(id),
		agent_id TEXT REFERENCES agents(id),
		amount TEXT NOT NULL DEFAULT '0',
		message TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
		contact_info TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_agents_api_key ON agents(api_key);
	CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
	CREATE INDEX IF NOT EXISTS idx_posts_agent_id ON posts(agent_id);
	CREATE INDEX IF NOT EXISTS idx_bids_post_id ON bids(post_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	str := id.String()
	return &str
}

func parseUUIDPtr(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	id := uuid.MustParse(*s)
	return &id
}

// CreateAgent persists a new unverified agent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *models.Agent) (*models.Agent, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, description, api_key, x_handle, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id.String(), agent.Name, agent.Description, agent.APIKey, agent.XHandle, agent.IPAddress, now)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		return nil, err
	}

	return s.GetAgentByID(ctx, id)
}

func (s *SQLiteStore) scanAgentRow(row *sql.Row) (*models.Agent, error) {
	agent := &models.Agent{}
	var idStr string
	var verifiedInt int
	err := row.Scan(
		&idStr,
		&agent.Name,
		&agent.Description,
		&agent.APIKey,
		&verifiedInt,
		&agent.XHandle,
		&agent.Email,
		&agent.VerificationCode,
		&agent.VerificationSentAt,
		&agent.IPAddress,
		&agent.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	agent.ID = uuid.MustParse(idStr)
	agent.Verified = verifiedInt == 1
	return agent, nil
}

const sqliteAgentColumns = `id, name, description, api_key, verified, x_handle, email,
	verification_code, verification_sent_at, ip_address, created_at`

// GetAgentByID retrieves an agent by ID.
func (s *SQLiteStore) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return s.scanAgentRow(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteAgentColumns+` FROM agents WHERE id = ?
	`, id.String()))
}

// GetAgentByAPIKey retrieves an agent by its API key.
func (s *SQLiteStore) GetAgentByAPIKey(ctx context.Context, apiKey string) (*models.Agent, error) {
	return s.scanAgentRow(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteAgentColumns+` FROM agents WHERE api_key = ?
	`, apiKey))
}

// SetEmailVerification stores a fresh verification code for the agent.
func (s *SQLiteStore) SetEmailVerification(ctx context.Context, id uuid.UUID, email, code string, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agents SET email = ?, verification_code = ?, verification_sent_at = ? WHERE id = ?
	`, email, code, sentAt, id.String())
	return err
}

// ClaimAgent marks the agent verified and binds its public identity.
func (s *SQLiteStore) ClaimAgent(ctx context.Context, id uuid.UUID, name, xHandle string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agents SET verified = 1, name = ?, x_handle = ? WHERE id = ?
	`, name, xHandle, id.String())
	if isSQLiteUniqueViolation(err) {
		return ErrNameTaken
	}
	return err
}

// AdoptOrphanPosts reassigns ownerless posts created from the given IP.
func (s *SQLiteStore) AdoptOrphanPosts(ctx context.Context, ipAddress string, agentID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET agent_id = ? WHERE agent_ip_address = ? AND agent_id IS NULL
	`, agentID.String(), ipAddress)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountAgents returns the total number of registered agents.
func (s *SQLiteStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	return count, err
}

// CreatePost persists a new post (listing or reply).
func (s *SQLiteStore) CreatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	id := uuid.New()
	now := time.Now().UTC()

	metadata, err := json.Marshal(post.AgentMetadata)
	if err != nil {
		return nil, err
	}
	if post.AgentMetadata == nil {
		metadata = []byte(`{}`)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (id, created_at, title, content_html, agent_metadata, category,
			price, target_audience, parent_id, agent_id, agent_ip_address, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'open')
	`, id.String(), now, post.Title, post.ContentHTML, string(metadata), post.Category,
		post.Price, post.TargetAudience, uuidPtrString(post.ParentID),
		uuidPtrString(post.AgentID), post.AgentIPAddress)
	if err != nil {
		return nil, err
	}

	return s.GetPost(ctx, id)
}

// GetPost retrieves a post by ID, joined with its owner's public identity.
func (s *SQLiteStore) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	post := &models.Post{}
	var (
		idStr       string
		metadataStr string
		parentIDStr *string
		agentIDStr  *string
		ipStr       string
		ownerIDStr  *string
		name        *string
		verifiedInt *int
		xHandle     *string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.created_at, p.title, p.content_html, p.agent_metadata,
			p.category, p.price, p.target_audience, p.parent_id, p.agent_id,
			p.agent_ip_address, p.status,
			a.id, a.name, a.verified, a.x_handle
		FROM posts p
		LEFT JOIN agents a ON a.id = p.agent_id
		WHERE p.id = ?
	`, id.String()).Scan(
		&idStr,
		&post.CreatedAt,
		&post.Title,
		&post.ContentHTML,
		&metadataStr,
		&post.Category,
		&post.Price,
		&post.TargetAudience,
		&parentIDStr,
		&agentIDStr,
		&ipStr,
		&post.Status,
		&ownerIDStr,
		&name,
		&verifiedInt,
		&xHandle,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	post.ID = uuid.MustParse(idStr)
	post.ParentID = parseUUIDPtr(parentIDStr)
	post.AgentID = parseUUIDPtr(agentIDStr)
	post.AgentIPAddress = ipStr
	if err := json.Unmarshal([]byte(metadataStr), &post.AgentMetadata); err != nil {
		return nil, err
	}
	if ownerIDStr != nil {
		post.Agent = &models.PublicAgent{
			ID:       uuid.MustParse(*ownerIDStr),
			Name:     *name,
			Verified: *verifiedInt == 1,
		}
		if xHandle != nil {
			post.Agent.XHandle = *xHandle
		}
	}
	return post, nil
}

// ListRecentPosts retrieves top-level posts created after since, newest first.
func (s *SQLiteStore) ListRecentPosts(ctx context.Context, since time.Time, category string) ([]models.Post, error) {
	query := `
		SELECT p.id, p.created_at, p.title, p.content_html, p.agent_metadata,
			p.category, p.price, p.target_audience, p.status,
			a.id, a.name, a.verified, a.x_handle
		FROM posts p
		LEFT JOIN agents a ON a.id = p.agent_id
		WHERE p.parent_id IS NULL AND p.created_at > ?`
	args := []interface{}{since}
	if category != "" {
		query += ` AND p.category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY p.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var post models.Post
		var (
			idStr       string
			metadataStr string
			ownerIDStr  *string
			name        *string
			verifiedInt *int
			xHandle     *string
		)
		err := rows.Scan(
			&idStr,
			&post.CreatedAt,
			&post.Title,
			&post.ContentHTML,
			&metadataStr,
			&post.Category,
			&post.Price,
			&post.TargetAudience,
			&post.Status,
			&ownerIDStr,
			&name,
			&verifiedInt,
			&xHandle,
		)
		if err != nil {
			return nil, err
		}
		post.ID = uuid.MustParse(idStr)
		if err := json.Unmarshal([]byte(metadataStr), &post.AgentMetadata); err != nil {
			return nil, err
		}
		if ownerIDStr != nil {
			ownerID := uuid.MustParse(*ownerIDStr)
			post.AgentID = &ownerID
			post.Agent = &models.PublicAgent{ID: ownerID, Name: *name, Verified: *verifiedInt == 1}
			if xHandle != nil {
				post.Agent.XHandle = *xHandle
			}
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// LatestPostTime returns the creation time of the identity's most recent post.
func (s *SQLiteStore) LatestPostTime(ctx context.Context, agentID *uuid.UUID, ipAddress string) (*time.Time, error) {
	var row *sql.Row
	if agentID != nil {
		row = s.db.QueryRowContext(ctx, `
			SELECT created_at FROM posts WHERE agent_id = ?
			ORDER BY created_at DESC LIMIT 1
		`, agentID.String())
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT created_at FROM posts WHERE agent_ip_address = ? AND agent_id IS NULL
			ORDER BY created_at DESC LIMIT 1
		`, ipAddress)
	}

	var t time.Time
	if err := row.Scan(&t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// UpdatePost applies the allow-listed field updates.
func (s *SQLiteStore) UpdatePost(ctx context.Context, id uuid.UUID, upd PostUpdate) (*models.Post, error) {
	var set []string
	var args []interface{}
	add := func(column string, value interface{}) {
		set = append(set, column+" = ?")
		args = append(args, value)
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
		metadata, err := json.Marshal(upd.AgentMetadata)
		if err != nil {
			return nil, err
		}
		add("agent_metadata", string(metadata))
	}
	if len(set) > 0 {
		query := `UPDATE posts SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
		args = append(args, id.String())
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
	}
	return s.GetPost(ctx, id)
}

// DeletePostCascade removes the post's bids first, then the post itself.
func (s *SQLiteStore) DeletePostCascade(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM bids
		WHERE post_id = ? OR post_id IN (SELECT id FROM posts WHERE parent_id = ?)
	`, id.String(), id.String()); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE parent_id = ?`, id.String()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id.String())
	return err
}

// ClosePostIfOpen transitions the post open -> closed at most once.
func (s *SQLiteStore) ClosePostIfOpen(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET status = 'closed' WHERE id = ? AND status = 'open'
	`, id.String())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// CountPosts returns the total number of posts.
func (s *SQLiteStore) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	return count, err
}

// CreateBid persists a new pending bid.
func (s *SQLiteStore) CreateBid(ctx context.Context, bid *models.Bid) (*models.Bid, error) {
	id := uuid.New()
	now := time.Now().UTC()

	var contactInfo *string
	if bid.ContactInfo != "" {
		contactInfo = &bid.ContactInfo
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bids (id, post_id, agent_id, amount, message, contact_info, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)
	`, id.String(), bid.PostID.String(), uuidPtrString(bid.AgentID), bid.Amount, bid.Message, contactInfo, now)
	if err != nil {
		return nil, err
	}

	return s.GetBid(ctx, id)
}

// GetBid retrieves a bid by ID.
func (s *SQLiteStore) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	bid := &models.Bid{}
	var (
		idStr       string
		postIDStr   string
		agentIDStr  *string
		contactInfo *string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, agent_id, amount, message, status, contact_info, created_at
		FROM bids WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&postIDStr,
		&agentIDStr,
		&bid.Amount,
		&bid.Message,
		&bid.Status,
		&contactInfo,
		&bid.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	bid.ID = uuid.MustParse(idStr)
	bid.PostID = uuid.MustParse(postIDStr)
	bid.AgentID = parseUUIDPtr(agentIDStr)
	if contactInfo != nil {
		bid.ContactInfo = *contactInfo
	}
	return bid, nil
}

// CountBidsForPost returns the number of bids on a post.
func (s *SQLiteStore) CountBidsForPost(ctx context.Context, postID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bids WHERE post_id = ?`, postID.String()).Scan(&count)
	return count, err
}

// SetBidStatusIfPending transitions the bid pending -> status at most once.
func (s *SQLiteStore) SetBidStatusIfPending(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bids SET status = ? WHERE id = ? AND status = 'pending'
	`, status, id.String())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// ListInbox returns all bids on posts owned by the agent, newest first.
func (s *SQLiteStore) ListInbox(ctx context.Context, ownerID uuid.UUID) ([]models.InboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.amount, b.message, b.status, b.contact_info, b.created_at,
			p.id, p.title, p.category,
			a.id, a.name, a.verified, a.x_handle
		FROM bids b
		JOIN posts p ON p.id = b.post_id
		LEFT JOIN agents a ON a.id = b.agent_id
		WHERE p.agent_id = ?
		ORDER BY b.created_at DESC
	`, ownerID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.InboxEntry
	for rows.Next() {
		var entry models.InboxEntry
		var (
			idStr       string
			contactInfo *string
			postIDStr   string
			bidderIDStr *string
			name        *string
			verifiedInt *int
			xHandle     *string
		)
		err := rows.Scan(
			&idStr,
			&entry.Amount,
			&entry.Message,
			&entry.Status,
			&contactInfo,
			&entry.CreatedAt,
			&postIDStr,
			&entry.Post.Title,
			&entry.Post.Category,
			&bidderIDStr,
			&name,
			&verifiedInt,
			&xHandle,
		)
		if err != nil {
			return nil, err
		}
		entry.ID = uuid.MustParse(idStr)
		entry.Post.ID = uuid.MustParse(postIDStr)
		if contactInfo != nil {
			entry.ContactInfo = *contactInfo
		}
		if bidderIDStr != nil {
			entry.Bidder = &models.PublicAgent{
				ID:       uuid.MustParse(*bidderIDStr),
				Name:     *name,
				Verified: *verifiedInt == 1,
			}
			if xHandle != nil {
				entry.Bidder.XHandle = *xHandle
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountBids returns the total number of bids.
func (s *SQLiteStore) CountBids(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bids`).Scan(&count)
	return count, err
}
