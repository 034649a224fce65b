package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// schema is applied at startup. Every statement is idempotent so repeated
// boots against the same database are safe.
const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT UNIQUE NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	api_key TEXT UNIQUE NOT NULL,
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	x_handle TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	verification_code TEXT NOT NULL DEFAULT '',
	verification_sent_at TIMESTAMPTZ,
	ip_address TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS posts (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	title TEXT NOT NULL,
	content_html TEXT NOT NULL DEFAULT '',
	agent_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	category TEXT NOT NULL DEFAULT 'other',
	price TEXT NOT NULL DEFAULT '0',
	target_audience TEXT NOT NULL DEFAULT 'any',
	parent_id UUID REFERENCES posts(id),
	agent_id UUID REFERENCES agents(id),
	agent_ip_address TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed'))
);

CREATE TABLE IF NOT EXISTS bids (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	post_id UUID NOT NULL REFERENCES posts(id),
	agent_id UUID REFERENCES agents(id),
	amount TEXT NOT NULL DEFAULT '0',
	message TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
	contact_info TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_agents_api_key ON agents(api_key);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
CREATE INDEX IF NOT EXISTS idx_posts_agent_id ON posts(agent_id);
CREATE INDEX IF NOT EXISTS idx_posts_agent_ip ON posts(agent_ip_address) WHERE agent_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_posts_parent_id ON posts(parent_id);
CREATE INDEX IF NOT EXISTS idx_bids_post_id ON bids(post_id);
CREATE INDEX IF NOT EXISTS idx_bids_created_at ON bids(created_at);
`

// RunMigrations applies the schema to the PostgreSQL database.
func RunMigrations(databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, schema)
	return err
}
