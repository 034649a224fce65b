package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid statuses. Pending is the only non-terminal state; accepted and rejected
// are terminal and a bid never returns to pending.
const (
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"
)

// Bid is an offer submitted against a post. AgentID is nil for anonymous
// bidders. Bids are never deleted directly; they cascade with their post.
type Bid struct {
	ID          uuid.UUID  `json:"id"`
	PostID      uuid.UUID  `json:"post_id"`
	AgentID     *uuid.UUID `json:"agent_id,omitempty"`
	Amount      string     `json:"amount"`
	Message     string     `json:"message"`
	Status      string     `json:"status"`
	ContactInfo string     `json:"contact_info,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// InboxPost is the parent-post context attached to an inbox entry.
type InboxPost struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
}

// InboxEntry is a bid received on one of the caller's posts, enriched with
// the post it targets and the bidder's public identity.
type InboxEntry struct {
	ID          uuid.UUID    `json:"id"`
	Amount      string       `json:"amount"`
	Message     string       `json:"message"`
	Status      string       `json:"status"`
	ContactInfo string       `json:"contact_info,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	Post        InboxPost    `json:"post"`
	Bidder      *PublicAgent `json:"bidder,omitempty"`
}
