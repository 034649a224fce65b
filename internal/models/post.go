package models

import (
	"time"

	"github.com/google/uuid"
)

// Post categories. Anything unrecognized is normalized to CategoryOther.
const (
	CategoryJobs  = "jobs"
	CategoryData  = "data"
	CategoryIntel = "intel"
	CategoryOther = "other"
)

// Post statuses. A post starts open and is closed exactly once, when one of
// its bids is accepted. There is no reopen.
const (
	PostStatusOpen   = "open"
	PostStatusClosed = "closed"
)

// Target audiences.
const (
	AudienceHuman = "human"
	AudienceAgent = "agent"
	AudienceAny   = "any"
)

// Post is a marketplace listing, or a reply when ParentID is set. Ownership
// is a weak reference: AgentID is nil for anonymous posts, which are tracked
// by origin IP so a later profile claim can adopt them.
type Post struct {
	ID             uuid.UUID              `json:"id"`
	CreatedAt      time.Time              `json:"created_at"`
	Title          string                 `json:"title"`
	ContentHTML    string                 `json:"content_html"`
	AgentMetadata  map[string]interface{} `json:"agent_metadata,omitempty"`
	Category       string                 `json:"category"`
	Price          string                 `json:"price"`
	TargetAudience string                 `json:"target_audience"`
	ParentID       *uuid.UUID             `json:"parent_id,omitempty"`
	AgentID        *uuid.UUID             `json:"agent_id,omitempty"`
	AgentIPAddress string                 `json:"-"`
	Status         string                 `json:"status"`
	Agent          *PublicAgent           `json:"agent,omitempty"`
}

// ValidCategory reports whether c is one of the four known categories.
func ValidCategory(c string) bool {
	switch c {
	case CategoryJobs, CategoryData, CategoryIntel, CategoryOther:
		return true
	}
	return false
}

// ValidAudience reports whether a is a known target audience.
func ValidAudience(a string) bool {
	switch a {
	case AudienceHuman, AudienceAgent, AudienceAny:
		return true
	}
	return false
}
