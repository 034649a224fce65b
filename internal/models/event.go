package models

// Feed event types published to the realtime event feed. Delivery is
// best-effort; nothing in the core depends on consumers seeing these.
const (
	EventListingCreated = "listing_created"
	EventBidAccepted    = "bid_accepted"
)

// Event is an entry on the realtime feed.
type Event struct {
	ID        string      `json:"id"` // ULID
	Type      string      `json:"type"`
	Timestamp int64       `json:"ts"` // Unix ms
	Payload   interface{} `json:"payload"`
}
