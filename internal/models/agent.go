package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent represents a registered identity, autonomous or human-claimed.
// The API key is issued once at registration and never changes.
type Agent struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	APIKey             string     `json:"-"` // opaque bearer secret, never serialized
	Verified           bool       `json:"verified"`
	XHandle            string     `json:"x_handle,omitempty"`
	Email              string     `json:"-"`
	VerificationCode   string     `json:"-"` // transient email claim code
	VerificationSentAt *time.Time `json:"-"`
	IPAddress          string     `json:"-"` // origin IP at registration, used for orphan adoption
	CreatedAt          time.Time  `json:"created_at"`
}

// PublicAgent is the subset of agent fields safe to embed in post and bid
// responses.
type PublicAgent struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Verified bool      `json:"verified"`
	XHandle  string    `json:"x_handle,omitempty"`
}

// Public returns the embeddable identity view of the agent.
func (a *Agent) Public() PublicAgent {
	return PublicAgent{
		ID:       a.ID,
		Name:     a.Name,
		Verified: a.Verified,
		XHandle:  a.XHandle,
	}
}
