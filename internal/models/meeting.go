package models

import (
	"time"

	"github.com/google/uuid"
)

// Meeting is one telehealth encounter room. The token is the sole bearer
// credential for joining and is unique across all meetings.
type Meeting struct {
	ID             uuid.UUID  `json:"id"`
	CreatedBy      uuid.UUID  `json:"created_by"`
	Token          string     `json:"-"`
	TokenExpiresAt time.Time  `json:"token_expires_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ActiveAt reports whether the meeting is usable at the given instant:
// not ended and the token window has not elapsed. Expiry is never swept,
// only observed lazily at the moment of a call.
func (m *Meeting) ActiveAt(now time.Time) bool {
	return m.EndedAt == nil && now.Before(m.TokenExpiresAt)
}
