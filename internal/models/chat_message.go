package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one append-only in-meeting chat entry. DisplayName is
// resolved from the sender's participant row on read; messages themselves
// are immutable.
type ChatMessage struct {
	ID            uuid.UUID `json:"id"`
	MeetingID     uuid.UUID `json:"meeting_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sent_at"`
}
