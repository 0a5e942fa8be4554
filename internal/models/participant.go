package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is one joined identity within a meeting. Participants are
// ephemeral: they are created on join, never move between meetings, and
// authenticate with the meeting token rather than a user account.
type Participant struct {
	ID              uuid.UUID  `json:"id"`
	MeetingID       uuid.UUID  `json:"meeting_id"`
	DisplayName     string     `json:"display_name"`
	PeerSignalingID *string    `json:"peer_signaling_id,omitempty"`
	SourceIP        string     `json:"-"`
	JoinedAt        time.Time  `json:"joined_at"`
	LeftAt          *time.Time `json:"left_at,omitempty"`
	LastHeartbeatAt time.Time  `json:"last_heartbeat_at"`
}

// HeartbeatFresh reports whether the participant's last heartbeat falls
// within the staleness window ending at now.
func (p *Participant) HeartbeatFresh(now time.Time, window time.Duration) bool {
	return now.Sub(p.LastHeartbeatAt) <= window
}

// ActivePeer is the slice of a participant exposed to peer discovery.
type ActivePeer struct {
	ParticipantID   uuid.UUID `json:"participant_id"`
	DisplayName     string    `json:"display_name"`
	PeerSignalingID *string   `json:"peer_signaling_id,omitempty"`
}

// Eviction identifies one participant removed by a staleness sweep.
type Eviction struct {
	MeetingID     uuid.UUID
	ParticipantID uuid.UUID
}
