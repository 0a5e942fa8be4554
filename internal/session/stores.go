package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vitalink-health/telehealth/internal/models"
)

// Clock supplies the server's notion of now. Every timestamp and liveness
// decision flows from one Clock, never from client input, so tests can
// drive time explicitly.
type Clock func() time.Time

// MeetingStore is the durable meeting record the coordinator drives.
// Lookup methods return (nil, nil) when nothing matches. Timestamps are
// always supplied by the caller so that every decision runs off one clock.
type MeetingStore interface {
	// Create persists a meeting. A token colliding with an existing row
	// fails with models.ErrDuplicateToken; uniqueness is enforced by the
	// store, not by the generator's pre-check.
	Create(ctx context.Context, createdBy uuid.UUID, token string, expiresAt time.Time) (*models.Meeting, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	GetByToken(ctx context.Context, token string) (*models.Meeting, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	// End sets ended_at to at only if currently null. Reports whether this
	// call performed the transition.
	End(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// ParticipantStore is the durable participant registry, scoped per meeting.
type ParticipantStore interface {
	// Create persists p and fills its generated id.
	Create(ctx context.Context, p *models.Participant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	// Leave sets left_at to at only if currently null. Reports whether this
	// call performed the transition.
	Leave(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// RecordHeartbeat refreshes last_heartbeat_at for a participant that has
	// not left. Reports whether a row was updated.
	RecordHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// SetPeerID overwrites the peer signaling id for a participant that has
	// not left; last registration wins.
	SetPeerID(ctx context.Context, id uuid.UUID, peerID string) (bool, error)
	ClearPeerID(ctx context.Context, id uuid.UUID) (bool, error)
	// ListActive returns participants of the meeting that have not left and
	// whose heartbeat is at or after cutoff, in join order.
	ListActive(ctx context.Context, meetingID uuid.UUID, cutoff time.Time) ([]models.Participant, error)
	CountActive(ctx context.Context, meetingID uuid.UUID, cutoff time.Time) (int, error)
	// EvictStale marks participants of the meeting with left_at null and
	// last_heartbeat_at before cutoff as left at the given time. Returns the
	// evicted participant ids.
	EvictStale(ctx context.Context, meetingID uuid.UUID, cutoff, at time.Time) ([]uuid.UUID, error)
	// EvictStaleAll is EvictStale across every meeting that has not ended,
	// used by the optional background sweep.
	EvictStaleAll(ctx context.Context, cutoff, at time.Time) ([]models.Eviction, error)
}

// ChatStore is the durable per-meeting chat log.
type ChatStore interface {
	// Insert persists m and fills its generated id.
	Insert(ctx context.Context, m *models.ChatMessage) error
	// ListByMeeting returns the meeting's messages oldest first, each
	// carrying the sender's display name.
	ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.ChatMessage, error)
}
