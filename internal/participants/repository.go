// Package participants persists the per-meeting participant registry in
// PostgreSQL. Presence is never stored as a flag: it is derived from
// left_at and last_heartbeat_at against a caller-supplied cutoff, so every
// query here takes its notion of "now" from the caller.
package participants

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalink-health/telehealth/internal/models"
)

// Repository handles participant persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new participant and fills its generated id.
func (r *Repository) Create(ctx context.Context, p *models.Participant) error {
	const q = `INSERT INTO participants (id, meeting_id, display_name, source_ip, joined_at, last_heartbeat_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id`
	return r.pool.QueryRow(ctx, q, p.MeetingID, p.DisplayName, p.SourceIP, p.JoinedAt, p.LastHeartbeatAt).Scan(&p.ID)
}

// GetByID returns a participant by id, or (nil, nil) when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	const q = `SELECT id, meeting_id, display_name, peer_signaling_id, source_ip, joined_at, left_at, last_heartbeat_at
		FROM participants WHERE id = $1`
	var p models.Participant
	err := r.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.MeetingID, &p.DisplayName, &p.PeerSignalingID, &p.SourceIP, &p.JoinedAt, &p.LeftAt, &p.LastHeartbeatAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Leave sets left_at exactly once. Reports whether this call performed the
// transition; a participant that already left leaves the row untouched.
func (r *Repository) Leave(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	const q = `UPDATE participants SET left_at = $2 WHERE id = $1 AND left_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordHeartbeat refreshes last_heartbeat_at for a participant that has
// not left. Reports whether a row was updated.
func (r *Repository) RecordHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	const q = `UPDATE participants SET last_heartbeat_at = $2 WHERE id = $1 AND left_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetPeerID overwrites the peer signaling id for a participant that has not
// left; the last registration wins.
func (r *Repository) SetPeerID(ctx context.Context, id uuid.UUID, peerID string) (bool, error) {
	const q = `UPDATE participants SET peer_signaling_id = $2 WHERE id = $1 AND left_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, peerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClearPeerID nulls the peer signaling id for a participant that has not
// left. The participant itself stays joined.
func (r *Repository) ClearPeerID(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE participants SET peer_signaling_id = NULL WHERE id = $1 AND left_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListActive returns participants of a meeting with left_at null and a
// heartbeat at or after cutoff, in join order.
func (r *Repository) ListActive(ctx context.Context, meetingID uuid.UUID, cutoff time.Time) ([]models.Participant, error) {
	const q = `SELECT id, meeting_id, display_name, peer_signaling_id, source_ip, joined_at, left_at, last_heartbeat_at
		FROM participants
		WHERE meeting_id = $1 AND left_at IS NULL AND last_heartbeat_at >= $2
		ORDER BY joined_at ASC`
	rows, err := r.pool.Query(ctx, q, meetingID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.MeetingID, &p.DisplayName, &p.PeerSignalingID, &p.SourceIP, &p.JoinedAt, &p.LeftAt, &p.LastHeartbeatAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// CountActive counts participants of a meeting with left_at null and a
// heartbeat at or after cutoff.
func (r *Repository) CountActive(ctx context.Context, meetingID uuid.UUID, cutoff time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM participants
		WHERE meeting_id = $1 AND left_at IS NULL AND last_heartbeat_at >= $2`
	var n int
	err := r.pool.QueryRow(ctx, q, meetingID, cutoff).Scan(&n)
	return n, err
}

// EvictStale marks participants of a meeting whose heartbeat predates cutoff
// as left at the given time. Returns the evicted participant ids.
func (r *Repository) EvictStale(ctx context.Context, meetingID uuid.UUID, cutoff, at time.Time) ([]uuid.UUID, error) {
	const q = `UPDATE participants SET left_at = $3
		WHERE meeting_id = $1 AND left_at IS NULL AND last_heartbeat_at < $2
		RETURNING id`
	rows, err := r.pool.Query(ctx, q, meetingID, cutoff, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EvictStaleAll is EvictStale across every meeting that has not ended, for
// the background sweep. Ended meetings are skipped: their participants are
// already inactive by definition and their rows stay as a historical record.
func (r *Repository) EvictStaleAll(ctx context.Context, cutoff, at time.Time) ([]models.Eviction, error) {
	const q = `UPDATE participants p SET left_at = $2
		FROM meetings m
		WHERE p.meeting_id = m.id AND m.ended_at IS NULL
			AND p.left_at IS NULL AND p.last_heartbeat_at < $1
		RETURNING p.meeting_id, p.id`
	rows, err := r.pool.Query(ctx, q, cutoff, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evicted []models.Eviction
	for rows.Next() {
		var e models.Eviction
		if err := rows.Scan(&e.MeetingID, &e.ParticipantID); err != nil {
			return nil, err
		}
		evicted = append(evicted, e)
	}
	return evicted, rows.Err()
}
