package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalink-health/telehealth/internal/models"
)

// Repository handles chat message persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a message and fills its generated id.
func (r *Repository) Insert(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (id, meeting_id, participant_id, message, sent_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id`
	return r.pool.QueryRow(ctx, q, m.MeetingID, m.ParticipantID, m.Text, m.SentAt).Scan(&m.ID)
}

// ListByMeeting returns a meeting's messages oldest first, each resolved
// with the sender's display name.
func (r *Repository) ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.ChatMessage, error) {
	const q = `SELECT c.id, c.meeting_id, c.participant_id, p.display_name, c.message, c.sent_at
		FROM chat_messages c
		JOIN participants p ON p.id = c.participant_id
		WHERE c.meeting_id = $1
		ORDER BY c.sent_at ASC`
	rows, err := r.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.MeetingID, &m.ParticipantID, &m.DisplayName, &m.Text, &m.SentAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
