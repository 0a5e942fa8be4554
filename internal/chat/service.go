// Package chat persists and serves the in-meeting chat log. Sending is
// gated on live presence; reading is gated on membership only, so a
// participant who dropped can still recover the transcript.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/internal/events"
	"github.com/vitalink-health/telehealth/internal/models"
	"github.com/vitalink-health/telehealth/internal/sanitize"
	"github.com/vitalink-health/telehealth/internal/session"
)

// Service enforces chat invariants over the stores.
type Service struct {
	messages     session.ChatStore
	participants session.ParticipantStore
	meetings     session.MeetingStore
	sink         events.Sink
	logger       *zap.Logger
	staleWindow  time.Duration
	now          session.Clock
}

// NewService creates a chat service. A zero staleWindow falls back to the
// default; a nil sink, clock or logger falls back to a no-op.
func NewService(messages session.ChatStore, participants session.ParticipantStore, meetings session.MeetingStore, sink events.Sink, staleWindow time.Duration, clock session.Clock, logger *zap.Logger) *Service {
	if sink == nil {
		sink = events.Nop{}
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if staleWindow <= 0 {
		staleWindow = session.DefaultStaleWindow
	}
	return &Service{
		messages:     messages,
		participants: participants,
		meetings:     meetings,
		sink:         sink,
		logger:       logger,
		staleWindow:  staleWindow,
		now:          clock,
	}
}

// Send appends a message from a currently active participant in a currently
// active meeting. Over-long messages are rejected, never truncated.
func (s *Service) Send(ctx context.Context, meetingID, participantID uuid.UUID, text string) (uuid.UUID, error) {
	clean := sanitize.MessageText(text)
	if clean == "" {
		return uuid.Nil, session.Validation("text", "message is empty after sanitization")
	}
	if len([]rune(clean)) > sanitize.MaxMessageLength {
		return uuid.Nil, session.Validation("text", "message exceeds the 2000 character limit")
	}

	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return uuid.Nil, session.Internal("look up participant", err)
	}
	if p == nil || p.MeetingID != meetingID {
		return uuid.Nil, session.NotFound("participant not found in this meeting")
	}
	if p.LeftAt != nil {
		return uuid.Nil, session.Gone("participant has left the meeting")
	}
	meeting, err := s.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return uuid.Nil, session.Internal("look up meeting", err)
	}
	now := s.now()
	if meeting == nil {
		return uuid.Nil, session.NotFound("meeting not found")
	}
	if !meeting.ActiveAt(now) {
		return uuid.Nil, session.Forbidden("meeting is not active")
	}
	if !p.HeartbeatFresh(now, s.staleWindow) {
		return uuid.Nil, session.Forbidden("participant is not currently active")
	}

	msg := &models.ChatMessage{MeetingID: meetingID, ParticipantID: participantID, Text: clean, SentAt: now}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return uuid.Nil, session.Internal("persist chat message", err)
	}
	s.sink.Emit(ctx, events.ChatMessageSent(now, meetingID, participantID, len([]rune(clean))))
	return msg.ID, nil
}

// History returns the meeting's messages oldest first, each carrying the
// sender's display name as recorded at join time. Any participant of the
// meeting may read it, including one who already left or was evicted, and
// the log outlives the meeting's end.
func (s *Service) History(ctx context.Context, meetingID, requesterID uuid.UUID) ([]models.ChatMessage, error) {
	p, err := s.participants.GetByID(ctx, requesterID)
	if err != nil {
		return nil, session.Internal("look up participant", err)
	}
	if p == nil || p.MeetingID != meetingID {
		return nil, session.Forbidden("not a participant of this meeting")
	}
	list, err := s.messages.ListByMeeting(ctx, meetingID)
	if err != nil {
		return nil, session.Internal("list chat messages", err)
	}
	return list, nil
}
