// Package events defines the domain event stream consumed by the audit
// sink. Emission is fire-and-forget: sinks log their own failures and a
// broken sink never fails the operation that produced the event.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies a domain event.
type Type string

const (
	TypeMeetingCreated        Type = "meeting_created"
	TypeMeetingEnded          Type = "meeting_ended"
	TypeParticipantJoined     Type = "participant_joined"
	TypeParticipantLeft       Type = "participant_left"
	TypePeerRegistered        Type = "peer_registered"
	TypePeerDisconnected      Type = "peer_disconnected"
	TypeChatMessageSent       Type = "chat_message_sent"
	TypeTokenValidationFailed Type = "token_validation_failed"
	TypeMeetingEndDenied      Type = "meeting_end_denied"
)

// Reasons attached to participant_left events.
const (
	ReasonLeft    = "left"
	ReasonEvicted = "evicted"
)

// Event is one audit record. Identifier fields are pointers so that events
// with no meeting context (a token that matched nothing) omit them cleanly.
type Event struct {
	Type          Type       `json:"type"`
	At            time.Time  `json:"at"`
	MeetingID     *uuid.UUID `json:"meeting_id,omitempty"`
	ParticipantID *uuid.UUID `json:"participant_id,omitempty"`
	ActorID       *uuid.UUID `json:"actor_id,omitempty"`
	DisplayName   string     `json:"display_name,omitempty"`
	PeerID        string     `json:"peer_id,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	SourceIP      string     `json:"source_ip,omitempty"` // always masked before it gets here
	MessageLength int        `json:"message_length,omitempty"`
}

// Sink receives domain events. Implementations log their own failures;
// Emit never reports one.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

// Emit does nothing.
func (Nop) Emit(context.Context, Event) {}

// MeetingCreated records a clinician opening a meeting.
func MeetingCreated(at time.Time, meetingID, creatorID uuid.UUID) Event {
	return Event{Type: TypeMeetingCreated, At: at, MeetingID: &meetingID, ActorID: &creatorID}
}

// MeetingEnded records a clinician closing a meeting.
func MeetingEnded(at time.Time, meetingID, actorID uuid.UUID) Event {
	return Event{Type: TypeMeetingEnded, At: at, MeetingID: &meetingID, ActorID: &actorID}
}

// ParticipantJoined records an admission. maskedIP must already be masked.
func ParticipantJoined(at time.Time, meetingID, participantID uuid.UUID, displayName, maskedIP string) Event {
	return Event{
		Type:          TypeParticipantJoined,
		At:            at,
		MeetingID:     &meetingID,
		ParticipantID: &participantID,
		DisplayName:   displayName,
		SourceIP:      maskedIP,
	}
}

// ParticipantLeft records a departure, explicit or evicted.
func ParticipantLeft(at time.Time, meetingID, participantID uuid.UUID, reason string) Event {
	return Event{Type: TypeParticipantLeft, At: at, MeetingID: &meetingID, ParticipantID: &participantID, Reason: reason}
}

// PeerRegistered records a participant announcing its signaling id.
func PeerRegistered(at time.Time, meetingID, participantID uuid.UUID, peerID string) Event {
	return Event{Type: TypePeerRegistered, At: at, MeetingID: &meetingID, ParticipantID: &participantID, PeerID: peerID}
}

// PeerDisconnected records a participant clearing its signaling id.
func PeerDisconnected(at time.Time, meetingID, participantID uuid.UUID) Event {
	return Event{Type: TypePeerDisconnected, At: at, MeetingID: &meetingID, ParticipantID: &participantID}
}

// ChatMessageSent records a chat message without its text.
func ChatMessageSent(at time.Time, meetingID, participantID uuid.UUID, length int) Event {
	return Event{Type: TypeChatMessageSent, At: at, MeetingID: &meetingID, ParticipantID: &participantID, MessageLength: length}
}

// TokenValidationFailed records a rejected token. meetingID is non-nil when
// the token matched a meeting that was expired or ended.
func TokenValidationFailed(at time.Time, meetingID *uuid.UUID, reason string) Event {
	return Event{Type: TypeTokenValidationFailed, At: at, MeetingID: meetingID, Reason: reason}
}

// MeetingEndDenied records an end attempt by someone other than the creator.
func MeetingEndDenied(at time.Time, meetingID, actorID uuid.UUID) Event {
	return Event{Type: TypeMeetingEndDenied, At: at, MeetingID: &meetingID, ActorID: &actorID}
}
