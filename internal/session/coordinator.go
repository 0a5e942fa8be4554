// Package session implements the meeting lifecycle: token-gated creation,
// validation, join, leave and end. The Coordinator holds no state of its
// own; every invariant is re-evaluated per call against the stores and the
// server clock.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/internal/events"
	"github.com/vitalink-health/telehealth/internal/models"
	"github.com/vitalink-health/telehealth/internal/sanitize"
	"github.com/vitalink-health/telehealth/internal/token"
)

const (
	// DefaultTokenTTL is how long a meeting token admits participants.
	DefaultTokenTTL = 24 * time.Hour
	// DefaultStaleWindow is the heartbeat age beyond which a participant
	// no longer counts toward the active roster.
	DefaultStaleWindow = 30 * time.Second
)

// Authorizer answers whether a caller holds the administrative capability
// to end meetings it does not own.
type Authorizer interface {
	CanEndAny(ctx context.Context, callerID uuid.UUID) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, callerID uuid.UUID) (bool, error)

// CanEndAny calls f.
func (f AuthorizerFunc) CanEndAny(ctx context.Context, callerID uuid.UUID) (bool, error) {
	return f(ctx, callerID)
}

// Coordinator orchestrates meeting lifecycle operations across the stores.
type Coordinator struct {
	meetings     MeetingStore
	participants ParticipantStore
	sink         events.Sink
	authz        Authorizer
	logger       *zap.Logger
	baseURL      string
	tokenTTL     time.Duration
	staleWindow  time.Duration
	now          Clock
}

// NewCoordinator creates a session coordinator. baseURL is the public
// address join URLs are built from. Zero durations fall back to the
// defaults; a nil sink, authorizer, clock or logger falls back to a no-op
// (the clock's no-op being the real time).
func NewCoordinator(meetings MeetingStore, participants ParticipantStore, sink events.Sink, authz Authorizer, baseURL string, tokenTTL, staleWindow time.Duration, clock Clock, logger *zap.Logger) *Coordinator {
	if sink == nil {
		sink = events.Nop{}
	}
	if authz == nil {
		authz = AuthorizerFunc(func(context.Context, uuid.UUID) (bool, error) { return false, nil })
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	if staleWindow <= 0 {
		staleWindow = DefaultStaleWindow
	}
	return &Coordinator{
		meetings:     meetings,
		participants: participants,
		sink:         sink,
		authz:        authz,
		logger:       logger,
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenTTL:     tokenTTL,
		staleWindow:  staleWindow,
		now:          clock,
	}
}

// CreateResult is the outcome of CreateMeeting. The token appears here and
// nowhere else; it is never logged.
type CreateResult struct {
	MeetingID uuid.UUID `json:"meeting_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	JoinURL   string    `json:"join_url"`
}

// CreateMeeting mints a unique token, persists the meeting and returns the
// shareable join URL. Any authenticated identity may create a meeting.
func (c *Coordinator) CreateMeeting(ctx context.Context, ownerID uuid.UUID) (*CreateResult, error) {
	if ownerID == uuid.Nil {
		return nil, Forbidden("meeting creation requires an authenticated owner")
	}
	now := c.now()
	expiresAt := now.Add(c.tokenTTL)

	// The generator pre-checks uniqueness, but the store constraint is the
	// authority: a concurrent create can win the probe/insert race, which
	// surfaces as ErrDuplicateToken and costs one more attempt here.
	var meeting *models.Meeting
	for attempt := 0; attempt < token.DefaultMaxAttempts; attempt++ {
		tok, err := token.GenerateUnique(ctx, c.meetings.TokenExists, token.DefaultMaxAttempts)
		if err != nil {
			if errors.Is(err, token.ErrExhaustedRetries) {
				return nil, ExhaustedRetries("could not mint a unique meeting token", err)
			}
			return nil, Internal("generate meeting token", err)
		}
		m, err := c.meetings.Create(ctx, ownerID, tok, expiresAt)
		if err == nil {
			meeting = m
			break
		}
		if !errors.Is(err, models.ErrDuplicateToken) {
			return nil, Internal("persist meeting", err)
		}
	}
	if meeting == nil {
		return nil, ExhaustedRetries("could not mint a unique meeting token", token.ErrExhaustedRetries)
	}

	c.sink.Emit(ctx, events.MeetingCreated(now, meeting.ID, ownerID))
	c.logger.Info("meeting created",
		zap.String("meeting_id", meeting.ID.String()),
		zap.String("created_by", ownerID.String()),
		zap.Time("expires_at", expiresAt))
	return &CreateResult{
		MeetingID: meeting.ID,
		Token:     meeting.Token,
		ExpiresAt: expiresAt,
		JoinURL:   c.joinURL(meeting.Token),
	}, nil
}

func (c *Coordinator) joinURL(tok string) string {
	return fmt.Sprintf("%s/video/join?token=%s", c.baseURL, tok)
}

// ValidationReason explains a failed token validation.
type ValidationReason string

const (
	ReasonInvalidFormat ValidationReason = "invalid_format"
	ReasonNotFound      ValidationReason = "not_found"
	ReasonExpired       ValidationReason = "expired"
	ReasonEnded         ValidationReason = "ended"
)

// ValidationResult is the outcome of ValidateToken. MeetingID is set
// whenever the token matched a meeting, usable or not, so clients can show
// a specific message.
type ValidationResult struct {
	Valid     bool             `json:"valid"`
	MeetingID *uuid.UUID       `json:"meeting_id,omitempty"`
	Reason    ValidationReason `json:"reason,omitempty"`
}

// ValidateToken is the single authorization gate for join and peer
// operations. It is re-evaluated on every call: expiry is checked at the
// moment of use, never cached.
func (c *Coordinator) ValidateToken(ctx context.Context, rawToken string) (ValidationResult, error) {
	now := c.now()
	tok := sanitize.Token(rawToken)
	if len(tok) != token.EncodedLength {
		c.sink.Emit(ctx, events.TokenValidationFailed(now, nil, string(ReasonInvalidFormat)))
		return ValidationResult{Reason: ReasonInvalidFormat}, nil
	}
	m, err := c.meetings.GetByToken(ctx, tok)
	if err != nil {
		return ValidationResult{}, Internal("look up token", err)
	}
	if m == nil {
		c.sink.Emit(ctx, events.TokenValidationFailed(now, nil, string(ReasonNotFound)))
		return ValidationResult{Reason: ReasonNotFound}, nil
	}
	// An ended meeting reports ended even after its window also lapses;
	// expiry only describes meetings nobody closed.
	if m.EndedAt != nil {
		c.sink.Emit(ctx, events.TokenValidationFailed(now, &m.ID, string(ReasonEnded)))
		return ValidationResult{MeetingID: &m.ID, Reason: ReasonEnded}, nil
	}
	if !now.Before(m.TokenExpiresAt) {
		c.sink.Emit(ctx, events.TokenValidationFailed(now, &m.ID, string(ReasonExpired)))
		return ValidationResult{MeetingID: &m.ID, Reason: ReasonExpired}, nil
	}
	return ValidationResult{Valid: true, MeetingID: &m.ID}, nil
}

// JoinResult is the outcome of JoinMeeting.
type JoinResult struct {
	Participant      *models.Participant `json:"participant"`
	ParticipantCount int                 `json:"participant_count"`
}

// JoinMeeting admits a new participant through the token gate. Multiple
// joins with the same token are all accepted independently; this core
// enforces no capacity limit.
func (c *Coordinator) JoinMeeting(ctx context.Context, rawToken, displayName, sourceIP string) (*JoinResult, error) {
	res, err := c.ValidateToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, refusedJoin(res.Reason)
	}

	name := sanitize.DisplayName(displayName)
	if name == "" {
		return nil, Validation("display_name", "display name is empty after sanitization")
	}

	now := c.now()
	p := &models.Participant{
		MeetingID:       *res.MeetingID,
		DisplayName:     name,
		SourceIP:        strings.TrimSpace(sourceIP),
		JoinedAt:        now,
		LastHeartbeatAt: now,
	}
	if err := c.participants.Create(ctx, p); err != nil {
		return nil, Internal("persist participant", err)
	}
	count, err := c.participants.CountActive(ctx, p.MeetingID, now.Add(-c.staleWindow))
	if err != nil {
		return nil, Internal("count active participants", err)
	}

	masked := sanitize.MaskIP(sourceIP)
	c.sink.Emit(ctx, events.ParticipantJoined(now, p.MeetingID, p.ID, name, masked))
	c.logger.Info("participant joined",
		zap.String("meeting_id", p.MeetingID.String()),
		zap.String("participant_id", p.ID.String()),
		zap.String("source_ip", masked))
	return &JoinResult{Participant: p, ParticipantCount: count}, nil
}

func refusedJoin(reason ValidationReason) *Error {
	switch reason {
	case ReasonInvalidFormat:
		return Validation("token", "malformed meeting token")
	case ReasonNotFound:
		return NotFound("no meeting matches this token")
	case ReasonExpired:
		return Expired("meeting token has expired")
	case ReasonEnded:
		return Ended("meeting has already ended")
	default:
		return Internal(fmt.Sprintf("unhandled validation reason %q", reason), nil)
	}
}

// LeaveMeeting marks a participant as left. It reports false when the
// participant is unknown or belongs to a different meeting, without
// distinguishing the two. Leaving twice is a no-op that still succeeds.
func (c *Coordinator) LeaveMeeting(ctx context.Context, participantID, meetingID uuid.UUID) (bool, error) {
	p, err := c.participants.GetByID(ctx, participantID)
	if err != nil {
		return false, Internal("look up participant", err)
	}
	if p == nil || p.MeetingID != meetingID {
		return false, nil
	}
	if p.LeftAt != nil {
		return true, nil
	}
	now := c.now()
	flipped, err := c.participants.Leave(ctx, participantID, now)
	if err != nil {
		return false, Internal("mark participant left", err)
	}
	// Only the call that actually performed the transition emits; a lost
	// race still counts as success but must not double-count the event.
	if flipped {
		c.sink.Emit(ctx, events.ParticipantLeft(now, meetingID, participantID, events.ReasonLeft))
		c.logger.Info("participant left",
			zap.String("meeting_id", meetingID.String()),
			zap.String("participant_id", participantID.String()))
	}
	return true, nil
}

// EndMeeting closes a meeting. Only the creator or a caller with the
// administrative capability may end it; everyone else gets false, the same
// answer as for a meeting that does not exist. Ending twice is a no-op
// that still succeeds. Participants are not retroactively marked left: the
// ended meeting itself makes them inactive.
func (c *Coordinator) EndMeeting(ctx context.Context, meetingID, callerID uuid.UUID) (bool, error) {
	m, err := c.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return false, Internal("look up meeting", err)
	}
	if m == nil {
		return false, nil
	}
	now := c.now()
	if m.CreatedBy != callerID {
		admin, err := c.authz.CanEndAny(ctx, callerID)
		if err != nil {
			return false, Internal("check end capability", err)
		}
		if !admin {
			c.sink.Emit(ctx, events.MeetingEndDenied(now, meetingID, callerID))
			c.logger.Warn("meeting end denied",
				zap.String("meeting_id", meetingID.String()),
				zap.String("caller_id", callerID.String()))
			return false, nil
		}
	}
	if m.EndedAt != nil {
		return true, nil
	}
	flipped, err := c.meetings.End(ctx, meetingID, now)
	if err != nil {
		return false, Internal("end meeting", err)
	}
	if flipped {
		c.sink.Emit(ctx, events.MeetingEnded(now, meetingID, callerID))
		c.logger.Info("meeting ended",
			zap.String("meeting_id", meetingID.String()),
			zap.String("ended_by", callerID.String()))
	}
	return true, nil
}

// GetMeeting returns a meeting by id for staff views.
func (c *Coordinator) GetMeeting(ctx context.Context, meetingID uuid.UUID) (*models.Meeting, error) {
	m, err := c.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return nil, Internal("look up meeting", err)
	}
	if m == nil {
		return nil, NotFound("meeting not found")
	}
	return m, nil
}

// AuthorizeSocket admits a realtime subscriber: the token must open the
// meeting and the participant must belong to it and not have left. Returns
// the meeting id the socket is scoped to.
func (c *Coordinator) AuthorizeSocket(ctx context.Context, rawToken string, participantID uuid.UUID) (uuid.UUID, error) {
	res, err := c.ValidateToken(ctx, rawToken)
	if err != nil {
		return uuid.Nil, err
	}
	if !res.Valid {
		return uuid.Nil, refusedJoin(res.Reason)
	}
	p, err := c.participants.GetByID(ctx, participantID)
	if err != nil {
		return uuid.Nil, Internal("look up participant", err)
	}
	if p == nil || p.MeetingID != *res.MeetingID {
		return uuid.Nil, NotFound("participant not found in this meeting")
	}
	if p.LeftAt != nil {
		return uuid.Nil, Gone("participant has left the meeting")
	}
	return p.MeetingID, nil
}
