// Package presence derives "who is currently connected" from heartbeat
// recency and brokers peer signaling ids. Liveness here is computed, not
// stored: a participant counts as active while it has not left, its last
// heartbeat is within the staleness window, and the owning meeting is
// still active.
package presence

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

// Monitor answers presence questions and evicts stale participants.
type Monitor struct {
	participants session.ParticipantStore
	meetings     session.MeetingStore
	sink         events.Sink
	logger       *zap.Logger
	staleWindow  time.Duration
	now          session.Clock
}

// NewMonitor creates a presence monitor. A zero staleWindow falls back to
// the default; a nil sink, clock or logger falls back to a no-op.
func NewMonitor(participants session.ParticipantStore, meetings session.MeetingStore, sink events.Sink, staleWindow time.Duration, clock session.Clock, logger *zap.Logger) *Monitor {
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
	return &Monitor{
		participants: participants,
		meetings:     meetings,
		sink:         sink,
		logger:       logger,
		staleWindow:  staleWindow,
		now:          clock,
	}
}

// Heartbeat refreshes a participant's liveness, evicts whoever in the same
// meeting has gone stale, and returns the resulting active roster. Eviction
// rides on heartbeat traffic: there is no scheduler in this path, so
// staleness is resolved on the natural cadence of clients checking in.
func (m *Monitor) Heartbeat(ctx context.Context, participantID uuid.UUID) ([]models.ActivePeer, error) {
	p, err := m.participants.GetByID(ctx, participantID)
	if err != nil {
		return nil, session.Internal("look up participant", err)
	}
	if p == nil {
		return nil, session.NotFound("participant not found")
	}
	if p.LeftAt != nil {
		return nil, session.Gone("participant has left the meeting")
	}
	if _, err := m.activeMeeting(ctx, p.MeetingID); err != nil {
		return nil, err
	}

	now := m.now()
	refreshed, err := m.participants.RecordHeartbeat(ctx, participantID, now)
	if err != nil {
		return nil, session.Internal("record heartbeat", err)
	}
	if !refreshed {
		// Lost a race with leave or eviction between lookup and update.
		return nil, session.Gone("participant has left the meeting")
	}
	if _, err := m.EvictStale(ctx, p.MeetingID); err != nil {
		return nil, err
	}
	return m.ActivePeers(ctx, p.MeetingID)
}

// EvictStale marks every participant of the meeting whose heartbeat
// predates the staleness window as left, emitting a participant_left event
// per eviction. Returns the count evicted.
func (m *Monitor) EvictStale(ctx context.Context, meetingID uuid.UUID) (int, error) {
	now := m.now()
	ids, err := m.participants.EvictStale(ctx, meetingID, now.Add(-m.staleWindow), now)
	if err != nil {
		return 0, session.Internal("evict stale participants", err)
	}
	for _, id := range ids {
		m.sink.Emit(ctx, events.ParticipantLeft(now, meetingID, id, events.ReasonEvicted))
	}
	if len(ids) > 0 {
		m.logger.Info("evicted stale participants",
			zap.String("meeting_id", meetingID.String()),
			zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// ActivePeers returns the roster an external signaling layer polls to
// discover whom to connect to: participants that have not left and whose
// heartbeat is fresh, in join order.
func (m *Monitor) ActivePeers(ctx context.Context, meetingID uuid.UUID) ([]models.ActivePeer, error) {
	if _, err := m.activeMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	now := m.now()
	list, err := m.participants.ListActive(ctx, meetingID, now.Add(-m.staleWindow))
	if err != nil {
		return nil, session.Internal("list active participants", err)
	}
	peers := make([]models.ActivePeer, 0, len(list))
	for _, p := range list {
		peers = append(peers, models.ActivePeer{
			ParticipantID:   p.ID,
			DisplayName:     p.DisplayName,
			PeerSignalingID: p.PeerSignalingID,
		})
	}
	return peers, nil
}

// RegisterPeer announces a participant's signaling id; the last
// registration wins and no history is kept. It reports false, with no
// further detail, when the id sanitizes to empty, the participant is
// unknown, mismatched or departed, or the meeting is inactive.
func (m *Monitor) RegisterPeer(ctx context.Context, meetingID, participantID uuid.UUID, peerID string) (bool, error) {
	id := sanitize.PeerSignalingID(peerID)
	if id == "" {
		return false, nil
	}
	p, err := m.participants.GetByID(ctx, participantID)
	if err != nil {
		return false, session.Internal("look up participant", err)
	}
	if p == nil || p.MeetingID != meetingID || p.LeftAt != nil {
		return false, nil
	}
	if _, err := m.activeMeeting(ctx, meetingID); err != nil {
		if session.KindOf(err) == session.KindInternal {
			return false, err
		}
		return false, nil
	}
	ok, err := m.participants.SetPeerID(ctx, participantID, id)
	if err != nil {
		return false, session.Internal("set peer signaling id", err)
	}
	if ok {
		m.sink.Emit(ctx, events.PeerRegistered(m.now(), meetingID, participantID, id))
	}
	return ok, nil
}

// DisconnectPeer clears a participant's signaling id without marking it as
// left: a client may re-register after a transient signaling reconnect
// without losing its join record or chat linkage. Unlike registration this
// works in an ended meeting, so clients can clean up late.
func (m *Monitor) DisconnectPeer(ctx context.Context, meetingID, participantID uuid.UUID) (bool, error) {
	p, err := m.participants.GetByID(ctx, participantID)
	if err != nil {
		return false, session.Internal("look up participant", err)
	}
	if p == nil || p.MeetingID != meetingID {
		return false, nil
	}
	ok, err := m.participants.ClearPeerID(ctx, participantID)
	if err != nil {
		return false, session.Internal("clear peer signaling id", err)
	}
	if ok {
		m.sink.Emit(ctx, events.PeerDisconnected(m.now(), meetingID, participantID))
	}
	return ok, nil
}

// activeMeeting loads the meeting and classifies why it cannot be used:
// NotFound when absent, Ended when explicitly closed, Expired when past
// its token validity window.
func (m *Monitor) activeMeeting(ctx context.Context, meetingID uuid.UUID) (*models.Meeting, error) {
	meeting, err := m.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return nil, session.Internal("look up meeting", err)
	}
	if meeting == nil {
		return nil, session.NotFound("meeting not found")
	}
	if meeting.EndedAt != nil {
		return nil, session.Ended("meeting has ended")
	}
	if !m.now().Before(meeting.TokenExpiresAt) {
		return nil, session.Expired("meeting has expired")
	}
	return meeting, nil
}
