// Package realtime pushes meeting events to connected participants over
// WebSocket. The polling endpoints stay canonical; the socket only lowers
// the latency of roster and chat updates.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/internal/events"
)

const (
	// PingInterval and PongWait are used for socket liveness, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// pushedEvents is the subset of domain events forwarded to participants.
// Audit-only events (token probes, denied end attempts, creation) stay
// server-side.
var pushedEvents = map[events.Type]bool{
	events.TypeParticipantJoined: true,
	events.TypeParticipantLeft:   true,
	events.TypePeerRegistered:    true,
	events.TypePeerDisconnected:  true,
	events.TypeChatMessageSent:   true,
	events.TypeMeetingEnded:      true,
}

// Subscriber taps a meeting's domain-event channel. Every instance,
// including the one that emitted the event, receives it exactly once
// through the bridge, so delivery needs no local echo.
type Subscriber interface {
	SubscribeMeeting(meetingID uuid.UUID, handler func(payload []byte)) (cancel func(), err error)
}

// Hub maintains meeting_id -> set of connections and fans incoming domain
// events out to them.
type Hub struct {
	meetings map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel event subscription per meeting
	mu       sync.RWMutex
	logger   *zap.Logger
	sub      Subscriber
}

// NewHub creates a WebSocket hub.
func NewHub(sub Subscriber, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		meetings: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		sub:      sub,
	}
}

// Register adds a client to its meeting room, starting the event
// subscription when it is the room's first connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.meetings[c.MeetingID] == nil {
		h.meetings[c.MeetingID] = make(map[string]*Client)
		if h.sub != nil {
			meetingID := c.MeetingID
			cancel, err := h.sub.SubscribeMeeting(meetingID, func(payload []byte) {
				h.Dispatch(meetingID, payload)
			})
			if err == nil {
				h.subs[meetingID] = cancel
			} else {
				h.logger.Warn("meeting event subscription failed",
					zap.Error(err), zap.String("meeting_id", meetingID.String()))
			}
		}
	}
	h.meetings[c.MeetingID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined meeting room",
		zap.String("client_id", c.ID), zap.String("meeting_id", c.MeetingID.String()))
}

// Unregister removes a client from its meeting room, cancelling the event
// subscription when the last connection leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.meetings[c.MeetingID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.meetings, c.MeetingID)
			if cancel, ok := h.subs[c.MeetingID]; ok {
				cancel()
				delete(h.subs, c.MeetingID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left meeting room",
		zap.String("client_id", c.ID), zap.String("meeting_id", c.MeetingID.String()))
}

// Dispatch routes one raw event payload to the meeting's clients, dropping
// types participants must not see. A meeting_ended push is the client's
// cue to hang up; the server enforces it on the next heartbeat frame
// either way.
func (h *Hub) Dispatch(meetingID uuid.UUID, payload []byte) {
	var head struct {
		Type events.Type `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || !pushedEvents[head.Type] {
		return
	}
	h.broadcast(meetingID, WSMessage{Event: string(head.Type), Data: payload})
}

func (h *Hub) broadcast(meetingID uuid.UUID, msg WSMessage) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.meetings[meetingID]))
	for _, c := range h.meetings[meetingID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// RoomCount returns the number of connections in a meeting's room.
func (h *Hub) RoomCount(meetingID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.meetings[meetingID])
}
