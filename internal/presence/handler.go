package presence

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/internal/session"
	"github.com/vitalink-health/telehealth/pkg/response"
)

// HeartbeatRequest is the body for POST /video/heartbeat.
type HeartbeatRequest struct {
	ParticipantID string `json:"participant_id" binding:"required,uuid"`
}

// PeerRequest is the body for POST /video/peer.
type PeerRequest struct {
	MeetingID       string `json:"meeting_id" binding:"required,uuid"`
	ParticipantID   string `json:"participant_id" binding:"required,uuid"`
	PeerSignalingID string `json:"peer_signaling_id" binding:"required"`
}

// DisconnectRequest is the body for POST /video/peer/disconnect.
type DisconnectRequest struct {
	MeetingID     string `json:"meeting_id" binding:"required,uuid"`
	ParticipantID string `json:"participant_id" binding:"required,uuid"`
}

// Handler handles the patient-facing presence endpoints under /video.
type Handler struct {
	monitor *Monitor
	logger  *zap.Logger
}

// NewHandler creates a presence handler.
func NewHandler(monitor *Monitor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{monitor: monitor, logger: logger}
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if session.KindOf(err) == session.KindInternal {
		h.logger.Error(op, zap.Error(err))
	}
	session.RespondError(c, err)
}

// Heartbeat handles POST /video/heartbeat.
func (h *Handler) Heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	participantID, _ := uuid.Parse(req.ParticipantID)

	peers, err := h.monitor.Heartbeat(c.Request.Context(), participantID)
	if err != nil {
		h.fail(c, "heartbeat failed", err)
		return
	}
	response.OK(c, gin.H{"active_peers": peers})
}

// Peers handles GET /video/peers?meeting_id=&participant_id=. The roster
// is only served to someone currently on it.
func (h *Handler) Peers(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Query("meeting_id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting_id")
		return
	}
	participantID, err := uuid.Parse(c.Query("participant_id"))
	if err != nil {
		response.BadRequest(c, "invalid participant_id")
		return
	}

	peers, err := h.monitor.ActivePeers(c.Request.Context(), meetingID)
	if err != nil {
		h.fail(c, "list active peers failed", err)
		return
	}
	for _, p := range peers {
		if p.ParticipantID == participantID {
			response.OK(c, gin.H{"active_peers": peers})
			return
		}
	}
	session.RespondError(c, session.Forbidden("requester is not an active participant of this meeting"))
}

// RegisterPeer handles POST /video/peer.
func (h *Handler) RegisterPeer(c *gin.Context) {
	var req PeerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	meetingID, _ := uuid.Parse(req.MeetingID)
	participantID, _ := uuid.Parse(req.ParticipantID)

	ok, err := h.monitor.RegisterPeer(c.Request.Context(), meetingID, participantID, req.PeerSignalingID)
	if err != nil {
		h.fail(c, "register peer failed", err)
		return
	}
	response.OK(c, gin.H{"registered": ok})
}

// DisconnectPeer handles POST /video/peer/disconnect.
func (h *Handler) DisconnectPeer(c *gin.Context) {
	var req DisconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	meetingID, _ := uuid.Parse(req.MeetingID)
	participantID, _ := uuid.Parse(req.ParticipantID)

	ok, err := h.monitor.DisconnectPeer(c.Request.Context(), meetingID, participantID)
	if err != nil {
		h.fail(c, "disconnect peer failed", err)
		return
	}
	response.OK(c, gin.H{"disconnected": ok})
}
