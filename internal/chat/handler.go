package chat

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/internal/session"
	"github.com/vitalink-health/telehealth/pkg/response"
)

// SendRequest is the body for POST /video/chat.
type SendRequest struct {
	MeetingID     string `json:"meeting_id" binding:"required,uuid"`
	ParticipantID string `json:"participant_id" binding:"required,uuid"`
	Text          string `json:"text" binding:"required"`
}

// Handler handles the in-meeting chat endpoints under /video.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a chat handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if session.KindOf(err) == session.KindInternal {
		h.logger.Error(op, zap.Error(err))
	}
	session.RespondError(c, err)
}

// Send handles POST /video/chat.
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	meetingID, _ := uuid.Parse(req.MeetingID)
	participantID, _ := uuid.Parse(req.ParticipantID)

	id, err := h.svc.Send(c.Request.Context(), meetingID, participantID, req.Text)
	if err != nil {
		h.fail(c, "send chat message failed", err)
		return
	}
	response.Created(c, gin.H{"message_id": id})
}

// History handles GET /video/chat?meeting_id=&participant_id=.
func (h *Handler) History(c *gin.Context) {
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

	messages, err := h.svc.History(c.Request.Context(), meetingID, participantID)
	if err != nil {
		h.fail(c, "list chat history failed", err)
		return
	}
	response.OK(c, gin.H{"messages": messages})
}
