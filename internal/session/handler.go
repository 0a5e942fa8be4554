package session

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/internal/middleware"
	"github.com/vitalink-health/telehealth/internal/models"
	"github.com/vitalink-health/telehealth/pkg/response"
)

// RespondError maps a classified domain error onto an HTTP status:
// validation 400, not_found 404, expired/ended/gone 410, forbidden 403,
// everything else 500 with a fixed message so no internal detail leaks.
func RespondError(c *gin.Context, err error) {
	kind := KindOf(err)
	body := response.Body{Success: false, Error: err.Error(), Code: string(kind)}
	var serr *Error
	if errors.As(err, &serr) {
		body.Field = serr.Field
	}
	switch kind {
	case KindValidation:
		response.Status(c, http.StatusBadRequest, body)
	case KindNotFound:
		response.Status(c, http.StatusNotFound, body)
	case KindExpired, KindEnded, KindGone:
		response.Status(c, http.StatusGone, body)
	case KindForbidden:
		response.Status(c, http.StatusForbidden, body)
	default:
		body.Error = "internal server error"
		body.Code = string(KindInternal)
		response.Status(c, http.StatusInternalServerError, body)
	}
}

// JoinRequest is the body for POST /video/join.
type JoinRequest struct {
	Token       string `json:"token" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
}

// LeaveRequest is the body for POST /video/leave.
type LeaveRequest struct {
	MeetingID     string `json:"meeting_id" binding:"required,uuid"`
	ParticipantID string `json:"participant_id" binding:"required,uuid"`
}

// Handler handles meeting lifecycle HTTP endpoints: the staff-facing
// /meetings routes and the patient-facing token gate under /video.
type Handler struct {
	coord  *Coordinator
	logger *zap.Logger
}

// NewHandler creates a session handler.
func NewHandler(coord *Coordinator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{coord: coord, logger: logger}
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if kind := KindOf(err); kind == KindInternal || kind == KindExhaustedRetries {
		h.logger.Error(op, zap.Error(err))
	}
	RespondError(c, err)
}

// CreateMeeting handles POST /meetings (staff).
func (h *Handler) CreateMeeting(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	res, err := h.coord.CreateMeeting(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "create meeting failed", err)
		return
	}
	response.Created(c, res)
}

// GetMeeting handles GET /meetings/:id (owner or admin).
func (h *Handler) GetMeeting(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)

	m, err := h.coord.GetMeeting(c.Request.Context(), meetingID)
	if err != nil {
		h.fail(c, "get meeting failed", err)
		return
	}
	if m.CreatedBy != userID && role != string(models.RoleAdmin) {
		response.Forbidden(c, "not the meeting owner")
		return
	}
	response.OK(c, m)
}

// EndMeeting handles POST /meetings/:id/end. The body never distinguishes
// a missing meeting from a refused caller; both come back as ended=false.
func (h *Handler) EndMeeting(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	ended, err := h.coord.EndMeeting(c.Request.Context(), meetingID, userID)
	if err != nil {
		h.fail(c, "end meeting failed", err)
		return
	}
	response.OK(c, gin.H{"ended": ended})
}

// Validate handles GET /video/validate?token=. Unusable tokens are a 200
// with valid=false and a reason, not an error; only store failures are 500s.
func (h *Handler) Validate(c *gin.Context) {
	res, err := h.coord.ValidateToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		h.fail(c, "validate token failed", err)
		return
	}
	response.OK(c, res)
}

// Join handles POST /video/join.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.coord.JoinMeeting(c.Request.Context(), req.Token, req.DisplayName, c.ClientIP())
	if err != nil {
		h.fail(c, "join meeting failed", err)
		return
	}
	response.Created(c, res)
}

// Leave handles POST /video/leave.
func (h *Handler) Leave(c *gin.Context) {
	var req LeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	meetingID, _ := uuid.Parse(req.MeetingID)
	participantID, _ := uuid.Parse(req.ParticipantID)

	left, err := h.coord.LeaveMeeting(c.Request.Context(), participantID, meetingID)
	if err != nil {
		h.fail(c, "leave meeting failed", err)
		return
	}
	response.OK(c, gin.H{"left": left})
}
