package video

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/config"
	"github.com/vitalink-health/telehealth/pkg/response"
)

// Handler handles the WebRTC configuration endpoint.
type Handler struct {
	cfg    config.WebRTCConfig
	logger *zap.Logger
}

// NewHandler creates a video config handler.
func NewHandler(cfg config.WebRTCConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cfg: cfg, logger: logger}
}

// GetConfig handles GET /video/config. Returns the ICE servers the client
// peer-connection library should dial with.
func (h *Handler) GetConfig(c *gin.Context) {
	servers := BuildICEServers(h.cfg)
	if len(servers) == 0 {
		response.ServiceUnavailable(c, "WebRTC not configured (WEBRTC_ICE_URLS)")
		return
	}
	response.OK(c, gin.H{"ice_servers": servers})
}
