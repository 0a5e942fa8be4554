package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/internal/presence"
	"github.com/vitalink-health/telehealth/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope, both directions.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection of a participant.
type Client struct {
	ID            string
	MeetingID     uuid.UUID
	ParticipantID uuid.UUID
	hub           *Hub
	monitor       *presence.Monitor
	conn          *websocket.Conn
	send          chan WSMessage
	logger        *zap.Logger
}

// ServeWs handles GET /ws?token=&participant_id=. The meeting token plus
// membership stand in for authentication, same as the polling endpoints;
// staff JWTs play no part here.
func ServeWs(hub *Hub, coord *session.Coordinator, monitor *presence.Monitor, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		rawToken := c.Query("token")
		participantID, err := uuid.Parse(c.Query("participant_id"))
		if rawToken == "" || err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token and participant_id are required"})
			return
		}

		meetingID, err := coord.AuthorizeSocket(c.Request.Context(), rawToken, participantID)
		if err != nil {
			session.RespondError(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:            uuid.New().String(),
			MeetingID:     meetingID,
			ParticipantID: participantID,
			hub:           hub,
			monitor:       monitor,
			conn:          conn,
			send:          make(chan WSMessage, 256),
			logger:        logger,
		}

		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err), zap.String("client_id", c.ID))
			}
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "heartbeat":
			if !c.heartbeat() {
				return
			}
		default:
			// ignored; peer signaling payloads never transit this socket
		}
	}
}

// heartbeat refreshes presence and answers with the active roster on this
// connection only. It reports false when the participant or meeting is
// terminally gone and the socket should close.
func (c *Client) heartbeat() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peers, err := c.monitor.Heartbeat(ctx, c.ParticipantID)
	if err != nil {
		kind := session.KindOf(err)
		data, _ := json.Marshal(map[string]string{"code": string(kind)})
		c.enqueue(WSMessage{Event: "error", Data: data})
		switch kind {
		case session.KindNotFound, session.KindGone, session.KindEnded, session.KindExpired:
			return false
		}
		return true
	}

	data, err := json.Marshal(map[string]interface{}{"active_peers": peers})
	if err != nil {
		return true
	}
	c.enqueue(WSMessage{Event: "roster", Data: data})
	return true
}

func (c *Client) enqueue(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
