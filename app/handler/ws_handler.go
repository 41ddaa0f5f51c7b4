package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/broadcast"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// WSHandler upgrades client connections and bridges them into the
// broadcaster. The session layer supplies the user id and device
// permissions; here they arrive as authenticated request values.
type WSHandler struct {
	broadcaster *broadcast.Broadcaster
	upgrader    websocket.Upgrader
}

// NewWSHandler creates websocket handler
func NewWSHandler(broadcaster *broadcast.Broadcaster) *WSHandler {
	return &WSHandler{
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsConn adapts a gorilla connection to the broadcaster's Conn. Writes are
// serialized; gorilla allows at most one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) Send(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// clientMessage inbound subscription control message
type clientMessage struct {
	Action   string `json:"action"` // subscribe, unsubscribe, join, leave
	DeviceID string `json:"device_id,omitempty"`
	Room     string `json:"room,omitempty"`
}

// Serve upgrades the connection and runs its read loop
// @Summary Event stream websocket
// @Tags events
// @Param user_id query string true "Authenticated user id"
// @Param devices query string false "Comma-separated permitted device ids, * for all"
// @Router /ws [get]
func (h *WSHandler) Serve(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	var permissions []string
	if devices := c.Query("devices"); devices != "" {
		permissions = strings.Split(devices, ",")
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	connID := uuid.New().String()
	ws := &wsConn{conn: conn}
	h.broadcaster.Register(connID, userID, permissions, ws)

	defer func() {
		h.broadcaster.Unregister(connID)
		conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("websocket read error for client %s: %v", connID, err)
			}
			return
		}
		h.handleMessage(connID, ws, msg)
	}
}

func (h *WSHandler) handleMessage(connID string, ws *wsConn, msg clientMessage) {
	var err error
	switch msg.Action {
	case "subscribe":
		err = h.broadcaster.SubscribeToPrinter(connID, msg.DeviceID)
	case "unsubscribe":
		h.broadcaster.UnsubscribeFromPrinter(connID, msg.DeviceID)
	case "join":
		err = h.broadcaster.JoinRoom(connID, msg.Room)
	case "leave":
		h.broadcaster.LeaveRoom(connID, msg.Room)
	default:
		logger.Warnf("unknown websocket action %q from client %s", msg.Action, connID)
		return
	}

	if err != nil {
		// Subscription rejection goes back to the requester only.
		payload, merr := wsError(msg, err)
		if merr == nil {
			if serr := ws.Send(payload); serr != nil {
				logger.Warnf("failed to send error to client %s: %v", connID, serr)
			}
		}
	}
}

func wsError(msg clientMessage, err error) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"kind":   "error",
		"action": msg.Action,
		"error":  err.Error(),
	})
}

// GetConnectionStats returns broadcaster connection counters
// @Summary Get connection statistics
// @Tags events
// @Produce json
// @Router /v1/events/stats [get]
func (h *WSHandler) GetConnectionStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.broadcaster.GetConnectionStats())
}
