package ws

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"telecare-backend/internal/domain"
	"telecare-backend/internal/service/call"
	"telecare-backend/pkg/logger"
	"telecare-backend/pkg/metrics"
)

// Inbound event types accepted from the media client
const (
	CallEventPeerPresence    = "peer_presence"
	CallEventTileBound       = "tile_bound"
	CallEventTileRemoved     = "tile_removed"
	CallEventProviderStopped = "provider_stopped"
)

// CallEventMessage is an inbound provider event relayed by the media client
type CallEventMessage struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id,omitempty"`
	Present       bool   `json:"present,omitempty"`
}

// CallStateMessage is the outbound state snapshot pushed after every
// transition
type CallStateMessage struct {
	Type      string           `json:"type"`
	CallID    uuid.UUID        `json:"call_id"`
	State     domain.CallState `json:"state"`
	Timestamp time.Time        `json:"timestamp"`
}

var callEventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// CallEventHub bridges call controllers and WebSocket clients: inbound
// frames become lifecycle events, every state transition goes back out as a
// snapshot.
type CallEventHub struct {
	calls   *call.Manager
	metrics *metrics.Metrics

	maxConnections int
	semaphore      chan struct{}
}

// NewCallEventHub creates a call event hub
func NewCallEventHub(calls *call.Manager, m *metrics.Metrics) *CallEventHub {
	maxConns := 1000
	if val := os.Getenv("WS_MAX_CALL_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			maxConns = n
		}
	}

	return &CallEventHub{
		calls:          calls,
		metrics:        m,
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
	}
}

// ServeWS handles WebSocket requests for call state streaming
// GET /ws/calls?call_id=...
func (h *CallEventHub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(503, gin.H{"error": "Server at capacity, please try again later"})
		return
	}
	release := func() { <-h.semaphore }

	callID, err := uuid.Parse(c.Query("call_id"))
	if err != nil {
		release()
		c.JSON(400, gin.H{"error": "invalid call_id"})
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		release()
		c.JSON(401, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		release()
		c.JSON(500, gin.H{"error": "invalid user_id"})
		return
	}

	controller, found := h.calls.Get(callID)
	if !found {
		release()
		c.JSON(404, gin.H{"error": "call not found"})
		return
	}
	if controller.CallerID != userID {
		release()
		c.JSON(403, gin.H{"error": "call belongs to another user"})
		return
	}

	conn, err := callEventsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		release()
		logger.Warn("WebSocket upgrade failed",
			zap.String("call_id", callID.String()),
			zap.Error(err))
		return
	}

	if h.metrics != nil {
		h.metrics.WebSocketConnected()
	}

	client := &callEventClient{
		hub:        h,
		conn:       conn,
		controller: controller,
		send:       make(chan []byte, 256),
		release:    release,
	}

	// Initial snapshot, then one snapshot per transition.
	client.enqueueState(controller.State())
	unsubscribe := controller.Subscribe(func(state domain.CallState) {
		client.enqueueState(state)
	})
	client.unsubscribe = unsubscribe

	go client.writePump()
	go client.readPump()
}

type callEventClient struct {
	hub         *CallEventHub
	conn        *websocket.Conn
	controller  *call.Controller
	send        chan []byte
	unsubscribe func()
	release     func()

	mu     sync.Mutex
	closed bool
}

func (c *callEventClient) enqueueState(state domain.CallState) {
	payload, err := json.Marshal(CallStateMessage{
		Type:      "call_state",
		CallID:    c.controller.CallID,
		State:     state,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}

	// An observer callback can race teardown; never write to a closed send
	// channel.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		// Slow consumer; it will catch up from the next snapshot.
	}
}

func (c *callEventClient) readPump() {
	defer func() {
		c.unsubscribe()
		c.conn.Close()
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		c.release()
		if c.hub.metrics != nil {
			c.hub.metrics.WebSocketDisconnected()
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("call_id", c.controller.CallID.String()),
					zap.Error(err))
			}
			return
		}

		var msg CallEventMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("Invalid call event from WebSocket",
				zap.String("call_id", c.controller.CallID.String()),
				zap.Error(err))
			continue
		}

		event, ok := toEvent(msg)
		if !ok {
			logger.Warn("Unknown call event type",
				zap.String("type", msg.Type),
				zap.String("call_id", c.controller.CallID.String()))
			continue
		}
		c.controller.HandleEvent(event)
	}
}

func (c *callEventClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// toEvent maps an inbound frame onto a lifecycle event. Participant IDs that
// do not parse are kept as Nil; the reducer treats Nil as "identity unknown".
func toEvent(msg CallEventMessage) (call.Event, bool) {
	participantID, _ := uuid.Parse(msg.ParticipantID)

	switch msg.Type {
	case CallEventPeerPresence:
		return call.Event{Type: call.EventPeerPresence, ParticipantID: participantID, Present: msg.Present}, true
	case CallEventTileBound:
		return call.Event{Type: call.EventTileBound, ParticipantID: participantID}, true
	case CallEventTileRemoved:
		return call.Event{Type: call.EventTileRemoved, ParticipantID: participantID}, true
	case CallEventProviderStopped:
		return call.Event{Type: call.EventProviderStopped}, true
	default:
		return call.Event{}, false
	}
}
