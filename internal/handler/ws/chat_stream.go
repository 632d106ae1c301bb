package ws

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"telecare-backend/internal/domain"
	"telecare-backend/internal/service/chat"
	"telecare-backend/pkg/logger"
	"telecare-backend/pkg/metrics"
)

// TimelineMessage is the outbound frame carrying new timeline entries
type TimelineMessage struct {
	Type           string           `json:"type"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	Messages       []domain.Message `json:"messages"`
	Timestamp      time.Time        `json:"timestamp"`
}

var chatStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// ChatStreamHub streams conversation timelines over WebSocket. A connection
// subscribes one conversation: polling starts on connect and stops when the
// last subscriber disconnects.
type ChatStreamHub struct {
	chatService *chat.Service
	metrics     *metrics.Metrics

	maxConnections int
	semaphore      chan struct{}
}

// NewChatStreamHub creates a chat stream hub
func NewChatStreamHub(chatService *chat.Service, m *metrics.Metrics) *ChatStreamHub {
	maxConns := 1000
	if val := os.Getenv("WS_MAX_CHAT_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			maxConns = n
		}
	}

	return &ChatStreamHub{
		chatService:    chatService,
		metrics:        m,
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
	}
}

// ServeWS handles WebSocket requests for a conversation timeline
// GET /ws/conversations?conversation_id=...
func (h *ChatStreamHub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(503, gin.H{"error": "Server at capacity, please try again later"})
		return
	}
	release := func() { <-h.semaphore }

	conversationID, err := uuid.Parse(c.Query("conversation_id"))
	if err != nil {
		release()
		c.JSON(400, gin.H{"error": "invalid conversation_id"})
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

	// StartPolling authorizes the caller against the conversation.
	stopPolling, err := h.chatService.StartPolling(c.Request.Context(), userID, conversationID)
	if err != nil {
		release()
		c.JSON(403, gin.H{"error": "not a participant of this conversation"})
		return
	}

	conn, err := chatStreamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		stopPolling()
		release()
		logger.Warn("WebSocket upgrade failed",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err))
		return
	}

	if h.metrics != nil {
		h.metrics.WebSocketConnected()
	}

	client := &chatStreamClient{
		hub:            h,
		conn:           conn,
		userID:         userID,
		conversationID: conversationID,
		stopPolling:    stopPolling,
		release:        release,
		done:           make(chan struct{}),
	}

	go client.writePump()
	go client.readPump()
}

type chatStreamClient struct {
	hub            *ChatStreamHub
	conn           *websocket.Conn
	userID         uuid.UUID
	conversationID uuid.UUID
	stopPolling    func()
	release        func()
	done           chan struct{}
}

// readPump only consumes control frames; chat sends go through HTTP
func (c *chatStreamClient) readPump() {
	defer func() {
		close(c.done)
		c.stopPolling()
		c.conn.Close()
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
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("conversation_id", c.conversationID.String()),
					zap.Error(err))
			}
			return
		}
	}
}

// writePump pushes timeline entries the client has not seen yet, checking
// for new entries once per second
func (c *chatStreamClient) writePump() {
	pingTicker := time.NewTicker(pingInterval)
	pollTicker := time.NewTicker(time.Second)
	defer func() {
		pingTicker.Stop()
		pollTicker.Stop()
		c.conn.Close()
	}()

	// Merges can insert behind the tail, so track delivery per entry rather
	// than by position.
	seen := make(map[uuid.UUID]string)
	for {
		select {
		case <-c.done:
			return

		case <-pollTicker.C:
			messages, err := c.hub.chatService.Messages(context.Background(), c.userID, c.conversationID)
			if err != nil {
				continue
			}
			var fresh []domain.Message
			for _, m := range messages {
				if seen[m.MessageID] == m.Status {
					continue
				}
				seen[m.MessageID] = m.Status
				fresh = append(fresh, m)
			}
			if len(fresh) == 0 {
				continue
			}

			payload, err := json.Marshal(TimelineMessage{
				Type:           "timeline",
				ConversationID: c.conversationID,
				Messages:       fresh,
				Timestamp:      time.Now(),
			})
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
