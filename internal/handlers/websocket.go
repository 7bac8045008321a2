package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"voltdesk/internal/middleware"
	"voltdesk/internal/models"
	"voltdesk/internal/services"
	"voltdesk/internal/session"
)

const (
	readDeadline = 360 * time.Second // covers a full extraction round-trip
	pingInterval = 30 * time.Second
)

// WebSocketHandler serves the chat socket endpoint.
type WebSocketHandler struct {
	chatService *services.ChatService
	metrics     *services.Metrics
	ratePerMin  int
	pingEvery   time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(chatService *services.ChatService, metrics *services.Metrics, ratePerMin int) *WebSocketHandler {
	return &WebSocketHandler{
		chatService: chatService,
		metrics:     metrics,
		ratePerMin:  ratePerMin,
		pingEvery:   pingInterval,
	}
}

// clientConn bundles one connection's socket, write channel and rate limiter.
type clientConn struct {
	connID    string
	conn      *websocket.Conn
	writeChan chan models.ServerMessage
	limiter   *middleware.MessageLimiter
	sessionID string
}

// Handle runs one WebSocket connection until the client disconnects.
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	done := make(chan struct{})
	client := &clientConn{
		connID:    uuid.New().String(),
		conn:      c,
		writeChan: make(chan models.ServerMessage, 100),
		limiter:   middleware.NewMessageLimiter(h.ratePerMin),
	}

	h.metrics.RecordWebSocketConnect()
	defer func() {
		close(done)
		h.metrics.RecordWebSocketDisconnect()
		log.Printf("🔌 [WS] Connection %s closed", client.connID)
	}()

	c.SetReadDeadline(time.Now().Add(readDeadline))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(client, done)
	go h.writeLoop(client, done)

	client.writeChan <- models.ServerMessage{
		Type:    "connected",
		Content: "Connected. Ready to chat.",
	}
	log.Printf("🔌 [WS] Connection %s established", client.connID)

	h.readLoop(client)
}

// pingLoop keeps the connection alive while long extractions run. Only
// WriteControl may run concurrently with writeLoop's data frames.
func (h *WebSocketHandler) pingLoop(client *clientConn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				log.Printf("⚠️ [WS] Ping failed on %s: %v", client.connID, err)
				return
			}
		case <-done:
			return
		}
	}
}

// writeLoop serializes all outbound writes through one goroutine.
func (h *WebSocketHandler) writeLoop(client *clientConn, done <-chan struct{}) {
	for {
		select {
		case msg := <-client.writeChan:
			if err := client.conn.WriteJSON(msg); err != nil {
				log.Printf("⚠️ [WS] Write failed on %s: %v", client.connID, err)
				return
			}
			h.metrics.RecordWebSocketMessage(msg.Type, "outbound")
		case <-done:
			return
		}
	}
}

func (h *WebSocketHandler) readLoop(client *clientConn) {
	for {
		var clientMsg models.ClientMessage
		if err := client.conn.ReadJSON(&clientMsg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ [WS] Unexpected close on %s: %v", client.connID, err)
			}
			return
		}
		client.conn.SetReadDeadline(time.Now().Add(readDeadline))
		h.metrics.RecordWebSocketMessage(clientMsg.Type, "inbound")

		switch clientMsg.Type {
		case "chat_message":
			h.handleChatMessage(client, clientMsg)
		case "new_session":
			h.handleNewSession(client)
		case "get_session_info":
			h.handleSessionInfo(client, clientMsg)
		case "ping":
			client.writeChan <- models.ServerMessage{Type: "pong"}
		default:
			client.writeChan <- models.ServerMessage{
				Type:         "error",
				ErrorCode:    "unknown_type",
				ErrorMessage: "Unknown message type: " + clientMsg.Type,
			}
		}
	}
}

// handleChatMessage runs one chat turn, with typing indicators around the
// potentially slow responder/extraction round-trip.
func (h *WebSocketHandler) handleChatMessage(client *clientConn, clientMsg models.ClientMessage) {
	if clientMsg.Content == "" {
		client.writeChan <- models.ServerMessage{
			Type:         "error",
			ErrorCode:    "empty_message",
			ErrorMessage: "Message content is empty",
		}
		return
	}
	if !client.limiter.Allow() {
		client.writeChan <- models.ServerMessage{
			Type:         "error",
			ErrorCode:    "rate_limited",
			ErrorMessage: "You're sending messages too quickly. Please slow down.",
		}
		return
	}

	sessionID := clientMsg.SessionID
	if sessionID == "" {
		sessionID = client.sessionID
	}

	client.writeChan <- models.ServerMessage{Type: "typing", Typing: true, SessionID: sessionID}

	outcome, err := h.chatService.Process(context.Background(), sessionID, clientMsg.Content)

	client.writeChan <- models.ServerMessage{Type: "typing", Typing: false, SessionID: sessionID}

	if err != nil {
		log.Printf("❌ [WS] Chat processing failed on %s: %v", client.connID, err)
		client.writeChan <- models.ServerMessage{
			Type:         "error",
			ErrorCode:    "chat_failed",
			ErrorMessage: "Something went wrong. Please try again.",
		}
		return
	}
	client.sessionID = outcome.SessionID
	if outcome.Suppressed {
		return
	}

	client.writeChan <- models.ServerMessage{
		Type:         "chat_response",
		SessionID:    outcome.SessionID,
		Content:      outcome.Response,
		Timestamp:    session.Timestamp(),
		MessageCount: outcome.MessageCount,
	}
}

// handleNewSession mints a fresh session and makes it the connection's
// active one.
func (h *WebSocketHandler) handleNewSession(client *clientConn) {
	sessionID := uuid.New().String()
	if _, err := h.chatService.Sessions().Resolve(context.Background(), sessionID); err != nil {
		log.Printf("❌ [WS] Failed to create session on %s: %v", client.connID, err)
		client.writeChan <- models.ServerMessage{
			Type:         "error",
			ErrorCode:    "session_failed",
			ErrorMessage: "Could not create a new session",
		}
		return
	}
	client.sessionID = sessionID
	client.writeChan <- models.ServerMessage{
		Type:      "new_session",
		SessionID: sessionID,
		Timestamp: session.Timestamp(),
	}
}

// handleSessionInfo returns the session's row metadata plus its most recent
// messages and product mentions.
func (h *WebSocketHandler) handleSessionInfo(client *clientConn, clientMsg models.ClientMessage) {
	sessionID := clientMsg.SessionID
	if sessionID == "" {
		sessionID = client.sessionID
	}

	store, err := h.chatService.Sessions().Resolve(context.Background(), sessionID)
	if err != nil {
		client.writeChan <- models.ServerMessage{
			Type:         "error",
			ErrorCode:    "session_failed",
			ErrorMessage: "Could not load session",
		}
		return
	}

	history := store.History()
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	client.writeChan <- models.ServerMessage{
		Type:         "session_info",
		SessionID:    store.SessionID(),
		MessageCount: len(store.History()),
		History:      history,
		Products:     store.Products(),
	}
}
