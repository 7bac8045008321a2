package handlers

import (
	"context"
	"net"
	"testing"
	"time"

	fwebsocket "github.com/fasthttp/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"voltdesk/internal/catalog"
	"voltdesk/internal/database"
	"voltdesk/internal/extract"
	"voltdesk/internal/models"
	"voltdesk/internal/services"
	"voltdesk/internal/session"
)

// Prometheus collectors register globally, so the test binary initializes
// them exactly once.
var testMetrics = services.InitMetrics()

type echoResponder struct {
	delay time.Duration
}

func (r *echoResponder) Reply(ctx context.Context, userText, sessionContext string) (*services.Reply, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return &services.Reply{Text: "You said: " + userText}, nil
}

// dialTestSocket serves the chat socket on an ephemeral port and returns a
// connected client.
func dialTestSocket(t *testing.T, h *WebSocketHandler) *fwebsocket.Conn {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/chat", websocket.New(h.Handle))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	url := "ws://" + ln.Addr().String() + "/ws/chat"
	var conn *fwebsocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err = fwebsocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Failed to dial %s: %v", url, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newSocketHandler(t *testing.T) *WebSocketHandler {
	t.Helper()

	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	cache := session.NewCache(session.NewMetadata(db), session.Options{
		SessionsDir:     t.TempDir(),
		DuplicateWindow: 100 * time.Millisecond,
		ProductCap:      5,
	}, 10)

	locator := catalog.NewLocator(db, t.TempDir())
	pipeline := extract.NewPipeline(&extract.PopplerRasterizer{}, &extract.TesseractEngine{}, extract.Options{})
	manuals := services.NewManualService(locator, pipeline, time.Minute, time.Minute, testMetrics)

	chatService := services.NewChatService(cache, manuals, &echoResponder{delay: 5 * time.Millisecond}, testMetrics)
	return NewWebSocketHandler(chatService, testMetrics, 600)
}

func readServerMessage(t *testing.T, conn *fwebsocket.Conn) models.ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg models.ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return msg
}

func TestWebSocketChatRoundTrip(t *testing.T) {
	h := newSocketHandler(t)
	conn := dialTestSocket(t, h)

	if msg := readServerMessage(t, conn); msg.Type != "connected" {
		t.Fatalf("Expected connected greeting, got %q", msg.Type)
	}

	if err := conn.WriteJSON(models.ClientMessage{Type: "chat_message", Content: "hello"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if msg := readServerMessage(t, conn); msg.Type != "typing" || !msg.Typing {
		t.Fatalf("Expected typing-on, got %+v", msg)
	}
	if msg := readServerMessage(t, conn); msg.Type != "typing" || msg.Typing {
		t.Fatalf("Expected typing-off, got %+v", msg)
	}
	msg := readServerMessage(t, conn)
	if msg.Type != "chat_response" || msg.Content != "You said: hello" {
		t.Fatalf("Expected chat response, got %+v", msg)
	}
	if msg.SessionID == "" || msg.MessageCount != 2 {
		t.Errorf("Response missing session data: %+v", msg)
	}
}

// Keepalive pings run on their own goroutine, so they must go out as control
// frames: those are the only writes the socket library allows concurrently
// with the data-frame write loop. A rapid ping cadence against a stream of
// data frames shakes out interleaved writes.
func TestWebSocketPingsDoNotCorruptDataFrames(t *testing.T) {
	h := newSocketHandler(t)
	h.pingEvery = 2 * time.Millisecond
	conn := dialTestSocket(t, h)

	if msg := readServerMessage(t, conn); msg.Type != "connected" {
		t.Fatalf("Expected connected greeting, got %q", msg.Type)
	}

	for i := 0; i < 30; i++ {
		if err := conn.WriteJSON(models.ClientMessage{Type: "ping"}); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
		if msg := readServerMessage(t, conn); msg.Type != "pong" {
			t.Fatalf("Round %d: expected pong, got %q", i, msg.Type)
		}
		time.Sleep(time.Millisecond)
	}

	// A full chat turn while pings keep firing: typing frames, the response
	// and the control frames all arrive intact.
	if err := conn.WriteJSON(models.ClientMessage{Type: "chat_message", Content: "still there?"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	types := []string{}
	for len(types) < 3 {
		types = append(types, readServerMessage(t, conn).Type)
	}
	if types[0] != "typing" || types[1] != "typing" || types[2] != "chat_response" {
		t.Fatalf("Unexpected frame sequence: %v", types)
	}
}

func TestWebSocketNewSession(t *testing.T) {
	h := newSocketHandler(t)
	conn := dialTestSocket(t, h)
	readServerMessage(t, conn) // connected

	if err := conn.WriteJSON(models.ClientMessage{Type: "new_session"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	msg := readServerMessage(t, conn)
	if msg.Type != "new_session" || msg.SessionID == "" {
		t.Fatalf("Expected new_session with an ID, got %+v", msg)
	}
}

func TestWebSocketEmptyMessageRejected(t *testing.T) {
	h := newSocketHandler(t)
	conn := dialTestSocket(t, h)
	readServerMessage(t, conn) // connected

	if err := conn.WriteJSON(models.ClientMessage{Type: "chat_message", Content: ""}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	msg := readServerMessage(t, conn)
	if msg.Type != "error" || msg.ErrorCode != "empty_message" {
		t.Fatalf("Expected empty_message error, got %+v", msg)
	}
}
