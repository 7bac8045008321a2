package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voltdesk/internal/catalog"
	"voltdesk/internal/database"
	"voltdesk/internal/extract"
	"voltdesk/internal/models"
	"voltdesk/internal/session"
)

// Prometheus collectors register globally; initialize once per test binary.
var testMetrics = InitMetrics()

// scriptedResponder replays canned replies and records the contexts it saw.
type scriptedResponder struct {
	replies  []*Reply
	contexts []string
	calls    int
}

func (r *scriptedResponder) Reply(ctx context.Context, userText, sessionContext string) (*Reply, error) {
	r.contexts = append(r.contexts, sessionContext)
	reply := r.replies[r.calls]
	r.calls++
	return reply, nil
}

// stubDocument is a minimal extract.Document for pipeline fakes.
type stubDocument struct {
	pages []string
}

func (d *stubDocument) NumPages() int                  { return len(d.pages) }
func (d *stubDocument) PageText(i int) (string, error) { return d.pages[i], nil }
func (d *stubDocument) Close() error                   { return nil }

type chatFixture struct {
	chat      *ChatService
	sessions  *session.Cache
	responder *scriptedResponder
}

func newChatFixture(t *testing.T, replies ...*Reply) *chatFixture {
	t.Helper()

	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	manualsDir := t.TempDir()
	manualFile := filepath.Join(manualsDir, "so-6004.pdf")
	if err := os.WriteFile(manualFile, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("Failed to write manual file: %v", err)
	}

	locator := catalog.NewLocator(db, manualsDir)
	if _, err := locator.Upsert(context.Background(), &catalog.ManualRecord{
		Name:        "Solo Oven",
		ModelNumber: "SO-6004 B",
		ManualPath:  "so-6004.pdf",
	}); err != nil {
		t.Fatalf("Failed to seed catalog: %v", err)
	}

	opts := extract.DefaultOptions()
	opts.OCREnabled = false
	pipeline := extract.NewPipeline(nil, nil, opts)
	pipeline.Open = func(path string) (extract.Document, error) {
		return &stubDocument{pages: []string{
			strings.Repeat("Press the clock button for three seconds to set the timer. ", 5),
		}}, nil
	}

	manuals := NewManualService(locator, pipeline, time.Minute, time.Minute, testMetrics)
	sessions := session.NewCache(session.NewMetadata(db), session.Options{
		SessionsDir:      t.TempDir(),
		DuplicateWindow:  100 * time.Millisecond,
		ProductCap:       5,
		CategoryKeywords: []string{"oven"},
	}, 10)

	responder := &scriptedResponder{replies: replies}
	return &chatFixture{
		chat:      NewChatService(sessions, manuals, responder, testMetrics),
		sessions:  sessions,
		responder: responder,
	}
}

func TestProcessPlainReply(t *testing.T) {
	f := newChatFixture(t, &Reply{Text: "Hello! How can I help?"})

	outcome, err := f.chat.Process(context.Background(), "s1", "hi there")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome.Response != "Hello! How can I help?" {
		t.Errorf("Unexpected response: %q", outcome.Response)
	}
	if outcome.MessageCount != 2 {
		t.Errorf("Expected user+assistant stored, got count %d", outcome.MessageCount)
	}

	store, err := f.sessions.Resolve(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	history := store.History()
	if len(history) != 2 || history[1].Sender != models.SenderAssistant {
		t.Errorf("Unexpected stored history: %+v", history)
	}
}

func TestProcessSuppressesDoubleSubmission(t *testing.T) {
	f := newChatFixture(t, &Reply{Text: "first answer"})

	if _, err := f.chat.Process(context.Background(), "s1", "hello"); err != nil {
		t.Fatalf("First process failed: %v", err)
	}
	outcome, err := f.chat.Process(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("Second process failed: %v", err)
	}
	if !outcome.Suppressed {
		t.Error("Immediate duplicate should be suppressed")
	}
	if f.responder.calls != 1 {
		t.Errorf("Responder should run once for a double submission, ran %d times", f.responder.calls)
	}
}

func TestProcessManualDelegation(t *testing.T) {
	f := newChatFixture(t,
		&Reply{Text: `{"action": "find_manual", "query": "SO 6004"}`,
			Delegation: &Delegation{Action: "find_manual", Query: "SO 6004"}},
		&Reply{Text: "Hold the clock button for three seconds."},
	)

	outcome, err := f.chat.Process(context.Background(), "s1", "how do I set the oven clock?")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome.Response != "Hold the clock button for three seconds." {
		t.Errorf("Unexpected response: %q", outcome.Response)
	}

	// The second responder call saw the manual's extracted text.
	if len(f.responder.contexts) != 2 {
		t.Fatalf("Expected 2 responder calls, got %d", len(f.responder.contexts))
	}
	if !strings.Contains(f.responder.contexts[1], "Press the clock button") {
		t.Errorf("Manual content missing from follow-up context: %q", f.responder.contexts[1])
	}

	// The product mention was recorded with its model number.
	store, err := f.sessions.Resolve(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	products := store.Products()
	if len(products) != 1 || products[0].Details["model"] != "SO-6004 B" {
		t.Errorf("Expected recorded product mention, got %+v", products)
	}
}

func TestProcessManualNotFound(t *testing.T) {
	f := newChatFixture(t,
		&Reply{Text: `{"action": "find_manual", "query": "lawnmower"}`,
			Delegation: &Delegation{Action: "find_manual", Query: "lawnmower"}},
	)

	outcome, err := f.chat.Process(context.Background(), "s1", "lawnmower manual please")
	if err != nil {
		t.Fatalf("Not-found must be a normal response, not an error: %v", err)
	}
	if !strings.Contains(outcome.Response, "couldn't find a manual") {
		t.Errorf("Expected a not-found response, got %q", outcome.Response)
	}
}

func TestProcessUnknownDelegationAction(t *testing.T) {
	f := newChatFixture(t,
		&Reply{Text: `{"action": "order_pizza", "query": "margherita"}`,
			Delegation: &Delegation{Action: "order_pizza", Query: "margherita"}},
	)

	outcome, err := f.chat.Process(context.Background(), "s1", "pizza?")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !strings.Contains(outcome.Response, "model number") {
		t.Errorf("Unknown action should ask for clarification, got %q", outcome.Response)
	}
}

func TestParseDelegation(t *testing.T) {
	if d := parseDelegation(`{"action": "find_manual", "query": "SO 6004"}`); d == nil || d.Action != "find_manual" {
		t.Errorf("Expected parsed delegation, got %+v", d)
	}
	for _, content := range []string{
		"plain text answer",
		`{"query": "no action"}`,
		`{broken`,
		`leading text {"action": "x"}`,
	} {
		if d := parseDelegation(content); d != nil {
			t.Errorf("parseDelegation(%q) = %+v, want nil", content, d)
		}
	}
}

func TestManualServiceCaching(t *testing.T) {
	f := newChatFixture(t)
	manuals := f.chat.manuals

	first, err := manuals.GetManualContent(context.Background(), "SO 6004")
	if err != nil {
		t.Fatalf("First extraction failed: %v", err)
	}
	if first.FromCache {
		t.Error("First extraction should not come from cache")
	}
	second, err := manuals.GetManualContent(context.Background(), "SO 6004")
	if err != nil {
		t.Fatalf("Second extraction failed: %v", err)
	}
	if !second.FromCache {
		t.Error("Second extraction should come from cache")
	}
	if first.Content != second.Content {
		t.Error("Cached content should match the original extraction")
	}
}
