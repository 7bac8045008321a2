package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"voltdesk/internal/models"
)

func writeSessionFile(t *testing.T, dir string, doc models.SessionDocument) {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to marshal document: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, doc.SessionID+".json"), data, 0o644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}
}

func TestHydrateCreatesMissingRows(t *testing.T) {
	meta := testMetadata(t)
	dir := t.TempDir()
	ctx := context.Background()

	writeSessionFile(t, dir, models.SessionDocument{
		SessionID:    "dropped-in",
		CreatedAt:    "2026-08-30T10:00:00Z",
		LastActivity: "2026-08-30T10:05:00Z",
		History: []models.Message{
			{Timestamp: "2026-08-30T10:00:00Z", Sender: models.SenderUser, Content: "hi"},
			{Timestamp: "2026-08-30T10:05:00Z", Sender: models.SenderAssistant, Content: "hello"},
		},
		Products: []models.ProductMention{{Name: "oven", Timestamp: "2026-08-30T10:05:00Z"}},
	})

	n, err := Hydrate(ctx, meta, dir)
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 reconciled row, got %d", n)
	}

	info, err := meta.Info(ctx, "dropped-in")
	if err != nil {
		t.Fatalf("Row should exist after hydration: %v", err)
	}
	if info.MessageCount != 2 || info.ProductCount != 1 {
		t.Errorf("Row counts (%d, %d) should match document array lengths (2, 1)",
			info.MessageCount, info.ProductCount)
	}
	if info.LastActivity != "2026-08-30T10:05:00Z" {
		t.Errorf("Row last_activity should come from the document, got %q", info.LastActivity)
	}
}

func TestHydrateIdempotent(t *testing.T) {
	meta := testMetadata(t)
	dir := t.TempDir()
	ctx := context.Background()

	writeSessionFile(t, dir, models.SessionDocument{
		SessionID:    "stable",
		CreatedAt:    "2026-08-30T10:00:00Z",
		LastActivity: "2026-08-30T10:00:00Z",
	})

	if n, err := Hydrate(ctx, meta, dir); err != nil || n != 1 {
		t.Fatalf("First hydration: n=%d err=%v, want 1, nil", n, err)
	}
	if n, err := Hydrate(ctx, meta, dir); err != nil || n != 0 {
		t.Errorf("Second hydration on unchanged files: n=%d err=%v, want 0, nil", n, err)
	}
}

func TestHydrateUpdatesStaleCounts(t *testing.T) {
	meta := testMetadata(t)
	opts := testOptions(t)
	ctx := context.Background()

	// A live store writes both backends, then the document gains a message
	// the row never saw.
	s := newTestStore(t, meta, opts, "drifted")
	if _, err := s.AddMessage(ctx, models.SenderUser, "first"); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	doc := s.Document()
	doc.History = append(doc.History, models.Message{
		Timestamp: "2026-08-31T09:00:00Z", Sender: models.SenderUser, Content: "out of band",
	})
	doc.LastActivity = "2026-08-31T09:00:00Z"
	writeSessionFile(t, opts.SessionsDir, doc)

	n, err := Hydrate(ctx, meta, opts.SessionsDir)
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 reconciled row, got %d", n)
	}
	info, err := meta.Info(ctx, "drifted")
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.MessageCount != 2 {
		t.Errorf("Row should be rebuilt from the document, got message_count=%d", info.MessageCount)
	}
}

func TestHydrateSkipsCorruptFiles(t *testing.T) {
	meta := testMetadata(t)
	dir := t.TempDir()
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("{oops"), 0o644); err != nil {
		t.Fatalf("Failed to plant corrupt file: %v", err)
	}
	writeSessionFile(t, dir, models.SessionDocument{
		SessionID:    "fine",
		CreatedAt:    "2026-08-30T10:00:00Z",
		LastActivity: "2026-08-30T10:00:00Z",
	})

	n, err := Hydrate(ctx, meta, dir)
	if err != nil {
		t.Fatalf("Corrupt file must not fail the scan: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected only the valid document reconciled, got %d", n)
	}
	if _, err := meta.Info(ctx, "corrupt"); err != ErrSessionNotFound {
		t.Errorf("Corrupt document must not create a row, got %v", err)
	}
}

func TestHydrateMissingDirIsNoop(t *testing.T) {
	meta := testMetadata(t)
	n, err := Hydrate(context.Background(), meta, "/nonexistent/sessions")
	if err != nil || n != 0 {
		t.Errorf("Missing sessions dir: n=%d err=%v, want 0, nil", n, err)
	}
}
