package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voltdesk/internal/models"
)

// DefaultSessionID is used when a client supplies no session identifier.
const DefaultSessionID = "default"

// Options tunes per-session behavior.
type Options struct {
	SessionsDir      string
	DuplicateWindow  time.Duration // suppress identical consecutive appends inside this window
	ProductCap       int           // most recent product mentions kept
	CategoryKeywords []string      // substring-matched against user messages
}

// Store owns one session's conversation state. The JSON document under
// SessionsDir is the source of truth for content; the relational row mirrors
// counts and timestamps for listing. Writes go document-first so a crash
// between the two leaves the authoritative side current.
//
// Concurrent writers to the same session ID race at whole-document
// granularity (last write wins); the store serializes its own callers only.
type Store struct {
	mu   sync.Mutex
	opts Options
	meta *Metadata
	doc  models.SessionDocument
}

// NewStore loads the session's document from disk, or starts an empty one.
// A corrupt document is logged and reset rather than failing resolution.
func NewStore(ctx context.Context, meta *Metadata, sessionID string, opts Options) (*Store, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	s := &Store{opts: opts, meta: meta}
	s.doc = loadDocument(opts.SessionsDir, sessionID)
	if err := meta.EnsureRow(ctx, sessionID, s.doc.CreatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// SessionID returns the session this store owns.
func (s *Store) SessionID() string {
	return s.doc.SessionID
}

// Reload re-reads the persisted document, picking up out-of-process writes.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = loadDocument(s.opts.SessionsDir, s.doc.SessionID)
}

// AddMessage appends a message and persists the session. An exact duplicate
// of the immediately preceding message inside the duplicate window is a
// silent no-op guarding against double submission; the returned bool reports
// whether the message was actually stored.
func (s *Store) AddMessage(ctx context.Context, sender, content string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if s.isDuplicate(sender, content, now) {
		log.Printf("🔁 [SESSION] %s: suppressed duplicate %s message", s.doc.SessionID, sender)
		return false, nil
	}

	s.doc.History = append(s.doc.History, models.Message{
		Timestamp: now.Format(time.RFC3339Nano),
		Sender:    sender,
		Content:   content,
	})
	s.doc.LastActivity = now.Format(time.RFC3339Nano)
	s.syncCounts()
	if err := s.persist(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// isDuplicate applies the double-submission guard. Callers hold the lock.
func (s *Store) isDuplicate(sender, content string, now time.Time) bool {
	if len(s.doc.History) == 0 {
		return false
	}
	last := s.doc.History[len(s.doc.History)-1]
	if last.Sender != sender || last.Content != content {
		return false
	}
	lastAt, err := time.Parse(time.RFC3339Nano, last.Timestamp)
	if err != nil {
		return false
	}
	return now.Sub(lastAt) < s.opts.DuplicateWindow
}

// AddProductMention records a discussed product, keeping only the most recent
// entries and persisting.
func (s *Store) AddProductMention(ctx context.Context, name string, details map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.doc.Products = append(s.doc.Products, models.ProductMention{
		Name:      name,
		Timestamp: now.Format(time.RFC3339Nano),
		Details:   details,
	})
	if limit := s.opts.ProductCap; limit > 0 && len(s.doc.Products) > limit {
		s.doc.Products = s.doc.Products[len(s.doc.Products)-limit:]
	}
	s.doc.LastActivity = now.Format(time.RFC3339Nano)
	s.syncCounts()
	return s.persist(ctx)
}

// History returns a copy of this session's message sequence.
func (s *Store) History() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.doc.History...)
}

// Products returns a copy of this session's product mentions.
func (s *Store) Products() []models.ProductMention {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ProductMention(nil), s.doc.Products...)
}

// HistoryOf returns the history for the given session ID. The active
// session's history comes from memory; any other session is read from its
// persisted document without touching this store's state.
func (s *Store) HistoryOf(sessionID string) ([]models.Message, error) {
	if sessionID == "" || sessionID == s.doc.SessionID {
		return s.History(), nil
	}
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	other := loadDocument(s.opts.SessionsDir, sessionID)
	return other.History, nil
}

// Document returns a copy of the full session document.
func (s *Store) Document() models.SessionDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc
	doc.History = append([]models.Message(nil), s.doc.History...)
	doc.Products = append([]models.ProductMention(nil), s.doc.Products...)
	return doc
}

// RecentContext renders the last n messages as a short transcript for
// seeding the responder, each entry truncated to roughly a hundred
// characters. n <= 0 means the default of three.
func (s *Store) RecentContext(n int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		n = 3
	}
	msgs := tail(s.doc.History, n)
	if len(msgs) == 0 {
		return "No previous conversation."
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, truncate(m.Content, 100))
	}
	return b.String()
}

// DetailedContext renders the last five messages, the last three mentioned
// products and up to two inferred product categories of interest.
func (s *Store) DetailedContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	msgs := tail(s.doc.History, 5)
	if len(msgs) == 0 {
		b.WriteString("(none)\n")
	}
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, truncate(m.Content, 150))
	}

	if products := tail(s.doc.Products, 3); len(products) > 0 {
		b.WriteString("Mentioned products:\n")
		for _, p := range products {
			fmt.Fprintf(&b, "- %s\n", p.Name)
		}
	}

	if categories := s.inferInterests(2); len(categories) > 0 {
		b.WriteString("Products of interest: ")
		b.WriteString(strings.Join(categories, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

// inferInterests scans user messages newest-first for known category
// keywords and returns up to limit matched categories, most recent first,
// deduplicated. Callers hold the lock.
func (s *Store) inferInterests(limit int) []string {
	var found []string
	seen := make(map[string]bool)
	for i := len(s.doc.History) - 1; i >= 0 && len(found) < limit; i-- {
		m := s.doc.History[i]
		if m.Sender != models.SenderUser {
			continue
		}
		content := strings.ToLower(m.Content)
		for _, keyword := range s.opts.CategoryKeywords {
			if len(found) >= limit {
				break
			}
			if !seen[keyword] && strings.Contains(content, keyword) {
				seen[keyword] = true
				found = append(found, keyword)
			}
		}
	}
	return found
}

// ClearMessages drops the conversation history, keeping product mentions,
// and persists.
func (s *Store) ClearMessages(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.History = nil
	s.doc.LastActivity = time.Now().UTC().Format(time.RFC3339Nano)
	s.syncCounts()
	return s.persist(ctx)
}

// syncCounts keeps the embedded metadata equal to the actual sequence
// lengths. Callers hold the lock.
func (s *Store) syncCounts() {
	s.doc.Metadata.MessageCount = len(s.doc.History)
	s.doc.Metadata.ProductCount = len(s.doc.Products)
}

// persist writes the document, then mirrors the row. Document first: if the
// process dies between the two, hydration rebuilds the row from the document.
// Callers hold the lock.
func (s *Store) persist(ctx context.Context) error {
	if err := writeDocument(s.opts.SessionsDir, &s.doc); err != nil {
		return err
	}
	return s.meta.Mirror(ctx, &s.doc)
}

// DeleteSession removes a session from both backends: the JSON document and
// the relational row. A missing document is not an error; a missing row is.
func DeleteSession(ctx context.Context, meta *Metadata, sessionsDir, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if err := os.Remove(DocumentPath(sessionsDir, sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session document: %w", err)
	}
	return meta.Delete(ctx, sessionID)
}

// DocumentPath returns the on-disk location of a session's JSON document.
func DocumentPath(sessionsDir, sessionID string) string {
	return filepath.Join(sessionsDir, sessionID+".json")
}

func validateSessionID(sessionID string) error {
	if sessionID == "" || strings.ContainsAny(sessionID, "/\\") || strings.Contains(sessionID, "..") {
		return fmt.Errorf("invalid session id %q", sessionID)
	}
	return nil
}

// loadDocument reads a session document, returning a fresh empty one when the
// file is absent or unreadable. Corrupt JSON resets the session in memory;
// the data loss is logged, not hidden.
func loadDocument(sessionsDir, sessionID string) models.SessionDocument {
	path := DocumentPath(sessionsDir, sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️ [SESSION] %s: unreadable document, starting empty: %v", sessionID, err)
		}
		return emptyDocument(sessionID)
	}
	var doc models.SessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("⚠️ [SESSION] %s: corrupt document, resetting (previous content lost): %v", sessionID, err)
		return emptyDocument(sessionID)
	}
	doc.SessionID = sessionID
	return doc
}

func emptyDocument(sessionID string) models.SessionDocument {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return models.SessionDocument{
		SessionID:    sessionID,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// writeDocument persists a session document atomically (temp file + rename)
// so readers never observe a partial write.
func writeDocument(sessionsDir string, doc *models.SessionDocument) error {
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create sessions dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session document: %w", err)
	}
	path := DocumentPath(sessionsDir, doc.SessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session document: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
