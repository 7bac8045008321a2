package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voltdesk/internal/models"
)

// Hydrate reconciles on-disk session documents into the relational mirror:
// missing rows are created, stale counts/timestamps updated. It returns how
// many rows were created or updated. Corrupt documents are logged and
// skipped; hydration never deletes rows. Running it twice on unchanged files
// is idempotent (the second run returns 0).
func Hydrate(ctx context.Context, meta *Metadata, sessionsDir string) (int, error) {
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to scan sessions dir: %w", err)
	}

	changed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(sessionsDir, entry.Name())
		doc, err := readDocumentFile(path)
		if err != nil {
			log.Printf("⚠️ [HYDRATE] Skipping %s: %v", entry.Name(), err)
			continue
		}

		updated, err := reconcile(ctx, meta, doc)
		if err != nil {
			return changed, fmt.Errorf("failed to reconcile %s: %w", doc.SessionID, err)
		}
		if updated {
			changed++
		}
	}
	if changed > 0 {
		log.Printf("💧 [HYDRATE] Reconciled %d session row(s) from %s", changed, sessionsDir)
	}
	return changed, nil
}

// readDocumentFile parses one session document, deriving the session ID from
// the filename when the document omits it.
func readDocumentFile(path string) (*models.SessionDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc models.SessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("corrupt session document: %w", err)
	}
	if doc.SessionID == "" {
		doc.SessionID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if doc.CreatedAt == "" {
		doc.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if doc.LastActivity == "" {
		doc.LastActivity = doc.CreatedAt
	}
	return &doc, nil
}

// reconcile makes the session's row consistent with its document. Reports
// whether anything was written.
func reconcile(ctx context.Context, meta *Metadata, doc *models.SessionDocument) (bool, error) {
	var (
		lastActivity               string
		messageCount, productCount int
	)
	err := meta.db.QueryRowContext(ctx,
		"SELECT last_activity, message_count, product_count FROM sessions WHERE session_id = ?",
		doc.SessionID).Scan(&lastActivity, &messageCount, &productCount)

	switch {
	case err == sql.ErrNoRows:
		_, err := meta.db.ExecContext(ctx, `
			INSERT INTO sessions (session_id, session_name, created_at, last_activity, message_count, product_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			doc.SessionID, DefaultSessionName(time.Now()), doc.CreatedAt, doc.LastActivity,
			len(doc.History), len(doc.Products))
		if err != nil {
			return false, err
		}
		return true, nil
	case err != nil:
		return false, err
	}

	if lastActivity == doc.LastActivity &&
		messageCount == len(doc.History) &&
		productCount == len(doc.Products) {
		return false, nil
	}
	_, err = meta.db.ExecContext(ctx, `
		UPDATE sessions SET last_activity = ?, message_count = ?, product_count = ?
		WHERE session_id = ?`,
		doc.LastActivity, len(doc.History), len(doc.Products), doc.SessionID)
	if err != nil {
		return false, err
	}
	return true, nil
}
