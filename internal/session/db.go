package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voltdesk/internal/database"
	"voltdesk/internal/models"
)

// ErrSessionNotFound means the relational mirror has no row for the ID.
var ErrSessionNotFound = errors.New("session: not found")

// Timestamp returns the wall-clock time in the ISO-8601 form used across the
// session documents and the relational mirror. Full sub-second precision:
// the duplicate-suppression window can be tuned well below one second.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// DefaultSessionName renders the display name given to sessions that were
// never explicitly renamed.
func DefaultSessionName(t time.Time) string {
	return "Chat " + t.Format("02.01.2006 15:04")
}

// Metadata is the listing/administration side of session persistence. It
// mirrors the JSON documents into the sessions table; the documents stay
// authoritative for content and the mirror is always rebuildable from them.
type Metadata struct {
	db *database.DB
}

// NewMetadata wraps the database for session-row operations.
func NewMetadata(db *database.DB) *Metadata {
	return &Metadata{db: db}
}

// EnsureRow creates the session's row if absent. Existing rows are untouched.
func (m *Metadata) EnsureRow(ctx context.Context, sessionID, createdAt string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, session_name, created_at, last_activity, message_count, product_count)
		VALUES (?, ?, ?, ?, 0, 0)
		ON CONFLICT(session_id) DO NOTHING`,
		sessionID, DefaultSessionName(time.Now()), createdAt, createdAt)
	if err != nil {
		return fmt.Errorf("failed to ensure session row: %w", err)
	}
	return nil
}

// Mirror updates the row's counts and activity timestamp to match the
// document after a successful content write.
func (m *Metadata) Mirror(ctx context.Context, doc *models.SessionDocument) error {
	if err := m.EnsureRow(ctx, doc.SessionID, doc.CreatedAt); err != nil {
		return err
	}
	_, err := m.db.ExecContext(ctx, `
		UPDATE sessions SET last_activity = ?, message_count = ?, product_count = ?
		WHERE session_id = ?`,
		doc.LastActivity, len(doc.History), len(doc.Products), doc.SessionID)
	if err != nil {
		return fmt.Errorf("failed to mirror session row: %w", err)
	}
	return nil
}

// Rename changes the session's display name. Row-only; the document does not
// carry a name.
func (m *Metadata) Rename(ctx context.Context, sessionID, newName string) error {
	res, err := m.db.ExecContext(ctx,
		"UPDATE sessions SET session_name = ? WHERE session_id = ?", newName, sessionID)
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	return requireRow(res)
}

// Archive soft-deletes the session from listings. Row-only.
func (m *Metadata) Archive(ctx context.Context, sessionID string) error {
	res, err := m.db.ExecContext(ctx,
		"UPDATE sessions SET is_active = 0 WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}
	return requireRow(res)
}

// Delete removes the session's row. Callers remove the JSON document too.
func (m *Metadata) Delete(ctx context.Context, sessionID string) error {
	res, err := m.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return requireRow(res)
}

// List returns active sessions ordered by most recent activity. Archived
// sessions are included only when requested.
func (m *Metadata) List(ctx context.Context, includeArchived bool) ([]models.SessionInfo, error) {
	query := `
		SELECT session_id, session_name, created_at, last_activity, message_count, product_count, metadata, is_active
		FROM sessions`
	if !includeArchived {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY last_activity DESC"

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionInfo
	for rows.Next() {
		var s models.SessionInfo
		if err := rows.Scan(&s.SessionID, &s.SessionName, &s.CreatedAt, &s.LastActivity,
			&s.MessageCount, &s.ProductCount, &s.Metadata, &s.IsActive); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Info returns one session's row.
func (m *Metadata) Info(ctx context.Context, sessionID string) (*models.SessionInfo, error) {
	var s models.SessionInfo
	err := m.db.QueryRowContext(ctx, `
		SELECT session_id, session_name, created_at, last_activity, message_count, product_count, metadata, is_active
		FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&s.SessionID, &s.SessionName, &s.CreatedAt, &s.LastActivity,
			&s.MessageCount, &s.ProductCount, &s.Metadata, &s.IsActive)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session info: %w", err)
	}
	return &s, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
