package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection at the given path.
// ":memory:" is accepted for tests.
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The session mirror and catalog see light, single-process traffic.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(1 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// Initialize creates all required tables and runs schema migrations.
func (db *DB) Initialize() error {
	log.Println("🔍 Checking database schema...")

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			session_name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_activity TEXT NOT NULL,
			message_count INTEGER DEFAULT 0,
			product_count INTEGER DEFAULT 0,
			metadata TEXT DEFAULT '{}',
			is_active INTEGER DEFAULT 1
		)
	`); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model_number TEXT,
			name TEXT NOT NULL,
			manual_path TEXT,
			manual_keywords TEXT,
			manual_desc TEXT
		)
	`); err != nil {
		return fmt.Errorf("failed to create products table: %w", err)
	}

	if err := db.runMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("✅ Database initialized successfully")
	return nil
}

// runMigrations runs database migrations for schema updates.
// Uses PRAGMA table_info to check for column existence.
func (db *DB) runMigrations() error {
	columnExists := func(tableName, columnName string) (bool, error) {
		rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
		if err != nil {
			return false, err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				cid        int
				name, typ  string
				notNull    int
				defaultVal sql.NullString
				pk         int
			)
			if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
				return false, err
			}
			if name == columnName {
				return true, nil
			}
		}
		return false, rows.Err()
	}

	// Migration: sessions.is_active for soft archive (older deployments predate it)
	if exists, err := columnExists("sessions", "is_active"); err == nil && !exists {
		log.Println("📦 Running migration: Adding is_active to sessions table")
		if _, err := db.Exec("ALTER TABLE sessions ADD COLUMN is_active INTEGER DEFAULT 1"); err != nil {
			return fmt.Errorf("failed to add is_active to sessions: %w", err)
		}
		log.Println("✅ Migration completed: sessions.is_active added")
	}

	// Migration: sessions.metadata blob for listing extras
	if exists, err := columnExists("sessions", "metadata"); err == nil && !exists {
		log.Println("📦 Running migration: Adding metadata to sessions table")
		if _, err := db.Exec("ALTER TABLE sessions ADD COLUMN metadata TEXT DEFAULT '{}'"); err != nil {
			return fmt.Errorf("failed to add metadata to sessions: %w", err)
		}
		log.Println("✅ Migration completed: sessions.metadata added")
	}

	return nil
}
