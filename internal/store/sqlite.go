package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/opro/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			doc TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session document.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, name, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		session.SessionID, session.Name, string(doc), session.CreatedAt, session.UpdatedAt)
	return err
}

// PutSession upserts a session document and stamps its updated_at. The
// caller's copy is stamped too, so the working copy matches the durable one
// after the write.
func (s *SQLiteStore) PutSession(ctx context.Context, session *domain.Session) error {
	session.UpdatedAt = time.Now()
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	// INSERT OR REPLACE would delete and recreate the row, cascading away
	// the session's events, so upsert with ON CONFLICT instead.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, name, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET name = excluded.name, doc = excluded.doc, updated_at = excluded.updated_at`,
		session.SessionID, session.Name, string(doc), session.CreatedAt, session.UpdatedAt)
	return err
}

// GetSession retrieves a session by ID. Returns (nil, nil) when the session
// does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decodeSession(doc)
}

// ListSessions retrieves all sessions ordered by creation time.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		session, err := s.decodeSession(doc)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and, via the foreign key, its events.
// Deleting an unknown id is a no-op.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, session_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.SessionID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a session.
func (s *SQLiteStore) GetEvents(ctx context.Context, sessionID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, session_id, ts, type, payload FROM events WHERE session_id = ?`
	args := []interface{}{sessionID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// decodeSession unmarshals a session document and applies load-time
// recovery: a prompt persisted mid-score comes back pending.
func (s *SQLiteStore) decodeSession(doc string) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal([]byte(doc), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if reset := session.RecoverInterrupted(); reset > 0 {
		log.Printf("WARN: reset %d interrupted scoring prompt(s) in session %s", reset, session.SessionID)
	}
	return &session, nil
}
