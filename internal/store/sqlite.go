// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides ticket/activity/settings persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Block instead of failing when a writer holds the lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tickets (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type        TEXT NOT NULL DEFAULT 'feature',
			priority    TEXT NOT NULL DEFAULT 'medium',
			status      TEXT NOT NULL DEFAULT 'open',
			area        TEXT NOT NULL DEFAULT '',
			subarea     TEXT NOT NULL DEFAULT '',
			assignee    TEXT NOT NULL DEFAULT '',
			files       TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);

		CREATE TABLE IF NOT EXISTS activity (
			seq       INTEGER PRIMARY KEY AUTOINCREMENT,
			action    TEXT NOT NULL,
			ticket_id TEXT,
			title     TEXT NOT NULL DEFAULT '',
			time      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

const ticketColumns = "id, title, description, type, priority, status, area, subarea, assignee, files, created_at, updated_at"

// scanTicket reads one ticket row from a row scanner.
func scanTicket(scan func(dest ...any) error) (*Ticket, error) {
	var t Ticket
	var createdAt, updatedAt string

	if err := scan(
		&t.ID, &t.Title, &t.Description, &t.Type, &t.Priority, &t.Status,
		&t.Area, &t.Subarea, &t.Assignee, &t.Files, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	t.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &t, nil
}

// ListTickets returns all tickets ordered by creation time, newest first.
func (s *SQLiteStore) ListTickets(ctx context.Context) ([]*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning ticket row: %w", err)
		}
		tickets = append(tickets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ticket rows: %w", err)
	}
	return tickets, nil
}

// GetTicket retrieves a ticket by ID.
// Returns ErrNotFound if the ticket doesn't exist.
func (s *SQLiteStore) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`

	t, err := scanTicket(s.db.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying ticket: %w", err)
	}
	return t, nil
}

// InsertTicket creates a new ticket, applying creation defaults to absent
// fields. Returns ErrDuplicateTicket if the id is already in use.
func (s *SQLiteStore) InsertTicket(ctx context.Context, t *Ticket) error {
	t.ApplyDefaults(time.Now().UTC())

	query := `
		INSERT INTO tickets (` + ticketColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Title, t.Description, t.Type, t.Priority, t.Status,
		t.Area, t.Subarea, t.Assignee, t.Files,
		t.CreatedAt.UTC().Format(time.RFC3339),
		t.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateTicket
		}
		return fmt.Errorf("inserting ticket: %w", err)
	}

	s.logger.Debug("created ticket", "id", t.ID, "title", t.Title)
	return nil
}

// UpdateTicket merges the patch over the existing ticket and refreshes
// updated_at. Fields absent from the patch keep their stored values.
// Returns ErrNotFound if the ticket doesn't exist.
func (s *SQLiteStore) UpdateTicket(ctx context.Context, id string, patch TicketPatch) (*Ticket, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`
	t, err := scanTicket(tx.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying ticket: %w", err)
	}

	patch.Apply(t)
	t.UpdatedAt = time.Now().UTC()

	update := `
		UPDATE tickets
		SET title = ?, description = ?, type = ?, priority = ?, status = ?,
		    area = ?, subarea = ?, assignee = ?, files = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, update,
		t.Title, t.Description, t.Type, t.Priority, t.Status,
		t.Area, t.Subarea, t.Assignee, t.Files,
		t.UpdatedAt.Format(time.RFC3339),
		t.ID,
	); err != nil {
		return nil, fmt.Errorf("updating ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}

	s.logger.Debug("updated ticket", "id", t.ID)
	return t, nil
}

// DeleteTicket removes a ticket by ID.
// Returns ErrNotFound if the ticket doesn't exist.
func (s *SQLiteStore) DeleteTicket(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting ticket: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted ticket", "id", id)
	return nil
}

// ListActivity returns the most recent activity entries, newest first,
// capped at ActivityRetention.
func (s *SQLiteStore) ListActivity(ctx context.Context) ([]*ActivityEntry, error) {
	query := `
		SELECT seq, action, ticket_id, title, time
		FROM activity
		ORDER BY seq DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, ActivityRetention)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var entries []*ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var ticketID sql.NullString
		var ts string

		if err := rows.Scan(&e.Seq, &e.Action, &ticketID, &e.Title, &ts); err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}

		e.Time, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing activity time: %w", err)
		}
		if ticketID.Valid {
			e.TicketID = &ticketID.String
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}
	return entries, nil
}

// AppendActivity inserts an activity entry and trims the table to the
// ActivityRetention most recent rows by insertion order. Insert and trim
// run in one transaction so the bound holds under concurrent writers.
func (s *SQLiteStore) AppendActivity(ctx context.Context, e *ActivityEntry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ticketID any
	if e.TicketID != nil {
		ticketID = *e.TicketID
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO activity (action, ticket_id, title, time) VALUES (?, ?, ?, ?)`,
		e.Action, ticketID, e.Title, e.Time.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	if seq, err := result.LastInsertId(); err == nil {
		e.Seq = seq
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM activity
		WHERE seq NOT IN (SELECT seq FROM activity ORDER BY seq DESC LIMIT ?)
	`, ActivityRetention); err != nil {
		return fmt.Errorf("trimming activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing activity: %w", err)
	}

	s.logger.Debug("appended activity", "action", e.Action, "seq", e.Seq)
	return nil
}

// GetData assembles the full state for GET /api/data.
// KBNotes is always an empty object in the relational backend.
func (s *SQLiteStore) GetData(ctx context.Context) (*Data, error) {
	tickets, err := s.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	activity, err := s.ListActivity(ctx)
	if err != nil {
		return nil, err
	}
	return &Data{
		Tickets:  tickets,
		Activity: activity,
		KBNotes:  []byte("{}"),
	}, nil
}

// ReplaceAll atomically replaces the entire ticket and activity collections
// with the supplied snapshot. Either all deletions and inserts land or none
// do; a concurrent reader never observes a half-applied state.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tickets`); err != nil {
		return fmt.Errorf("clearing tickets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM activity`); err != nil {
		return fmt.Errorf("clearing activity: %w", err)
	}

	insertTicket := `
		INSERT INTO tickets (` + ticketColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	for _, t := range snap.Tickets {
		t.ApplyDefaults(now)
		if _, err := tx.ExecContext(ctx, insertTicket,
			t.ID, t.Title, t.Description, t.Type, t.Priority, t.Status,
			t.Area, t.Subarea, t.Assignee, t.Files,
			t.CreatedAt.UTC().Format(time.RFC3339),
			t.UpdatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting ticket %q: %w", t.ID, err)
		}
	}

	for _, e := range snap.Activity {
		if e.Time.IsZero() {
			e.Time = now
		}
		var ticketID any
		if e.TicketID != nil {
			ticketID = *e.TicketID
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO activity (action, ticket_id, title, time) VALUES (?, ?, ?, ?)`,
			e.Action, ticketID, e.Title, e.Time.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting activity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing full sync: %w", err)
	}

	s.logger.Info("full sync applied", "tickets", len(snap.Tickets), "activity", len(snap.Activity))
	return nil
}

// DeleteAllTickets removes every ticket.
func (s *SQLiteStore) DeleteAllTickets(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tickets`); err != nil {
		return fmt.Errorf("deleting all tickets: %w", err)
	}
	return nil
}

// DeleteAllActivity removes every activity entry.
func (s *SQLiteStore) DeleteAllActivity(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM activity`); err != nil {
		return fmt.Errorf("deleting all activity: %w", err)
	}
	return nil
}

// GetSetting retrieves a setting value by key.
// Returns ErrNotFound if the key is not set.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying setting: %w", err)
	}
	return value, nil
}

// SetSetting inserts or overwrites a setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("saving setting: %w", err)
	}
	s.logger.Debug("saved setting", "key", key)
	return nil
}

// DeleteSetting removes a setting by key. Deleting an absent key is a no-op.
func (s *SQLiteStore) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting setting: %w", err)
	}
	return nil
}

// ListSettings returns all settings as a key/value map.
func (s *SQLiteStore) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}
		settings[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating setting rows: %w", err)
	}
	return settings, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
