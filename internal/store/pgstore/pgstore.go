// Package pgstore is the Postgres storage backend, for deployments
// that outgrow the JSON-file layout. It keeps the same whole-log
// load/save contract: saving a subject's log replaces the stored
// sequence inside one transaction.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/nfc"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/roster"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timeclock"
)

// Store persists attendance data in Postgres.
type Store struct {
	db *sql.DB
}

// New creates a store over an open connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subjects (
			id         TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name  TEXT NOT NULL,
			password   TEXT NOT NULL DEFAULT '',
			role       TEXT NOT NULL DEFAULT 'user',
			nfc_code   TEXT NOT NULL DEFAULT '',
			folder     TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS attendance_events (
			subject_id  TEXT NOT NULL,
			seq         INT  NOT NULL,
			kind        TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			PRIMARY KEY (subject_id, seq)
		);
		CREATE TABLE IF NOT EXISTS settings (
			id                      BOOL PRIMARY KEY DEFAULT TRUE,
			new_pending_corrections BOOL NOT NULL DEFAULT FALSE
		);
		CREATE TABLE IF NOT EXISTS unknown_cards (
			id         TEXT PRIMARY KEY,
			scanned_at TIMESTAMP NOT NULL,
			nfc_code   TEXT NOT NULL,
			status     TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS last_scan (
			id         BOOL PRIMARY KEY DEFAULT TRUE,
			nfc_code   TEXT NOT NULL,
			scanned_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS anomaly_log (
			id           TEXT PRIMARY KEY,
			recorded_at  TIMESTAMP NOT NULL,
			subject_id   TEXT NOT NULL,
			subject_name TEXT NOT NULL,
			message      TEXT NOT NULL
		);
	`)
	return err
}

// ---- event logs ----

// Load reads one subject's whole event log in insertion order.
func (s *Store) Load(ctx context.Context, subjectID string) ([]timeclock.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, recorded_at FROM attendance_events
		WHERE subject_id = $1 ORDER BY seq
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query event log: %w", err)
	}
	defer rows.Close()

	var events []timeclock.Event
	for rows.Next() {
		var kind string
		var at time.Time
		if err := rows.Scan(&kind, &at); err != nil {
			return nil, err
		}
		events = append(events, timeclock.Event{Kind: timeclock.Kind(kind), At: at.Local()})
	}
	return events, rows.Err()
}

// Save replaces one subject's stored event log in a transaction.
func (s *Store) Save(ctx context.Context, subjectID string, events []timeclock.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_events WHERE subject_id = $1`, subjectID); err != nil {
		return fmt.Errorf("clear event log: %w", err)
	}
	for i, e := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_events (subject_id, seq, kind, recorded_at)
			VALUES ($1, $2, $3, $4)
		`, subjectID, i, string(e.Kind), e.At); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

// ---- roster ----

// Roster adapts the store to the roster.Store interface.
func (s *Store) Roster() roster.Store { return rosterStore{s} }

type rosterStore struct{ s *Store }

func (r rosterStore) Load(ctx context.Context) (map[string]roster.Profile, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, password, role, nfc_code, folder FROM subjects
	`)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]roster.Profile)
	for rows.Next() {
		var p roster.Profile
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Password, &p.Role, &p.CardCode, &p.Folder); err != nil {
			return nil, err
		}
		profiles[p.ID] = p
	}
	return profiles, rows.Err()
}

func (r rosterStore) Save(ctx context.Context, profiles map[string]roster.Profile) error {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin roster save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subjects`); err != nil {
		return fmt.Errorf("clear roster: %w", err)
	}
	for id, p := range profiles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO subjects (id, first_name, last_name, password, role, nfc_code, folder)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, id, p.FirstName, p.LastName, p.Password, p.Role, p.CardCode, p.Folder); err != nil {
			return fmt.Errorf("insert subject: %w", err)
		}
	}
	return tx.Commit()
}

// ---- pending-corrections flag ----

// Pending reads the pending-corrections flag, defaulting to false.
func (s *Store) Pending(ctx context.Context) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT new_pending_corrections FROM settings WHERE id = TRUE`)
	var pending bool
	if err := row.Scan(&pending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read settings: %w", err)
	}
	return pending, nil
}

// SetPending upserts the pending-corrections flag.
func (s *Store) SetPending(ctx context.Context, pending bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, new_pending_corrections) VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET new_pending_corrections = EXCLUDED.new_pending_corrections
	`, pending)
	return err
}

// ---- card scans ----

// AppendUnknown records one unresolved scan.
func (s *Store) AppendUnknown(ctx context.Context, card nfc.UnknownCard) error {
	at, err := time.ParseInLocation(timeclock.TimeLayout, card.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("invalid scan timestamp %q: %w", card.Timestamp, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO unknown_cards (id, scanned_at, nfc_code, status)
		VALUES ($1, $2, $3, $4)
	`, card.ID, at, card.CardCode, card.Status)
	return err
}

// ListUnknown returns unresolved scans, oldest first.
func (s *Store) ListUnknown(ctx context.Context) ([]nfc.UnknownCard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scanned_at, nfc_code, status FROM unknown_cards ORDER BY scanned_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query unknown cards: %w", err)
	}
	defer rows.Close()

	var cards []nfc.UnknownCard
	for rows.Next() {
		var c nfc.UnknownCard
		var at time.Time
		if err := rows.Scan(&c.ID, &at, &c.CardCode, &c.Status); err != nil {
			return nil, err
		}
		c.Timestamp = at.Local().Format(timeclock.TimeLayout)
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// SetLastScan upserts the single most-recent-scan row.
func (s *Store) SetLastScan(ctx context.Context, scan nfc.LastScan) error {
	at, err := time.ParseInLocation(timeclock.TimeLayout, scan.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("invalid scan timestamp %q: %w", scan.Timestamp, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO last_scan (id, nfc_code, scanned_at) VALUES (TRUE, $1, $2)
		ON CONFLICT (id) DO UPDATE SET nfc_code = EXCLUDED.nfc_code, scanned_at = EXCLUDED.scanned_at
	`, scan.CardCode, at)
	return err
}

// LastScan returns the most recent scan, or nil when none was recorded.
func (s *Store) LastScan(ctx context.Context) (*nfc.LastScan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT nfc_code, scanned_at FROM last_scan WHERE id = TRUE`)
	var code string
	var at time.Time
	if err := row.Scan(&code, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read last scan: %w", err)
	}
	return &nfc.LastScan{CardCode: code, Timestamp: at.Local().Format(timeclock.TimeLayout)}, nil
}

// ---- anomaly audit log ----

// Append adds one record to the anomaly log.
func (s *Store) Append(ctx context.Context, a timeclock.Anomaly) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anomaly_log (id, recorded_at, subject_id, subject_name, message)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.RecordedAt, a.SubjectID, a.SubjectName, a.Message)
	return err
}

// List returns anomaly records, oldest first.
func (s *Store) List(ctx context.Context) ([]timeclock.Anomaly, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recorded_at, subject_id, subject_name, message FROM anomaly_log ORDER BY recorded_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query anomaly log: %w", err)
	}
	defer rows.Close()

	var records []timeclock.Anomaly
	for rows.Next() {
		var a timeclock.Anomaly
		if err := rows.Scan(&a.ID, &a.RecordedAt, &a.SubjectID, &a.SubjectName, &a.Message); err != nil {
			return nil, err
		}
		a.RecordedAt = a.RecordedAt.Local()
		records = append(records, a)
	}
	return records, rows.Err()
}
