// Package filestore is the default storage backend: plain JSON
// documents under one data directory, mirroring the historical layout
// (userlist.json, settings.json, unknown_cards.json, per-subject
// timestamp files). Writes go through a temp file plus rename so a
// reader never observes a partial document.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/nfc"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/roster"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timeclock"
)

const (
	userlistFile = "userlist.json"
	settingsFile = "settings.json"
	unknownFile  = "unknown_cards.json"
	lastScanFile = "pending_nfc.json"
	anomalyFile  = "error_log.json"
)

// Store is a file-backed implementation of every persistence contract
// the core needs. One mutex per shared document keeps each
// read-modify-write a critical section; per-subject logs are guarded
// by their callers.
type Store struct {
	dir string

	rosterMu   sync.Mutex
	settingsMu sync.Mutex
	cardsMu    sync.Mutex
	anomalyMu  sync.Mutex
}

// New creates the data directory if needed and returns the store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// ---- event logs ----

func (s *Store) logPath(subjectID string) string {
	folder := "user_" + subjectID
	return filepath.Join(s.dir, folder, folder+"_timestamps.json")
}

// Load reads one subject's whole event log; a missing file is an
// empty log, not an error.
func (s *Store) Load(_ context.Context, subjectID string) ([]timeclock.Event, error) {
	var events []timeclock.Event
	if err := readJSON(s.logPath(subjectID), &events); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}

// Save replaces one subject's stored event log.
func (s *Store) Save(_ context.Context, subjectID string, events []timeclock.Event) error {
	path := s.logPath(subjectID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create subject dir: %w", err)
	}
	if events == nil {
		events = []timeclock.Event{}
	}
	return writeJSON(path, events)
}

// ---- roster ----

// LoadRoster reads userlist.json into profiles keyed by id.
func (s *Store) LoadRoster(_ context.Context) (map[string]roster.Profile, error) {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()
	return s.loadRosterLocked()
}

func (s *Store) loadRosterLocked() (map[string]roster.Profile, error) {
	raw := make(map[string]roster.Profile)
	if err := readJSON(filepath.Join(s.dir, userlistFile), &raw); err != nil {
		if os.IsNotExist(err) {
			return map[string]roster.Profile{}, nil
		}
		return nil, fmt.Errorf("read userlist: %w", err)
	}
	for id, p := range raw {
		p.ID = id
		raw[id] = p
	}
	return raw, nil
}

// SaveRoster writes the whole userlist.
func (s *Store) SaveRoster(_ context.Context, profiles map[string]roster.Profile) error {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()
	return writeJSON(filepath.Join(s.dir, userlistFile), profiles)
}

// Roster adapts the store to the roster.Store interface.
func (s *Store) Roster() roster.Store { return rosterStore{s} }

type rosterStore struct{ s *Store }

func (r rosterStore) Load(ctx context.Context) (map[string]roster.Profile, error) {
	return r.s.LoadRoster(ctx)
}

func (r rosterStore) Save(ctx context.Context, profiles map[string]roster.Profile) error {
	return r.s.SaveRoster(ctx, profiles)
}

// ---- pending-corrections flag ----

type settings struct {
	NewPendingCorrections bool `json:"new_pending_corrections"`
}

// Pending reads the pending-corrections flag, defaulting to false.
func (s *Store) Pending(_ context.Context) (bool, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	var cfg settings
	if err := readJSON(filepath.Join(s.dir, settingsFile), &cfg); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read settings: %w", err)
	}
	return cfg.NewPendingCorrections, nil
}

// SetPending writes the pending-corrections flag.
func (s *Store) SetPending(_ context.Context, pending bool) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return writeJSON(filepath.Join(s.dir, settingsFile), settings{NewPendingCorrections: pending})
}

// ---- card scans ----

// AppendUnknown adds one unresolved scan to unknown_cards.json.
func (s *Store) AppendUnknown(_ context.Context, card nfc.UnknownCard) error {
	s.cardsMu.Lock()
	defer s.cardsMu.Unlock()

	var cards []nfc.UnknownCard
	path := filepath.Join(s.dir, unknownFile)
	if err := readJSON(path, &cards); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read unknown cards: %w", err)
	}
	cards = append(cards, card)
	return writeJSON(path, cards)
}

// ListUnknown returns every unresolved scan recorded so far.
func (s *Store) ListUnknown(_ context.Context) ([]nfc.UnknownCard, error) {
	s.cardsMu.Lock()
	defer s.cardsMu.Unlock()

	var cards []nfc.UnknownCard
	if err := readJSON(filepath.Join(s.dir, unknownFile), &cards); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read unknown cards: %w", err)
	}
	return cards, nil
}

// SetLastScan overwrites pending_nfc.json with the latest scan.
func (s *Store) SetLastScan(_ context.Context, scan nfc.LastScan) error {
	s.cardsMu.Lock()
	defer s.cardsMu.Unlock()
	return writeJSON(filepath.Join(s.dir, lastScanFile), scan)
}

// LastScan returns the latest scan, or nil when none was recorded.
func (s *Store) LastScan(_ context.Context) (*nfc.LastScan, error) {
	s.cardsMu.Lock()
	defer s.cardsMu.Unlock()

	var scan nfc.LastScan
	if err := readJSON(filepath.Join(s.dir, lastScanFile), &scan); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read last scan: %w", err)
	}
	return &scan, nil
}

// ---- anomaly audit log ----

// Append adds one record to the append-only anomaly log.
func (s *Store) Append(_ context.Context, a timeclock.Anomaly) error {
	s.anomalyMu.Lock()
	defer s.anomalyMu.Unlock()

	var records []timeclock.Anomaly
	path := filepath.Join(s.dir, anomalyFile)
	if err := readJSON(path, &records); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read anomaly log: %w", err)
	}
	records = append(records, a)
	return writeJSON(path, records)
}

// List returns every anomaly record, oldest first.
func (s *Store) List(_ context.Context) ([]timeclock.Anomaly, error) {
	s.anomalyMu.Lock()
	defer s.anomalyMu.Unlock()

	var records []timeclock.Anomaly
	if err := readJSON(filepath.Join(s.dir, anomalyFile), &records); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read anomaly log: %w", err)
	}
	return records, nil
}

// ---- helpers ----

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
