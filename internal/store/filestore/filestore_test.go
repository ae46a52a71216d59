package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/nfc"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/roster"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timeclock"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestEventLogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Missing file reads as an empty log.
	events, err := s.Load(ctx, "1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %+v, want empty", events)
	}

	in := []timeclock.Event{
		{Kind: timeclock.KindIn, At: time.Date(2025, 1, 10, 9, 5, 0, 0, time.Local)},
		{Kind: timeclock.KindOut, At: time.Date(2025, 1, 10, 17, 30, 0, 0, time.Local)},
	}
	if err := s.Save(ctx, "1", in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := s.Load(ctx, "1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 2 || out[0].Kind != timeclock.KindIn || !out[1].At.Equal(in[1].At) {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func TestEventLogFileLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Save(context.Background(), "7", []timeclock.Event{
		{Kind: timeclock.KindIn, At: time.Date(2025, 1, 10, 9, 0, 0, 0, time.Local)},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "user_7", "user_7_timestamps.json")); err != nil {
		t.Fatalf("expected per-subject timestamp file: %v", err)
	}
}

func TestRosterRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.LoadRoster(ctx)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("roster = %+v, want empty", empty)
	}

	want := map[string]roster.Profile{
		"1": {ID: "1", FirstName: "Max", LastName: "Mustermann", Role: "admin", CardCode: "04AABB", Folder: "user_1"},
	}
	if err := s.SaveRoster(ctx, want); err != nil {
		t.Fatalf("SaveRoster: %v", err)
	}

	got, err := s.LoadRoster(ctx)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	p, ok := got["1"]
	if !ok || p.ID != "1" || p.CardCode != "04AABB" || p.FullName() != "Max Mustermann" {
		t.Fatalf("roster = %+v, want %+v", got, want)
	}
}

func TestPendingFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pending, err := s.Pending(ctx)
	if err != nil || pending {
		t.Fatalf("Pending = %v, %v; want false, nil", pending, err)
	}

	if err := s.SetPending(ctx, true); err != nil {
		t.Fatalf("SetPending: %v", err)
	}
	pending, err = s.Pending(ctx)
	if err != nil || !pending {
		t.Fatalf("Pending = %v, %v; want true, nil", pending, err)
	}

	if err := s.SetPending(ctx, false); err != nil {
		t.Fatalf("SetPending: %v", err)
	}
	pending, _ = s.Pending(ctx)
	if pending {
		t.Fatal("flag still set after reset")
	}
}

func TestUnknownCardsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, code := range []string{"04AABB", "04CCDD"} {
		err := s.AppendUnknown(ctx, nfc.UnknownCard{
			ID:        string(rune('a' + i)),
			Timestamp: "2025-01-10 12:00:00",
			CardCode:  code,
			Status:    "unassigned",
		})
		if err != nil {
			t.Fatalf("AppendUnknown: %v", err)
		}
	}

	cards, err := s.ListUnknown(ctx)
	if err != nil {
		t.Fatalf("ListUnknown: %v", err)
	}
	if len(cards) != 2 || cards[0].CardCode != "04AABB" || cards[1].CardCode != "04CCDD" {
		t.Fatalf("cards = %+v, want two in insertion order", cards)
	}
	if cards[0].Status != "unassigned" {
		t.Fatalf("status = %q, want unassigned", cards[0].Status)
	}
}

func TestLastScan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	scan, err := s.LastScan(ctx)
	if err != nil {
		t.Fatalf("LastScan: %v", err)
	}
	if scan != nil {
		t.Fatalf("scan = %+v, want nil before any scan", scan)
	}

	first := nfc.LastScan{CardCode: "04AABB", Timestamp: "2025-01-10 12:00:00"}
	second := nfc.LastScan{CardCode: "04CCDD", Timestamp: "2025-01-10 12:01:00"}
	if err := s.SetLastScan(ctx, first); err != nil {
		t.Fatalf("SetLastScan: %v", err)
	}
	if err := s.SetLastScan(ctx, second); err != nil {
		t.Fatalf("SetLastScan: %v", err)
	}

	scan, err = s.LastScan(ctx)
	if err != nil {
		t.Fatalf("LastScan: %v", err)
	}
	if scan == nil || scan.CardCode != "04CCDD" {
		t.Fatalf("scan = %+v, want latest card 04CCDD", scan)
	}
}

func TestAnomalyLogAppend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := timeclock.Anomaly{
		ID:          "abc",
		RecordedAt:  time.Date(2025, 1, 11, 10, 0, 0, 0, time.Local),
		SubjectID:   "1",
		SubjectName: "Max Mustermann",
		Message:     "missed check-out on 2025-01-10, automatic check-out 18:00 recorded",
	}
	if err := s.Append(ctx, a); err != nil {
		t.Fatalf("Append: %v", err)
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 || records[0].ID != "abc" || records[0].SubjectID != "1" {
		t.Fatalf("records = %+v, want the appended anomaly", records)
	}
}
