package pgstore

import (
	"context"
	"testing"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/nfc"
)

// Malformed wire timestamps must be rejected before anything reaches
// the database, so these run without a connection.
func TestAppendUnknownRejectsBadTimestamp(t *testing.T) {
	s := New(nil)
	err := s.AppendUnknown(context.Background(), nfc.UnknownCard{
		ID:        "x",
		Timestamp: "yesterday-ish",
		CardCode:  "04AABB",
		Status:    "unassigned",
	})
	if err == nil {
		t.Fatal("bad timestamp accepted")
	}
}

func TestSetLastScanRejectsBadTimestamp(t *testing.T) {
	s := New(nil)
	err := s.SetLastScan(context.Background(), nfc.LastScan{
		CardCode:  "04AABB",
		Timestamp: "2025-13-45 99:00:00",
	})
	if err == nil {
		t.Fatal("bad timestamp accepted")
	}
}
