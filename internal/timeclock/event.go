package timeclock

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire layouts shared by storage and the HTTP surface.
const (
	TimeLayout = "2006-01-02 15:04:05"
	DateLayout = "2006-01-02"
)

// Kind distinguishes the two attendance transitions.
type Kind string

const (
	KindIn  Kind = "in"
	KindOut Kind = "out"
)

// ParseKind validates an external kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindIn, KindOut:
		return Kind(s), nil
	}
	return "", fmt.Errorf("invalid event type %q", s)
}

// Event is one attendance transition in a subject's log.
// Timestamps are naive local wall-clock, second precision.
type Event struct {
	Kind Kind
	At   time.Time
}

type eventJSON struct {
	Type string `json:"type"`
	Time string `json:"time"`
}

// MarshalJSON writes the stored {"type","time"} record format.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{Type: string(e.Kind), Time: e.At.Format(TimeLayout)})
}

// UnmarshalJSON reads the stored {"type","time"} record format.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseKind(raw.Type)
	if err != nil {
		return err
	}
	at, err := time.ParseInLocation(TimeLayout, raw.Time, time.Local)
	if err != nil {
		return fmt.Errorf("invalid event time %q: %w", raw.Time, err)
	}
	e.Kind = kind
	e.At = at
	return nil
}

// SameDay reports whether two instants fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatDuration renders a duration as "Hh Mm", truncating seconds.
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	if secs < 0 {
		secs = 0
	}
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
