package timeclock

import (
	"context"
	"time"
)

// Anomaly is one audit record for a compensated missed scan. It never
// fails the triggering clock call; it exists for administrator review.
type Anomaly struct {
	ID          string    `json:"id"`
	RecordedAt  time.Time `json:"recorded_at"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	Message     string    `json:"message"`
}

// AnomalyStore is an append-only audit log of compensated anomalies.
type AnomalyStore interface {
	Append(ctx context.Context, a Anomaly) error
	List(ctx context.Context) ([]Anomaly, error)
}

// EventStore loads and saves one subject's whole event log. Save
// replaces the stored sequence; readers never observe a partial write.
type EventStore interface {
	Load(ctx context.Context, subjectID string) ([]Event, error)
	Save(ctx context.Context, subjectID string, events []Event) error
}

// FlagSetter raises the process-wide pending-corrections flag when a
// default-time entry is synthesized.
type FlagSetter interface {
	SetPending(ctx context.Context, pending bool) error
}
