package timeclock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/roster"
)

// Result describes the outcome of one clock call.
type Result struct {
	// Action is the kind of the event appended for "now".
	Action Kind
	// Anomaly is set when a missed scan was compensated on this call.
	Anomaly bool
	// Message is the human-readable summary shown to the subject.
	Message string
}

// Service is the attendance state machine. The per-subject state is
// implicit: an open session exists exactly when the last log entry is
// a check-in. Every Clock call appends one event, possibly preceded by
// a synthesized corrective entry for a missed scan.
type Service struct {
	roster    roster.Provider
	events    EventStore
	anomalies AnomalyStore
	flag      FlagSetter
	defaults  Defaults

	locks *SubjectLocks
}

// NewService wires the state machine to its collaborators.
func NewService(provider roster.Provider, events EventStore, anomalies AnomalyStore, flag FlagSetter, defaults Defaults) *Service {
	return &Service{
		roster:    provider,
		events:    events,
		anomalies: anomalies,
		flag:      flag,
		defaults:  defaults,
		locks:     NewSubjectLocks(),
	}
}

// Defaults exposes the configured standard working times.
func (s *Service) Defaults() Defaults { return s.defaults }

// SubjectLocks exposes the per-subject locks so the correction path
// can join the same critical sections.
func (s *Service) SubjectLocks() *SubjectLocks { return s.locks }

// Clock registers a check-in or check-out for the subject at the given
// instant. Missed scans from earlier periods are compensated with
// default-time entries; those never fail the call, they raise the
// pending-corrections flag and land in the anomaly log instead.
func (s *Service) Clock(ctx context.Context, subjectID string, now time.Time) (Result, error) {
	profile, err := s.roster.Get(ctx, subjectID)
	if err != nil {
		return Result{}, err
	}
	if profile == nil {
		return Result{}, fmt.Errorf("%w: %s", roster.ErrUnknownSubject, subjectID)
	}
	name := profile.FullName()

	lock := s.locks.For(subjectID)
	lock.Lock()
	defer lock.Unlock()

	events, err := s.events.Load(ctx, subjectID)
	if err != nil {
		return Result{}, fmt.Errorf("load event log: %w", err)
	}

	now = now.Truncate(time.Second)
	var res Result

	if len(events) > 0 && events[len(events)-1].Kind == KindIn {
		lastIn := events[len(events)-1].At

		if dateOf(lastIn).Before(dateOf(now)) {
			// Check-out on a prior day was never recorded: close that
			// day at the default end time and start a fresh session now.
			autoOut := s.defaults.WorkEnd.On(lastIn)
			events = append(events, Event{Kind: KindOut, At: autoOut})

			if err := s.recordAnomaly(ctx, subjectID, name, now, fmt.Sprintf(
				"missed check-out on %s, automatic check-out %s recorded",
				lastIn.Format(DateLayout), s.defaults.WorkEnd)); err != nil {
				return Result{}, err
			}

			res.Action = KindIn
			res.Anomaly = true
			res.Message = fmt.Sprintf(
				"User %s (%s) did not check out on %s. Automatic check-out at %s recorded. New working day started (checked in).",
				subjectID, name, lastIn.Format(DateLayout), autoOut.Format("15:04"))
		} else {
			// Normal check-out.
			res.Action = KindOut
			res.Message = fmt.Sprintf(
				"User %s (%s) checked out. Session length: %s.",
				subjectID, name, FormatDuration(now.Sub(lastIn)))
		}
	} else {
		hasInToday := false
		for _, e := range events {
			if e.Kind == KindIn && SameDay(e.At, now) {
				hasInToday = true
				break
			}
		}

		if !hasInToday && now.Hour() >= s.defaults.LateLoginHour {
			// No check-in all day and it is already late: the morning
			// check-in was forgotten. Backfill it and check out now.
			autoIn := s.defaults.WorkStart.On(now)
			events = append(events, Event{Kind: KindIn, At: autoIn})

			if err := s.recordAnomaly(ctx, subjectID, name, now, fmt.Sprintf(
				"missed morning check-in, automatic check-in %s recorded, immediate check-out",
				s.defaults.WorkStart)); err != nil {
				return Result{}, err
			}

			res.Action = KindOut
			res.Anomaly = true
			res.Message = fmt.Sprintf(
				"User %s (%s) forgot to check in this morning. Automatic check-in at %s recorded. Now checked out.",
				subjectID, name, autoIn.Format("15:04"))
		} else {
			// Normal check-in.
			res.Action = KindIn
			res.Message = fmt.Sprintf("User %s (%s) checked in.", subjectID, name)
		}
	}

	events = append(events, Event{Kind: res.Action, At: now})
	if err := s.events.Save(ctx, subjectID, events); err != nil {
		return Result{}, fmt.Errorf("save event log: %w", err)
	}
	return res, nil
}

// Log returns the subject's full event log, oldest first.
func (s *Service) Log(ctx context.Context, subjectID string) ([]Event, error) {
	profile, err := s.roster.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: %s", roster.ErrUnknownSubject, subjectID)
	}
	return s.events.Load(ctx, subjectID)
}

// Anomalies returns the audit log of compensated missed scans.
func (s *Service) Anomalies(ctx context.Context) ([]Anomaly, error) {
	return s.anomalies.List(ctx)
}

func (s *Service) recordAnomaly(ctx context.Context, subjectID, name string, now time.Time, message string) error {
	a := Anomaly{
		ID:          uuid.NewString(),
		RecordedAt:  now,
		SubjectID:   subjectID,
		SubjectName: name,
		Message:     message,
	}
	if err := s.anomalies.Append(ctx, a); err != nil {
		return fmt.Errorf("append anomaly log: %w", err)
	}
	if err := s.flag.SetPending(ctx, true); err != nil {
		return fmt.Errorf("raise pending flag: %w", err)
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
