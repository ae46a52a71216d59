// Package correction lets administrators find and fix the default-time
// entries the state machine synthesized for missed scans. Detection is
// by value equality against the configured standard times: a genuine
// scan landing exactly on 09:00:00 or 18:00:00 is indistinguishable
// from a synthesized one.
package correction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/roster"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timeclock"
)

var (
	// ErrNotFound means no synthesized entry matches the correction target.
	ErrNotFound = errors.New("no matching synthesized entry")
	// ErrValidation means the submitted date or time does not parse.
	ErrValidation = errors.New("invalid correction input")
)

// FlagStore persists the process-wide pending-corrections flag.
type FlagStore interface {
	Pending(ctx context.Context) (bool, error)
	SetPending(ctx context.Context, pending bool) error
}

// Pending identifies one reviewable synthesized entry.
type Pending struct {
	Kind timeclock.Kind `json:"type"`
	Date string         `json:"date"`
}

// SubjectPending groups a subject's reviewable entries for the admin view.
type SubjectPending struct {
	SubjectID string    `json:"user_id"`
	Name      string    `json:"name"`
	Entries   []Pending `json:"entries"`
}

// Registry scans event logs for synthesized entries and applies
// administrator corrections in place. It shares the per-subject locks
// with the state machine so a correction and a concurrent clock call
// on the same log never interleave their read-modify-write.
type Registry struct {
	roster   roster.Provider
	events   timeclock.EventStore
	flag     FlagStore
	locks    *timeclock.SubjectLocks
	defaults timeclock.Defaults
}

// NewRegistry wires the registry to its stores. locks must be the same
// instance the state machine uses.
func NewRegistry(provider roster.Provider, events timeclock.EventStore, flag FlagStore, locks *timeclock.SubjectLocks, defaults timeclock.Defaults) *Registry {
	return &Registry{roster: provider, events: events, flag: flag, locks: locks, defaults: defaults}
}

// PendingFor re-scans one subject's log and returns every entry whose
// time of day equals the default for its kind. An unknown subject
// yields an empty list.
func (r *Registry) PendingFor(ctx context.Context, subjectID string) ([]Pending, error) {
	profile, err := r.roster.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, nil
	}

	events, err := r.events.Load(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load event log: %w", err)
	}

	var out []Pending
	for _, e := range events {
		if r.isSynthesized(e) {
			out = append(out, Pending{Kind: e.Kind, Date: e.At.Format(timeclock.DateLayout)})
		}
	}
	return out, nil
}

// PendingAll lists reviewable entries across the whole roster,
// skipping subjects with none.
func (r *Registry) PendingAll(ctx context.Context) ([]SubjectPending, error) {
	profiles, err := r.roster.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []SubjectPending
	for id, profile := range profiles {
		entries, err := r.PendingFor(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			out = append(out, SubjectPending{SubjectID: id, Name: profile.FullName(), Entries: entries})
		}
	}
	return out, nil
}

// Apply overwrites the first synthesized entry matching (kind, date)
// with the submitted time of day and persists the rewritten log.
func (r *Registry) Apply(ctx context.Context, subjectID, date string, kind timeclock.Kind, newTime string) error {
	day, err := time.ParseInLocation(timeclock.DateLayout, date, time.Local)
	if err != nil {
		return fmt.Errorf("%w: date %q", ErrValidation, date)
	}
	tod, err := timeclock.ParseTimeOfDay(newTime)
	if err != nil {
		return fmt.Errorf("%w: time %q", ErrValidation, newTime)
	}
	if kind != timeclock.KindIn && kind != timeclock.KindOut {
		return fmt.Errorf("%w: type %q", ErrValidation, kind)
	}

	lock := r.locks.For(subjectID)
	lock.Lock()
	defer lock.Unlock()

	events, err := r.events.Load(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("load event log: %w", err)
	}

	for i, e := range events {
		if e.Kind != kind || !timeclock.SameDay(e.At, day) || !r.isSynthesized(e) {
			continue
		}
		events[i].At = tod.On(day)
		if err := r.events.Save(ctx, subjectID, events); err != nil {
			return fmt.Errorf("save event log: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s %s for user %s", ErrNotFound, kind, date, subjectID)
}

// Flag reports whether unreviewed synthesized entries may exist.
func (r *Registry) Flag(ctx context.Context) (bool, error) {
	return r.flag.Pending(ctx)
}

// ClearFlag resets the pending flag. Called when an administrator
// opens the review listing, not when entries are corrected.
func (r *Registry) ClearFlag(ctx context.Context) error {
	return r.flag.SetPending(ctx, false)
}

func (r *Registry) isSynthesized(e timeclock.Event) bool {
	switch e.Kind {
	case timeclock.KindIn:
		return r.defaults.WorkStart.Matches(e.At)
	case timeclock.KindOut:
		return r.defaults.WorkEnd.Matches(e.At)
	}
	return false
}
