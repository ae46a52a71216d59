// Package timesheet derives worked-hours reports from the append-only
// attendance logs. It is read-only: check-in/check-out pairs become
// sessions, session durations are summed and bucketed by the calendar
// day of the check-in.
package timesheet

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/roster"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timeclock"
)

// DayTotal is the worked time attributed to one calendar day.
type DayTotal struct {
	Date  string  `json:"date"`
	Hours float64 `json:"worked_hours"`
	HM    string  `json:"worked_hm"`
}

// Summary is the worked time of one subject over an inclusive date range.
type Summary struct {
	SubjectID  string     `json:"user_id"`
	Name       string     `json:"name"`
	TotalHours float64    `json:"total_hours"`
	TotalHM    string     `json:"total_hm"`
	Days       []DayTotal `json:"details"`
}

// Report aggregates every subject over one calendar month.
type Report struct {
	Year     int                `json:"year"`
	Month    int                `json:"month"`
	Subjects map[string]Summary `json:"users"`
}

// Service computes reports over the roster and event logs.
type Service struct {
	roster roster.Provider
	events timeclock.EventStore
}

// NewService creates a read-only reporting service.
func NewService(provider roster.Provider, events timeclock.EventStore) *Service {
	return &Service{roster: provider, events: events}
}

// WorkedHours sums the subject's sessions over [start, end], both
// bounds inclusive whole calendar days. An unmatched trailing check-in
// contributes nothing; a check-out without an open check-in is skipped.
func (s *Service) WorkedHours(ctx context.Context, subjectID string, start, end time.Time) (Summary, error) {
	profile, err := s.roster.Get(ctx, subjectID)
	if err != nil {
		return Summary{}, err
	}
	if profile == nil {
		return Summary{}, fmt.Errorf("%w: %s", roster.ErrUnknownSubject, subjectID)
	}

	events, err := s.events.Load(ctx, subjectID)
	if err != nil {
		return Summary{}, fmt.Errorf("load event log: %w", err)
	}

	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	until := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location()).AddDate(0, 0, 1)

	var total time.Duration
	perDay := make(map[string]time.Duration)
	var openIn *time.Time

	for _, e := range events {
		if e.At.Before(from) || !e.At.Before(until) {
			continue
		}
		switch e.Kind {
		case timeclock.KindIn:
			at := e.At
			openIn = &at
		case timeclock.KindOut:
			if openIn == nil {
				continue
			}
			worked := e.At.Sub(*openIn)
			total += worked
			perDay[openIn.Format(timeclock.DateLayout)] += worked
			openIn = nil
		}
	}

	days := make([]DayTotal, 0, len(perDay))
	for date, d := range perDay {
		days = append(days, DayTotal{Date: date, Hours: roundHours(d), HM: timeclock.FormatDuration(d)})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	return Summary{
		SubjectID:  subjectID,
		Name:       profile.FullName(),
		TotalHours: roundHours(total),
		TotalHM:    timeclock.FormatDuration(total),
		Days:       days,
	}, nil
}

// MonthlyReport computes WorkedHours for every subject over the full
// calendar month.
func (s *Service) MonthlyReport(ctx context.Context, year, month int) (Report, error) {
	if month < 1 || month > 12 {
		return Report{}, fmt.Errorf("invalid month %d", month)
	}
	profiles, err := s.roster.List(ctx)
	if err != nil {
		return Report{}, err
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
	last := first.AddDate(0, 1, -1)

	report := Report{Year: year, Month: month, Subjects: make(map[string]Summary, len(profiles))}
	for id := range profiles {
		summary, err := s.WorkedHours(ctx, id, first, last)
		if err != nil {
			return Report{}, err
		}
		report.Subjects[id] = summary
	}
	return report, nil
}

// Dashboard holds the "Hh Mm" strings shown on a subject's home view.
type Dashboard struct {
	Today string `json:"today"`
	Week  string `json:"week"`
	Month string `json:"month"`
}

// DayWeekMonth computes the today / ISO-week / calendar-month totals
// for the subject relative to the given day.
func (s *Service) DayWeekMonth(ctx context.Context, subjectID string, today time.Time) (Dashboard, error) {
	day, err := s.WorkedHours(ctx, subjectID, today, today)
	if err != nil {
		return Dashboard{}, err
	}

	// Monday-based week containing today.
	offset := (int(today.Weekday()) + 6) % 7
	monday := today.AddDate(0, 0, -offset)
	sunday := monday.AddDate(0, 0, 6)
	week, err := s.WorkedHours(ctx, subjectID, monday, sunday)
	if err != nil {
		return Dashboard{}, err
	}

	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	last := first.AddDate(0, 1, -1)
	month, err := s.WorkedHours(ctx, subjectID, first, last)
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{Today: day.TotalHM, Week: week.TotalHM, Month: month.TotalHM}, nil
}

func roundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}
