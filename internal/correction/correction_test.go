package correction

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/roster"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timeclock"
)

type fakeRoster struct {
	profiles map[string]roster.Profile
}

func (f *fakeRoster) List(context.Context) (map[string]roster.Profile, error) {
	return f.profiles, nil
}

func (f *fakeRoster) Get(_ context.Context, id string) (*roster.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type memEventStore struct {
	logs map[string][]timeclock.Event
}

func (m *memEventStore) Load(_ context.Context, id string) ([]timeclock.Event, error) {
	return append([]timeclock.Event(nil), m.logs[id]...), nil
}

func (m *memEventStore) Save(_ context.Context, id string, events []timeclock.Event) error {
	m.logs[id] = append([]timeclock.Event(nil), events...)
	return nil
}

type memFlag struct {
	pending bool
}

func (m *memFlag) Pending(context.Context) (bool, error) { return m.pending, nil }

func (m *memFlag) SetPending(_ context.Context, v bool) error {
	m.pending = v
	return nil
}

type memAnomalyStore struct {
	records []timeclock.Anomaly
}

func (m *memAnomalyStore) Append(_ context.Context, a timeclock.Anomaly) error {
	m.records = append(m.records, a)
	return nil
}

func (m *memAnomalyStore) List(context.Context) ([]timeclock.Anomaly, error) {
	return m.records, nil
}

// gatedEventStore pauses the first Load until released, holding its
// caller inside the critical section.
type gatedEventStore struct {
	*memEventStore
	loading chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedEventStore) Load(ctx context.Context, id string) ([]timeclock.Event, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.loading)
		<-g.release
	}
	return g.memEventStore.Load(ctx, id)
}

func at(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.Local)
}

func newTestRegistry(logs map[string][]timeclock.Event) (*Registry, *memEventStore, *memFlag) {
	provider := &fakeRoster{profiles: map[string]roster.Profile{
		"1": {ID: "1", FirstName: "Max", LastName: "Mustermann"},
		"2": {ID: "2", FirstName: "Erika", LastName: "Musterfrau"},
	}}
	events := &memEventStore{logs: logs}
	flag := &memFlag{}
	return NewRegistry(provider, events, flag, timeclock.NewSubjectLocks(), timeclock.StandardDefaults()), events, flag
}

func TestPendingForDetectsDefaultTimes(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string][]timeclock.Event{
		"1": {
			{Kind: timeclock.KindIn, At: at(2025, 1, 10, 9, 5, 0)},
			{Kind: timeclock.KindOut, At: at(2025, 1, 10, 18, 0, 0)}, // synthesized
			{Kind: timeclock.KindIn, At: at(2025, 1, 11, 9, 0, 0)},   // synthesized
			{Kind: timeclock.KindOut, At: at(2025, 1, 11, 18, 0, 1)}, // one second off
		},
	})

	pending, err := reg.PendingFor(context.Background(), "1")
	if err != nil {
		t.Fatalf("PendingFor: %v", err)
	}
	want := []Pending{
		{Kind: timeclock.KindOut, Date: "2025-01-10"},
		{Kind: timeclock.KindIn, Date: "2025-01-11"},
	}
	if !reflect.DeepEqual(pending, want) {
		t.Fatalf("pending = %+v, want %+v", pending, want)
	}
}

func TestPendingForIsIdempotent(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string][]timeclock.Event{
		"1": {{Kind: timeclock.KindOut, At: at(2025, 1, 10, 18, 0, 0)}},
	})

	first, err := reg.PendingFor(context.Background(), "1")
	if err != nil {
		t.Fatalf("PendingFor: %v", err)
	}
	second, err := reg.PendingFor(context.Background(), "1")
	if err != nil {
		t.Fatalf("PendingFor: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
}

func TestPendingForUnknownSubjectIsEmpty(t *testing.T) {
	reg, _, _ := newTestRegistry(nil)
	pending, err := reg.PendingFor(context.Background(), "99")
	if err != nil {
		t.Fatalf("PendingFor: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %+v, want empty", pending)
	}
}

func TestPendingAllSkipsCleanSubjects(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string][]timeclock.Event{
		"1": {{Kind: timeclock.KindOut, At: at(2025, 1, 10, 18, 0, 0)}},
		"2": {{Kind: timeclock.KindIn, At: at(2025, 1, 10, 8, 55, 0)}},
	})

	all, err := reg.PendingAll(context.Background())
	if err != nil {
		t.Fatalf("PendingAll: %v", err)
	}
	if len(all) != 1 || all[0].SubjectID != "1" {
		t.Fatalf("all = %+v, want only subject 1", all)
	}
}

func TestApplyCorrectionRoundTrip(t *testing.T) {
	// Scenario: a synthesized 18:00:00 check-out gets corrected to
	// 17:45 and then no longer shows up as pending.
	reg, events, _ := newTestRegistry(map[string][]timeclock.Event{
		"1": {
			{Kind: timeclock.KindIn, At: at(2025, 1, 10, 9, 0, 1)},
			{Kind: timeclock.KindOut, At: at(2025, 1, 10, 18, 0, 0)},
			{Kind: timeclock.KindIn, At: at(2025, 1, 11, 10, 0, 0)},
		},
	})

	if err := reg.Apply(context.Background(), "1", "2025-01-10", timeclock.KindOut, "17:45"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	log := events.logs["1"]
	if !log[1].At.Equal(at(2025, 1, 10, 17, 45, 0)) {
		t.Fatalf("corrected entry = %+v, want 2025-01-10 17:45:00", log[1])
	}

	pending, err := reg.PendingFor(context.Background(), "1")
	if err != nil {
		t.Fatalf("PendingFor: %v", err)
	}
	for _, p := range pending {
		if p.Kind == timeclock.KindOut && p.Date == "2025-01-10" {
			t.Fatalf("corrected entry still pending: %+v", pending)
		}
	}

	// The target no longer matches the default time, so a second
	// identical correction must fail.
	err = reg.Apply(context.Background(), "1", "2025-01-10", timeclock.KindOut, "17:45")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Apply err = %v, want ErrNotFound", err)
	}
}

func TestApplyValidation(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string][]timeclock.Event{
		"1": {{Kind: timeclock.KindOut, At: at(2025, 1, 10, 18, 0, 0)}},
	})

	cases := []struct {
		name string
		date string
		kind timeclock.Kind
		time string
	}{
		{"bad time", "2025-01-10", timeclock.KindOut, "quarter to six"},
		{"bad date", "10.01.2025", timeclock.KindOut, "17:45"},
		{"bad kind", "2025-01-10", timeclock.Kind("sideways"), "17:45"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := reg.Apply(context.Background(), "1", tc.date, tc.kind, tc.time)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}

	// Rejected input must not touch the log.
	pending, _ := reg.PendingFor(context.Background(), "1")
	if len(pending) != 1 {
		t.Fatalf("pending = %+v, log was modified by rejected input", pending)
	}
}

func TestApplyAndClockShareCriticalSection(t *testing.T) {
	// A clock call for the same subject must wait until a running
	// correction has saved, otherwise the later save silently drops
	// the other side's write.
	provider := &fakeRoster{profiles: map[string]roster.Profile{
		"1": {ID: "1", FirstName: "Max", LastName: "Mustermann"},
	}}
	inner := &memEventStore{logs: map[string][]timeclock.Event{
		"1": {
			{Kind: timeclock.KindIn, At: at(2025, 1, 10, 9, 0, 1)},
			{Kind: timeclock.KindOut, At: at(2025, 1, 10, 18, 0, 0)},
		},
	}}
	store := &gatedEventStore{
		memEventStore: inner,
		loading:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	flag := &memFlag{}
	clock := timeclock.NewService(provider, store, &memAnomalyStore{}, flag, timeclock.StandardDefaults())
	reg := NewRegistry(provider, store, flag, clock.SubjectLocks(), timeclock.StandardDefaults())

	applyDone := make(chan error, 1)
	go func() {
		applyDone <- reg.Apply(context.Background(), "1", "2025-01-10", timeclock.KindOut, "17:45")
	}()
	<-store.loading

	clockDone := make(chan error, 1)
	go func() {
		_, err := clock.Clock(context.Background(), "1", at(2025, 1, 11, 8, 0, 0))
		clockDone <- err
	}()

	select {
	case <-clockDone:
		t.Fatal("clock call finished while the correction held the subject lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	if err := <-applyDone; err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := <-clockDone; err != nil {
		t.Fatalf("Clock: %v", err)
	}

	log := inner.logs["1"]
	if len(log) != 3 {
		t.Fatalf("log = %+v, want the corrected pair plus the new check-in", log)
	}
	if !log[1].At.Equal(at(2025, 1, 10, 17, 45, 0)) {
		t.Fatalf("corrected entry = %+v, want 2025-01-10 17:45:00", log[1])
	}
	if log[2].Kind != timeclock.KindIn || !log[2].At.Equal(at(2025, 1, 11, 8, 0, 0)) {
		t.Fatalf("last entry = %+v, want check-in at 2025-01-11 08:00:00", log[2])
	}
}

func TestFlagLifecycle(t *testing.T) {
	reg, _, flag := newTestRegistry(nil)

	set, err := reg.Flag(context.Background())
	if err != nil || set {
		t.Fatalf("Flag = %v, %v; want false, nil", set, err)
	}

	flag.pending = true
	if err := reg.ClearFlag(context.Background()); err != nil {
		t.Fatalf("ClearFlag: %v", err)
	}
	if flag.pending {
		t.Fatal("flag still set after ClearFlag")
	}
}
