package timeclock

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS". Trailing garbage and
// out-of-range fields are rejected.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	at, err := time.Parse("15:04:05", s)
	if err != nil {
		at, err = time.Parse("15:04", s)
	}
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay{Hour: at.Hour(), Minute: at.Minute(), Second: at.Second()}, nil
}

// On pins the time of day to the calendar date of ref.
func (t TimeOfDay) On(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, t.Second, 0, ref.Location())
}

// Matches reports whether an instant's time of day equals t exactly.
func (t TimeOfDay) Matches(at time.Time) bool {
	return at.Hour() == t.Hour && at.Minute() == t.Minute && at.Second() == t.Second
}

// String renders "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Defaults carries the standard working times used when the state
// machine has to synthesize a missed check-in or check-out.
type Defaults struct {
	WorkStart     TimeOfDay // synthesized check-in time (reference 09:00:00)
	WorkEnd       TimeOfDay // synthesized check-out time (reference 18:00:00)
	LateLoginHour int       // hour-of-day at which a missing morning check-in counts as forgotten
}

// StandardDefaults returns the reference working times.
func StandardDefaults() Defaults {
	return Defaults{
		WorkStart:     TimeOfDay{Hour: 9},
		WorkEnd:       TimeOfDay{Hour: 18},
		LateLoginHour: 15,
	}
}
