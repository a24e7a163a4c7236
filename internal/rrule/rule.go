package rrule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoFutureOccurrence is returned for a one-shot rule whose instant is not after the reference.
	ErrNoFutureOccurrence = errors.New("rrule: no future occurrence")
	// ErrEmptyDaySet is returned for weekly and custom rules without any weekday.
	ErrEmptyDaySet = errors.New("rrule: empty weekday set")
	// ErrUnknownFrequency is returned when a stored frequency tag is not recognised.
	ErrUnknownFrequency = errors.New("rrule: unknown frequency")
)

// ParseError reports a stored rule that could not be decoded.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rrule: invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("rrule: invalid %s %q", e.Field, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Frequency is the closed set of recurrence variants.
type Frequency int

const (
	None Frequency = iota
	Daily
	WeeklyOnDays
	Custom
)

func (f Frequency) String() string {
	switch f {
	case None:
		return "none"
	case Daily:
		return "daily"
	case WeeklyOnDays:
		return "weekly"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("frequency(%d)", int(f))
	}
}

// ParseFrequency is the inverse of Frequency.String. Unknown tags fail
// instead of falling back to a default.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return None, nil
	case "daily":
		return Daily, nil
	case "weekly":
		return WeeklyOnDays, nil
	case "custom":
		return Custom, nil
	}
	return 0, &ParseError{Field: "frequency", Value: s, Err: ErrUnknownFrequency}
}

// TimeOfDay is a wall-clock time at minute granularity.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, &ParseError{Field: "time", Value: s, Err: err}
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// on combines the time of day with a local calendar date. time.Date
// normalises day overflow, so d may run past the end of the month.
func (t TimeOfDay) on(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}

// WeekdaySet is a bitmask indexed by time.Weekday.
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

func (s WeekdaySet) Add(d time.Weekday) WeekdaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s | 1<<uint(d)
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	return d >= time.Sunday && d <= time.Saturday && s&(1<<uint(d)) != 0
}

func (s WeekdaySet) Empty() bool { return s&0x7f == 0 }

// Days lists the members starting from Monday.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s WeekdaySet) String() string {
	days := s.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}
	return strings.Join(names, ", ")
}

// Rule is a recurrence rule. One-shot rules carry At; every other
// variant carries Time, and weekly variants also carry Days.
type Rule struct {
	Freq Frequency
	At   time.Time
	Time TimeOfDay
	Days WeekdaySet
}

func Once(at time.Time) Rule {
	return Rule{Freq: None, At: at}
}

func EveryDay(t TimeOfDay) Rule {
	return Rule{Freq: Daily, Time: t}
}

func Weekly(t TimeOfDay, days ...time.Weekday) Rule {
	return Rule{Freq: WeeklyOnDays, Time: t, Days: NewWeekdaySet(days...)}
}

func CustomDays(t TimeOfDay, days ...time.Weekday) Rule {
	return Rule{Freq: Custom, Time: t, Days: NewWeekdaySet(days...)}
}

// IsRecurring reports whether the rule produces more than one occurrence.
func (r Rule) IsRecurring() bool {
	return r.Freq != None
}

// Validate checks the structural invariants of the variant.
func (r Rule) Validate() error {
	switch r.Freq {
	case None:
		if r.At.IsZero() {
			return &ParseError{Field: "at", Value: "", Err: errors.New("one-shot rule without instant")}
		}
		return nil
	case Daily, WeeklyOnDays, Custom:
		if !r.Time.Valid() {
			return &ParseError{Field: "time", Value: r.Time.String(), Err: errors.New("out of range")}
		}
		if r.Freq != Daily && r.Days.Empty() {
			return ErrEmptyDaySet
		}
		return nil
	default:
		return &ParseError{Field: "frequency", Value: r.Freq.String(), Err: ErrUnknownFrequency}
	}
}
