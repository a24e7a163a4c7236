package rrule

import (
	"time"

	"cloud.google.com/go/civil"
)

// NextOccurrence returns the first occurrence of rule strictly after ref.
// Comparisons are at minute granularity and weekdays are taken from the
// calendar in loc. A nil loc means time.Local.
func NextOccurrence(rule Rule, ref time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	ref = ref.Truncate(time.Minute)

	switch rule.Freq {
	case None:
		if rule.At.IsZero() {
			return time.Time{}, rule.Validate()
		}
		at := rule.At.Truncate(time.Minute)
		if !at.After(ref) {
			return time.Time{}, ErrNoFutureOccurrence
		}
		return at.In(loc), nil

	case Daily:
		if !rule.Time.Valid() {
			return time.Time{}, rule.Validate()
		}
		local := ref.In(loc)
		y, m, d := local.Date()
		next := rule.Time.on(y, m, d, loc)
		if !next.After(ref) {
			next = rule.Time.on(y, m, d+1, loc)
		}
		return next, nil

	case WeeklyOnDays, Custom:
		if err := rule.Validate(); err != nil {
			return time.Time{}, err
		}
		local := ref.In(loc)
		y, m, d := local.Date()
		// Eight candidates: today's slot may already be past, in which
		// case the same weekday a week later is the answer.
		for i := 0; i <= 7; i++ {
			next := rule.Time.on(y, m, d+i, loc)
			if !rule.Days.Has(next.Weekday()) {
				continue
			}
			if next.After(ref) {
				return next, nil
			}
		}
		return time.Time{}, ErrEmptyDaySet

	default:
		return time.Time{}, rule.Validate()
	}
}

// OccursOn reports whether the rule schedules an occurrence on the local
// calendar date.
func OccursOn(rule Rule, date civil.Date, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	switch rule.Freq {
	case None:
		if rule.At.IsZero() {
			return false
		}
		return civil.DateOf(rule.At.In(loc)) == date
	case Daily:
		return true
	case WeeklyOnDays, Custom:
		return rule.Days.Has(date.In(time.UTC).Weekday())
	}
	return false
}
