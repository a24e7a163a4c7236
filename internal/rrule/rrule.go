package rrule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var toLibWeekday = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func fromLibWeekday(d rrule.Weekday) time.Weekday {
	// rrule-go numbers weekdays from Monday.
	return time.Weekday((d.Day() + 1) % 7)
}

// Encode renders the recurring part of a rule as an RFC 5545 RRULE value.
// One-shot rules encode to the empty string; their instant is stored
// separately.
func Encode(rule Rule) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}
	if rule.Freq == None {
		return "", nil
	}

	var parts []string
	if rule.Freq == Daily {
		parts = append(parts, "FREQ=DAILY")
	} else {
		parts = append(parts, "FREQ=WEEKLY")
		days := rule.Days.Days()
		codes := make([]string, len(days))
		for i, d := range days {
			codes[i] = strings.ToUpper(d.String()[:2])
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	parts = append(parts,
		"BYHOUR="+strconv.Itoa(rule.Time.Hour),
		"BYMINUTE="+strconv.Itoa(rule.Time.Minute),
	)
	return strings.Join(parts, ";"), nil
}

// Parse decodes a stored rule. freq selects the variant; text is the
// RRULE value for recurring variants and at the instant for one-shots.
// Any field that does not fit the variant is an error, never a default.
func Parse(freq Frequency, text string, at time.Time) (Rule, error) {
	if freq == None {
		rule := Once(at)
		return rule, rule.Validate()
	}
	if freq != Daily && freq != WeeklyOnDays && freq != Custom {
		return Rule{}, &ParseError{Field: "frequency", Value: freq.String(), Err: ErrUnknownFrequency}
	}

	text = strings.TrimPrefix(strings.TrimSpace(text), "RRULE:")
	opt, err := rrule.StrToROption(text)
	if err != nil {
		return Rule{}, &ParseError{Field: "rrule", Value: text, Err: err}
	}
	if err := checkFields(text); err != nil {
		return Rule{}, err
	}

	want := rrule.WEEKLY
	if freq == Daily {
		want = rrule.DAILY
	}
	if opt.Freq != want {
		return Rule{}, &ParseError{Field: "FREQ", Value: fmt.Sprint(opt.Freq), Err: fmt.Errorf("expected %v", want)}
	}
	if opt.Interval > 1 {
		return Rule{}, &ParseError{Field: "INTERVAL", Value: strconv.Itoa(opt.Interval), Err: errors.New("intervals are not supported")}
	}
	if len(opt.Byhour) != 1 {
		return Rule{}, &ParseError{Field: "BYHOUR", Value: fmt.Sprint(opt.Byhour), Err: errors.New("exactly one hour required")}
	}
	if len(opt.Byminute) != 1 {
		return Rule{}, &ParseError{Field: "BYMINUTE", Value: fmt.Sprint(opt.Byminute), Err: errors.New("exactly one minute required")}
	}

	rule := Rule{
		Freq: freq,
		Time: TimeOfDay{Hour: opt.Byhour[0], Minute: opt.Byminute[0]},
	}
	if freq != Daily {
		for _, d := range opt.Byweekday {
			if d.N() != 0 {
				return Rule{}, &ParseError{Field: "BYDAY", Value: d.String(), Err: errors.New("ordinal weekdays are not supported")}
			}
			rule.Days = rule.Days.Add(fromLibWeekday(d))
		}
	} else if len(opt.Byweekday) > 0 {
		return Rule{}, &ParseError{Field: "BYDAY", Value: fmt.Sprint(opt.Byweekday), Err: errors.New("daily rules take no days")}
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// supportedFields are the RRULE parts a stored rule may carry.
var supportedFields = map[string]bool{
	"FREQ":     true,
	"INTERVAL": true,
	"BYDAY":    true,
	"BYHOUR":   true,
	"BYMINUTE": true,
}

// checkFields rejects parts such as COUNT, UNTIL or BYSETPOS that the
// rule variants cannot represent.
func checkFields(text string) error {
	for _, part := range strings.Split(text, ";") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		key = strings.ToUpper(strings.TrimSpace(key))
		if !supportedFields[key] {
			return &ParseError{Field: key, Value: value, Err: errors.New("unsupported rule part")}
		}
	}
	return nil
}

// toROption expands the rule into rrule-go options anchored at the start
// of the local day containing from.
func toROption(rule Rule, from time.Time, loc *time.Location) rrule.ROption {
	local := from.In(loc)
	y, m, d := local.Date()
	opt := rrule.ROption{
		Freq:     rrule.DAILY,
		Dtstart:  time.Date(y, m, d, 0, 0, 0, 0, loc),
		Byhour:   []int{rule.Time.Hour},
		Byminute: []int{rule.Time.Minute},
		Bysecond: []int{0},
	}
	if rule.Freq != Daily {
		opt.Freq = rrule.WEEKLY
		for _, day := range rule.Days.Days() {
			opt.Byweekday = append(opt.Byweekday, toLibWeekday[day])
		}
	}
	return opt
}

// Occurrences returns up to n occurrences strictly after the given time.
func Occurrences(rule Rule, after time.Time, n int, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	after = after.Truncate(time.Minute)

	if rule.Freq == None {
		at := rule.At.Truncate(time.Minute)
		if !at.After(after) {
			return nil, nil
		}
		return []time.Time{at.In(loc)}, nil
	}

	r, err := rrule.NewRRule(toROption(rule, after, loc))
	if err != nil {
		return nil, fmt.Errorf("failed to build rrule: %w", err)
	}

	iterator := r.Iterator()
	results := make([]time.Time, 0, n)
	for len(results) < n {
		next, ok := iterator()
		if !ok {
			break
		}
		if next.After(after) {
			results = append(results, next)
		}
	}
	return results, nil
}

// Describe returns a short English description of the rule.
func Describe(rule Rule, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	switch rule.Freq {
	case None:
		if rule.At.IsZero() {
			return "once"
		}
		return "once on " + rule.At.In(loc).Format("Mon, 02 Jan 2006 15:04")
	case Daily:
		return "every day at " + rule.Time.String()
	case WeeklyOnDays, Custom:
		if rule.Days == NewWeekdaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday) {
			return "every weekday at " + rule.Time.String()
		}
		if rule.Days.Empty() {
			return "never"
		}
		return "every " + rule.Days.String() + " at " + rule.Time.String()
	}
	return rule.Freq.String()
}
