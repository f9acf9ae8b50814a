package rule

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"

	"icalsched/internal/timeutil"
)

// Decode splits an RRULE value such as "FREQ=WEEKLY;BYDAY=2TU,FR;COUNT=5"
// into a Descriptor. Floating UNTIL values are read in time.Local.
func Decode(value string) (Descriptor, error) {
	return DecodeIn(value, nil)
}

// DecodeIn is Decode with an explicit location for floating UNTIL values.
//
// Decoding is purely syntactic. An unknown FREQ keyword or an unknown clause
// name does not fail here; both are carried in the Descriptor and rejected
// by Build.
func DecodeIn(value string, loc *time.Location) (Descriptor, error) {
	if strings.TrimSpace(value) == "" {
		return Descriptor{}, ErrEmptyRule
	}

	d := Descriptor{Interval: 1}
	days := weekdayAccumulator{qualified: map[time.Weekday][]int{}}

	for _, clause := range splitClauses(value) {
		name, raw, ok := strings.Cut(clause, "=")
		val := strings.TrimSpace(raw)
		if !ok || val == "" {
			return Descriptor{}, &MalformedClauseError{Clause: clause}
		}
		name = strings.TrimSpace(name)

		var err error
		v := &d.Validations
		switch name {
		case "FREQ":
			d.FrequencyKeyword = val
			d.Frequency, _ = ParseFrequency(val)
		case "INTERVAL":
			d.Interval, err = parseInt(name, val)
		case "COUNT":
			var n int
			if n, err = parseInt(name, val); err == nil {
				d.Count = mo.Some(n)
			}
		case "UNTIL":
			var t time.Time
			if t, err = timeutil.Deserialize(val, loc); err == nil {
				d.Until = mo.Some(t.UTC())
			}
		case "WKST":
			var wd time.Weekday
			if wd, err = timeutil.WeekdayFromCode(val); err == nil {
				d.WeekStart = mo.Some(wd)
			}
		case "BYSECOND":
			v.SecondOfMinute, err = parseInts(name, val)
		case "BYMINUTE":
			v.MinuteOfHour, err = parseInts(name, val)
		case "BYHOUR":
			v.HourOfDay, err = parseInts(name, val)
		case "BYMONTHDAY":
			v.DayOfMonth, err = parseInts(name, val)
		case "BYMONTH":
			v.MonthOfYear, err = parseInts(name, val)
		case "BYYEARDAY":
			v.DayOfYear, err = parseInts(name, val)
		case "BYDAY":
			for _, expr := range strings.Split(val, ",") {
				if err = days.add(expr); err != nil {
					break
				}
			}
		case "BYSETPOS":
			// accepted, not evaluated
		default:
			if !slices.Contains(v.Unsupported, name) {
				v.Unsupported = append(v.Unsupported, name)
			}
		}
		if err != nil {
			return Descriptor{}, err
		}
	}

	if len(days.qualified) > 0 {
		d.Validations.DayOfWeek = days.qualified
	}
	if len(days.bare) > 0 {
		d.Validations.Day = days.bare
	}
	return d, nil
}

// splitClauses splits on ';' and drops trailing empty clauses, so a value
// ending in ';' is accepted. Empty clauses elsewhere stay and fail.
func splitClauses(value string) []string {
	clauses := strings.Split(value, ";")
	for len(clauses) > 0 && strings.TrimSpace(clauses[len(clauses)-1]) == "" {
		clauses = clauses[:len(clauses)-1]
	}
	return clauses
}

// weekdayAccumulator collects BYDAY expressions across a whole decode.
// A qualified entry ("2TU") evicts the weekday from the bare set, and a
// later bare entry for that weekday is not re-added.
type weekdayAccumulator struct {
	qualified map[time.Weekday][]int
	bare      []time.Weekday
}

func (a *weekdayAccumulator) add(expr string) error {
	expr = strings.TrimSpace(expr)
	if len(expr) < 2 {
		return &timeutil.WeekdayCodeError{Code: expr}
	}
	wd, err := timeutil.WeekdayFromCode(expr[len(expr)-2:])
	if err != nil {
		return err
	}

	if len(expr) == 2 {
		if _, seen := a.qualified[wd]; !seen && !slices.Contains(a.bare, wd) {
			a.bare = append(a.bare, wd)
		}
		return nil
	}

	occ, err := parseInt("BYDAY", expr[:len(expr)-2])
	if err != nil {
		return err
	}
	a.qualified[wd] = append(a.qualified[wd], occ)
	a.bare = slices.DeleteFunc(a.bare, func(d time.Weekday) bool { return d == wd })
	return nil
}

func parseInt(name, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &InvalidValueError{Name: name, Value: s, Err: err}
	}
	return n, nil
}

func parseInts(name, s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := parseInt(name, p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
