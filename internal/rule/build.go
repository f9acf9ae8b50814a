package rule

import (
	"errors"
	"strconv"
	"time"

	"github.com/teambition/rrule-go"

	"icalsched/internal/timeutil"
)

var (
	errNotPositive = errors.New("must be positive")
	errZeroNth     = errors.New("occurrence index must be non-zero")
)

var rruleFrequency = map[Frequency]rrule.Frequency{
	Secondly: rrule.SECONDLY,
	Minutely: rrule.MINUTELY,
	Hourly:   rrule.HOURLY,
	Daily:    rrule.DAILY,
	Weekly:   rrule.WEEKLY,
	Monthly:  rrule.MONTHLY,
	Yearly:   rrule.YEARLY,
}

// indexed by timeutil.WeekdayIndex
var rruleWeekday = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Build turns a Descriptor into an rrule-go rule anchored at dtstart. This is
// where a decoded rule is validated: unknown FREQ, non-positive INTERVAL or
// COUNT, unsupported clauses, and out-of-range BY* values all fail here.
func Build(d Descriptor, dtstart time.Time) (*rrule.RRule, error) {
	opt, err := d.Options(dtstart)
	if err != nil {
		return nil, err
	}
	return rrule.NewRRule(*opt)
}

// Options maps d onto rrule-go options without building the rule.
func (d Descriptor) Options(dtstart time.Time) (*rrule.ROption, error) {
	freq, ok := rruleFrequency[d.Frequency]
	if !ok {
		return nil, &UnknownFrequencyError{Keyword: d.FrequencyKeyword}
	}
	if d.Interval < 1 {
		return nil, &InvalidValueError{Name: "INTERVAL", Value: strconv.Itoa(d.Interval), Err: errNotPositive}
	}
	v := d.Validations
	if len(v.Unsupported) > 0 {
		return nil, &UnsupportedValidationError{Names: v.Unsupported}
	}

	opt := &rrule.ROption{
		Freq:       freq,
		Dtstart:    dtstart,
		Interval:   d.Interval,
		Bysecond:   v.SecondOfMinute,
		Byminute:   v.MinuteOfHour,
		Byhour:     v.HourOfDay,
		Bymonthday: v.DayOfMonth,
		Bymonth:    v.MonthOfYear,
		Byyearday:  v.DayOfYear,
	}

	if n, ok := d.Count.Get(); ok {
		// rrule-go reads a zero count as "unbounded"
		if n < 1 {
			return nil, &InvalidValueError{Name: "COUNT", Value: strconv.Itoa(n), Err: errNotPositive}
		}
		opt.Count = n
	}
	if until, ok := d.Until.Get(); ok {
		opt.Until = until
	}
	if wd, ok := d.WeekStart.Get(); ok {
		opt.Wkst = rruleWeekday[timeutil.WeekdayIndex(wd)]
	}

	for _, wd := range v.Day {
		opt.Byweekday = append(opt.Byweekday, rruleWeekday[timeutil.WeekdayIndex(wd)])
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		for _, n := range v.DayOfWeek[wd] {
			// Nth(0) renders as a bare weekday
			if n == 0 {
				return nil, &InvalidValueError{Name: "BYDAY", Value: "0" + timeutil.WeekdayCode(wd), Err: errZeroNth}
			}
			opt.Byweekday = append(opt.Byweekday, rruleWeekday[timeutil.WeekdayIndex(wd)].Nth(n))
		}
	}

	return opt, nil
}

// RRuleString renders d as an RRULE value, e.g. "FREQ=WEEKLY;COUNT=5;BYDAY=+2TU,FR".
// Only descriptors that Build accepts can be rendered.
func (d Descriptor) RRuleString() (string, error) {
	opt, err := d.Options(time.Time{})
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}
