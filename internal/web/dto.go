package web

import (
	"time"

	"github.com/samber/mo"

	"icalsched/internal/rule"
	"icalsched/internal/schedule"
	"icalsched/internal/timeutil"
)

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	SourceID    string    `json:"source_id"`
	InstanceKey string    `json:"instance_key"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

type descriptorDTO struct {
	StartTime *time.Time  `json:"start_time"`
	EndTime   *time.Time  `json:"end_time"`
	RTimes    []time.Time `json:"rtimes"`
	ExTimes   []time.Time `json:"extimes"`
	RRules    []ruleDTO   `json:"rrules"`
}

type ruleDTO struct {
	Frequency   string         `json:"frequency"`
	Interval    int            `json:"interval"`
	Count       *int           `json:"count,omitempty"`
	Until       *time.Time     `json:"until,omitempty"`
	WeekStart   string         `json:"week_start,omitempty"`
	Validations validationsDTO `json:"validations"`
	// RRule is the normalized RRULE text; empty when the rule cannot be built.
	RRule string `json:"rrule,omitempty"`
}

// validationsDTO keys weekdays by their two-letter code.
type validationsDTO struct {
	SecondOfMinute []int            `json:"second_of_minute,omitempty"`
	MinuteOfHour   []int            `json:"minute_of_hour,omitempty"`
	HourOfDay      []int            `json:"hour_of_day,omitempty"`
	DayOfMonth     []int            `json:"day_of_month,omitempty"`
	MonthOfYear    []int            `json:"month_of_year,omitempty"`
	DayOfYear      []int            `json:"day_of_year,omitempty"`
	DayOfWeek      map[string][]int `json:"day_of_week,omitempty"`
	Day            []string         `json:"day,omitempty"`
	Unsupported    []string         `json:"unsupported,omitempty"`
}

func newDescriptorDTO(d schedule.Descriptor) descriptorDTO {
	out := descriptorDTO{
		StartTime: optionPtr(d.StartTime),
		EndTime:   optionPtr(d.EndTime),
		RTimes:    nonNil(d.RTimes),
		ExTimes:   nonNil(d.ExTimes),
		RRules:    make([]ruleDTO, 0, len(d.RRules)),
	}
	for _, r := range d.RRules {
		out.RRules = append(out.RRules, newRuleDTO(r))
	}
	return out
}

func newRuleDTO(r rule.Descriptor) ruleDTO {
	out := ruleDTO{
		Frequency: r.Frequency.String(),
		Interval:  r.Interval,
		Count:     optionPtr(r.Count),
		Until:     optionPtr(r.Until),
	}
	if wd, ok := r.WeekStart.Get(); ok {
		out.WeekStart = timeutil.WeekdayCode(wd)
	}
	if s, err := r.RRuleString(); err == nil {
		out.RRule = s
	}

	v := r.Validations
	out.Validations = validationsDTO{
		SecondOfMinute: v.SecondOfMinute,
		MinuteOfHour:   v.MinuteOfHour,
		HourOfDay:      v.HourOfDay,
		DayOfMonth:     v.DayOfMonth,
		MonthOfYear:    v.MonthOfYear,
		DayOfYear:      v.DayOfYear,
		Unsupported:    v.Unsupported,
	}
	if len(v.DayOfWeek) > 0 {
		out.Validations.DayOfWeek = make(map[string][]int, len(v.DayOfWeek))
		for wd, occ := range v.DayOfWeek {
			out.Validations.DayOfWeek[timeutil.WeekdayCode(wd)] = occ
		}
	}
	for _, wd := range v.Day {
		out.Validations.Day = append(out.Validations.Day, timeutil.WeekdayCode(wd))
	}
	return out
}

func optionPtr[T any](o mo.Option[T]) *T {
	if v, ok := o.Get(); ok {
		return &v
	}
	return nil
}

func nonNil(ts []time.Time) []time.Time {
	if ts == nil {
		return []time.Time{}
	}
	return ts
}
