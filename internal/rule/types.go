// Package rule decodes RRULE values into rule descriptors and builds
// rrule-go rules from them.
package rule

import (
	"strings"
	"time"

	"github.com/samber/mo"
)

// Frequency is the recurrence period class of a rule. The zero value is
// FrequencyUnknown, used when FREQ is absent or not a recognized keyword.
type Frequency int

const (
	FrequencyUnknown Frequency = iota
	Secondly
	Minutely
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

var frequencyByKeyword = map[string]Frequency{
	"SECONDLY": Secondly,
	"MINUTELY": Minutely,
	"HOURLY":   Hourly,
	"DAILY":    Daily,
	"WEEKLY":   Weekly,
	"MONTHLY":  Monthly,
	"YEARLY":   Yearly,
}

// ParseFrequency looks up a FREQ keyword, ignoring case.
func ParseFrequency(keyword string) (Frequency, bool) {
	f, ok := frequencyByKeyword[strings.ToUpper(keyword)]
	return f, ok
}

var frequencyKeywords = [...]string{"UNKNOWN", "SECONDLY", "MINUTELY", "HOURLY", "DAILY", "WEEKLY", "MONTHLY", "YEARLY"}

func (f Frequency) String() string {
	if f < FrequencyUnknown || f > Yearly {
		return frequencyKeywords[FrequencyUnknown]
	}
	return frequencyKeywords[f]
}

// Descriptor is the structured form of one RRULE value.
type Descriptor struct {
	Frequency Frequency
	// FrequencyKeyword is the FREQ value as written, kept so an
	// unrecognized keyword can be reported when the rule is built.
	FrequencyKeyword string

	Interval  int
	Count     mo.Option[int]
	Until     mo.Option[time.Time]
	WeekStart mo.Option[time.Weekday]

	Validations ValidationSet
}

// ValidationSet holds the BY* constraints of a rule. Nil slices and maps
// mean the constraint is absent.
type ValidationSet struct {
	SecondOfMinute []int
	MinuteOfHour   []int
	HourOfDay      []int
	DayOfMonth     []int
	MonthOfYear    []int
	DayOfYear      []int

	// DayOfWeek maps a weekday to its occurrence-in-period indexes,
	// e.g. Tuesday: [2] for "2nd Tuesday" or Friday: [-1] for "last Friday".
	DayOfWeek map[time.Weekday][]int
	// Day lists weekdays matched on any occurrence. A weekday never
	// appears both here and in DayOfWeek.
	Day []time.Weekday

	// Unsupported records clause names that have no validation of their
	// own. They are kept so Build can reject them.
	Unsupported []string
}

// Empty reports whether no constraint of any kind is present.
func (v ValidationSet) Empty() bool {
	return v.SecondOfMinute == nil && v.MinuteOfHour == nil && v.HourOfDay == nil &&
		v.DayOfMonth == nil && v.MonthOfYear == nil && v.DayOfYear == nil &&
		len(v.DayOfWeek) == 0 && len(v.Day) == 0 && len(v.Unsupported) == 0
}
