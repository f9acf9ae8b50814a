package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"icalsched/internal/schedule"
	"icalsched/internal/timeutil"
)

const productID = "-//icalsched//schedule export//EN"

// Export writes d as top-level property lines (DTSTART, DTEND, RRULE,
// RDATE, EXDATE) that Parse reads back into an equivalent descriptor.
// Non-UTC times are written as floating values.
func Export(d schedule.Descriptor) (string, error) {
	var b strings.Builder
	if t, ok := d.StartTime.Get(); ok {
		b.WriteString("DTSTART:" + timeutil.Serialize(t) + "\n")
	}
	if t, ok := d.EndTime.Get(); ok {
		b.WriteString("DTEND:" + timeutil.Serialize(t) + "\n")
	}
	for _, r := range d.RRules {
		s, err := r.RRuleString()
		if err != nil {
			return "", err
		}
		b.WriteString("RRULE:" + s + "\n")
	}
	if len(d.RTimes) > 0 {
		b.WriteString("RDATE:" + joinTimes(d.RTimes, timeutil.Serialize) + "\n")
	}
	if len(d.ExTimes) > 0 {
		b.WriteString("EXDATE:" + joinTimes(d.ExTimes, timeutil.Serialize) + "\n")
	}
	return b.String(), nil
}

// ExportCalendar wraps d in a VCALENDAR with a single VEVENT for use by
// other calendar software. All times are converted to UTC. Parse treats a
// VEVENT block as extra occurrences only, so this form is not meant to be
// parsed back.
func ExportCalendar(d schedule.Descriptor, summary string) (string, error) {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)

	ev := cal.AddEvent(uuid.NewString())
	ev.SetDtStampTime(time.Now())
	if summary != "" {
		ev.SetSummary(summary)
	}
	if t, ok := d.StartTime.Get(); ok {
		ev.SetStartAt(t)
	}
	if t, ok := d.EndTime.Get(); ok {
		ev.SetEndAt(t)
	}
	for _, r := range d.RRules {
		s, err := r.RRuleString()
		if err != nil {
			return "", err
		}
		ev.AddProperty(ical.ComponentPropertyRrule, s)
	}
	if len(d.RTimes) > 0 {
		ev.AddProperty(ical.ComponentPropertyRdate, joinTimes(d.RTimes, utcStamp))
	}
	if len(d.ExTimes) > 0 {
		ev.AddProperty(ical.ComponentPropertyExdate, joinTimes(d.ExTimes, utcStamp))
	}

	return cal.Serialize(), nil
}

func utcStamp(t time.Time) string {
	return timeutil.Serialize(t.UTC())
}

func joinTimes(ts []time.Time, format func(time.Time) string) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = format(t)
	}
	return strings.Join(parts, ",")
}
