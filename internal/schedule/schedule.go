// Package schedule holds the parsed schedule descriptor and builds a
// queryable recurrence set from it.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"icalsched/internal/rule"
)

// ErrMissingStart is returned by New when rules are present but neither a
// DTSTART nor any RDATE can anchor them.
var ErrMissingStart = errors.New("schedule has recurrence rules but no start time")

// Descriptor accumulates everything a calendar blob says about one
// schedule. RTimes, ExTimes and RRules keep input order.
type Descriptor struct {
	StartTime mo.Option[time.Time]
	EndTime   mo.Option[time.Time]
	RTimes    []time.Time
	ExTimes   []time.Time
	RRules    []rule.Descriptor
}

// Schedule is a Descriptor compiled into an rrule-go set.
type Schedule struct {
	desc     Descriptor
	start    time.Time
	duration time.Duration
	set      *rrule.Set
}

// New compiles d. Every rule is anchored at the start time (DTSTART, or
// the first RDATE when DTSTART is absent). A schedule without rules
// occurs at its start time. Each RTime is an extra occurrence and each
// ExTime removes the occurrence at exactly that instant.
func New(d Descriptor) (*Schedule, error) {
	s := &Schedule{desc: d, set: &rrule.Set{}}

	start, hasStart := d.StartTime.Get()
	if !hasStart && len(d.RTimes) > 0 {
		start, hasStart = d.RTimes[0], true
	}
	if !hasStart && len(d.RRules) > 0 {
		return nil, ErrMissingStart
	}
	s.start = start

	if end, ok := d.EndTime.Get(); ok && hasStart && end.After(start) {
		s.duration = end.Sub(start)
	}

	for i, rd := range d.RRules {
		r, err := rule.Build(rd, start)
		if err != nil {
			return nil, fmt.Errorf("rrule %d: %w", i+1, err)
		}
		s.set.RRule(r)
	}
	if len(d.RRules) == 0 && d.StartTime.IsPresent() {
		s.set.RDate(start)
	}
	for _, t := range d.RTimes {
		s.set.RDate(t)
	}
	for _, t := range d.ExTimes {
		s.set.ExDate(t)
	}

	return s, nil
}

func (s *Schedule) Descriptor() Descriptor {
	return s.desc
}

// Start is the anchor of the schedule's rules; zero for an empty schedule.
func (s *Schedule) Start() time.Time {
	return s.start
}

// Duration is DTEND minus DTSTART, or zero.
func (s *Schedule) Duration() time.Duration {
	return s.duration
}

// First returns up to n occurrence start times in chronological order.
// A non-positive n yields an empty slice.
func (s *Schedule) First(n int) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	out := make([]time.Time, 0, n)
	next := s.set.Iterator()
	for len(out) < n {
		t, ok := next()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}

// Between returns occurrence start times in [after, before]; the bounds are
// exclusive unless inc is set.
func (s *Schedule) Between(after, before time.Time, inc bool) []time.Time {
	return s.set.Between(after, before, inc)
}

// Next returns the first occurrence strictly after t.
func (s *Schedule) Next(t time.Time) (time.Time, bool) {
	next := s.set.After(t, false)
	return next, !next.IsZero()
}
