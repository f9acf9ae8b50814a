package ics

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/mo"

	appLog "icalsched/internal/log"
	"icalsched/internal/rule"
	"icalsched/internal/schedule"
	"icalsched/internal/timeutil"
)

// ParseError locates a failure inside the calendar text. It unwraps to
// the underlying decode or time error.
type ParseError struct {
	Line     int
	Property string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d (%s): %v", e.Line, e.Property, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type mode int

const (
	modeTopLevel mode = iota
	modeInEvent
)

// Parser turns calendar lines into a schedule descriptor.
type Parser struct {
	// Location is used for floating DATE and DATE-TIME values (no Z
	// suffix). TZID parameters are not consulted. Nil means time.Local.
	Location *time.Location
}

// Parse reads lines in time.Local; see Parser.Parse.
func Parse(lines []string) (schedule.Descriptor, error) {
	return Parser{}.Parse(lines)
}

// ParseString splits s into lines and parses them.
func ParseString(s string) (schedule.Descriptor, error) {
	return Parser{}.ParseString(s)
}

// ScheduleFromICal parses s and compiles the result into a Schedule.
func ScheduleFromICal(s string) (*schedule.Schedule, error) {
	return Parser{}.Schedule(s)
}

func (p Parser) ParseString(s string) (schedule.Descriptor, error) {
	return p.Parse(strings.Split(s, "\n"))
}

// ParseReader reads the whole of r before parsing.
func (p Parser) ParseReader(r io.Reader) (schedule.Descriptor, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return schedule.Descriptor{}, err
	}
	return p.Parse(lines)
}

func (p Parser) Schedule(s string) (*schedule.Schedule, error) {
	d, err := p.ParseString(s)
	if err != nil {
		return nil, err
	}
	return schedule.New(d)
}

// Parse consumes lines in order. Outside an event block DTSTART and DTEND
// set the schedule's start and end, RDATE and EXDATE add inclusion and
// exclusion times, and RRULE adds a rule. Inside BEGIN:VEVENT ...
// END:VEVENT only DTSTART is read, as an extra inclusion time. Unknown
// properties are skipped. Any decode error aborts the parse.
func (p Parser) Parse(lines []string) (schedule.Descriptor, error) {
	st := parseState{loc: p.Location}
	for i, line := range lines {
		property, value := splitLine(line)
		if err := st.consume(property, value); err != nil {
			return schedule.Descriptor{}, &ParseError{Line: i + 1, Property: property, Err: err}
		}
	}

	if st.mode == modeInEvent {
		appLog.Debug("ics parse: input ended inside VEVENT")
	}
	appLog.Debug("ics parse completed",
		"lines", len(lines),
		"rrules", len(st.desc.RRules),
		"rtimes", len(st.desc.RTimes),
		"extimes", len(st.desc.ExTimes),
	)
	return st.desc, nil
}

// splitLine cuts a line at the first ':' into property name and value.
// Parameters after the first ';' of the property (e.g. TZID=...) are dropped.
func splitLine(line string) (property, value string) {
	head, value, _ := strings.Cut(strings.TrimRight(line, "\r\n"), ":")
	property, _, _ = strings.Cut(head, ";")
	return property, strings.TrimSpace(value)
}

type parseState struct {
	mode mode
	loc  *time.Location
	desc schedule.Descriptor
}

func (st *parseState) consume(property, value string) error {
	switch st.mode {
	case modeInEvent:
		return st.consumeEvent(property, value)
	default:
		return st.consumeTopLevel(property, value)
	}
}

func (st *parseState) consumeTopLevel(property, value string) error {
	switch property {
	case "DTSTART":
		t, err := timeutil.Deserialize(value, st.loc)
		if err != nil {
			return err
		}
		st.desc.StartTime = mo.Some(t)
	case "DTEND":
		t, err := timeutil.Deserialize(value, st.loc)
		if err != nil {
			return err
		}
		st.desc.EndTime = mo.Some(t)
	case "RDATE":
		ts, err := st.deserializeList(value)
		if err != nil {
			return err
		}
		st.desc.RTimes = append(st.desc.RTimes, ts...)
	case "EXDATE":
		ts, err := st.deserializeList(value)
		if err != nil {
			return err
		}
		st.desc.ExTimes = append(st.desc.ExTimes, ts...)
	case "DURATION":
		// Not supported; DTEND is the only way to give occurrences a length.
	case "RRULE":
		r, err := rule.DecodeIn(value, st.loc)
		if err != nil {
			return err
		}
		st.desc.RRules = append(st.desc.RRules, r)
	case "BEGIN":
		if value == "VEVENT" {
			st.mode = modeInEvent
		}
	}
	return nil
}

func (st *parseState) consumeEvent(property, value string) error {
	switch property {
	case "DTSTART":
		t, err := timeutil.Deserialize(value, st.loc)
		if err != nil {
			return err
		}
		st.desc.RTimes = append(st.desc.RTimes, t)
	case "END":
		if value == "VEVENT" {
			st.mode = modeTopLevel
		}
	}
	return nil
}

func (st *parseState) deserializeList(value string) ([]time.Time, error) {
	parts := strings.Split(value, ",")
	out := make([]time.Time, 0, len(parts))
	for _, part := range parts {
		t, err := timeutil.Deserialize(part, st.loc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
