// Package timeutil deserializes iCalendar timestamp tokens and maps the
// two-letter weekday codes used by RRULE values.
package timeutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// TimeFormatError reports a timestamp token that matches none of the
// supported layouts.
type TimeFormatError struct {
	Token string
}

func (e *TimeFormatError) Error() string {
	return fmt.Sprintf("unrecognized time value %q", e.Token)
}

// WeekdayCodeError reports an unknown two-letter weekday code.
type WeekdayCodeError struct {
	Code string
}

func (e *WeekdayCodeError) Error() string {
	return fmt.Sprintf("unrecognized weekday code %q", e.Code)
}

// Deserialize parses a single DATE or DATE-TIME token.
//
//   - 20250101T090000Z is UTC.
//   - 20250101T090000 is floating and placed in loc.
//   - 20250101 is midnight in loc.
//
// RFC 3339 strings are accepted as a fallback. A nil loc means time.Local.
func Deserialize(token string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(token)
	if v == "" {
		return time.Time{}, &TimeFormatError{Token: token}
	}
	if loc == nil {
		loc = time.Local
	}

	t, err := rrule.StrToDtStart(v, loc)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, v); err != nil {
			return time.Time{}, &TimeFormatError{Token: token}
		}
	}
	return t, nil
}

// Serialize formats t the way Deserialize reads it back: UTC values get the
// Z suffix, everything else is written as a floating DATE-TIME.
func Serialize(t time.Time) string {
	if t.Location() == time.UTC {
		return t.Format(rrule.DateTimeFormat)
	}
	return t.Format(rrule.LocalDateTimeFormat)
}

var weekdayByCode = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var codeByWeekday = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// WeekdayFromCode maps MO, TU, ... SU to a time.Weekday. Codes are
// matched exactly, as they appear in RRULE values.
func WeekdayFromCode(code string) (time.Weekday, error) {
	wd, ok := weekdayByCode[code]
	if !ok {
		return 0, &WeekdayCodeError{Code: code}
	}
	return wd, nil
}

// WeekdayCode is the inverse of WeekdayFromCode.
func WeekdayCode(wd time.Weekday) string {
	if wd < time.Sunday || wd > time.Saturday {
		return ""
	}
	return codeByWeekday[wd]
}

// WeekdayIndex returns the numeric day-of-week, Sunday = 0.
func WeekdayIndex(wd time.Weekday) int {
	return int(wd)
}
