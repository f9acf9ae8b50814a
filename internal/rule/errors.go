package rule

import (
	"errors"
	"fmt"
)

// ErrEmptyRule is returned by Decode for an empty RRULE value.
var ErrEmptyRule = errors.New("empty ical rule")

// MalformedClauseError reports a clause without a NAME=VALUE shape.
type MalformedClauseError struct {
	Clause string
}

func (e *MalformedClauseError) Error() string {
	return fmt.Sprintf("invalid ical rule component %q", e.Clause)
}

// InvalidValueError reports a clause whose value could not be decoded.
type InvalidValueError struct {
	Name  string
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s value %q: %v", e.Name, e.Value, e.Err)
}

func (e *InvalidValueError) Unwrap() error {
	return e.Err
}

// UnknownFrequencyError is returned by Build when FREQ is missing or not
// one of the seven recognized keywords.
type UnknownFrequencyError struct {
	Keyword string
}

func (e *UnknownFrequencyError) Error() string {
	if e.Keyword == "" {
		return "rule has no FREQ"
	}
	return fmt.Sprintf("unknown rule frequency %q", e.Keyword)
}

// UnsupportedValidationError is returned by Build for clause names the
// decoder recorded without a constraint.
type UnsupportedValidationError struct {
	Names []string
}

func (e *UnsupportedValidationError) Error() string {
	return fmt.Sprintf("unsupported rule validations %v", e.Names)
}
