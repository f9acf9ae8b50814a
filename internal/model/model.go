package model

import "time"

// Occurrence represents a single concrete instance of a schedule
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string // configured source ID, empty for ad-hoc parses

	// InstanceKey uniquely identifies the occurrence within its source,
	// derived from the display-local start time.
	InstanceKey string

	// Start / End are in the configured display timezone. End equals
	// Start for schedules without DTEND.
	Start time.Time
	End   time.Time
}
