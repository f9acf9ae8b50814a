package schedule

import (
	"errors"
	"time"

	appLog "icalsched/internal/log"
	"icalsched/internal/model"
)

const (
	defaultMaxOccurrences = 5000
)

// ExpandConfig controls how a schedule is expanded into occurrences.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window. An occurrence
	// is included when its [start, end] span overlaps the window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrences caps a single expansion. If zero,
	// defaultMaxOccurrences is used.
	MaxOccurrences int
}

// ExpandResult wraps the list of expanded occurrences.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// Truncated is set when MaxOccurrences cut the list short.
	Truncated bool
}

// Expand lists the occurrences of s that overlap the configured range.
func Expand(sourceID string, s *Schedule, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	// Widen the lower bound so occurrences that started before the range
	// but are still running are found.
	starts := s.Between(cfg.RangeStart.Add(-s.duration), cfg.RangeEnd, true)

	result.Occurrences = make([]model.Occurrence, 0, len(starts))
	for _, start := range starts {
		end := start.Add(s.duration)
		if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		if len(result.Occurrences) == cfg.MaxOccurrences {
			result.Truncated = true
			break
		}
		result.Occurrences = append(result.Occurrences, makeOccurrence(sourceID, start, end, cfg.DisplayLocation))
	}

	if result.Truncated {
		appLog.Warn("expand: truncated occurrences due to cap",
			"source", sourceID,
			"cap", cfg.MaxOccurrences,
		)
	}
	return result, nil
}

// makeOccurrence normalizes one occurrence into displayLoc.
func makeOccurrence(sourceID string, start, end time.Time, displayLoc *time.Location) model.Occurrence {
	startLocal := start.In(displayLoc)
	return model.Occurrence{
		SourceID:    sourceID,
		InstanceKey: startLocal.Format(time.RFC3339Nano),
		Start:       startLocal,
		End:         end.In(displayLoc),
	}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
