// Package types holds the winter road domain model shared by the
// repository, service, controller and Home Assistant layers.
package types

import "time"

// SaltingStatus buckets a road segment by time since it was last salted.
type SaltingStatus string

const (
	StatusSaltingNow    SaltingStatus = "salting_now"
	StatusLessThan12h   SaltingStatus = "less_than_12h"
	StatusBetween12h48h SaltingStatus = "between_12h_48h"
	StatusMoreThan48h   SaltingStatus = "more_than_48h"
	StatusUnknown       SaltingStatus = "unknown"
)

// StatusesBySeverity orders statuses most urgent first.
var StatusesBySeverity = []SaltingStatus{
	StatusSaltingNow,
	StatusLessThan12h,
	StatusBetween12h48h,
	StatusMoreThan48h,
	StatusUnknown,
}

// DefaultIcon is used when no status-specific icon applies.
const DefaultIcon = "mdi:snowflake-variant"

var statusLabels = map[SaltingStatus]string{
	StatusSaltingNow:    "Salting Now",
	StatusLessThan12h:   "Salted < 12h ago",
	StatusBetween12h48h: "Salted 12-48h ago",
	StatusMoreThan48h:   "Salted > 48h ago",
	StatusUnknown:       "Unknown",
}

var statusIcons = map[SaltingStatus]string{
	StatusSaltingNow:    "mdi:snowflake-alert",
	StatusLessThan12h:   "mdi:snowflake-check",
	StatusBetween12h48h: "mdi:snowflake",
	StatusMoreThan48h:   "mdi:snowflake-off",
	StatusUnknown:       "mdi:help-circle-outline",
}

func (s SaltingStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human readable form of the status, e.g. "Salted < 12h
// ago". Unrecognized statuses read as "Unknown".
func (s SaltingStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return statusLabels[StatusUnknown]
}

func (s SaltingStatus) Icon() string {
	if icon, ok := statusIcons[s]; ok {
		return icon
	}
	return DefaultIcon
}

// Road classes displayed by the upstream map. Segments with other classes
// are filtered out.
var validRoadClasses = map[int]struct{}{
	11: {}, 21: {}, 22: {}, 23: {}, 24: {},
	31: {}, 32: {}, 33: {}, 34: {},
}

func ValidRoadClass(class int) bool {
	_, ok := validRoadClasses[class]
	return ok
}

// Classify buckets a record by time since last salting. SaltingNow wins over
// everything, a non-positive epoch means the salting time is unknown, and
// future timestamps are treated as stale.
func Classify(saltedEpoch int64, saltingNow bool, now time.Time) SaltingStatus {
	if saltingNow {
		return StatusSaltingNow
	}
	if saltedEpoch <= 0 {
		return StatusUnknown
	}
	age := now.Sub(time.Unix(saltedEpoch, 0))
	switch {
	case age < 0:
		return StatusMoreThan48h
	case age < 12*time.Hour:
		return StatusLessThan12h
	case age < 48*time.Hour:
		return StatusBetween12h48h
	default:
		return StatusMoreThan48h
	}
}

// RoadSegment is one monitored road with its current salting status.
type RoadSegment struct {
	FeatureID    string        `json:"featureId"`
	RoadClass    int           `json:"roadClass"`
	SaltedAt     *time.Time    `json:"saltedAt"`
	SaltingNow   bool          `json:"saltingNow"`
	Condition    int           `json:"condition"`
	ServiceLevel int           `json:"serviceLevel"`
	Status       SaltingStatus `json:"status"`
}

// Summary aggregates the segments around a location. The per-status counts
// always sum to TotalRoads.
type Summary struct {
	OverallStatus SaltingStatus `json:"overallStatus"`
	TotalRoads    int           `json:"totalRoads"`
	SaltingNow    int           `json:"saltingNow"`
	LessThan12h   int           `json:"lessThan12h"`
	Between12h48h int           `json:"between12h48h"`
	MoreThan48h   int           `json:"moreThan48h"`
	Unknown       int           `json:"unknown"`
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	FetchedAt     time.Time     `json:"fetchedAt"`
}

func (s Summary) Count(status SaltingStatus) int {
	switch status {
	case StatusSaltingNow:
		return s.SaltingNow
	case StatusLessThan12h:
		return s.LessThan12h
	case StatusBetween12h48h:
		return s.Between12h48h
	case StatusMoreThan48h:
		return s.MoreThan48h
	case StatusUnknown:
		return s.Unknown
	default:
		return 0
	}
}

// Summarize counts segments per status and derives the overall status: the
// most urgent status with at least one road, or unknown when no segment has
// a known salting time.
func Summarize(segments []RoadSegment) Summary {
	var sum Summary
	sum.TotalRoads = len(segments)
	for _, seg := range segments {
		switch seg.Status {
		case StatusSaltingNow:
			sum.SaltingNow++
		case StatusLessThan12h:
			sum.LessThan12h++
		case StatusBetween12h48h:
			sum.Between12h48h++
		case StatusMoreThan48h:
			sum.MoreThan48h++
		default:
			sum.Unknown++
		}
	}
	for _, status := range []SaltingStatus{StatusSaltingNow, StatusLessThan12h, StatusBetween12h48h, StatusMoreThan48h} {
		if sum.Count(status) > 0 {
			sum.OverallStatus = status
			return sum
		}
	}
	sum.OverallStatus = StatusUnknown
	return sum
}
