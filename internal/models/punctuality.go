package models

// Classification buckets an event against the declared schedule.
type Classification string

const (
	ClassificationEarly        Classification = "EARLY"
	ClassificationOnTime       Classification = "ON_TIME"
	ClassificationLate         Classification = "LATE"
	ClassificationNotScheduled Classification = "NOT_SCHEDULED"
)

// Valid reports whether the classification is a supported value.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationEarly, ClassificationOnTime, ClassificationLate, ClassificationNotScheduled:
		return true
	}
	return false
}

// PunctualityRecord is the derived comparison of one clock event against
// the student's weekly schedule. It is computed on demand and never
// persisted.
type PunctualityRecord struct {
	Classification   Classification `json:"classification"`
	DeviationMinutes int            `json:"deviation_minutes"`
	MatchedSlot      string         `json:"matched_slot,omitempty"`
}
