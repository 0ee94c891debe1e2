package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeRange is a single declared slot for one weekday, parsed from the
// "HH:MM-HH:MM" wire format. Start and End are minutes after local midnight.
type TimeRange struct {
	Raw   string `json:"raw"`
	Start int    `json:"start_minute"`
	End   int    `json:"end_minute"`
}

// Minutes returns the declared length of the range.
func (r TimeRange) Minutes() int {
	return r.End - r.Start
}

// ParseTimeRange parses "HH:MM-HH:MM" into a TimeRange. The end must be
// strictly after the start; overnight ranges are not supported.
func ParseTimeRange(raw string) (TimeRange, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return TimeRange{}, fmt.Errorf("parse time range %q: expected HH:MM-HH:MM", raw)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return TimeRange{}, fmt.Errorf("parse time range %q: %w", raw, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return TimeRange{}, fmt.Errorf("parse time range %q: %w", raw, err)
	}
	if end <= start {
		return TimeRange{}, fmt.Errorf("parse time range %q: end must be after start", raw)
	}
	return TimeRange{Raw: strings.TrimSpace(raw), Start: start, End: end}, nil
}

func parseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock value %q out of range", value)
	}
	return hour*60 + minute, nil
}

// WeeklySchedule is the declared availability for one student in one term:
// a mapping from weekday to an ordered list of time ranges. At most one
// schedule exists per (student, term) pair.
type WeeklySchedule struct {
	ID        string                        `db:"id" json:"id"`
	StudentID string                        `db:"student_id" json:"student_id"`
	TermID    string                        `db:"term_id" json:"term_id"`
	Timezone  string                        `db:"timezone" json:"timezone"`
	Days      map[time.Weekday][]TimeRange  `db:"-" json:"days"`
	CreatedAt time.Time                     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time                     `db:"updated_at" json:"updated_at"`
}

// RangesFor returns the declared ranges for a weekday in start order.
func (s *WeeklySchedule) RangesFor(day time.Weekday) []TimeRange {
	if s == nil || s.Days == nil {
		return nil
	}
	return s.Days[day]
}

// WeeklyScheduleSlot is the persisted row backing one entry of a
// WeeklySchedule's weekday map.
type WeeklyScheduleSlot struct {
	ID         string `db:"id" json:"id"`
	ScheduleID string `db:"schedule_id" json:"schedule_id"`
	Weekday    int    `db:"weekday" json:"weekday"`
	TimeRange  string `db:"time_range" json:"time_range"`
	Position   int    `db:"position" json:"position"`
}
