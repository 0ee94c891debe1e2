package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ShiftSource tells whether a shift boundary was set by a human action or
// by the auto clock-out sweep.
type ShiftSource string

const (
	ShiftSourceManual ShiftSource = "MANUAL"
	ShiftSourceSystem ShiftSource = "SYSTEM"
)

// Shift is the derived aggregate built from clock events. A shift with a
// null actual_end is open; the data layer enforces at most one open shift
// per (student, term) through a partial unique index.
type Shift struct {
	ID           string         `db:"id" json:"id"`
	StudentID    string         `db:"student_id" json:"student_id"`
	TermID       string         `db:"term_id" json:"term_id"`
	ActualStart  time.Time      `db:"actual_start" json:"actual_start"`
	ActualEnd    *time.Time     `db:"actual_end" json:"actual_end,omitempty"`
	ScheduleSlot *string        `db:"schedule_slot" json:"schedule_slot,omitempty"`
	DayKey       string         `db:"day_key" json:"day_key"`
	NeedsReview  bool           `db:"needs_review" json:"needs_review"`
	Source       ShiftSource    `db:"source" json:"source"`
	Metadata     types.JSONText `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// Open reports whether the shift has not yet been closed.
func (s *Shift) Open() bool {
	return s != nil && s.ActualEnd == nil
}

// Duration returns the worked span. Open shifts are measured up to now.
func (s *Shift) Duration(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	end := now
	if s.ActualEnd != nil {
		end = *s.ActualEnd
	}
	if end.Before(s.ActualStart) {
		return 0
	}
	return end.Sub(s.ActualStart)
}
