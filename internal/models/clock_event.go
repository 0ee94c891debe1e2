package models

import (
	"database/sql"
	"time"
)

// EventType distinguishes clock-in from clock-out events.
type EventType string

const (
	EventTypeIn  EventType = "IN"
	EventTypeOut EventType = "OUT"
)

// Valid reports whether the event type is supported.
func (t EventType) Valid() bool {
	return t == EventTypeIn || t == EventTypeOut
}

// ClockEvent is an immutable record of a single swipe or manual clock
// action. Corrections are modelled as new events or administrative
// overrides, never as mutations of a stored event; the needs_review flag
// is the one field stamped after the fact when the shift lifecycle cannot
// apply the event cleanly.
type ClockEvent struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	TermID         string         `db:"term_id" json:"term_id"`
	ShiftID        sql.NullString `db:"shift_id" json:"shift_id,omitempty"`
	Type           EventType      `db:"type" json:"type"`
	EventTime      time.Time      `db:"event_time" json:"event_time"`
	ReceivedAt     time.Time      `db:"received_at" json:"received_at"`
	DayKey         string         `db:"day_key" json:"day_key"`
	IsManual       bool           `db:"is_manual" json:"is_manual"`
	IsAutoClockOut bool           `db:"is_auto_clock_out" json:"is_auto_clock_out"`
	NeedsReview    bool           `db:"needs_review" json:"needs_review"`
	IdempotencyKey string         `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}
