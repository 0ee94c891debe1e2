// Package repository implements Postgres persistence for the timeclock
// engine. Correctness under concurrent ingestion rests on two unique
// constraints owned here: the clock-event idempotency key and the partial
// open-shift index per (student, term). Losing writers surface as typed
// sentinel errors so services can re-read and retry instead of failing.
package repository

import (
	"errors"

	"github.com/lib/pq"
)

const (
	// ConstraintEventIdempotencyKey backs at-most-one-stored-event-per-key.
	ConstraintEventIdempotencyKey = "uq_clock_events_idempotency_key"
	// ConstraintOpenShift backs at-most-one-open-shift-per-student-term:
	// UNIQUE (student_id, term_id) WHERE actual_end IS NULL.
	ConstraintOpenShift = "uq_shifts_open_per_student_term"
)

// Sentinel errors raised when an insert loses a uniqueness race.
var (
	ErrIdempotencyConflict = errors.New("clock event idempotency key already stored")
	ErrOpenShiftExists     = errors.New("open shift already exists for student and term")
)

const uniqueViolationCode = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolationCode {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
