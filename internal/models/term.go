package models

import "time"

// Term models a named date range during which shifts are tracked.
// At most one term is active at a time; the active flag is maintained
// by administrative tooling outside this service.
type Term struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Contains reports whether the instant falls inside the term window.
// The end date is inclusive through its final moment.
func (t Term) Contains(at time.Time) bool {
	return !at.Before(t.StartDate) && !at.After(t.EndDate)
}

// TermDayOff declares a range of civil days excluded from expected hours,
// such as holidays or campus closures.
type TermDayOff struct {
	ID        string    `db:"id" json:"id"`
	TermID    string    `db:"term_id" json:"term_id"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	Reason    string    `db:"reason" json:"reason"`
}

// Covers reports whether the given civil date falls inside the day-off range.
func (d TermDayOff) Covers(date time.Time) bool {
	return !date.Before(d.StartDate) && !date.After(d.EndDate)
}
