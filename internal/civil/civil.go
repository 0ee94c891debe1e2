// Package civil resolves instants to calendar days in a fixed reference
// timezone. All shift and analytics bucketing keys off these civil days,
// so the UTC offset is resolved per instant rather than assumed constant
// across daylight-saving transitions.
package civil

import (
	"fmt"
	"time"
)

// DayKeyLayout is the wire format for civil day labels.
const DayKeyLayout = "2006-01-02"

// Resolver converts instants into civil days for one reference location.
type Resolver struct {
	loc *time.Location
}

// NewResolver wraps an already-loaded location. A nil location falls back
// to UTC.
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

// LoadResolver builds a resolver from an IANA timezone identifier.
func LoadResolver(tzID string) (*Resolver, error) {
	loc, err := time.LoadLocation(tzID)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tzID, err)
	}
	return NewResolver(loc), nil
}

// Location exposes the reference location for callers that format times.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// DayKey returns the zero-padded YYYY-MM-DD label of the civil day
// containing the instant.
func (r *Resolver) DayKey(t time.Time) string {
	return t.In(r.loc).Format(DayKeyLayout)
}

// DayBoundaries returns the UTC instants bounding the civil day containing
// t as a half-open interval [start, end). Each midnight resolves its own
// UTC offset, so days spanning a DST transition are 23 or 25 hours long.
func (r *Resolver) DayBoundaries(t time.Time) (time.Time, time.Time) {
	local := t.In(r.loc)
	year, month, day := local.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, r.loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// EndOfDay returns the exclusive UTC end boundary of the civil day
// containing t.
func (r *Resolver) EndOfDay(t time.Time) time.Time {
	_, end := r.DayBoundaries(t)
	return end
}

// Weekday returns the civil weekday of the instant.
func (r *Resolver) Weekday(t time.Time) time.Weekday {
	return t.In(r.loc).Weekday()
}

// MinuteOfDay returns minutes elapsed since local midnight.
func (r *Resolver) MinuteOfDay(t time.Time) int {
	local := t.In(r.loc)
	return local.Hour()*60 + local.Minute()
}

// ParseDayKey converts a YYYY-MM-DD label back into the local midnight
// instant of that civil day.
func (r *Resolver) ParseDayKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(DayKeyLayout, key, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day key %q: %w", key, err)
	}
	return t, nil
}
