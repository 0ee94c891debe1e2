package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/makerdesk/timeclock-api/internal/models"
)

const clockEventColumns = `id, student_id, term_id, shift_id, type, event_time, received_at, day_key, is_manual, is_auto_clock_out, needs_review, idempotency_key, created_at`

// ClockEventRepository handles persistence for immutable clock events.
type ClockEventRepository struct {
	db *sqlx.DB
}

// NewClockEventRepository constructs the repository.
func NewClockEventRepository(db *sqlx.DB) *ClockEventRepository {
	return &ClockEventRepository{db: db}
}

// Insert stores a new clock event. A losing writer on the idempotency key
// unique index receives ErrIdempotencyConflict and should return the
// winner's record instead.
func (r *ClockEventRepository) Insert(ctx context.Context, event *models.ClockEvent) (*models.ClockEvent, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`INSERT INTO clock_events (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING %s`, clockEventColumns, clockEventColumns)

	var stored models.ClockEvent
	err := r.db.GetContext(ctx, &stored, query,
		event.ID, event.StudentID, event.TermID, event.ShiftID, event.Type,
		event.EventTime, event.ReceivedAt, event.DayKey, event.IsManual,
		event.IsAutoClockOut, event.NeedsReview, event.IdempotencyKey, event.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, ConstraintEventIdempotencyKey) {
			return nil, ErrIdempotencyConflict
		}
		return nil, fmt.Errorf("insert clock event: %w", err)
	}
	return &stored, nil
}

// FindByIdempotencyKey returns the stored event for a key, or nil when no
// event has claimed it yet.
func (r *ClockEventRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.ClockEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM clock_events WHERE idempotency_key = $1`, clockEventColumns)
	var event models.ClockEvent
	if err := r.db.GetContext(ctx, &event, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find clock event by idempotency key: %w", err)
	}
	return &event, nil
}

// FindByID loads a single event.
func (r *ClockEventRepository) FindByID(ctx context.Context, id string) (*models.ClockEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM clock_events WHERE id = $1`, clockEventColumns)
	var event models.ClockEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find clock event: %w", err)
	}
	return &event, nil
}

// AttachShift links a stored event to the shift it was applied against.
func (r *ClockEventRepository) AttachShift(ctx context.Context, eventID, shiftID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE clock_events SET shift_id = $2 WHERE id = $1`, eventID, shiftID)
	if err != nil {
		return fmt.Errorf("attach shift to clock event: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("attach shift to clock event: event %s not found", eventID)
	}
	return nil
}

// FlagNeedsReview marks an event as requiring human follow-up. This is the
// one post-insert change allowed on an event.
func (r *ClockEventRepository) FlagNeedsReview(ctx context.Context, eventID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE clock_events SET needs_review = TRUE WHERE id = $1`, eventID); err != nil {
		return fmt.Errorf("flag clock event for review: %w", err)
	}
	return nil
}

// ListForWindow returns a student's events inside [from, to) for one term,
// ordered by event time then idempotency key so recomputation over the
// same inputs is deterministic.
func (r *ClockEventRepository) ListForWindow(ctx context.Context, studentID, termID string, from, to time.Time) ([]models.ClockEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM clock_events
WHERE student_id = $1 AND term_id = $2 AND event_time >= $3 AND event_time < $4
ORDER BY event_time ASC, idempotency_key ASC`, clockEventColumns)
	var events []models.ClockEvent
	if err := r.db.SelectContext(ctx, &events, query, studentID, termID, from, to); err != nil {
		return nil, fmt.Errorf("list clock events: %w", err)
	}
	return events, nil
}
