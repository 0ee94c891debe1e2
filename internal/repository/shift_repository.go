package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/makerdesk/timeclock-api/internal/models"
)

const shiftColumns = `id, student_id, term_id, actual_start, actual_end, schedule_slot, day_key, needs_review, source, metadata, created_at, updated_at`

// ShiftRepository handles persistence for derived shift aggregates.
type ShiftRepository struct {
	db *sqlx.DB
}

// NewShiftRepository constructs the repository.
func NewShiftRepository(db *sqlx.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// InsertOpen creates a new open shift. A losing writer on the partial
// unique index receives ErrOpenShiftExists and should re-read current
// state rather than treat it as fatal.
func (r *ShiftRepository) InsertOpen(ctx context.Context, shift *models.Shift) (*models.Shift, error) {
	now := time.Now().UTC()
	if shift.ID == "" {
		shift.ID = uuid.NewString()
	}
	if shift.CreatedAt.IsZero() {
		shift.CreatedAt = now
	}
	shift.UpdatedAt = now
	if len(shift.Metadata) == 0 {
		shift.Metadata = types.JSONText(`{}`)
	}
	query := fmt.Sprintf(`INSERT INTO shifts (id, student_id, term_id, actual_start, schedule_slot, day_key, needs_review, source, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING %s`, shiftColumns)

	var stored models.Shift
	err := r.db.GetContext(ctx, &stored, query,
		shift.ID, shift.StudentID, shift.TermID, shift.ActualStart, shift.ScheduleSlot,
		shift.DayKey, shift.NeedsReview, shift.Source, shift.Metadata, shift.CreatedAt, shift.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, ConstraintOpenShift) {
			return nil, ErrOpenShiftExists
		}
		return nil, fmt.Errorf("insert open shift: %w", err)
	}
	return &stored, nil
}

// FindOpen returns the single open shift for a (student, term) pair, or
// nil when the pair is in the closed state.
func (r *ShiftRepository) FindOpen(ctx context.Context, studentID, termID string) (*models.Shift, error) {
	query := fmt.Sprintf(`SELECT %s FROM shifts WHERE student_id = $1 AND term_id = $2 AND actual_end IS NULL`, shiftColumns)
	var shift models.Shift
	if err := r.db.GetContext(ctx, &shift, query, studentID, termID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open shift: %w", err)
	}
	return &shift, nil
}

// FindByID loads a single shift.
func (r *ShiftRepository) FindByID(ctx context.Context, id string) (*models.Shift, error) {
	query := fmt.Sprintf(`SELECT %s FROM shifts WHERE id = $1`, shiftColumns)
	var shift models.Shift
	if err := r.db.GetContext(ctx, &shift, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find shift: %w", err)
	}
	return &shift, nil
}

// Close sets the end time on a still-open shift. A nil result without an
// error means the shift was already closed by a concurrent writer; callers
// re-read and decide.
func (r *ShiftRepository) Close(ctx context.Context, shiftID string, end time.Time, source models.ShiftSource, needsReview bool) (*models.Shift, error) {
	query := fmt.Sprintf(`UPDATE shifts
SET actual_end = $2, source = $3, needs_review = needs_review OR $4, updated_at = $5
WHERE id = $1 AND actual_end IS NULL
RETURNING %s`, shiftColumns)
	var shift models.Shift
	err := r.db.GetContext(ctx, &shift, query, shiftID, end, source, needsReview, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("close shift: %w", err)
	}
	return &shift, nil
}

// MarkNeedsReview flags a shift and merges a note into its metadata.
func (r *ShiftRepository) MarkNeedsReview(ctx context.Context, shiftID, note string) error {
	payload, err := json.Marshal(map[string]string{"review_note": note})
	if err != nil {
		return fmt.Errorf("encode review note: %w", err)
	}
	query := `UPDATE shifts
SET needs_review = TRUE, metadata = metadata || $2::jsonb, updated_at = $3
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, shiftID, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark shift for review: %w", err)
	}
	return nil
}

// ListForWindow returns a student's shifts starting inside [from, to) for
// one term in deterministic order.
func (r *ShiftRepository) ListForWindow(ctx context.Context, studentID, termID string, from, to time.Time) ([]models.Shift, error) {
	query := fmt.Sprintf(`SELECT %s FROM shifts
WHERE student_id = $1 AND term_id = $2 AND actual_start >= $3 AND actual_start < $4
ORDER BY actual_start ASC, id ASC`, shiftColumns)
	var shifts []models.Shift
	if err := r.db.SelectContext(ctx, &shifts, query, studentID, termID, from, to); err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	return shifts, nil
}

// ListStaleOpen returns all open shifts that started before the cutoff,
// across every student and term. This is a coarse prefilter for the auto
// clock-out sweep; the service decides staleness against each shift's
// day boundary and maximum duration.
func (r *ShiftRepository) ListStaleOpen(ctx context.Context, cutoff time.Time) ([]models.Shift, error) {
	query := fmt.Sprintf(`SELECT %s FROM shifts
WHERE actual_end IS NULL AND actual_start < $1
ORDER BY actual_start ASC, id ASC`, shiftColumns)
	var shifts []models.Shift
	if err := r.db.SelectContext(ctx, &shifts, query, cutoff); err != nil {
		return nil, fmt.Errorf("list stale open shifts: %w", err)
	}
	return shifts, nil
}
