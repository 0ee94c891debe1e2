package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/makerdesk/timeclock-api/internal/models"
)

// ScheduleRepository loads declared weekly availability. Schedules are
// read-only input to this service; administrative CRUD lives elsewhere.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// FindByStudentTerm returns the single declared schedule for the pair, or
// nil when none was declared. Slots are assembled into the weekday map in
// declared order; rows with bad range strings fail loudly rather than
// silently skewing punctuality.
func (r *ScheduleRepository) FindByStudentTerm(ctx context.Context, studentID, termID string) (*models.WeeklySchedule, error) {
	const scheduleQuery = `SELECT id, student_id, term_id, timezone, created_at, updated_at
FROM weekly_schedules WHERE student_id = $1 AND term_id = $2`
	var schedule models.WeeklySchedule
	if err := r.db.GetContext(ctx, &schedule, scheduleQuery, studentID, termID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find weekly schedule: %w", err)
	}

	const slotQuery = `SELECT id, schedule_id, weekday, time_range, position
FROM weekly_schedule_slots WHERE schedule_id = $1
ORDER BY weekday ASC, position ASC`
	var slots []models.WeeklyScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, slotQuery, schedule.ID); err != nil {
		return nil, fmt.Errorf("list schedule slots: %w", err)
	}

	schedule.Days = make(map[time.Weekday][]models.TimeRange, 5)
	for _, slot := range slots {
		tr, err := models.ParseTimeRange(slot.TimeRange)
		if err != nil {
			return nil, fmt.Errorf("schedule %s slot %s: %w", schedule.ID, slot.ID, err)
		}
		day := time.Weekday(slot.Weekday)
		schedule.Days[day] = append(schedule.Days[day], tr)
	}
	return &schedule, nil
}
