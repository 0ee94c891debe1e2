package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerdesk/timeclock-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func clockEventRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "term_id", "shift_id", "type", "event_time", "received_at",
		"day_key", "is_manual", "is_auto_clock_out", "needs_review", "idempotency_key", "created_at",
	})
}

func TestClockEventRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClockEventRepository(db)

	eventTime := time.Date(2024, 1, 15, 17, 5, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO clock_events").
		WithArgs(sqlmock.AnyArg(), "student-1", "term-1", sqlmock.AnyArg(), models.EventTypeIn,
			eventTime, sqlmock.AnyArg(), "2024-01-15", false, false, false, "key-1", sqlmock.AnyArg()).
		WillReturnRows(clockEventRows().
			AddRow("event-1", "student-1", "term-1", nil, "IN", eventTime, eventTime,
				"2024-01-15", false, false, false, "key-1", eventTime))

	stored, err := repo.Insert(context.Background(), &models.ClockEvent{
		StudentID:      "student-1",
		TermID:         "term-1",
		Type:           models.EventTypeIn,
		EventTime:      eventTime,
		ReceivedAt:     eventTime,
		DayKey:         "2024-01-15",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "event-1", stored.ID)
	assert.Equal(t, "key-1", stored.IdempotencyKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClockEventRepositoryInsertIdempotencyConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClockEventRepository(db)

	mock.ExpectQuery("INSERT INTO clock_events").
		WillReturnError(&pq.Error{Code: "23505", Constraint: ConstraintEventIdempotencyKey})

	_, err := repo.Insert(context.Background(), &models.ClockEvent{
		StudentID:      "student-1",
		TermID:         "term-1",
		Type:           models.EventTypeIn,
		EventTime:      time.Now().UTC(),
		IdempotencyKey: "key-1",
	})
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClockEventRepositoryInsertOtherUniqueViolationIsNotConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClockEventRepository(db)

	mock.ExpectQuery("INSERT INTO clock_events").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "clock_events_pkey"})

	_, err := repo.Insert(context.Background(), &models.ClockEvent{IdempotencyKey: "key-1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIdempotencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClockEventRepositoryFindByIdempotencyKeyMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClockEventRepository(db)

	mock.ExpectQuery("SELECT .+ FROM clock_events WHERE idempotency_key").
		WithArgs("missing").
		WillReturnRows(clockEventRows())

	event, err := repo.FindByIdempotencyKey(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClockEventRepositoryListForWindow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClockEventRepository(db)

	from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	mock.ExpectQuery("SELECT .+ FROM clock_events").
		WithArgs("student-1", "term-1", from, to).
		WillReturnRows(clockEventRows().
			AddRow("event-1", "student-1", "term-1", "shift-1", "IN", from.Add(9*time.Hour), from.Add(9*time.Hour),
				"2024-01-15", false, false, false, "key-1", from).
			AddRow("event-2", "student-1", "term-1", "shift-1", "OUT", from.Add(17*time.Hour), from.Add(17*time.Hour),
				"2024-01-15", false, false, false, "key-2", from))

	events, err := repo.ListForWindow(context.Background(), "student-1", "term-1", from, to)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventTypeIn, events[0].Type)
	assert.Equal(t, "shift-1", events[1].ShiftID.String)
	assert.NoError(t, mock.ExpectationsWereMet())
}
