package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerdesk/timeclock-api/internal/civil"
	"github.com/makerdesk/timeclock-api/internal/models"
)

func mondaySchedule(t *testing.T, ranges ...string) *models.WeeklySchedule {
	t.Helper()
	parsed := make([]models.TimeRange, 0, len(ranges))
	for _, raw := range ranges {
		r, err := models.ParseTimeRange(raw)
		require.NoError(t, err)
		parsed = append(parsed, r)
	}
	return &models.WeeklySchedule{
		ID:        "sched-1",
		StudentID: "student-1",
		TermID:    "term-1",
		Days:      map[time.Weekday][]models.TimeRange{time.Monday: parsed},
	}
}

func TestComparatorClassifyAgainstSlotStart(t *testing.T) {
	comparator := NewComparatorService(civil.NewResolver(time.UTC), 10*time.Minute, time.Hour, nil, nil)
	schedule := mondaySchedule(t, "09:00-17:00")

	// 2024-01-15 is a Monday.
	cases := []struct {
		name      string
		clock     string
		want      models.Classification
		deviation int
	}{
		{"well before start", "08:49", models.ClassificationEarly, -11},
		{"inside leading window", "08:51", models.ClassificationOnTime, -9},
		{"exactly on start", "09:00", models.ClassificationOnTime, 0},
		{"at window edge", "09:10", models.ClassificationOnTime, 10},
		{"past window", "09:11", models.ClassificationLate, 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			at, err := time.Parse(time.RFC3339, "2024-01-15T"+tc.clock+":00Z")
			require.NoError(t, err)
			record := comparator.Classify(at, models.EventTypeIn, schedule)
			assert.Equal(t, tc.want, record.Classification)
			assert.Equal(t, tc.deviation, record.DeviationMinutes)
			assert.Equal(t, "09:00-17:00", record.MatchedSlot)
		})
	}
}

func TestComparatorClassifyClockOutUsesSlotEnd(t *testing.T) {
	comparator := NewComparatorService(civil.NewResolver(time.UTC), 10*time.Minute, time.Hour, nil, nil)
	schedule := mondaySchedule(t, "09:00-17:00")

	at := time.Date(2024, 1, 15, 17, 5, 0, 0, time.UTC)
	record := comparator.Classify(at, models.EventTypeOut, schedule)
	assert.Equal(t, models.ClassificationOnTime, record.Classification)
	assert.Equal(t, 5, record.DeviationMinutes)

	late := time.Date(2024, 1, 15, 17, 25, 0, 0, time.UTC)
	record = comparator.Classify(late, models.EventTypeOut, schedule)
	assert.Equal(t, models.ClassificationLate, record.Classification)
	assert.Equal(t, 25, record.DeviationMinutes)
}

func TestComparatorNotScheduled(t *testing.T) {
	comparator := NewComparatorService(civil.NewResolver(time.UTC), 10*time.Minute, time.Hour, nil, nil)
	schedule := mondaySchedule(t, "09:00-17:00")

	t.Run("nil schedule", func(t *testing.T) {
		record := comparator.Classify(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), models.EventTypeIn, nil)
		assert.Equal(t, models.ClassificationNotScheduled, record.Classification)
	})

	t.Run("weekday without slots", func(t *testing.T) {
		// 2024-01-14 is a Sunday.
		record := comparator.Classify(time.Date(2024, 1, 14, 9, 0, 0, 0, time.UTC), models.EventTypeIn, schedule)
		assert.Equal(t, models.ClassificationNotScheduled, record.Classification)
	})

	t.Run("outside extended window", func(t *testing.T) {
		record := comparator.Classify(time.Date(2024, 1, 15, 6, 30, 0, 0, time.UTC), models.EventTypeIn, schedule)
		assert.Equal(t, models.ClassificationNotScheduled, record.Classification)
		assert.Equal(t, -150, record.DeviationMinutes)
	})
}

func TestComparatorPicksNearestSlot(t *testing.T) {
	comparator := NewComparatorService(civil.NewResolver(time.UTC), 10*time.Minute, time.Hour, nil, nil)
	schedule := mondaySchedule(t, "09:00-12:00", "14:00-17:00")

	record := comparator.Classify(time.Date(2024, 1, 15, 13, 55, 0, 0, time.UTC), models.EventTypeIn, schedule)
	assert.Equal(t, models.ClassificationOnTime, record.Classification)
	assert.Equal(t, "14:00-17:00", record.MatchedSlot)
	assert.Equal(t, -5, record.DeviationMinutes)
}

func TestComparatorHonoursScheduleTimezone(t *testing.T) {
	comparator := NewComparatorService(civil.NewResolver(time.UTC), 10*time.Minute, time.Hour, nil, nil)
	schedule := mondaySchedule(t, "09:00-17:00")
	schedule.Timezone = "America/Los_Angeles"

	// 17:02 UTC on Monday is 09:02 in Los Angeles during standard time.
	record := comparator.Classify(time.Date(2024, 1, 15, 17, 2, 0, 0, time.UTC), models.EventTypeIn, schedule)
	assert.Equal(t, models.ClassificationOnTime, record.Classification)
	assert.Equal(t, 2, record.DeviationMinutes)
}
