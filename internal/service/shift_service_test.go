package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerdesk/timeclock-api/internal/civil"
	"github.com/makerdesk/timeclock-api/internal/models"
	"github.com/makerdesk/timeclock-api/internal/repository"
)

type fakeShiftRepo struct {
	byID        map[string]*models.Shift
	insertErrs  []error
	closeErrs   map[string]error
	reviewNotes map[string]string
	stale       []models.Shift
	nextID      int
}

func newFakeShiftRepo() *fakeShiftRepo {
	return &fakeShiftRepo{
		byID:        make(map[string]*models.Shift),
		closeErrs:   make(map[string]error),
		reviewNotes: make(map[string]string),
	}
}

func (f *fakeShiftRepo) addOpen(id, studentID, termID string, start time.Time) *models.Shift {
	shift := &models.Shift{
		ID:          id,
		StudentID:   studentID,
		TermID:      termID,
		ActualStart: start,
		DayKey:      start.UTC().Format(civil.DayKeyLayout),
		Source:      models.ShiftSourceManual,
	}
	f.byID[id] = shift
	return shift
}

func (f *fakeShiftRepo) InsertOpen(ctx context.Context, shift *models.Shift) (*models.Shift, error) {
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	for _, existing := range f.byID {
		if existing.StudentID == shift.StudentID && existing.TermID == shift.TermID && existing.Open() {
			return nil, repository.ErrOpenShiftExists
		}
	}
	f.nextID++
	stored := *shift
	stored.ID = fmt.Sprintf("shift-%d", f.nextID)
	f.byID[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeShiftRepo) FindOpen(ctx context.Context, studentID, termID string) (*models.Shift, error) {
	for _, shift := range f.byID {
		if shift.StudentID == studentID && shift.TermID == termID && shift.Open() {
			copied := *shift
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeShiftRepo) FindByID(ctx context.Context, id string) (*models.Shift, error) {
	shift, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *shift
	return &copied, nil
}

func (f *fakeShiftRepo) Close(ctx context.Context, shiftID string, end time.Time, source models.ShiftSource, needsReview bool) (*models.Shift, error) {
	if err, ok := f.closeErrs[shiftID]; ok {
		return nil, err
	}
	shift, ok := f.byID[shiftID]
	if !ok || !shift.Open() {
		return nil, nil
	}
	endCopy := end
	shift.ActualEnd = &endCopy
	shift.Source = source
	shift.NeedsReview = shift.NeedsReview || needsReview
	copied := *shift
	return &copied, nil
}

func (f *fakeShiftRepo) MarkNeedsReview(ctx context.Context, shiftID, note string) error {
	if shift, ok := f.byID[shiftID]; ok {
		shift.NeedsReview = true
	}
	f.reviewNotes[shiftID] = note
	return nil
}

func (f *fakeShiftRepo) ListStaleOpen(ctx context.Context, cutoff time.Time) ([]models.Shift, error) {
	return f.stale, nil
}

func (f *fakeShiftRepo) ListForWindow(ctx context.Context, studentID, termID string, from, to time.Time) ([]models.Shift, error) {
	var out []models.Shift
	for _, shift := range f.byID {
		if shift.StudentID == studentID && shift.TermID == termID &&
			!shift.ActualStart.Before(from) && shift.ActualStart.Before(to) {
			out = append(out, *shift)
		}
	}
	return out, nil
}

type fakeEventRepo struct {
	byKey      map[string]*models.ClockEvent
	insertErrs []error
	raceWinner *models.ClockEvent
	attached   map[string]string
	flagged    map[string]bool
	nextID     int
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		byKey:    make(map[string]*models.ClockEvent),
		attached: make(map[string]string),
		flagged:  make(map[string]bool),
	}
}

func (f *fakeEventRepo) Insert(ctx context.Context, event *models.ClockEvent) (*models.ClockEvent, error) {
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		if err != nil {
			// A queued conflict simulates a concurrent writer landing the
			// same key between the lookup and the insert.
			if errors.Is(err, repository.ErrIdempotencyConflict) && f.raceWinner != nil {
				winner := *f.raceWinner
				f.byKey[winner.IdempotencyKey] = &winner
			}
			return nil, err
		}
	}
	if _, ok := f.byKey[event.IdempotencyKey]; ok {
		return nil, repository.ErrIdempotencyConflict
	}
	f.nextID++
	stored := *event
	stored.ID = fmt.Sprintf("event-%d", f.nextID)
	f.byKey[stored.IdempotencyKey] = &stored
	return &stored, nil
}

func (f *fakeEventRepo) FindByIdempotencyKey(ctx context.Context, key string) (*models.ClockEvent, error) {
	event, ok := f.byKey[key]
	if !ok {
		return nil, nil
	}
	copied := *event
	return &copied, nil
}

func (f *fakeEventRepo) ListForWindow(ctx context.Context, studentID, termID string, from, to time.Time) ([]models.ClockEvent, error) {
	var out []models.ClockEvent
	for _, event := range f.byKey {
		if event.StudentID == studentID && event.TermID == termID &&
			!event.EventTime.Before(from) && event.EventTime.Before(to) {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) AttachShift(ctx context.Context, eventID, shiftID string) error {
	f.attached[eventID] = shiftID
	for _, event := range f.byKey {
		if event.ID == eventID {
			event.ShiftID.String = shiftID
			event.ShiftID.Valid = true
		}
	}
	return nil
}

func (f *fakeEventRepo) FlagNeedsReview(ctx context.Context, eventID string) error {
	f.flagged[eventID] = true
	for _, event := range f.byKey {
		if event.ID == eventID {
			event.NeedsReview = true
		}
	}
	return nil
}

func newShiftService(shifts *fakeShiftRepo, events *fakeEventRepo) *ShiftService {
	return NewShiftService(shifts, events, civil.NewResolver(time.UTC), 12*time.Hour, true, nil, nil)
}

func TestApplyClockInOpensShift(t *testing.T) {
	shifts := newFakeShiftRepo()
	events := newFakeEventRepo()
	svc := newShiftService(shifts, events)

	event := &models.ClockEvent{
		ID:        "event-in",
		StudentID: "student-1",
		TermID:    "term-1",
		Type:      models.EventTypeIn,
		EventTime: time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC),
	}
	result, err := svc.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, result.Shift)
	assert.False(t, result.NeedsReview)
	assert.True(t, result.Shift.Open())
	assert.Equal(t, "2024-01-15", result.Shift.DayKey)
	assert.Equal(t, result.Shift.ID, events.attached["event-in"])
}

func TestApplyClockInWhileShiftOpenFlagsBoth(t *testing.T) {
	shifts := newFakeShiftRepo()
	events := newFakeEventRepo()
	shifts.addOpen("shift-open", "student-1", "term-1", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	svc := newShiftService(shifts, events)

	event := &models.ClockEvent{
		ID:        "event-dup",
		StudentID: "student-1",
		TermID:    "term-1",
		Type:      models.EventTypeIn,
		EventTime: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	result, err := svc.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, result.NeedsReview)
	assert.Equal(t, "shift-open", result.Shift.ID)
	assert.True(t, shifts.byID["shift-open"].NeedsReview)
	assert.NotEmpty(t, shifts.reviewNotes["shift-open"])
	assert.True(t, events.flagged["event-dup"])
	assert.Equal(t, "shift-open", events.attached["event-dup"])
}

func TestApplyClockInRetriesLostRace(t *testing.T) {
	shifts := newFakeShiftRepo()
	events := newFakeEventRepo()
	svc := newShiftService(shifts, events)

	// First insert loses to a concurrent writer; the winner's shift shows
	// up on the re-read.
	shifts.insertErrs = []error{repository.ErrOpenShiftExists}
	shifts.addOpen("shift-winner", "student-1", "term-1", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	event := &models.ClockEvent{
		ID:        "event-loser",
		StudentID: "student-1",
		TermID:    "term-1",
		Type:      models.EventTypeIn,
		EventTime: time.Date(2024, 1, 15, 9, 0, 1, 0, time.UTC),
	}
	// The open winner is visible on the first FindOpen already, so the
	// loser resolves through the double clock-in path without erroring.
	result, err := svc.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, result.NeedsReview)
	assert.Equal(t, "shift-winner", result.Shift.ID)
}

func TestApplyClockOutClosesShift(t *testing.T) {
	shifts := newFakeShiftRepo()
	events := newFakeEventRepo()
	shifts.addOpen("shift-1", "student-1", "term-1", time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC))
	svc := newShiftService(shifts, events)

	event := &models.ClockEvent{
		ID:        "event-out",
		StudentID: "student-1",
		TermID:    "term-1",
		Type:      models.EventTypeOut,
		EventTime: time.Date(2024, 1, 15, 17, 20, 0, 0, time.UTC),
	}
	result, err := svc.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, result.Shift)
	assert.False(t, result.NeedsReview)
	require.NotNil(t, result.Shift.ActualEnd)
	assert.Equal(t, event.EventTime, *result.Shift.ActualEnd)
	assert.Equal(t, models.ShiftSourceManual, result.Shift.Source)
	assert.Equal(t, "shift-1", events.attached["event-out"])
}

func TestApplyClockOutWithoutOpenShift(t *testing.T) {
	shifts := newFakeShiftRepo()
	events := newFakeEventRepo()
	svc := newShiftService(shifts, events)

	event := &models.ClockEvent{
		ID:        "event-orphan",
		StudentID: "student-1",
		TermID:    "term-1",
		Type:      models.EventTypeOut,
		EventTime: time.Date(2024, 1, 15, 17, 0, 0, 0, time.UTC),
	}
	result, err := svc.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, result.NeedsReview)
	assert.Nil(t, result.Shift)
	assert.True(t, events.flagged["event-orphan"])
}

func TestApplyClockOutBeforeShiftStart(t *testing.T) {
	shifts := newFakeShiftRepo()
	events := newFakeEventRepo()
	shifts.addOpen("shift-1", "student-1", "term-1", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	svc := newShiftService(shifts, events)

	event := &models.ClockEvent{
		ID:        "event-early-out",
		StudentID: "student-1",
		TermID:    "term-1",
		Type:      models.EventTypeOut,
		EventTime: time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC),
	}
	result, err := svc.ApplyEvent(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, result.NeedsReview)
	require.NotNil(t, result.Shift)
	assert.True(t, result.Shift.NeedsReview)
	assert.True(t, events.flagged["event-early-out"])
}

func TestSweepStaleOpenShifts(t *testing.T) {
	shifts := newFakeShiftRepo()
	events := newFakeEventRepo()
	svc := newShiftService(shifts, events)

	good := shifts.addOpen("shift-good", "student-1", "term-1", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	bad := shifts.addOpen("shift-bad", "student-2", "term-1", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	shifts.stale = []models.Shift{*good, *bad}
	shifts.closeErrs["shift-bad"] = fmt.Errorf("store unavailable")

	cutoff := time.Date(2024, 1, 16, 4, 0, 0, 0, time.UTC)
	result, err := svc.SweepStaleOpenShifts(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Examined)
	assert.Equal(t, 1, result.Closed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "shift-bad", result.Failures[0].ShiftID)

	// The good shift closes at start plus max duration, which comes before
	// the civil day boundary here.
	closed := shifts.byID["shift-good"]
	require.NotNil(t, closed.ActualEnd)
	assert.Equal(t, time.Date(2024, 1, 15, 21, 0, 0, 0, time.UTC), *closed.ActualEnd)
	assert.Equal(t, models.ShiftSourceSystem, closed.Source)
	assert.True(t, closed.NeedsReview)

	synthetic, err := events.FindByIdempotencyKey(context.Background(), "auto-clock-out:shift-good")
	require.NoError(t, err)
	require.NotNil(t, synthetic)
	assert.True(t, synthetic.IsAutoClockOut)
	assert.True(t, synthetic.NeedsReview)
	assert.Equal(t, models.EventTypeOut, synthetic.Type)
}

func TestSweepLeavesFreshShiftsOpen(t *testing.T) {
	shifts := newFakeShiftRepo()
	events := newFakeEventRepo()
	svc := newShiftService(shifts, events)

	fresh := shifts.addOpen("shift-fresh", "student-1", "term-1", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	old := shifts.addOpen("shift-old", "student-2", "term-1", time.Date(2024, 1, 14, 9, 0, 0, 0, time.UTC))
	shifts.stale = []models.Shift{*fresh, *old}

	// Sweeping minutes after a clock-in must leave that shift alone; its
	// day boundary and maximum duration are both still ahead. Only the
	// shift left open since the previous day closes.
	cutoff := time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)
	result, err := svc.SweepStaleOpenShifts(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, 1, result.Closed)
	assert.Empty(t, result.Failures)

	assert.True(t, shifts.byID["shift-fresh"].Open())
	_, hasSynthetic := events.byKey["auto-clock-out:shift-fresh"]
	assert.False(t, hasSynthetic)

	closed := shifts.byID["shift-old"]
	require.NotNil(t, closed.ActualEnd)
	assert.Equal(t, time.Date(2024, 1, 14, 21, 0, 0, 0, time.UTC), *closed.ActualEnd)
}

func TestSweepIsIdempotent(t *testing.T) {
	shifts := newFakeShiftRepo()
	events := newFakeEventRepo()
	svc := newShiftService(shifts, events)

	shift := shifts.addOpen("shift-1", "student-1", "term-1", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	shifts.stale = []models.Shift{*shift}

	cutoff := time.Date(2024, 1, 16, 4, 0, 0, 0, time.UTC)
	_, err := svc.SweepStaleOpenShifts(context.Background(), cutoff)
	require.NoError(t, err)

	// Re-running over the same (now closed but still listed) shift must
	// not insert a second synthetic event or fail.
	result, err := svc.SweepStaleOpenShifts(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Empty(t, result.Failures)
	assert.Len(t, events.byKey, 1)
}