package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/makerdesk/timeclock-api/internal/civil"
	"github.com/makerdesk/timeclock-api/internal/models"
	"github.com/makerdesk/timeclock-api/internal/repository"
)

// openShiftRetries bounds the compare-and-retry loop around the open-shift
// uniqueness constraint. Two rounds resolve any single race; the third is
// slack for a pathological store.
const openShiftRetries = 3

type shiftRepository interface {
	InsertOpen(ctx context.Context, shift *models.Shift) (*models.Shift, error)
	FindOpen(ctx context.Context, studentID, termID string) (*models.Shift, error)
	FindByID(ctx context.Context, id string) (*models.Shift, error)
	Close(ctx context.Context, shiftID string, end time.Time, source models.ShiftSource, needsReview bool) (*models.Shift, error)
	MarkNeedsReview(ctx context.Context, shiftID, note string) error
	ListStaleOpen(ctx context.Context, cutoff time.Time) ([]models.Shift, error)
}

type lifecycleEventRepository interface {
	Insert(ctx context.Context, event *models.ClockEvent) (*models.ClockEvent, error)
	AttachShift(ctx context.Context, eventID, shiftID string) error
	FlagNeedsReview(ctx context.Context, eventID string) error
}

// ShiftService is the shift lifecycle manager. It drives the per
// (student, term) state machine between Closed and Open, leaning on the
// store's partial unique index rather than in-process locks because
// multiple service instances may ingest concurrently.
type ShiftService struct {
	shifts            shiftRepository
	events            lifecycleEventRepository
	resolver          *civil.Resolver
	maxShiftDuration  time.Duration
	autoCloseAtDayEnd bool
	metrics           *MetricsService
	logger            *zap.Logger
	now               func() time.Time
}

// NewShiftService constructs the lifecycle manager.
func NewShiftService(shifts shiftRepository, events lifecycleEventRepository, resolver *civil.Resolver, maxShiftDuration time.Duration, autoCloseAtDayEnd bool, metrics *MetricsService, logger *zap.Logger) *ShiftService {
	if resolver == nil {
		resolver = civil.NewResolver(nil)
	}
	if maxShiftDuration <= 0 {
		maxShiftDuration = 12 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShiftService{
		shifts:            shifts,
		events:            events,
		resolver:          resolver,
		maxShiftDuration:  maxShiftDuration,
		autoCloseAtDayEnd: autoCloseAtDayEnd,
		metrics:           metrics,
		logger:            logger,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// ApplyResult reports how a stored event changed shift state.
type ApplyResult struct {
	Shift       *models.Shift
	NeedsReview bool
	// ReviewReason is set when NeedsReview is true.
	ReviewReason string
}

// ApplyEvent folds one stored clock event into shift state. It never
// fails on ambiguous transitions; those are flagged for review on both
// the event and the affected shift.
func (s *ShiftService) ApplyEvent(ctx context.Context, event *models.ClockEvent) (ApplyResult, error) {
	switch event.Type {
	case models.EventTypeIn:
		return s.applyClockIn(ctx, event)
	case models.EventTypeOut:
		return s.applyClockOut(ctx, event)
	default:
		return ApplyResult{}, fmt.Errorf("apply clock event %s: unsupported type %q", event.ID, event.Type)
	}
}

func (s *ShiftService) applyClockIn(ctx context.Context, event *models.ClockEvent) (ApplyResult, error) {
	for attempt := 0; attempt < openShiftRetries; attempt++ {
		open, err := s.shifts.FindOpen(ctx, event.StudentID, event.TermID)
		if err != nil {
			return ApplyResult{}, err
		}
		if open != nil {
			// Double clock-in: the invariant says this should not happen,
			// but manual backfill and clock skew produce it. Record the
			// event against the existing shift and flag both.
			if err := s.flagShiftAndEvent(ctx, open.ID, event.ID, "clock-in while shift already open"); err != nil {
				return ApplyResult{}, err
			}
			if s.metrics != nil {
				s.metrics.RecordNeedsReview("double_clock_in")
			}
			open.NeedsReview = true
			return ApplyResult{Shift: open, NeedsReview: true, ReviewReason: "clock-in while shift already open"}, nil
		}

		source := models.ShiftSourceManual
		shift := &models.Shift{
			StudentID:   event.StudentID,
			TermID:      event.TermID,
			ActualStart: event.EventTime,
			DayKey:      s.resolver.DayKey(event.EventTime),
			Source:      source,
		}
		stored, err := s.shifts.InsertOpen(ctx, shift)
		if err != nil {
			if errors.Is(err, repository.ErrOpenShiftExists) {
				// Lost the race to a concurrent clock-in. Re-read and
				// apply against the winner's shift.
				if s.metrics != nil {
					s.metrics.RecordOpenShiftRetry()
				}
				continue
			}
			return ApplyResult{}, err
		}
		if err := s.events.AttachShift(ctx, event.ID, stored.ID); err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Shift: stored}, nil
	}
	return ApplyResult{}, fmt.Errorf("apply clock-in %s: open-shift race did not settle after %d attempts", event.ID, openShiftRetries)
}

func (s *ShiftService) applyClockOut(ctx context.Context, event *models.ClockEvent) (ApplyResult, error) {
	open, err := s.shifts.FindOpen(ctx, event.StudentID, event.TermID)
	if err != nil {
		return ApplyResult{}, err
	}
	if open == nil {
		// Orphan close: record the event, flag it, touch no shift.
		if err := s.events.FlagNeedsReview(ctx, event.ID); err != nil {
			return ApplyResult{}, err
		}
		if s.metrics != nil {
			s.metrics.RecordNeedsReview("orphan_clock_out")
		}
		return ApplyResult{NeedsReview: true, ReviewReason: "clock-out with no open shift"}, nil
	}

	outOfOrder := event.EventTime.Before(open.ActualStart)
	closed, err := s.shifts.Close(ctx, open.ID, event.EventTime, models.ShiftSourceManual, outOfOrder)
	if err != nil {
		return ApplyResult{}, err
	}
	if closed == nil {
		// A concurrent writer closed it first; treat this as an orphan
		// close against the now-settled state.
		if err := s.events.FlagNeedsReview(ctx, event.ID); err != nil {
			return ApplyResult{}, err
		}
		if s.metrics != nil {
			s.metrics.RecordNeedsReview("concurrent_clock_out")
		}
		return ApplyResult{NeedsReview: true, ReviewReason: "shift closed by concurrent clock-out"}, nil
	}
	if err := s.events.AttachShift(ctx, event.ID, closed.ID); err != nil {
		return ApplyResult{}, err
	}
	if outOfOrder {
		if err := s.events.FlagNeedsReview(ctx, event.ID); err != nil {
			return ApplyResult{}, err
		}
		if s.metrics != nil {
			s.metrics.RecordNeedsReview("out_before_in")
		}
		return ApplyResult{Shift: closed, NeedsReview: true, ReviewReason: "clock-out before shift start"}, nil
	}
	return ApplyResult{Shift: closed}, nil
}

func (s *ShiftService) flagShiftAndEvent(ctx context.Context, shiftID, eventID, note string) error {
	if err := s.shifts.MarkNeedsReview(ctx, shiftID, note); err != nil {
		return err
	}
	if err := s.events.AttachShift(ctx, eventID, shiftID); err != nil {
		return err
	}
	return s.events.FlagNeedsReview(ctx, eventID)
}

// GetOpenShift returns the open shift for a pair, or nil when clocked out.
func (s *ShiftService) GetOpenShift(ctx context.Context, studentID, termID string) (*models.Shift, error) {
	return s.shifts.FindOpen(ctx, studentID, termID)
}

// FindShift loads a shift by identifier, nil when absent.
func (s *ShiftService) FindShift(ctx context.Context, id string) (*models.Shift, error) {
	return s.shifts.FindByID(ctx, id)
}

// SweepFailure reports one shift the sweep could not close.
type SweepFailure struct {
	ShiftID string `json:"shift_id"`
	Reason  string `json:"reason"`
}

// SweepResult summarises one auto clock-out pass.
type SweepResult struct {
	Examined int            `json:"examined"`
	Closed   int            `json:"closed"`
	Failures []SweepFailure `json:"failures,omitempty"`
}

// SweepStaleOpenShifts force-closes every shift whose auto-close boundary
// has passed by the cutoff. The boundary is the civil day end or
// actual_start plus the maximum duration, whichever comes first; a shift
// still inside that window is not stale and stays open. Individual failures
// are collected, not propagated, so one bad shift cannot stall the sweep.
func (s *ShiftService) SweepStaleOpenShifts(ctx context.Context, cutoff time.Time) (SweepResult, error) {
	open, err := s.shifts.ListStaleOpen(ctx, cutoff)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for i := range open {
		shift := &open[i]
		end := s.autoCloseBoundary(shift)
		if end.After(cutoff) {
			// Still within its allowed window, so not stale yet.
			continue
		}
		result.Examined++
		if err := s.autoClose(ctx, shift, end); err != nil {
			s.logger.Warn("auto clock-out failed",
				zap.String("shift_id", shift.ID), zap.Error(err))
			result.Failures = append(result.Failures, SweepFailure{ShiftID: shift.ID, Reason: err.Error()})
			continue
		}
		result.Closed++
	}
	if s.metrics != nil {
		s.metrics.RecordSweep(result.Closed, len(result.Failures))
	}
	return result, nil
}

func (s *ShiftService) autoClose(ctx context.Context, shift *models.Shift, end time.Time) error {
	// A deterministic idempotency key makes re-running the sweep over the
	// same shift collapse into one synthetic event.
	event := &models.ClockEvent{
		StudentID:      shift.StudentID,
		TermID:         shift.TermID,
		Type:           models.EventTypeOut,
		EventTime:      end,
		ReceivedAt:     s.now(),
		DayKey:         s.resolver.DayKey(end),
		IsAutoClockOut: true,
		NeedsReview:    true,
		IdempotencyKey: fmt.Sprintf("auto-clock-out:%s", shift.ID),
	}
	stored, err := s.events.Insert(ctx, event)
	if err != nil && !errors.Is(err, repository.ErrIdempotencyConflict) {
		return err
	}

	closed, err := s.shifts.Close(ctx, shift.ID, end, models.ShiftSourceSystem, true)
	if err != nil {
		return err
	}
	if closed == nil {
		// Someone closed it between listing and closing. Nothing to do.
		return nil
	}
	if stored != nil {
		if err := s.events.AttachShift(ctx, stored.ID, closed.ID); err != nil {
			return err
		}
	}
	if s.metrics != nil {
		s.metrics.RecordNeedsReview("auto_clock_out")
	}
	return nil
}

func (s *ShiftService) autoCloseBoundary(shift *models.Shift) time.Time {
	maxEnd := shift.ActualStart.Add(s.maxShiftDuration)
	if !s.autoCloseAtDayEnd {
		return maxEnd
	}
	dayEnd := s.resolver.EndOfDay(shift.ActualStart)
	if dayEnd.Before(maxEnd) {
		return dayEnd
	}
	return maxEnd
}

// WithNow overrides the clock source, used by tests.
func (s *ShiftService) WithNow(now func() time.Time) *ShiftService {
	if now != nil {
		s.now = now
	}
	return s
}
