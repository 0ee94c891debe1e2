package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/makerdesk/timeclock-api/internal/civil"
	"github.com/makerdesk/timeclock-api/internal/models"
	"github.com/makerdesk/timeclock-api/internal/repository"
	appErrors "github.com/makerdesk/timeclock-api/pkg/errors"
)

type clockEventRepository interface {
	Insert(ctx context.Context, event *models.ClockEvent) (*models.ClockEvent, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.ClockEvent, error)
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type termLookup interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type scheduleLookup interface {
	FindByStudentTerm(ctx context.Context, studentID, termID string) (*models.WeeklySchedule, error)
}

// IngestService accepts raw clock events, deduplicates them on the
// idempotency key and applies them to shift state. Replaying a key any
// number of times yields one stored event and the identical payload.
type IngestService struct {
	events    clockEventRepository
	students  studentLookup
	terms     termLookup
	schedules scheduleLookup
	shifts    *ShiftService
	compare   *ComparatorService
	resolver  *civil.Resolver
	validator *validator.Validate
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewIngestService constructs the ingestor.
func NewIngestService(events clockEventRepository, students studentLookup, terms termLookup, schedules scheduleLookup, shifts *ShiftService, compare *ComparatorService, resolver *civil.Resolver, validate *validator.Validate, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *IngestService {
	if validate == nil {
		validate = validator.New()
	}
	if resolver == nil {
		resolver = civil.NewResolver(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &IngestService{
		events:    events,
		students:  students,
		terms:     terms,
		schedules: schedules,
		shifts:    shifts,
		compare:   compare,
		resolver:  resolver,
		validator: validate,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	_ = svc.validator.RegisterValidation("clock_event_type", func(fl validator.FieldLevel) bool {
		return models.EventType(fl.Field().String()).Valid()
	})
	return svc
}

// IngestCandidate is a raw clock action submitted by a reader or client.
type IngestCandidate struct {
	StudentID      string    `json:"student_id" validate:"required"`
	TermID         string    `json:"term_id" validate:"required"`
	Type           string    `json:"type" validate:"required,clock_event_type"`
	EventTime      time.Time `json:"event_time" validate:"required"`
	IsManual       bool      `json:"is_manual"`
	IdempotencyKey string    `json:"idempotency_key" validate:"required"`
}

// IngestResult is the stored event plus its derived context.
type IngestResult struct {
	Event       *models.ClockEvent       `json:"event"`
	Shift       *models.Shift            `json:"shift,omitempty"`
	Punctuality models.PunctualityRecord `json:"punctuality"`
	Duplicate   bool                     `json:"duplicate"`
}

// Ingest validates, deduplicates, stores and applies one clock event.
func (s *IngestService) Ingest(ctx context.Context, candidate IngestCandidate) (*IngestResult, error) {
	if err := s.validator.Struct(candidate); err != nil {
		s.recordIngest("rejected")
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clock event")
	}

	if existing, err := s.events.FindByIdempotencyKey(ctx, candidate.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return s.replay(ctx, existing)
	}

	student, err := s.students.FindByID(ctx, candidate.StudentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		s.recordIngest("rejected")
		return nil, appErrors.ErrUnknownStudent
	}
	term, err := s.terms.FindByID(ctx, candidate.TermID)
	if err != nil {
		return nil, err
	}
	if term == nil {
		s.recordIngest("rejected")
		return nil, appErrors.ErrUnknownTerm
	}

	event := &models.ClockEvent{
		StudentID:      candidate.StudentID,
		TermID:         candidate.TermID,
		Type:           models.EventType(candidate.Type),
		EventTime:      candidate.EventTime,
		ReceivedAt:     s.now(),
		DayKey:         s.resolver.DayKey(candidate.EventTime),
		IsManual:       candidate.IsManual,
		IdempotencyKey: candidate.IdempotencyKey,
	}
	stored, err := s.events.Insert(ctx, event)
	if err != nil {
		if errors.Is(err, repository.ErrIdempotencyConflict) {
			// Lost the race to a concurrent duplicate; return the winner.
			winner, findErr := s.events.FindByIdempotencyKey(ctx, candidate.IdempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			if winner == nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "duplicate winner not found")
			}
			return s.replay(ctx, winner)
		}
		return nil, err
	}

	apply, err := s.shifts.ApplyEvent(ctx, stored)
	if err != nil {
		return nil, err
	}
	if apply.NeedsReview {
		stored.NeedsReview = true
		s.logger.Info("clock event flagged for review",
			zap.String("event_id", stored.ID),
			zap.String("student_id", stored.StudentID),
			zap.String("reason", apply.ReviewReason))
	}
	if apply.Shift != nil {
		stored.ShiftID.String = apply.Shift.ID
		stored.ShiftID.Valid = true
	}

	punctuality, err := s.classify(ctx, stored)
	if err != nil {
		return nil, err
	}
	s.invalidateBreakdowns(ctx, stored.StudentID, stored.TermID)
	s.recordIngest("stored")
	return &IngestResult{Event: stored, Shift: apply.Shift, Punctuality: punctuality}, nil
}

// invalidateBreakdowns drops cached analytics for the pair; every stored
// event changes the actual-hours fold.
func (s *IngestService) invalidateBreakdowns(ctx context.Context, studentID, termID string) {
	if !s.cache.Enabled() {
		return
	}
	pattern := fmt.Sprintf("analytics:*:%s:%s:*", studentID, termID)
	if err := s.cache.InvalidatePattern(ctx, pattern); err != nil {
		s.logger.Warn("invalidate breakdown cache",
			zap.String("pattern", pattern), zap.Error(err))
	}
}

// replay resolves an ingest call whose idempotency key is already stored.
// Replay is an idempotent success, never an error.
func (s *IngestService) replay(ctx context.Context, stored *models.ClockEvent) (*IngestResult, error) {
	punctuality, err := s.classify(ctx, stored)
	if err != nil {
		return nil, err
	}
	shift, err := s.shiftFor(ctx, stored)
	if err != nil {
		return nil, err
	}
	s.recordIngest("duplicate")
	return &IngestResult{Event: stored, Shift: shift, Punctuality: punctuality, Duplicate: true}, nil
}

func (s *IngestService) classify(ctx context.Context, event *models.ClockEvent) (models.PunctualityRecord, error) {
	schedule, err := s.schedules.FindByStudentTerm(ctx, event.StudentID, event.TermID)
	if err != nil {
		return models.PunctualityRecord{}, err
	}
	return s.compare.Classify(event.EventTime, event.Type, schedule), nil
}

func (s *IngestService) shiftFor(ctx context.Context, event *models.ClockEvent) (*models.Shift, error) {
	if !event.ShiftID.Valid {
		return nil, nil
	}
	return s.shifts.FindShift(ctx, event.ShiftID.String)
}

func (s *IngestService) recordIngest(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordIngest(outcome)
	}
}

// WithNow overrides the clock source, used by tests.
func (s *IngestService) WithNow(now func() time.Time) *IngestService {
	if now != nil {
		s.now = now
	}
	return s
}
