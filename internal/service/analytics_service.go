package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/makerdesk/timeclock-api/internal/civil"
	"github.com/makerdesk/timeclock-api/internal/models"
	appErrors "github.com/makerdesk/timeclock-api/pkg/errors"
)

type analyticsShiftRepository interface {
	ListForWindow(ctx context.Context, studentID, termID string, from, to time.Time) ([]models.Shift, error)
	FindOpen(ctx context.Context, studentID, termID string) (*models.Shift, error)
}

type analyticsEventRepository interface {
	ListForWindow(ctx context.Context, studentID, termID string, from, to time.Time) ([]models.ClockEvent, error)
}

type analyticsTermRepository interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
	ListDaysOff(ctx context.Context, termID string) ([]models.TermDayOff, error)
}

// AnalyticsService folds classified events and derived shifts into daily,
// weekly and monthly expected-versus-actual views. Computation is a pure
// fold over store reads: the same inputs always produce byte-identical
// output, so results are safe to recompute at any time.
type AnalyticsService struct {
	shifts    analyticsShiftRepository
	events    analyticsEventRepository
	terms     analyticsTermRepository
	schedules scheduleLookup
	compare   *ComparatorService
	resolver  *civil.Resolver
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnalyticsService constructs the aggregator.
func NewAnalyticsService(shifts analyticsShiftRepository, events analyticsEventRepository, terms analyticsTermRepository, schedules scheduleLookup, compare *ComparatorService, resolver *civil.Resolver, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if resolver == nil {
		resolver = civil.NewResolver(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		shifts:    shifts,
		events:    events,
		terms:     terms,
		schedules: schedules,
		compare:   compare,
		resolver:  resolver,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// BreakdownRequest bounds a breakdown query. From and To are civil dates
// (inclusive); each is clamped to the term window.
type BreakdownRequest struct {
	StudentID string
	TermID    string
	From      time.Time
	To        time.Time
}

// DailyBreakdown returns one bucket per civil day in the requested window.
func (s *AnalyticsService) DailyBreakdown(ctx context.Context, req BreakdownRequest) ([]models.DailyBucket, error) {
	cacheKey := s.breakdownCacheKey("daily", req)
	var cached []models.DailyBucket
	if hit, err := s.tryCache(ctx, req, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	buckets, err := s.computeDaily(ctx, req)
	if err != nil {
		return nil, err
	}
	s.storeCache(ctx, req, cacheKey, buckets)
	return buckets, nil
}

// WeeklyBreakdown groups the daily buckets by ISO week. WeekStart is the
// day key of each week's Monday.
func (s *AnalyticsService) WeeklyBreakdown(ctx context.Context, req BreakdownRequest) ([]models.WeeklyBucket, error) {
	cacheKey := s.breakdownCacheKey("weekly", req)
	var cached []models.WeeklyBucket
	if hit, err := s.tryCache(ctx, req, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	daily, err := s.computeDaily(ctx, req)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string]*models.WeeklyBucket)
	order := make([]string, 0)
	for _, bucket := range daily {
		date, err := s.resolver.ParseDayKey(bucket.DayKey)
		if err != nil {
			return nil, err
		}
		weekStart := s.resolver.DayKey(mondayOf(date))
		entry, ok := grouped[weekStart]
		if !ok {
			entry = &models.WeeklyBucket{WeekStart: weekStart}
			grouped[weekStart] = entry
			order = append(order, weekStart)
		}
		entry.ExpectedHours += minutesToHours(bucket.ExpectedMinutes)
		entry.ActualHours += minutesToHours(bucket.ActualMinutes)
	}

	sort.Strings(order)
	buckets := make([]models.WeeklyBucket, 0, len(order))
	for _, weekStart := range order {
		entry := grouped[weekStart]
		entry.ExpectedHours = roundHours(entry.ExpectedHours)
		entry.ActualHours = roundHours(entry.ActualHours)
		buckets = append(buckets, *entry)
	}
	s.storeCache(ctx, req, cacheKey, buckets)
	return buckets, nil
}

// MonthlyBreakdown groups the daily buckets by civil month (YYYY-MM).
func (s *AnalyticsService) MonthlyBreakdown(ctx context.Context, req BreakdownRequest) ([]models.MonthlyBucket, error) {
	cacheKey := s.breakdownCacheKey("monthly", req)
	var cached []models.MonthlyBucket
	if hit, err := s.tryCache(ctx, req, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	daily, err := s.computeDaily(ctx, req)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string]*models.MonthlyBucket)
	order := make([]string, 0)
	for _, bucket := range daily {
		month := bucket.DayKey[:7]
		entry, ok := grouped[month]
		if !ok {
			entry = &models.MonthlyBucket{Month: month}
			grouped[month] = entry
			order = append(order, month)
		}
		entry.ExpectedHours += minutesToHours(bucket.ExpectedMinutes)
		entry.ActualHours += minutesToHours(bucket.ActualMinutes)
	}

	sort.Strings(order)
	buckets := make([]models.MonthlyBucket, 0, len(order))
	for _, month := range order {
		entry := grouped[month]
		entry.ExpectedHours = roundHours(entry.ExpectedHours)
		entry.ActualHours = roundHours(entry.ActualHours)
		buckets = append(buckets, *entry)
	}
	s.storeCache(ctx, req, cacheKey, buckets)
	return buckets, nil
}

func (s *AnalyticsService) computeDaily(ctx context.Context, req BreakdownRequest) ([]models.DailyBucket, error) {
	term, err := s.terms.FindByID(ctx, req.TermID)
	if err != nil {
		return nil, err
	}
	if term == nil {
		return nil, appErrors.ErrUnknownTerm
	}

	from, to, err := s.clampWindow(req, term)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return []models.DailyBucket{}, nil
	}

	schedule, err := s.schedules.FindByStudentTerm(ctx, req.StudentID, req.TermID)
	if err != nil {
		return nil, err
	}
	daysOff, err := s.terms.ListDaysOff(ctx, req.TermID)
	if err != nil {
		return nil, err
	}

	windowStart, _ := s.resolver.DayBoundaries(from)
	_, windowEnd := s.resolver.DayBoundaries(to)

	start := time.Now()
	shifts, err := s.shifts.ListForWindow(ctx, req.StudentID, req.TermID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListForWindow(ctx, req.StudentID, req.TermID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_daily", time.Since(start))
	}

	now := s.now()
	actualByDay := make(map[string]int)
	for i := range shifts {
		shift := &shifts[i]
		if shift.Open() {
			// An open shift counts only while "now" falls inside the
			// queried window; otherwise its hours are not yet attributable.
			if now.Before(windowStart) || !now.Before(windowEnd) {
				continue
			}
			actualByDay[shift.DayKey] += int(shift.Duration(now).Minutes())
			continue
		}
		actualByDay[shift.DayKey] += int(shift.Duration(now).Minutes())
	}

	classByDay := make(map[string]models.Classification)
	for i := range events {
		event := &events[i]
		if event.Type != models.EventTypeIn {
			continue
		}
		record := s.compare.Classify(event.EventTime, event.Type, schedule)
		if worseClassification(record.Classification, classByDay[event.DayKey]) {
			classByDay[event.DayKey] = record.Classification
		}
	}

	buckets := make([]models.DailyBucket, 0)
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		key := s.resolver.DayKey(date)
		bucket := models.DailyBucket{
			DayKey:          key,
			ExpectedMinutes: expectedMinutes(schedule, date, daysOff),
			ActualMinutes:   actualByDay[key],
			Classification:  classByDay[key],
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

// clampWindow resolves the request bounds to local midnights inside the
// term window.
func (s *AnalyticsService) clampWindow(req BreakdownRequest, term *models.Term) (time.Time, time.Time, error) {
	from := req.From
	if from.IsZero() || from.Before(term.StartDate) {
		from = term.StartDate
	}
	to := req.To
	if to.IsZero() || to.After(term.EndDate) {
		to = term.EndDate
	}
	fromDay, err := s.resolver.ParseDayKey(s.resolver.DayKey(from))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	toDay, err := s.resolver.ParseDayKey(s.resolver.DayKey(to))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return fromDay, toDay, nil
}

func (s *AnalyticsService) breakdownCacheKey(granularity string, req BreakdownRequest) string {
	return fmt.Sprintf("analytics:%s:%s:%s:%s:%s", granularity, req.StudentID, req.TermID,
		req.From.UTC().Format(civil.DayKeyLayout), req.To.UTC().Format(civil.DayKeyLayout))
}

// tryCache reads a cached breakdown unless an open shift makes the data a
// moving target; results are never cached across an open shift's lifetime.
func (s *AnalyticsService) tryCache(ctx context.Context, req BreakdownRequest, key string, dest interface{}) (bool, error) {
	if !s.cache.Enabled() {
		return false, nil
	}
	open, err := s.shifts.FindOpen(ctx, req.StudentID, req.TermID)
	if err != nil || open != nil {
		return false, err
	}
	return s.cache.Get(ctx, key, dest)
}

func (s *AnalyticsService) storeCache(ctx context.Context, req BreakdownRequest, key string, value interface{}) {
	if !s.cache.Enabled() {
		return
	}
	open, err := s.shifts.FindOpen(ctx, req.StudentID, req.TermID)
	if err != nil || open != nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("cache breakdown", zap.String("key", key), zap.Error(err))
	}
}

func expectedMinutes(schedule *models.WeeklySchedule, date time.Time, daysOff []models.TermDayOff) int {
	if schedule == nil {
		return 0
	}
	for _, off := range daysOff {
		if off.Covers(date) {
			return 0
		}
	}
	total := 0
	for _, r := range schedule.RangesFor(date.Weekday()) {
		total += r.Minutes()
	}
	return total
}

// worseClassification reports whether a is a worse daily summary than b.
// Severity: late, then early, then not scheduled, then on time.
func worseClassification(a, b models.Classification) bool {
	return classificationSeverity(a) > classificationSeverity(b)
}

func classificationSeverity(c models.Classification) int {
	switch c {
	case models.ClassificationLate:
		return 4
	case models.ClassificationEarly:
		return 3
	case models.ClassificationNotScheduled:
		return 2
	case models.ClassificationOnTime:
		return 1
	}
	return 0
}

// mondayOf returns the Monday of the ISO week containing the date.
func mondayOf(date time.Time) time.Time {
	offset := (int(date.Weekday()) + 6) % 7
	return date.AddDate(0, 0, -offset)
}

func minutesToHours(minutes int) float64 {
	return float64(minutes) / 60
}

func roundHours(hours float64) float64 {
	return math.Round(hours*100) / 100
}

// WithNow overrides the clock source, used by tests.
func (s *AnalyticsService) WithNow(now func() time.Time) *AnalyticsService {
	if now != nil {
		s.now = now
	}
	return s
}
