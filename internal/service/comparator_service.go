package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/makerdesk/timeclock-api/internal/civil"
	"github.com/makerdesk/timeclock-api/internal/models"
)

// ComparatorService classifies clock events against declared weekly
// schedules. The comparison boundary is the slot start for clock-ins and
// the slot end for clock-outs.
type ComparatorService struct {
	resolver           *civil.Resolver
	onTimeWindow       time.Duration
	notScheduledWindow time.Duration
	metrics            *MetricsService
	logger             *zap.Logger
}

// NewComparatorService constructs a comparator. Windows at or below zero
// fall back to the documented defaults.
func NewComparatorService(resolver *civil.Resolver, onTimeWindow, notScheduledWindow time.Duration, metrics *MetricsService, logger *zap.Logger) *ComparatorService {
	if resolver == nil {
		resolver = civil.NewResolver(nil)
	}
	if onTimeWindow <= 0 {
		onTimeWindow = 10 * time.Minute
	}
	if notScheduledWindow <= 0 {
		notScheduledWindow = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComparatorService{
		resolver:           resolver,
		onTimeWindow:       onTimeWindow,
		notScheduledWindow: notScheduledWindow,
		metrics:            metrics,
		logger:             logger,
	}
}

// Classify buckets an event as early, on time, late or not scheduled and
// reports the signed deviation in minutes from the nearest matching
// boundary. A nil schedule always classifies as not scheduled.
func (s *ComparatorService) Classify(eventTime time.Time, eventType models.EventType, schedule *models.WeeklySchedule) models.PunctualityRecord {
	record := s.classify(eventTime, eventType, schedule)
	if s.metrics != nil {
		s.metrics.RecordClassification(string(record.Classification))
	}
	return record
}

func (s *ComparatorService) classify(eventTime time.Time, eventType models.EventType, schedule *models.WeeklySchedule) models.PunctualityRecord {
	if schedule == nil {
		return models.PunctualityRecord{Classification: models.ClassificationNotScheduled}
	}

	loc := s.scheduleLocation(schedule)
	local := eventTime.In(loc)
	weekday := local.Weekday()
	eventMinute := local.Hour()*60 + local.Minute()

	ranges := schedule.RangesFor(weekday)
	if len(ranges) == 0 {
		return models.PunctualityRecord{Classification: models.ClassificationNotScheduled}
	}

	best := nearestRange(ranges, eventMinute, eventType)
	deviation := eventMinute - boundaryMinute(best, eventType)

	slack := int(s.notScheduledWindow / time.Minute)
	if !insideAnyExtendedRange(ranges, eventMinute, slack) {
		return models.PunctualityRecord{
			Classification:   models.ClassificationNotScheduled,
			DeviationMinutes: deviation,
		}
	}

	window := int(s.onTimeWindow / time.Minute)
	classification := models.ClassificationOnTime
	switch {
	case deviation < -window:
		classification = models.ClassificationEarly
	case deviation > window:
		classification = models.ClassificationLate
	}

	return models.PunctualityRecord{
		Classification:   classification,
		DeviationMinutes: deviation,
		MatchedSlot:      best.Raw,
	}
}

func (s *ComparatorService) scheduleLocation(schedule *models.WeeklySchedule) *time.Location {
	if schedule.Timezone != "" {
		if loc, err := time.LoadLocation(schedule.Timezone); err == nil {
			return loc
		}
		s.logger.Warn("invalid schedule timezone, using reference timezone",
			zap.String("schedule_id", schedule.ID), zap.String("timezone", schedule.Timezone))
	}
	return s.resolver.Location()
}

// nearestRange picks the range whose comparison boundary is closest to the
// event. Equidistant ranges resolve to the earlier-starting one; ranges
// are already in start order.
func nearestRange(ranges []models.TimeRange, eventMinute int, eventType models.EventType) models.TimeRange {
	best := ranges[0]
	bestDistance := absInt(eventMinute - boundaryMinute(best, eventType))
	for _, candidate := range ranges[1:] {
		distance := absInt(eventMinute - boundaryMinute(candidate, eventType))
		if distance < bestDistance {
			best = candidate
			bestDistance = distance
		}
	}
	return best
}

func boundaryMinute(r models.TimeRange, eventType models.EventType) int {
	if eventType == models.EventTypeOut {
		return r.End
	}
	return r.Start
}

func insideAnyExtendedRange(ranges []models.TimeRange, eventMinute, slack int) bool {
	for _, r := range ranges {
		if eventMinute >= r.Start-slack && eventMinute <= r.End+slack {
			return true
		}
	}
	return false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
