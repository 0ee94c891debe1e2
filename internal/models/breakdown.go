package models

// DailyBucket reports one civil day of expected versus actual minutes.
// Classification summarises the day's clock-ins: the worst observed bucket
// wins (late over early over on-time); a day with events but no declared
// slots reports NOT_SCHEDULED, and a day without events reports nothing.
type DailyBucket struct {
	DayKey          string         `json:"day_key"`
	ExpectedMinutes int            `json:"expected_minutes"`
	ActualMinutes   int            `json:"actual_minutes"`
	Classification  Classification `json:"classification,omitempty"`
}

// WeeklyBucket aggregates one ISO week of the term window. WeekStart is
// the day key of that week's Monday in the reference timezone.
type WeeklyBucket struct {
	WeekStart     string  `json:"week_start"`
	ExpectedHours float64 `json:"expected_hours"`
	ActualHours   float64 `json:"actual_hours"`
}

// MonthlyBucket aggregates one civil month (YYYY-MM) of the term window.
type MonthlyBucket struct {
	Month         string  `json:"month"`
	ExpectedHours float64 `json:"expected_hours"`
	ActualHours   float64 `json:"actual_hours"`
}

// Pagination carries standard list metadata in response envelopes.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
