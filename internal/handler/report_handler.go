package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/makerdesk/timeclock-api/internal/civil"
	"github.com/makerdesk/timeclock-api/internal/models"
	"github.com/makerdesk/timeclock-api/internal/service"
	appErrors "github.com/makerdesk/timeclock-api/pkg/errors"
	"github.com/makerdesk/timeclock-api/pkg/response"
)

type breakdownService interface {
	DailyBreakdown(ctx context.Context, req service.BreakdownRequest) ([]models.DailyBucket, error)
	WeeklyBreakdown(ctx context.Context, req service.BreakdownRequest) ([]models.WeeklyBucket, error)
	MonthlyBreakdown(ctx context.Context, req service.BreakdownRequest) ([]models.MonthlyBucket, error)
}

type exportService interface {
	Generate(ctx context.Context, req service.ExportRequest) (*service.ExportResult, error)
}

// ReportHandler exposes the expected-versus-actual breakdowns and the
// punctuality export.
type ReportHandler struct {
	analytics breakdownService
	exports   exportService
}

// NewReportHandler constructs the handler. Exports may be nil when the
// feature is disabled.
func NewReportHandler(analytics breakdownService, exports exportService) *ReportHandler {
	return &ReportHandler{analytics: analytics, exports: exports}
}

// Daily godoc
// @Summary Daily expected versus actual minutes
// @Tags Reports
// @Produce json
// @Param studentId query string true "Student ID"
// @Param termId query string true "Term ID"
// @Param from query string false "Start day (YYYY-MM-DD), defaults to term start"
// @Param to query string false "End day (YYYY-MM-DD), defaults to term end"
// @Success 200 {object} response.Envelope
// @Router /reports/daily [get]
func (h *ReportHandler) Daily(c *gin.Context) {
	req, err := h.breakdownRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	buckets, err := h.analytics.DailyBreakdown(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, buckets, nil)
}

// Weekly godoc
// @Summary Weekly expected versus actual hours
// @Tags Reports
// @Produce json
// @Param studentId query string true "Student ID"
// @Param termId query string true "Term ID"
// @Param from query string false "Start day (YYYY-MM-DD), defaults to term start"
// @Param to query string false "End day (YYYY-MM-DD), defaults to term end"
// @Success 200 {object} response.Envelope
// @Router /reports/weekly [get]
func (h *ReportHandler) Weekly(c *gin.Context) {
	req, err := h.breakdownRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	buckets, err := h.analytics.WeeklyBreakdown(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, buckets, nil)
}

// Monthly godoc
// @Summary Monthly expected versus actual hours
// @Tags Reports
// @Produce json
// @Param studentId query string true "Student ID"
// @Param termId query string true "Term ID"
// @Param from query string false "Start day (YYYY-MM-DD), defaults to term start"
// @Param to query string false "End day (YYYY-MM-DD), defaults to term end"
// @Success 200 {object} response.Envelope
// @Router /reports/monthly [get]
func (h *ReportHandler) Monthly(c *gin.Context) {
	req, err := h.breakdownRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	buckets, err := h.analytics.MonthlyBreakdown(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, buckets, nil)
}

// ExportPunctuality godoc
// @Summary Download the punctuality report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param studentId query string true "Student ID"
// @Param termId query string true "Term ID"
// @Param from query string false "Start day (YYYY-MM-DD)"
// @Param to query string false "End day (YYYY-MM-DD)"
// @Param format query string true "csv or pdf"
// @Success 200 {file} file
// @Router /reports/punctuality/export [get]
func (h *ReportHandler) ExportPunctuality(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	breakdown, err := h.breakdownRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.Generate(c.Request.Context(), service.ExportRequest{
		StudentID: breakdown.StudentID,
		TermID:    breakdown.TermID,
		From:      breakdown.From,
		To:        breakdown.To,
		Format:    models.ReportFormat(strings.ToLower(c.Query("format"))),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

func (h *ReportHandler) breakdownRequest(c *gin.Context) (service.BreakdownRequest, error) {
	studentID := strings.TrimSpace(c.Query("studentId"))
	termID := strings.TrimSpace(c.Query("termId"))
	if studentID == "" || termID == "" {
		return service.BreakdownRequest{}, appErrors.Clone(appErrors.ErrValidation, "studentId and termId are required")
	}
	req := service.BreakdownRequest{StudentID: studentID, TermID: termID}

	var err error
	if req.From, err = parseDayParam(c.Query("from")); err != nil {
		return service.BreakdownRequest{}, err
	}
	if req.To, err = parseDayParam(c.Query("to")); err != nil {
		return service.BreakdownRequest{}, err
	}
	return req, nil
}

func parseDayParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse(civil.DayKeyLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid day %q, expected YYYY-MM-DD", raw))
	}
	return day, nil
}
