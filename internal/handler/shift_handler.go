package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/makerdesk/timeclock-api/internal/models"
	"github.com/makerdesk/timeclock-api/internal/service"
	appErrors "github.com/makerdesk/timeclock-api/pkg/errors"
	"github.com/makerdesk/timeclock-api/pkg/response"
)

type shiftLifecycle interface {
	GetOpenShift(ctx context.Context, studentID, termID string) (*models.Shift, error)
	SweepStaleOpenShifts(ctx context.Context, cutoff time.Time) (service.SweepResult, error)
}

// ShiftHandler exposes shift state and the administrative sweep.
type ShiftHandler struct {
	shifts shiftLifecycle
}

// NewShiftHandler constructs the handler.
func NewShiftHandler(shifts shiftLifecycle) *ShiftHandler {
	return &ShiftHandler{shifts: shifts}
}

// GetOpen godoc
// @Summary Open shift for a student and term
// @Tags Shifts
// @Produce json
// @Param studentId query string true "Student ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope "No open shift"
// @Router /shifts/open [get]
func (h *ShiftHandler) GetOpen(c *gin.Context) {
	studentID := strings.TrimSpace(c.Query("studentId"))
	termID := strings.TrimSpace(c.Query("termId"))
	if studentID == "" || termID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId and termId are required"))
		return
	}

	shift, err := h.shifts.GetOpenShift(c.Request.Context(), studentID, termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if shift == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no open shift"))
		return
	}
	response.JSON(c, http.StatusOK, shift, nil)
}

type sweepRequest struct {
	Cutoff *time.Time `json:"cutoff"`
}

// Sweep godoc
// @Summary Force-close stale open shifts
// @Tags Shifts
// @Accept json
// @Produce json
// @Param payload body sweepRequest false "Optional cutoff, defaults to now"
// @Success 200 {object} response.Envelope
// @Router /admin/shift-sweeps [post]
func (h *ShiftHandler) Sweep(c *gin.Context) {
	var req sweepRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
			return
		}
	}
	cutoff := time.Now().UTC()
	if req.Cutoff != nil {
		cutoff = req.Cutoff.UTC()
	}

	result, err := h.shifts.SweepStaleOpenShifts(c.Request.Context(), cutoff)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
