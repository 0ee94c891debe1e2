package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/makerdesk/timeclock-api/internal/models"
	"github.com/makerdesk/timeclock-api/internal/service"
)

type fakeShiftSrv struct {
	open       *models.Shift
	sweep      service.SweepResult
	lastCutoff time.Time
}

func (f *fakeShiftSrv) GetOpenShift(context.Context, string, string) (*models.Shift, error) {
	return f.open, nil
}

func (f *fakeShiftSrv) SweepStaleOpenShifts(_ context.Context, cutoff time.Time) (service.SweepResult, error) {
	f.lastCutoff = cutoff
	return f.sweep, nil
}

func TestShiftHandlerGetOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeShiftSrv{open: &models.Shift{ID: "shift-1"}}
	handler := NewShiftHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/shifts/open?studentId=student-1&termId=term-1", nil)

	handler.GetOpen(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShiftHandlerGetOpenNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewShiftHandler(&fakeShiftSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/shifts/open?studentId=student-1&termId=term-1", nil)

	handler.GetOpen(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShiftHandlerGetOpenRequiresParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewShiftHandler(&fakeShiftSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/shifts/open?studentId=student-1", nil)

	handler.GetOpen(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShiftHandlerSweepUsesProvidedCutoff(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeShiftSrv{sweep: service.SweepResult{Examined: 2, Closed: 2}}
	handler := NewShiftHandler(srv)

	body := `{"cutoff": "2024-01-16T04:00:00Z"}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/shift-sweeps", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Sweep(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 1, 16, 4, 0, 0, 0, time.UTC), srv.lastCutoff)
}

func TestShiftHandlerSweepDefaultsToNow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeShiftSrv{}
	handler := NewShiftHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/shift-sweeps", nil)

	before := time.Now().UTC()
	handler.Sweep(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, srv.lastCutoff.Before(before))
}
