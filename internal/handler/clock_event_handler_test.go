package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerdesk/timeclock-api/internal/models"
	"github.com/makerdesk/timeclock-api/internal/service"
	appErrors "github.com/makerdesk/timeclock-api/pkg/errors"
	"github.com/makerdesk/timeclock-api/pkg/response"
)

type fakeIngestSrv struct {
	result *service.IngestResult
	err    error
	last   service.IngestCandidate
}

func (f *fakeIngestSrv) Ingest(_ context.Context, candidate service.IngestCandidate) (*service.IngestResult, error) {
	f.last = candidate
	return f.result, f.err
}

func postJSON(t *testing.T, handler gin.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/clock-events", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return rec
}

func TestClockEventHandlerCreates(t *testing.T) {
	srv := &fakeIngestSrv{result: &service.IngestResult{
		Event: &models.ClockEvent{ID: "event-1", Type: models.EventTypeIn},
	}}
	handler := NewClockEventHandler(srv)

	rec := postJSON(t, handler.Ingest, `{
		"student_id": "student-1",
		"term_id": "term-1",
		"type": "IN",
		"event_time": "2024-01-15T09:05:00Z",
		"idempotency_key": "badge-1"
	}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "badge-1", srv.last.IdempotencyKey)
	assert.Equal(t, time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC), srv.last.EventTime.UTC())
}

func TestClockEventHandlerReplayReturns200(t *testing.T) {
	srv := &fakeIngestSrv{result: &service.IngestResult{
		Event:     &models.ClockEvent{ID: "event-1"},
		Duplicate: true,
	}}
	handler := NewClockEventHandler(srv)

	rec := postJSON(t, handler.Ingest, `{
		"student_id": "student-1",
		"term_id": "term-1",
		"type": "IN",
		"event_time": "2024-01-15T09:05:00Z",
		"idempotency_key": "badge-1"
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["duplicate"])
}

func TestClockEventHandlerRejectsBadBody(t *testing.T) {
	handler := NewClockEventHandler(&fakeIngestSrv{})

	rec := postJSON(t, handler.Ingest, `{"event_time": "not-a-time"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClockEventHandlerPropagatesDomainError(t *testing.T) {
	handler := NewClockEventHandler(&fakeIngestSrv{err: appErrors.ErrUnknownStudent})

	rec := postJSON(t, handler.Ingest, `{
		"student_id": "student-missing",
		"term_id": "term-1",
		"type": "IN",
		"event_time": "2024-01-15T09:05:00Z",
		"idempotency_key": "badge-1"
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
