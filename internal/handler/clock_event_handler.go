package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/makerdesk/timeclock-api/internal/service"
	appErrors "github.com/makerdesk/timeclock-api/pkg/errors"
	"github.com/makerdesk/timeclock-api/pkg/response"
)

type ingestService interface {
	Ingest(ctx context.Context, candidate service.IngestCandidate) (*service.IngestResult, error)
}

// ClockEventHandler accepts raw clock events over HTTP.
type ClockEventHandler struct {
	ingest ingestService
}

// NewClockEventHandler constructs the handler.
func NewClockEventHandler(ingest ingestService) *ClockEventHandler {
	return &ClockEventHandler{ingest: ingest}
}

// Ingest godoc
// @Summary Submit a clock event
// @Tags ClockEvents
// @Accept json
// @Produce json
// @Param payload body service.IngestCandidate true "Clock event"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "Replay of a stored idempotency key"
// @Router /clock-events [post]
func (h *ClockEventHandler) Ingest(c *gin.Context) {
	var candidate service.IngestCandidate
	if err := c.ShouldBindJSON(&candidate); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	result, err := h.ingest.Ingest(c.Request.Context(), candidate)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Duplicate {
		response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"duplicate": true})
		return
	}
	response.Created(c, result)
}
