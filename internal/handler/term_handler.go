package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/makerdesk/timeclock-api/internal/models"
	appErrors "github.com/makerdesk/timeclock-api/pkg/errors"
	"github.com/makerdesk/timeclock-api/pkg/response"
)

type termDirectory interface {
	FindActive(ctx context.Context) (*models.Term, error)
}

// TermHandler exposes term reference data.
type TermHandler struct {
	terms termDirectory
}

// NewTermHandler constructs the handler.
func NewTermHandler(terms termDirectory) *TermHandler {
	return &TermHandler{terms: terms}
}

// GetActive godoc
// @Summary Currently active term
// @Tags Terms
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope "No active term"
// @Router /terms/active [get]
func (h *TermHandler) GetActive(c *gin.Context) {
	term, err := h.terms.FindActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if term == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no active term"))
		return
	}
	response.JSON(c, http.StatusOK, term, nil)
}
