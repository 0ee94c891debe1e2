package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/makerdesk/timeclock-api/internal/models"
)

type fakeTermDir struct {
	active *models.Term
}

func (f *fakeTermDir) FindActive(context.Context) (*models.Term, error) {
	return f.active, nil
}

func TestTermHandlerGetActive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTermHandler(&fakeTermDir{active: &models.Term{ID: "term-1", Name: "2024 Spring"}})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/terms/active", nil)

	handler.GetActive(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "term-1")
}

func TestTermHandlerGetActiveNone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTermHandler(&fakeTermDir{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/terms/active", nil)

	handler.GetActive(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
