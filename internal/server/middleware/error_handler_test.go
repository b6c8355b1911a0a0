package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"model-api/internal/server/middleware"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractError(t *testing.T) {
	// 1. Generic error: internal detail never reaches the client
	status, msg := middleware.ExtractError(errors.New("dial tcp 10.0.0.3:26657: connection refused"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "internal server error", msg)

	// 2. echo.HTTPError preserving original payload and status code
	httpErr := echo.NewHTTPError(http.StatusBadRequest, "topicId is required")

	status, msg = middleware.ExtractError(httpErr)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "topicId is required", msg)
}

func TestErrorHandlerGenericBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/models", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	middleware.ErrorHandler(errors.New("secret ref wallet-mnemonic/w1 unreadable"), c)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.NotContains(t, rec.Body.String(), "wallet-mnemonic")
}
