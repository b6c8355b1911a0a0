package middleware

import (
	"errors"
	"net/http"

	"model-api/logging"

	"github.com/labstack/echo/v4"
)

// ErrorHandler turns handler errors into a JSON body of the form
//
//	{ "error": "<message>" }
//
// *echo.HTTPError keeps its status code and message; anything else is a 500
// with a generic body. The underlying error goes to the log, never to the
// client.
func ErrorHandler(err error, c echo.Context) {
	status, message := ExtractError(err)
	if status == http.StatusInternalServerError {
		logging.Error("Request failed", logging.Server,
			"err", err, "method", c.Request().Method, "path", c.Request().URL.Path)
	}

	// Avoid double responses
	if c.Response().Committed {
		return
	}

	// We ignore any serialization error because we are already in the error path.
	_ = c.JSON(status, map[string]interface{}{"error": message})
}

func ExtractError(err error) (int, interface{}) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status := he.Code
		var message interface{} = http.StatusText(status)
		if he.Message != nil {
			message = he.Message
		}
		return status, message
	}

	// Unclassified errors may carry internal detail; keep the body generic.
	return http.StatusInternalServerError, "internal server error"
}
