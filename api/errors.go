package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Resized/todo-list/domain"
)

var (
	errInvalidBody  = fmt.Errorf("%w: invalid body", domain.ErrInvalidInput)
	errBodyTooLarge = fmt.Errorf("%w: body too large", domain.ErrInvalidInput)
)

// errorStatus maps a service error onto the HTTP status and message
// returned to clients.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNoContent):
		return http.StatusBadRequest, "No content provided"
	case errors.Is(err, domain.ErrNothingToUpdate):
		return http.StatusBadRequest, "Nothing to update"
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "Request body too large"
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, "Invalid request body"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Task not found"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// errorStage names the request phase an error belongs to for metrics.
func errorStage(err error) string {
	switch {
	case errors.Is(err, errInvalidBody), errors.Is(err, errBodyTooLarge):
		return "decode_body"
	case errors.Is(err, domain.ErrInvalidInput):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "storage"
	}
}

func writeError(c echo.Context, err error) error {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, errorResponse{Message: msg})
}
