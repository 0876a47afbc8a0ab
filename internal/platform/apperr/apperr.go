// Package apperr carries caller-input errors across the service layer and
// converts service errors into HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/k0t0k0t0/hospital-management-system-be/pkg/timerange"
)

// ValidationError marks a request the caller must fix.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func Invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	if errors.As(err, &v) {
		return true
	}
	var pe *timerange.ParseError
	return errors.As(err, &pe)
}

// Status pairs a sentinel error with the HTTP status it maps to.
type Status struct {
	Err  error
	Code int
}

// HTTP converts err to an echo error. Validation and parse errors are 400,
// errors matching one of statuses take its code, anything else is a 500 that
// keeps the cause as the internal error for logging.
func HTTP(err error, statuses ...Status) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	if IsValidation(err) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for _, s := range statuses {
		if errors.Is(err, s.Err) {
			return echo.NewHTTPError(s.Code, err.Error())
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
