package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Staff roles carried in the roles claim.
const (
	RoleDoctor        = "doctor"
	RoleNurse         = "nurse"
	RoleAdmin         = "admin"
	RoleEmergency     = "emergency"
	RoleLabTechnician = "lab_technician"
)

// Clinical is every non-admin staff role.
var Clinical = []string{RoleDoctor, RoleNurse, RoleEmergency, RoleLabTechnician}

// RequireRole passes callers holding any of roles. Admin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether held satisfies any of required.
func HasRole(held []string, required ...string) bool {
	for _, has := range held {
		if has == RoleAdmin {
			return true
		}
		for _, r := range required {
			if has == r {
				return true
			}
		}
	}
	return false
}
