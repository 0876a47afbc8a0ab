package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. Matched against the route template.
var publicPaths = map[string]bool{
	"/health":                             true,
	"/health/db":                          true,
	"/metrics":                            true,
	"/api/v1/auth/login":                  true,
	"/api/v1/auth/password-reset/request": true,
	"/api/v1/auth/password-reset":         true,
}

// Skipper reports whether the request targets a public route.
func Skipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
