package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// Billing roles. RoleAdmin passes every role check.
const (
	RoleAdmin   = "admin"
	RoleBilling = "billing"
)

// HasRole reports whether the user on ctx holds one of roles.
func HasRole(ctx context.Context, roles ...string) bool {
	held := RolesFromContext(ctx)
	if slices.Contains(held, RoleAdmin) {
		return true
	}
	for _, r := range roles {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}

// RequireRole rejects requests from users holding none of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	msg := "required role: " + strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasRole(c.Request().Context(), roles...) {
				return echo.NewHTTPError(http.StatusForbidden, msg)
			}
			return next(c)
		}
	}
}
