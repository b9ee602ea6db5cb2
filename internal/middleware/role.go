package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole aborts with 403 unless the authenticated caller has one of
// roles.  It must run after Authenticate.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFrom(c)
			if !ok || !allowed[actor.Role] {
				return deny(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
			}
			return next(c)
		}
	}
}
