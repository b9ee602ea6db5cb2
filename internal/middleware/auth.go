package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// Context keys set by Authenticate.  "user_id" and "role" stay
// available for code that only needs the raw claims.
const (
	actorKey  = "actor"
	userIDKey = "user_id"
	roleKey   = "role"
)

// TokenParser verifies an access token and returns its caller.
type TokenParser interface {
	Parse(raw string) (model.Actor, error)
}

// Authenticate validates the Bearer access token and stores the caller
// in the request context.  Requests without a valid token get 401.
func Authenticate(tokens TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return deny(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			}
			actor, err := tokens.Parse(raw)
			if err != nil {
				return deny(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			}
			SetActor(c, actor)
			return next(c)
		}
	}
}

// SetActor stores actor in the request context.
func SetActor(c echo.Context, actor model.Actor) {
	c.Set(actorKey, actor)
	c.Set(userIDKey, strconv.FormatUint(actor.UserID, 10))
	c.Set(roleKey, actor.Role)
}

// ActorFrom returns the authenticated caller, if any.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	a, ok := c.Get(actorKey).(model.Actor)
	return a, ok
}

func bearer(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// currentUserID keys rate limits; anonymous callers share "anon".
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(userIDKey).(string); ok && s != "" {
		return s
	}
	return "anon"
}

func deny(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}
