// Package handler exposes the HTTP API.  Handlers translate JSON to
// service calls and typed service errors back to JSON.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/apperr"
	"github.com/iliyamo/cinema-scheduling/internal/middleware"
	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// requestTimeout bounds the store calls of one request.
const requestTimeout = 5 * time.Second

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// respondError renders err.  Internal causes are logged, never returned.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		log.Error("request failed",
			zap.String("route", c.Path()),
			zap.Any("request_id", c.Get("request_id")),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error", Code: apperr.CodeInternal})
	}
	return c.JSON(e.HTTPStatus(), errorBody{Error: e.Message, Code: e.Code, Details: e.Details})
}

func badRequest(msg string) error {
	return apperr.Validation(msg, nil)
}

// bind decodes the body into req and runs the registered validator.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return badRequest("invalid body")
	}
	return c.Validate(req)
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// actorOf returns the authenticated caller.  Routes using it sit behind
// middleware.Authenticate, so a missing actor is a wiring bug.
func actorOf(c echo.Context) model.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid id", map[string]any{name: c.Param(name)})
	}
	return id, nil
}

// queryID parses an optional numeric query parameter; absent means 0.
func queryID(c echo.Context, name string) (uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid query parameter", map[string]any{name: raw})
	}
	return id, nil
}

// pageOf reads ?page= (1-based) and ?page_size= (clamped to 1..100).
func pageOf(c echo.Context) (model.Page, int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	switch {
	case size < 1:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}
	return model.Page{Limit: size, Offset: (page - 1) * size}, page, size
}

// ErrorHandler renders errors that escape the handlers (unknown routes,
// wrong methods, middleware failures) in the same JSON shape.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			_ = respondError(c, log, err)
			return
		}
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		code := "HTTP_" + strconv.Itoa(he.Code)
		switch he.Code {
		case http.StatusNotFound:
			code = apperr.CodeNotFound
		case http.StatusInternalServerError:
			log.Error("unhandled error", zap.String("route", c.Path()), zap.Error(err))
			code, msg = apperr.CodeInternal, "internal error"
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = c.JSON(he.Code, errorBody{Error: msg, Code: code})
	}
}
