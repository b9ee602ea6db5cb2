package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/apperr"
)

func TestPageOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		query              string
		page, size, offset int
	}{
		{"", 1, defaultPageSize, 0},
		{"page=3&page_size=10", 3, 10, 20},
		{"page=0&page_size=1000", 1, maxPageSize, 0},
		{"page=x&page_size=-4", 1, defaultPageSize, 0},
	}
	e := echo.New()
	for _, tt := range tests {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil), httptest.NewRecorder())
		p, page, size := pageOf(c)
		if page != tt.page || size != tt.size || p.Limit != tt.size || p.Offset != tt.offset {
			t.Errorf("%q: got page=%d size=%d %+v", tt.query, page, size, p)
		}
	}
}

func TestRespondErrorHidesInternalCause(t *testing.T) {
	t.Parallel()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	_ = respondError(c, zap.NewNop(), apperr.Internal("load screening", errors.New("dial tcp 10.0.0.7:3306: refused")))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Code != apperr.CodeInternal || body.Error != "internal error" {
		t.Fatalf("internal details leaked: %+v", body)
	}
}

func TestErrorHandlerMapsHTTPErrors(t *testing.T) {
	t.Parallel()
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop())
	e.GET("/only-get", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	tests := []struct {
		method, path string
		status       int
		code         string
	}{
		{http.MethodGet, "/missing", http.StatusNotFound, apperr.CodeNotFound},
		{http.MethodPost, "/only-get", http.StatusMethodNotAllowed, "HTTP_405"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		var body errorBody
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if rec.Code != tt.status || body.Code != tt.code {
			t.Errorf("%s %s: got %d %+v", tt.method, tt.path, rec.Code, body)
		}
	}
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		db     Pinger
		status int
	}{
		{"no database", nil, http.StatusOK},
		{"database up", pinger{}, http.StatusOK},
		{"database down", pinger{err: errors.New("down")}, http.StatusServiceUnavailable},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
			if err := Health(tt.db)(c); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
