package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/config"
	"github.com/iliyamo/cinema-scheduling/internal/model"
)

type stubParser map[string]model.Actor

func (s stubParser) Parse(raw string) (model.Actor, error) {
	if a, ok := s[raw]; ok {
		return a, nil
	}
	return model.Actor{}, errors.New("bad token")
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	tokens := stubParser{
		"admin-token":    {UserID: 1, Role: model.RoleAdmin},
		"customer-token": {UserID: 2, Role: model.RoleCustomer},
	}
	g := e.Group("/v1", Authenticate(tokens))
	g.GET("/me", func(c echo.Context) error {
		a, _ := ActorFrom(c)
		return c.JSON(http.StatusOK, a)
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole(model.RoleAdmin))
	return e
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	t.Parallel()
	e := newTestEcho()

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/v1/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/v1/me", "Basic abc", http.StatusUnauthorized},
		{"bad token", "/v1/me", "Bearer nope", http.StatusUnauthorized},
		{"customer me", "/v1/me", "Bearer customer-token", http.StatusOK},
		{"lowercase scheme", "/v1/me", "bearer customer-token", http.StatusOK},
		{"customer on admin route", "/v1/admin", "Bearer customer-token", http.StatusForbidden},
		{"admin on admin route", "/v1/admin", "Bearer admin-token", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLocalTokenBucket(t *testing.T) {
	t.Parallel()

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, nil, zap.NewNop()))

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes[i] = rec.Code
		if i == 2 && rec.Header().Get("Retry-After") == "" {
			t.Fatal("expected Retry-After on the blocked request")
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 200, 200, 429; got %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other clients have their own bucket, got %d", rec.Code)
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(RequestLogger(zap.NewNop()))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatal("expected a generated request id")
	}

	const id = "7d444840-9dc0-11d1-b245-5ffdce74fad2"
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderXRequestID, id)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Header().Get(echo.HeaderXRequestID); got != id {
		t.Fatalf("client request id should be kept, got %q", got)
	}
}
