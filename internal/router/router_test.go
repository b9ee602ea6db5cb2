package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/cinema-scheduling/internal/auth"
	"github.com/iliyamo/cinema-scheduling/internal/clock"
	"github.com/iliyamo/cinema-scheduling/internal/handler"
	"github.com/iliyamo/cinema-scheduling/internal/middleware"
	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/repository/memstore"
	"github.com/iliyamo/cinema-scheduling/internal/service"
	"github.com/iliyamo/cinema-scheduling/internal/validation"
)

// Monday 2024-12-30 09:00 UTC.
var testNow = time.Date(2024, 12, 30, 9, 0, 0, 0, time.UTC)

type app struct {
	e      *echo.Echo
	clock  *clock.Fixed
	issuer *auth.Issuer

	admin, alice, bob string
}

func newApp(t *testing.T) *app {
	t.Helper()
	log := zap.NewNop()

	s := memstore.New()
	s.AddMovie(model.Movie{ID: 1, Title: "Arrival", DurationMin: 120, Categories: []string{"drama", "sci-fi"}})
	s.AddMovie(model.Movie{ID: 2, Title: "Heat", DurationMin: 90, Categories: []string{"crime", "drama"}})
	s.AddRoom(model.Room{ID: 1, Name: "Main", MaxSeats: 50})
	s.AddRoom(model.Room{ID: 2, Name: "Small", MaxSeats: 10})
	s.AddUser(model.User{ID: 1, Email: "admin@example.com", Role: model.RoleAdmin})
	s.AddUser(model.User{ID: 2, Email: "alice@example.com", Role: model.RoleCustomer})
	s.AddUser(model.User{ID: 3, Email: "bob@example.com", Role: model.RoleCustomer})

	repos := service.Repositories{
		Tx:         s,
		Movies:     s.Movies(),
		Rooms:      s.Rooms(),
		Users:      s.Users(),
		Screenings: s.Screenings(),
		Purchases:  s.Purchases(),
	}
	clk := clock.NewFixed(testNow)
	issuer := auth.NewIssuer("test-secret", 15*time.Minute, 24*time.Hour, clk)

	e := echo.New()
	e.Validator = validation.New()
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(middleware.RequestLogger(log))
	Register(e, Handlers{
		Health:     handler.Health(nil),
		Auth:       handler.NewAuthHandler(s.Users(), s.Tokens(), issuer, bcrypt.MinCost, clk, log),
		Catalog:    handler.NewCatalogHandler(s.Movies(), s.Rooms(), log),
		Screenings: handler.NewScreeningHandler(service.NewSchedulingService(repos, clk, time.UTC, log), log),
		Purchases:  handler.NewPurchaseHandler(service.NewReservationService(repos, clk, nil, log), log),
		Statistics: handler.NewStatisticsHandler(service.NewStatisticsService(s.Purchases(), clk, time.UTC, log), log),
		Tokens:     issuer,
	})

	a := &app{e: e, clock: clk, issuer: issuer}
	a.admin = a.token(t, 1, model.RoleAdmin)
	a.alice = a.token(t, 2, model.RoleCustomer)
	a.bob = a.token(t, 3, model.RoleCustomer)
	return a
}

func (a *app) token(t *testing.T, userID uint64, role string) string {
	t.Helper()
	tok, err := a.issuer.Access(userID, role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok.Value
}

func (a *app) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type errResp struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

type idResp struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if code == "" {
		return
	}
	if got := decode[errResp](t, rec).Code; got != code {
		t.Fatalf("expected code %s, got %s", code, got)
	}
}

func (a *app) createScreening(t *testing.T, movieID, roomID uint64, start time.Time, price float64) uint64 {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/screenings", a.admin, map[string]any{
		"movie_id": movieID, "room_id": roomID, "starts_at": start, "price": price,
	})
	expect(t, rec, http.StatusCreated, "")
	return decode[idResp](t, rec).ID
}

func TestPurchaseFlow(t *testing.T) {
	a := newApp(t)
	scID := a.createScreening(t, 1, 1, testNow.Add(24*time.Hour), 12.5)

	rec := a.do(t, http.MethodPost, "/v1/purchases", a.alice, map[string]any{"screening_id": scID, "seats": 4})
	expect(t, rec, http.StatusCreated, "")
	p := decode[idResp](t, rec)
	if p.Status != "UNPAID" {
		t.Fatalf("new purchase should be UNPAID, got %s", p.Status)
	}
	id := strconv.FormatUint(p.ID, 10)

	// Tickets exist only once paid.
	expect(t, a.do(t, http.MethodGet, "/v1/purchases/"+id+"/ticket", a.alice, nil), http.StatusConflict, "PURCHASE_NOT_PAID")

	rec = a.do(t, http.MethodPost, "/v1/purchases/"+id+"/pay", a.alice, nil)
	expect(t, rec, http.StatusOK, "")
	if got := decode[idResp](t, rec).Status; got != "PAID" {
		t.Fatalf("expected PAID, got %s", got)
	}
	expect(t, a.do(t, http.MethodPost, "/v1/purchases/"+id+"/pay", a.alice, nil), http.StatusConflict, "PURCHASE_ALREADY_PAID")
	expect(t, a.do(t, http.MethodPost, "/v1/purchases/"+id+"/cancel", a.alice, nil), http.StatusConflict, "PURCHASE_ALREADY_PAID")

	// Bob cannot see Alice's purchase, nor cancel it.
	expect(t, a.do(t, http.MethodGet, "/v1/purchases/"+id, a.bob, nil), http.StatusNotFound, "NOT_FOUND")
	expect(t, a.do(t, http.MethodPost, "/v1/purchases/"+id+"/cancel", a.bob, nil), http.StatusForbidden, "FORBIDDEN")

	rec = a.do(t, http.MethodGet, "/v1/purchases/"+id+"/ticket", a.alice, nil)
	expect(t, rec, http.StatusOK, "")
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/png" {
		t.Fatalf("expected image/png, got %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatal("ticket body is not a PNG")
	}
	if rec.Header().Get("X-Ticket-Code") == "" {
		t.Fatal("missing ticket code header")
	}

	rec = a.do(t, http.MethodGet, "/v1/my-purchases", a.alice, nil)
	expect(t, rec, http.StatusOK, "")
	mine := decode[struct {
		Items []idResp `json:"items"`
	}](t, rec)
	if len(mine.Items) != 1 || mine.Items[0].ID != p.ID {
		t.Fatalf("unexpected my-purchases: %+v", mine.Items)
	}

	// Once the screening has run, the sale counts for the rolling week.
	// Access tokens live 15 minutes, so re-issue them after the jump.
	a.clock.Advance(48 * time.Hour)
	expect(t, a.do(t, http.MethodGet, "/v1/stats/revenue?period=week", a.admin, nil), http.StatusUnauthorized, "UNAUTHORIZED")
	a.admin = a.token(t, 1, model.RoleAdmin)
	a.bob = a.token(t, 3, model.RoleCustomer)
	rec = a.do(t, http.MethodGet, "/v1/stats/revenue?period=week", a.admin, nil)
	expect(t, rec, http.StatusOK, "")
	rev := decode[struct {
		Period  string  `json:"period"`
		Revenue float64 `json:"revenue"`
	}](t, rec)
	if rev.Period != "WEEK" || rev.Revenue != 50 {
		t.Fatalf("expected WEEK revenue 50, got %+v", rev)
	}

	expect(t, a.do(t, http.MethodPost, "/v1/purchases", a.bob, map[string]any{"screening_id": scID, "seats": 1}),
		http.StatusConflict, "SCREENING_ALREADY_STARTED")
}

func TestCapacityAndConflictsOverHTTP(t *testing.T) {
	a := newApp(t)
	start := testNow.Add(24 * time.Hour)
	scID := a.createScreening(t, 1, 2, start, 9)

	// Arrival runs 120 minutes; a start 119 minutes later overlaps.
	rec := a.do(t, http.MethodPost, "/v1/screenings", a.admin, map[string]any{
		"movie_id": 2, "room_id": 2, "starts_at": start.Add(119 * time.Minute), "price": 9,
	})
	expect(t, rec, http.StatusConflict, "SCHEDULE_CONFLICT")
	a.createScreening(t, 2, 2, start.Add(120*time.Minute), 9)

	expect(t, a.do(t, http.MethodPost, "/v1/purchases", a.alice, map[string]any{"screening_id": scID, "seats": 8}), http.StatusCreated, "")
	rec = a.do(t, http.MethodPost, "/v1/purchases", a.bob, map[string]any{"screening_id": scID, "seats": 3})
	expect(t, rec, http.StatusConflict, "CAPACITY_EXCEEDED")
	if got := decode[errResp](t, rec).Details["remaining"]; got != float64(2) {
		t.Fatalf("expected remaining 2 in details, got %v", got)
	}
	expect(t, a.do(t, http.MethodPost, "/v1/purchases", a.bob, map[string]any{"screening_id": scID, "seats": 2}), http.StatusCreated, "")

	expect(t, a.do(t, http.MethodDelete, "/v1/screenings/"+strconv.FormatUint(scID, 10), a.admin, nil),
		http.StatusConflict, "SCREENING_HAS_PURCHASES")

	rec = a.do(t, http.MethodGet, "/v1/screenings/"+strconv.FormatUint(scID, 10)+"/purchases", a.admin, nil)
	expect(t, rec, http.StatusOK, "")
	byScreening := decode[struct {
		Items []idResp `json:"items"`
	}](t, rec)
	if len(byScreening.Items) != 2 {
		t.Fatalf("expected 2 purchases, got %d", len(byScreening.Items))
	}
}

func TestAccessControlAndErrors(t *testing.T) {
	a := newApp(t)
	future := testNow.Add(24 * time.Hour)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"no token", http.MethodGet, "/v1/my-purchases", "", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage token", http.MethodGet, "/v1/my-purchases", "not-a-jwt", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"customer schedules", http.MethodPost, "/v1/screenings", a.alice,
			map[string]any{"movie_id": 1, "room_id": 1, "starts_at": future, "price": 5}, http.StatusForbidden, "FORBIDDEN"},
		{"customer reads stats", http.MethodGet, "/v1/stats/summary", a.alice, nil, http.StatusForbidden, "FORBIDDEN"},
		{"customer lists all purchases", http.MethodGet, "/v1/purchases", a.alice, nil, http.StatusForbidden, "FORBIDDEN"},
		{"unknown movie", http.MethodPost, "/v1/screenings", a.admin,
			map[string]any{"movie_id": 99, "room_id": 1, "starts_at": future, "price": 5}, http.StatusNotFound, "NOT_FOUND"},
		{"missing room", http.MethodPost, "/v1/screenings", a.admin,
			map[string]any{"movie_id": 1, "starts_at": future, "price": 5}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"zero seats", http.MethodPost, "/v1/purchases", a.alice,
			map[string]any{"screening_id": 1, "seats": 0}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"bad id", http.MethodGet, "/v1/screenings/abc", "", nil, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"missing screening", http.MethodGet, "/v1/screenings/42", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad period", http.MethodGet, "/v1/stats/revenue?period=DECADE", a.admin, nil, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"bad status filter", http.MethodGet, "/v1/purchases?status=REFUNDED", a.admin, nil, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unknown route", http.MethodGet, "/nope", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown v1 route without token", http.MethodGet, "/v1/nope", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown v1 route with token", http.MethodDelete, "/v1/stats/revenue/extra", a.admin, nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expect(t, a.do(t, tt.method, tt.path, tt.token, tt.body), tt.status, tt.code)
		})
	}
}

func TestPublicRoutes(t *testing.T) {
	a := newApp(t)
	day := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	a.createScreening(t, 1, 1, day.Add(18*time.Hour), 10)
	a.createScreening(t, 2, 1, day.Add(24*time.Hour+18*time.Hour), 10)

	rec := a.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatal("expected a request id")
	}

	type list struct {
		Items []json.RawMessage `json:"items"`
	}
	for p, want := range map[string]int{
		"/v1/movies":                     2,
		"/v1/rooms":                      2,
		"/v1/screenings":                 2,
		"/v1/screenings?date=2024-12-31": 1,
		"/v1/screenings?after=2025-01-01T00:00:00Z": 1,
	} {
		rec := a.do(t, http.MethodGet, p, "", nil)
		expect(t, rec, http.StatusOK, "")
		if got := len(decode[list](t, rec).Items); got != want {
			t.Errorf("%s: expected %d items, got %d", p, want, got)
		}
	}
	expect(t, a.do(t, http.MethodGet, "/v1/screenings?date=2024-12-31&after=2025-01-01T00:00:00Z", "", nil),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestAuthSessionLifecycle(t *testing.T) {
	a := newApp(t)
	creds := map[string]any{"email": "Carol@Example.com", "password": "correct-horse"}

	type session struct {
		User struct {
			ID   uint64 `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
		Access  struct{ Token string } `json:"access"`
		Refresh struct{ Token string } `json:"refresh"`
	}

	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", creds)
	expect(t, rec, http.StatusCreated, "")
	reg := decode[session](t, rec)
	if reg.User.Role != model.RoleCustomer || reg.Access.Token == "" {
		t.Fatalf("unexpected registration: %+v", reg)
	}
	expect(t, a.do(t, http.MethodPost, "/v1/auth/register", "", creds), http.StatusConflict, "EMAIL_EXISTS")
	expect(t, a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{"email": "x@example.com", "password": "short"}),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	expect(t, a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "carol@example.com", "password": "wrong-horse"}),
		http.StatusUnauthorized, "UNAUTHORIZED")
	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "carol@example.com", "password": "correct-horse"})
	expect(t, rec, http.StatusOK, "")
	login := decode[session](t, rec)

	rec = a.do(t, http.MethodGet, "/v1/me", login.Access.Token, nil)
	expect(t, rec, http.StatusOK, "")
	me := decode[struct {
		ID    uint64 `json:"id"`
		Email string `json:"email"`
	}](t, rec)
	if me.ID != reg.User.ID || me.Email != "carol@example.com" {
		t.Fatalf("unexpected /me: %+v", me)
	}

	// Refresh rotates: the old token stops working.
	rec = a.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": login.Refresh.Token})
	expect(t, rec, http.StatusOK, "")
	rotated := decode[session](t, rec)
	expect(t, a.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": login.Refresh.Token}),
		http.StatusUnauthorized, "UNAUTHORIZED")

	expect(t, a.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]any{"refresh_token": rotated.Refresh.Token}),
		http.StatusNoContent, "")
	expect(t, a.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": rotated.Refresh.Token}),
		http.StatusUnauthorized, "UNAUTHORIZED")

	// A bearer logout revokes every remaining session of the user.
	expect(t, a.do(t, http.MethodPost, "/v1/auth/logout", reg.Access.Token, nil), http.StatusNoContent, "")
	expect(t, a.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": reg.Refresh.Token}),
		http.StatusUnauthorized, "UNAUTHORIZED")
}
