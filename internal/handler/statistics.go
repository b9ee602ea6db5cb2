package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/service"
)

// StatisticsHandler serves /v1/stats.  Every endpoint takes
// ?period=WEEK|MONTH|YEAR|THIS_WEEK|LAST_WEEK|... (default WEEK).
type StatisticsHandler struct {
	svc *service.StatisticsService
	log *zap.Logger
}

// NewStatisticsHandler wires the statistics endpoints to svc.
func NewStatisticsHandler(svc *service.StatisticsService, log *zap.Logger) *StatisticsHandler {
	return &StatisticsHandler{svc: svc, log: log.Named("stats")}
}

func periodOf(c echo.Context) (service.Period, error) {
	raw := c.QueryParam("period")
	if raw == "" {
		return service.PeriodWeek, nil
	}
	return service.ParsePeriod(raw)
}

// envelope resolves the window for the response envelope.  Services
// resolve it again from the same clock, so the two agree to the second.
func (h *StatisticsHandler) envelope(p service.Period, key string, value any) (echo.Map, error) {
	w, err := h.svc.Window(p)
	if err != nil {
		return nil, err
	}
	return echo.Map{"period": p, "from": w.From, "to": w.To, key: value}, nil
}

// Revenue handles GET /v1/stats/revenue.
func (h *StatisticsHandler) Revenue(c echo.Context) error {
	p, err := periodOf(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	v, err := h.svc.RevenueForPeriod(ctx, p)
	if err != nil {
		return respondError(c, h.log, err)
	}
	body, err := h.envelope(p, "revenue", v)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, body)
}

// PopularMovie handles GET /v1/stats/popular-movie.  The movie is null
// when nothing was sold.
func (h *StatisticsHandler) PopularMovie(c echo.Context) error {
	p, err := periodOf(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	m, err := h.svc.MostPopularMovie(ctx, p)
	if err != nil {
		return respondError(c, h.log, err)
	}
	body, err := h.envelope(p, "movie", m)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, body)
}

// PopularCategory handles GET /v1/stats/popular-category.
func (h *StatisticsHandler) PopularCategory(c echo.Context) error {
	p, err := periodOf(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	cat, err := h.svc.MostPopularCategory(ctx, p)
	if err != nil {
		return respondError(c, h.log, err)
	}
	body, err := h.envelope(p, "category", cat)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, body)
}

// Attendance handles GET /v1/stats/attendance.
func (h *StatisticsHandler) Attendance(c echo.Context) error {
	p, err := periodOf(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	avg, err := h.svc.AverageAttendance(ctx, p)
	if err != nil {
		return respondError(c, h.log, err)
	}
	body, err := h.envelope(p, "average_attendance", avg)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, body)
}

// Summary handles GET /v1/stats/summary.
func (h *StatisticsHandler) Summary(c echo.Context) error {
	p, err := periodOf(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	sum, err := h.svc.Summary(ctx, p)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, sum)
}
