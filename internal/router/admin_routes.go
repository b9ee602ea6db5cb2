package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-scheduling/internal/middleware"
	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// RegisterAdmin registers ADMIN-scoped endpoints under /v1: schedule
// writes, purchase administration and statistics.  As in
// RegisterCustomer, middleware is attached per route.
func RegisterAdmin(e *echo.Echo, h Handlers, tokens middleware.TokenParser) {
	g := e.Group("/v1")
	mw := []echo.MiddlewareFunc{
		middleware.Authenticate(tokens),
		middleware.RequireRole(model.RoleAdmin),
	}

	// ---- Screenings ----
	g.POST("/screenings", h.Screenings.Create, mw...)
	g.PUT("/screenings/:id", h.Screenings.Update, mw...)
	g.DELETE("/screenings/:id", h.Screenings.Delete, mw...)
	g.GET("/screenings/:id/purchases", h.Purchases.ByScreening, mw...)

	// ---- Purchases ----
	g.GET("/purchases", h.Purchases.List, mw...)
	g.DELETE("/purchases/:id", h.Purchases.Delete, mw...)

	// ---- Statistics ---- (cached after the role check)
	stats := append(mw[:len(mw):len(mw)], h.Cache)
	g.GET("/stats/revenue", h.Statistics.Revenue, stats...)
	g.GET("/stats/popular-movie", h.Statistics.PopularMovie, stats...)
	g.GET("/stats/popular-category", h.Statistics.PopularCategory, stats...)
	g.GET("/stats/attendance", h.Statistics.Attendance, stats...)
	g.GET("/stats/summary", h.Statistics.Summary, stats...)
}
