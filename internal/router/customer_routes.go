package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-scheduling/internal/handler"
	"github.com/iliyamo/cinema-scheduling/internal/middleware"
	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// RegisterCustomer registers the purchase endpoints open to any signed-in
// user.  Ownership of a purchase is checked by the reservation service,
// so an ADMIN may act on anyone's purchase through the same routes.
//
// Middleware is attached per route: group middleware would also guard
// the group's catch-all, turning unknown /v1 paths into 401s.
func RegisterCustomer(e *echo.Echo, h *handler.PurchaseHandler, tokens middleware.TokenParser) {
	g := e.Group("/v1")
	mw := []echo.MiddlewareFunc{
		middleware.Authenticate(tokens),
		middleware.RequireRole(model.RoleCustomer, model.RoleAdmin),
	}
	g.POST("/purchases", h.Create, mw...)
	g.POST("/purchases/:id/pay", h.Pay, mw...)
	g.POST("/purchases/:id/cancel", h.Cancel, mw...)
	g.GET("/purchases/:id", h.Get, mw...)
	g.GET("/purchases/:id/ticket", h.Ticket, mw...)
	g.GET("/my-purchases", h.Mine, mw...)
}
