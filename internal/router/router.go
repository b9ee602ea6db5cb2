// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-scheduling/internal/handler"
	"github.com/iliyamo/cinema-scheduling/internal/middleware"
	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// Handlers bundles everything the routes dispatch to.  Cache may be nil.
type Handlers struct {
	Health     echo.HandlerFunc
	Auth       *handler.AuthHandler
	Catalog    *handler.CatalogHandler
	Screenings *handler.ScreeningHandler
	Purchases  *handler.PurchaseHandler
	Statistics *handler.StatisticsHandler

	Tokens middleware.TokenParser
	Cache  echo.MiddlewareFunc
}

// Register mounts every route.  All API routes live under /v1.
func Register(e *echo.Echo, h Handlers) {
	if h.Cache == nil {
		h.Cache = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	RegisterRoutes(e, h.Health)
	RegisterAuth(e, h.Auth, h.Tokens)
	RegisterPublic(e, h.Catalog, h.Screenings, h.Cache)
	RegisterCustomer(e, h.Purchases, h.Tokens)
	RegisterAdmin(e, h, h.Tokens)
}

// RegisterRoutes exposes the unauthenticated health check.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterAuth registers session endpoints.  Register, login, refresh
// and logout do not need an access token; /v1/me does.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokens middleware.TokenParser) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me,
		middleware.Authenticate(tokens),
		middleware.RequireRole(model.RoleAdmin, model.RoleCustomer),
	)
}

// RegisterPublic registers read-only browse endpoints for guests.
// Catalogue lists go through the response cache.
func RegisterPublic(e *echo.Echo, catalog *handler.CatalogHandler, screenings *handler.ScreeningHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/movies", catalog.Movies, cache)
	e.GET("/v1/rooms", catalog.Rooms, cache)
	e.GET("/v1/screenings", screenings.List)
	e.GET("/v1/screenings/:id", screenings.Get)
}
