package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// MovieLister lists the catalogue.
type MovieLister interface {
	List(ctx context.Context) ([]model.Movie, error)
}

// RoomLister lists rooms.
type RoomLister interface {
	List(ctx context.Context) ([]model.Room, error)
}

// CatalogHandler exposes the read-only movie and room catalogue.
type CatalogHandler struct {
	movies MovieLister
	rooms  RoomLister
	log    *zap.Logger
}

// NewCatalogHandler serves the read-only catalogue.
func NewCatalogHandler(movies MovieLister, rooms RoomLister, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{movies: movies, rooms: rooms, log: log.Named("catalog")}
}

type movieResp struct {
	ID          uint64   `json:"id"`
	Title       string   `json:"title"`
	DurationMin uint32   `json:"duration_min"`
	Categories  []string `json:"categories"`
}

type roomResp struct {
	ID       uint64 `json:"id"`
	Name     string `json:"name"`
	MaxSeats uint32 `json:"max_seats"`
}

// Movies handles GET /v1/movies.
func (h *CatalogHandler) Movies(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	movies, err := h.movies.List(ctx)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]movieResp, 0, len(movies))
	for _, m := range movies {
		cats := m.Categories
		if cats == nil {
			cats = []string{}
		}
		out = append(out, movieResp{ID: m.ID, Title: m.Title, DurationMin: m.DurationMin, Categories: cats})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// Rooms handles GET /v1/rooms.
func (h *CatalogHandler) Rooms(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	rooms, err := h.rooms.List(ctx)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]roomResp, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomResp{ID: r.ID, Name: r.Name, MaxSeats: r.MaxSeats})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}
