package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/apperr"
	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/service"
)

// ScreeningHandler serves /v1/screenings.
type ScreeningHandler struct {
	svc *service.SchedulingService
	log *zap.Logger
}

// NewScreeningHandler wires the screening endpoints to svc.
func NewScreeningHandler(svc *service.SchedulingService, log *zap.Logger) *ScreeningHandler {
	return &ScreeningHandler{svc: svc, log: log.Named("screenings")}
}

type screeningReq struct {
	MovieID  uint64    `json:"movie_id" validate:"required"`
	RoomID   uint64    `json:"room_id" validate:"required"`
	StartsAt time.Time `json:"starts_at" validate:"required"`
	Price    float64   `json:"price" validate:"gte=0"`
}

func (r screeningReq) input() service.ScreeningInput {
	return service.ScreeningInput{MovieID: r.MovieID, RoomID: r.RoomID, StartsAt: r.StartsAt, Price: r.Price}
}

type screeningResp struct {
	ID        uint64    `json:"id"`
	MovieID   uint64    `json:"movie_id"`
	RoomID    uint64    `json:"room_id"`
	StartsAt  time.Time `json:"starts_at"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toScreeningResp(s model.Screening) screeningResp {
	return screeningResp{
		ID:        s.ID,
		MovieID:   s.MovieID,
		RoomID:    s.RoomID,
		StartsAt:  s.StartsAt.UTC(),
		Price:     s.Price,
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func toScreeningList(in []model.Screening) []screeningResp {
	out := make([]screeningResp, 0, len(in))
	for _, s := range in {
		out = append(out, toScreeningResp(s))
	}
	return out
}

// Create handles POST /v1/screenings.
func (h *ScreeningHandler) Create(c echo.Context) error {
	var req screeningReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	sc, err := h.svc.CreateScreening(ctx, req.input())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toScreeningResp(*sc))
}

// Update handles PUT /v1/screenings/:id.  The body replaces every field.
func (h *ScreeningHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req screeningReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	sc, err := h.svc.UpdateScreening(ctx, id, req.input())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toScreeningResp(*sc))
}

// Delete handles DELETE /v1/screenings/:id.
func (h *ScreeningHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	found, err := h.svc.DeleteScreening(ctx, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if !found {
		return respondError(c, h.log, apperr.NotFound("screening", id))
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /v1/screenings/:id.
func (h *ScreeningHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	sc, err := h.svc.GetScreening(ctx, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toScreeningResp(*sc))
}

// List handles GET /v1/screenings.  ?date=YYYY-MM-DD restricts to one
// calendar day in the service time zone; ?after=RFC3339 returns only
// screenings starting later.  The two are mutually exclusive.
func (h *ScreeningHandler) List(c echo.Context) error {
	date, after := c.QueryParam("date"), c.QueryParam("after")
	if date != "" && after != "" {
		return respondError(c, h.log, badRequest("use either date or after, not both"))
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	var (
		items []model.Screening
		err   error
	)
	switch {
	case date != "":
		day, perr := time.ParseInLocation(time.DateOnly, date, h.svc.Location())
		if perr != nil {
			return respondError(c, h.log, apperr.Validation("invalid date", map[string]any{"date": "expected YYYY-MM-DD"}))
		}
		items, err = h.svc.ListScreeningsOnDate(ctx, day)
	case after != "":
		t, perr := time.Parse(time.RFC3339, after)
		if perr != nil {
			return respondError(c, h.log, apperr.Validation("invalid after", map[string]any{"after": "expected RFC3339 timestamp"}))
		}
		items, err = h.svc.ListUpcomingScreenings(ctx, t)
	default:
		items, err = h.svc.ListScreenings(ctx)
	}
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": toScreeningList(items)})
}
