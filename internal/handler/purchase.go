package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/apperr"
	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/service"
	"github.com/iliyamo/cinema-scheduling/internal/ticket"
)

// PurchaseHandler serves /v1/purchases and /v1/my-purchases.
type PurchaseHandler struct {
	svc *service.ReservationService
	log *zap.Logger
}

// NewPurchaseHandler wires the purchase endpoints to svc.
func NewPurchaseHandler(svc *service.ReservationService, log *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{svc: svc, log: log.Named("purchases")}
}

type purchaseReq struct {
	ScreeningID uint64 `json:"screening_id" validate:"required"`
	Seats       int    `json:"seats" validate:"gte=1"`
	// UserID lets an admin buy on behalf of a customer.
	UserID uint64 `json:"user_id,omitempty"`
}

type purchaseResp struct {
	ID          uint64    `json:"id"`
	UserID      uint64    `json:"user_id"`
	ScreeningID uint64    `json:"screening_id"`
	Seats       uint32    `json:"seats"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toPurchaseResp(p model.Purchase) purchaseResp {
	return purchaseResp{
		ID:          p.ID,
		UserID:      p.UserID,
		ScreeningID: p.ScreeningID,
		Seats:       p.Seats,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func pagedPurchases(c echo.Context, items []model.Purchase, page, size int) error {
	out := make([]purchaseResp, 0, len(items))
	for _, p := range items {
		out = append(out, toPurchaseResp(p))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "page": page, "page_size": size})
}

// Create handles POST /v1/purchases.
func (h *PurchaseHandler) Create(c echo.Context) error {
	var req purchaseReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	p, err := h.svc.CreatePurchase(ctx, actorOf(c), service.PurchaseInput{
		UserID:      req.UserID,
		ScreeningID: req.ScreeningID,
		Seats:       req.Seats,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toPurchaseResp(*p))
}

// Pay handles POST /v1/purchases/:id/pay.
func (h *PurchaseHandler) Pay(c echo.Context) error {
	return h.transition(c, h.svc.ConfirmPayment)
}

// Cancel handles POST /v1/purchases/:id/cancel.
func (h *PurchaseHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.svc.CancelPurchase)
}

func (h *PurchaseHandler) transition(c echo.Context, fn func(context.Context, model.Actor, uint64) (*model.Purchase, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	p, err := fn(ctx, actorOf(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toPurchaseResp(*p))
}

// Get handles GET /v1/purchases/:id.  Customers only see their own.
func (h *PurchaseHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	p, err := h.svc.GetPurchase(ctx, actorOf(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toPurchaseResp(*p))
}

// Delete handles DELETE /v1/purchases/:id (admin).
func (h *PurchaseHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.svc.DeletePurchase(ctx, actorOf(c), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Mine handles GET /v1/my-purchases.
func (h *PurchaseHandler) Mine(c echo.Context) error {
	page, n, size := pageOf(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	items, err := h.svc.ListPurchasesByUser(ctx, actorOf(c).UserID, page)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return pagedPurchases(c, items, n, size)
}

// List handles GET /v1/purchases (admin) with optional user_id,
// screening_id and status filters.
func (h *PurchaseHandler) List(c echo.Context) error {
	userID, err := queryID(c, "user_id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	screeningID, err := queryID(c, "screening_id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var status model.PurchaseStatus
	if raw := c.QueryParam("status"); raw != "" {
		if status, err = model.ParsePurchaseStatus(raw); err != nil {
			return respondError(c, h.log, apperr.Validation("invalid status", map[string]any{"status": raw}))
		}
	}
	page, n, size := pageOf(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	items, err := h.svc.ListPurchases(ctx, model.PurchaseFilter{
		UserID:      userID,
		ScreeningID: screeningID,
		Status:      status,
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return pagedPurchases(c, items, n, size)
}

// ByScreening handles GET /v1/screenings/:id/purchases (admin).
func (h *PurchaseHandler) ByScreening(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	page, n, size := pageOf(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	items, err := h.svc.ListPurchasesByScreening(ctx, id, page)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return pagedPurchases(c, items, n, size)
}

// Ticket handles GET /v1/purchases/:id/ticket and returns a QR code PNG.
// ?format=json returns the ticket fields instead.
func (h *PurchaseHandler) Ticket(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	t, err := h.svc.Ticket(ctx, actorOf(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if c.QueryParam("format") == "json" {
		return c.JSON(http.StatusOK, echo.Map{
			"code":         t.Code,
			"purchase_id":  t.PurchaseID,
			"screening_id": t.ScreeningID,
			"seats":        t.Seats,
			"starts_at":    t.StartsAt,
		})
	}

	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size < 64 || size > 1024 {
		size = ticket.DefaultSize
	}
	png, err := t.PNG(size)
	if err != nil {
		return respondError(c, h.log, apperr.Internal("render ticket", err))
	}
	c.Response().Header().Set("X-Ticket-Code", t.Code)
	return c.Blob(http.StatusOK, "image/png", png)
}
