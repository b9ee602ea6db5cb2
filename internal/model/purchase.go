package model

import (
	"fmt"
	"strings"
	"time"
)

// PurchaseStatus is the lifecycle state of a purchase.  Only three
// values exist; UNPAID is the single non-terminal state.
type PurchaseStatus string

const (
	StatusUnpaid    PurchaseStatus = "UNPAID"
	StatusPaid      PurchaseStatus = "PAID"
	StatusCancelled PurchaseStatus = "CANCELLED"
)

// ParsePurchaseStatus converts user input into a PurchaseStatus.  The
// comparison is case-insensitive.
func ParsePurchaseStatus(s string) (PurchaseStatus, error) {
	switch PurchaseStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusUnpaid:
		return StatusUnpaid, nil
	case StatusPaid:
		return StatusPaid, nil
	case StatusCancelled:
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown purchase status %q", s)
}

// Terminal reports whether no further transition is possible.
func (s PurchaseStatus) Terminal() bool {
	switch s {
	case StatusPaid, StatusCancelled:
		return true
	case StatusUnpaid:
		return false
	}
	return true
}

// CanTransitionTo reports whether moving from s to next is allowed.
// UNPAID -> PAID and UNPAID -> CANCELLED are the only legal moves.
func (s PurchaseStatus) CanTransitionTo(next PurchaseStatus) bool {
	if s != StatusUnpaid {
		return false
	}
	return next == StatusPaid || next == StatusCancelled
}

// HoldsSeats reports whether a purchase in this status counts against
// room capacity.
func (s PurchaseStatus) HoldsSeats() bool {
	return s == StatusUnpaid || s == StatusPaid
}

// Purchase is a claim on a number of seats for one screening.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – buyer.
//  ScreeningID – screening the seats belong to.
//  Seats       – number of seats; at least one.
//  Status      – UNPAID, PAID or CANCELLED.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last status change.
type Purchase struct {
	ID          uint64         // purchases.id
	UserID      uint64         // purchases.user_id
	ScreeningID uint64         // purchases.screening_id
	Seats       uint32         // purchases.seats
	Status      PurchaseStatus // purchases.status
	CreatedAt   time.Time      // purchases.created_at
	UpdatedAt   time.Time      // purchases.updated_at
}

// PurchaseFilter narrows a purchase listing.  Zero values disable a
// condition.  Results are always ordered by id ascending so Limit and
// Offset paginate stably.
type PurchaseFilter struct {
	UserID      uint64
	ScreeningID uint64
	Status      PurchaseStatus
	Limit       int
	Offset      int
}

// Sale is a denormalised view of one PAID purchase joined with its
// screening and movie.  The statistics aggregator works exclusively on
// sales.
type Sale struct {
	PurchaseID  uint64
	ScreeningID uint64
	MovieID     uint64
	MovieTitle  string
	Categories  []string
	Seats       uint32
	Price       float64
	StartsAt    time.Time
}

// Amount is the revenue the sale contributed.
func (s Sale) Amount() float64 {
	return float64(s.Seats) * s.Price
}

// Page is an optional limit/offset window over an ordered listing.  A
// zero Limit means "no limit".
type Page struct {
	Limit  int
	Offset int
}
