package model

import (
	"testing"
	"time"
)

func TestPurchaseStatusTransitions(t *testing.T) {
	t.Parallel()

	statuses := []PurchaseStatus{StatusUnpaid, StatusPaid, StatusCancelled}
	allowed := map[[2]PurchaseStatus]bool{
		{StatusUnpaid, StatusPaid}:      true,
		{StatusUnpaid, StatusCancelled}: true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]PurchaseStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
	if StatusUnpaid.Terminal() || !StatusPaid.Terminal() || !StatusCancelled.Terminal() {
		t.Fatal("only UNPAID is non-terminal")
	}
	if !StatusUnpaid.HoldsSeats() || !StatusPaid.HoldsSeats() || StatusCancelled.HoldsSeats() {
		t.Fatal("UNPAID and PAID hold seats, CANCELLED does not")
	}
}

func TestParsePurchaseStatus(t *testing.T) {
	t.Parallel()

	if s, err := ParsePurchaseStatus(" paid "); err != nil || s != StatusPaid {
		t.Fatalf("expected PAID, got %q err=%v", s, err)
	}
	if _, err := ParsePurchaseStatus("refunded"); err == nil {
		t.Fatal("expected an error for an unknown status")
	}
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)
	end := base.Add(2 * time.Hour)

	tests := []struct {
		name       string
		start, fin time.Time
		want       bool
	}{
		{"touching after", end, end.Add(time.Hour), false},
		{"touching before", base.Add(-time.Hour), base, false},
		{"inside", base.Add(time.Minute), base.Add(time.Hour), true},
		{"covering", base.Add(-time.Hour), end.Add(time.Hour), true},
		{"straddling end", end.Add(-time.Minute), end.Add(time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(base, end, tt.start, tt.fin); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestActor(t *testing.T) {
	t.Parallel()

	admin := Actor{UserID: 1, Role: RoleAdmin}
	customer := Actor{UserID: 2, Role: RoleCustomer}
	if !admin.CanActFor(99) || !customer.CanActFor(2) || customer.CanActFor(3) {
		t.Fatal("admins act for anyone, customers only for themselves")
	}
}
