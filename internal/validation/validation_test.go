package validation

import (
	"testing"

	"github.com/iliyamo/cinema-scheduling/internal/apperr"
)

type purchaseRequest struct {
	ScreeningID uint64 `json:"screening_id" validate:"required"`
	Seats       int    `json:"seats" validate:"gte=1,lte=1000"`
	Status      string `json:"status" validate:"purchase_status"`
	Email       string `json:"email" validate:"omitempty,email"`
}

func TestValidate(t *testing.T) {
	t.Parallel()
	v := New()

	if err := v.Validate(&purchaseRequest{ScreeningID: 1, Seats: 2, Status: "paid"}); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	err := v.Validate(&purchaseRequest{Seats: 0, Status: "REFUNDED", Email: "nope"})
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	details := apperr.From(err).Details
	want := map[string]string{
		"screening_id": "required",
		"seats":        "must be at least 1",
		"status":       "must be UNPAID, PAID or CANCELLED",
		"email":        "must be a valid email address",
	}
	for field, msg := range want {
		if details[field] != msg {
			t.Errorf("%s: expected %q, got %v", field, msg, details[field])
		}
	}
}
