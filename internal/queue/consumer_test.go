package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConsumerHandleAppendsLedgerLine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewConsumer("amqp://unused", dir, nil)

	ev := PurchaseEvent{
		EventID:           "e-1",
		Type:              EventPurchasePaid,
		PurchaseID:        7,
		UserID:            3,
		ScreeningID:       11,
		Seats:             2,
		Status:            "PAID",
		Amount:            20,
		ScreeningStartsAt: "2025-01-01T18:00:00Z",
		OccurredAt:        "2024-12-31T10:00:00Z",
	}
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Handle(body); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, LedgerFile))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 ledger lines, got %d", len(lines))
	}
	for _, want := range []string{"purchase.paid", "purchase_id=7", "seats=2", "amount=20.00"} {
		if !strings.Contains(lines[0], want) {
			t.Fatalf("expected %q in %q", want, lines[0])
		}
	}
}

func TestConsumerHandleRejectsBadPayload(t *testing.T) {
	t.Parallel()

	c := NewConsumer("amqp://unused", t.TempDir(), nil)
	if err := c.Handle([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed body")
	}
	if err := c.Handle([]byte(`{"type":""}`)); err == nil {
		t.Fatal("expected error for event without type")
	}
}
