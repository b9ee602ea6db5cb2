// Package queue defines the purchase event payload and the RabbitMQ
// publisher and consumer that carry it.
package queue

import "time"

// PurchaseEventsQueue is the durable queue every purchase event goes to.
const PurchaseEventsQueue = "purchase.events"

// Event types.
const (
	EventPurchaseCreated   = "purchase.created"
	EventPurchasePaid      = "purchase.paid"
	EventPurchaseCancelled = "purchase.cancelled"
	EventPurchaseDeleted   = "purchase.deleted"
)

// PurchaseEvent is published after a purchase changes and the change
// has been committed.  It carries enough for downstream consumers
// (ledger, notifications) to act without reading the database.
type PurchaseEvent struct {
	EventID           string  `json:"event_id"`
	Type              string  `json:"type"`
	PurchaseID        uint64  `json:"purchase_id"`
	UserID            uint64  `json:"user_id"`
	ScreeningID       uint64  `json:"screening_id"`
	Seats             uint32  `json:"seats"`
	Status            string  `json:"status"`
	Amount            float64 `json:"amount"`
	ScreeningStartsAt string  `json:"screening_starts_at"`
	OccurredAt        string  `json:"occurred_at"`
}

// FormatTime renders timestamps the way events carry them.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
