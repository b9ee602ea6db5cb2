package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// LedgerFile is the file, relative to the consumer's directory, that
// receives one line per purchase event.
const LedgerFile = "purchases.log"

// Consumer appends purchase events to a ledger file.
type Consumer struct {
	url string
	dir string
	log *zap.Logger
}

// NewConsumer appends to dir/purchases.log.  Nothing connects until Run.
func NewConsumer(url, dir string, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, dir: dir, log: log.Named("ledger")}
}

// Run connects, consumes and reconnects with exponential backoff until
// ctx is cancelled.  A message that cannot be handled is rejected
// without requeue so it does not loop.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(PurchaseEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, PurchaseEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(d.Body); err != nil {
			c.log.Error("handle message failed", zap.String("message_id", d.MessageId), zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one message body and appends it to the ledger.
func (c *Consumer) Handle(body []byte) error {
	var ev PurchaseEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.PurchaseID == 0 {
		return errors.New("event without type or purchase id")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, LedgerFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(ledgerLine(ev)); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

func ledgerLine(ev PurchaseEvent) string {
	return fmt.Sprintf("[%s] %s | event_id=%s | purchase_id=%d | user_id=%d | screening_id=%d | seats=%d | status=%s | amount=%.2f | starts_at=%s\n",
		ev.OccurredAt, ev.Type, ev.EventID, ev.PurchaseID, ev.UserID, ev.ScreeningID, ev.Seats, ev.Status, ev.Amount, ev.ScreeningStartsAt)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
