// Package ticket renders admission tickets for paid purchases as QR
// codes.
package ticket

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// namespace scopes ticket codes so they never collide with other
// name-based UUIDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:cinema-scheduling:ticket"))

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

// Ticket is what a door scanner needs to admit a buyer.
type Ticket struct {
	Code        string
	PurchaseID  uint64
	ScreeningID uint64
	Seats       uint32
	StartsAt    time.Time
}

// New builds the ticket of a purchase.  The code is derived from the
// purchase identity, so re-issuing a ticket yields the same code.
func New(p model.Purchase, sc model.Screening) Ticket {
	return Ticket{
		Code:        CodeFor(p),
		PurchaseID:  p.ID,
		ScreeningID: sc.ID,
		Seats:       p.Seats,
		StartsAt:    sc.StartsAt.UTC(),
	}
}

// CodeFor returns the stable ticket code of a purchase.
func CodeFor(p model.Purchase) string {
	name := "purchase:" + strconv.FormatUint(p.ID, 10) +
		":user:" + strconv.FormatUint(p.UserID, 10) +
		":screening:" + strconv.FormatUint(p.ScreeningID, 10)
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// Payload is the text encoded in the QR code.
func (t Ticket) Payload() string {
	return fmt.Sprintf("TICKET|%s|purchase=%d|screening=%d|seats=%d|starts=%s",
		t.Code, t.PurchaseID, t.ScreeningID, t.Seats, t.StartsAt.Format(time.RFC3339))
}

// PNG renders the ticket payload as a QR code image.
func (t Ticket) PNG(size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(t.Payload(), qrcode.Medium, size)
}
