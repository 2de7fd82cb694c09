package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketID identifies an issued ticket.
type TicketID int64

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketRefunded  TicketStatus = "refunded"
	TicketCancelled TicketStatus = "cancelled"
)

// Counted reports whether a ticket in this status consumes capacity.
func (s TicketStatus) Counted() bool {
	return s == TicketValid || s == TicketUsed
}

// Ticket is an entitlement to attend an event.  It is only ever created
// by approving a pending transaction.
type Ticket struct {
	ID            TicketID        `json:"id"`             // tickets.id
	EventID       EventID         `json:"event_id"`       // tickets.event_id
	UserID        UserID          `json:"user_id"`        // tickets.user_id
	TransactionID TransactionID   `json:"transaction_id"` // tickets.transaction_id
	Status        TicketStatus    `json:"status"`         // tickets.status
	Amount        decimal.Decimal `json:"amount"`         // tickets.amount
	PurchasedAt   time.Time       `json:"purchased_at"`   // tickets.purchased_at
	UpdatedAt     time.Time       `json:"updated_at"`     // tickets.updated_at
}
