package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventID identifies an event.
type EventID int64

// UserID is the opaque identifier issued by the identity provider.
type UserID string

// Event is a ticketed happening owned by a seller.  The ticket pool is
// finite; TotalTickets may be edited by the seller but never below the
// number of tickets already issued.
//
// Fields:
//
//	ID           – primary key identifier.
//	SellerID     – user who owns the event.
//	SellerEmail  – where pending-transaction notices go (may be empty).
//	Name         – display name used in notifications.
//	Description  – free text.
//	Location     – venue.
//	EventDate    – when the event takes place.
//	Price        – current unit price; snapshotted onto transactions.
//	TotalTickets – capacity of the ticket pool.
//	IsCancelled  – once set, the event accepts no new allocation.
type Event struct {
	ID           EventID         `json:"id"`            // events.id
	SellerID     UserID          `json:"seller_id"`     // events.seller_id
	SellerEmail  string          `json:"-"`             // events.seller_email
	Name         string          `json:"name"`          // events.name
	Description  string          `json:"description"`   // events.description
	Location     string          `json:"location"`      // events.location
	EventDate    time.Time       `json:"event_date"`    // events.event_date
	Price        decimal.Decimal `json:"price"`         // events.price
	TotalTickets int             `json:"total_tickets"` // events.total_tickets
	IsCancelled  bool            `json:"is_cancelled"`  // events.is_cancelled
	CreatedAt    time.Time       `json:"created_at"`    // events.created_at
	UpdatedAt    time.Time       `json:"updated_at"`    // events.updated_at
}

// Availability is a point-in-time view of an event's ticket pool.
// Remaining excludes slots currently held by active offers.
type Availability struct {
	EventID      EventID `json:"event_id"`
	TotalTickets int     `json:"total_tickets"`
	Purchased    int     `json:"purchased"`
	ActiveOffers int     `json:"active_offers"`
	Remaining    int     `json:"remaining"`
	SoldOut      bool    `json:"sold_out"`
	Cancelled    bool    `json:"cancelled"`
}
