package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionID identifies a manual-payment claim.
type TransactionID int64

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionApproved TransactionStatus = "approved"
	TransactionRejected TransactionStatus = "rejected"
)

// Resolution records who or what moved a transaction out of pending.
type Resolution string

const (
	ResolutionNone     Resolution = ""
	ResolutionSeller   Resolution = "seller"
	ResolutionExpired  Resolution = "expired"
	ResolutionReleased Resolution = "released"
)

// Contact is the buyer information captured with a claim.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Transaction is a buyer's claim that they paid out of band for the
// offer on WaitingListID.  Amount is the event price when the claim was
// made and never changes afterwards.
type Transaction struct {
	ID            TransactionID     `json:"id"`                   // transactions.id
	EventID       EventID           `json:"event_id"`             // transactions.event_id
	UserID        UserID            `json:"user_id"`              // transactions.user_id
	WaitingListID WaitingListID     `json:"waiting_list_id"`      // transactions.waiting_list_id (unique)
	Status        TransactionStatus `json:"status"`               // transactions.status
	Amount        decimal.Decimal   `json:"amount"`               // transactions.amount
	Contact       Contact           `json:"contact"`              // transactions.name/email/phone
	Resolution    Resolution        `json:"resolution,omitempty"` // transactions.resolution
	CreatedAt     time.Time         `json:"created_at"`           // transactions.created_at
	ExpiresAt     time.Time         `json:"expires_at"`           // transactions.expires_at
	DecidedAt     *time.Time        `json:"decided_at,omitempty"` // transactions.decided_at (nullable)
}
