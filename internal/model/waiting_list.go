package model

import "time"

// WaitingListID identifies a waiting-list entry.  Ids are assigned in
// insertion order and double as the FIFO key.
type WaitingListID int64

// WaitingListStatus is the lifecycle state of a queue entry.
type WaitingListStatus string

const (
	WaitingListWaiting   WaitingListStatus = "waiting"
	WaitingListOffered   WaitingListStatus = "offered"
	WaitingListPurchased WaitingListStatus = "purchased"
	WaitingListExpired   WaitingListStatus = "expired"
)

// Active reports whether the status still holds a place in the queue.
func (s WaitingListStatus) Active() bool {
	return s == WaitingListWaiting || s == WaitingListOffered
}

// WaitingListEntry is one user's place in an event's queue.  Entries are
// never deleted; purchased and expired are terminal.
type WaitingListEntry struct {
	ID             WaitingListID     `json:"id"`                         // waiting_list.id
	EventID        EventID           `json:"event_id"`                   // waiting_list.event_id
	UserID         UserID            `json:"user_id"`                    // waiting_list.user_id
	Status         WaitingListStatus `json:"status"`                     // waiting_list.status
	OfferExpiresAt *time.Time        `json:"offer_expires_at,omitempty"` // waiting_list.offer_expires_at (nullable)
	CreatedAt      time.Time         `json:"created_at"`                 // waiting_list.created_at
	UpdatedAt      time.Time         `json:"updated_at"`                 // waiting_list.updated_at
}

// OfferLapsed reports whether the entry holds an offer whose expiry is
// not after now.
func (e *WaitingListEntry) OfferLapsed(now time.Time) bool {
	return e.Status == WaitingListOffered && e.OfferExpiresAt != nil && !e.OfferExpiresAt.After(now)
}

// QueuePosition reports a user's most recent entry for an event.
// Position is 1-based among waiting entries and 0 otherwise.
type QueuePosition struct {
	Entry    WaitingListEntry `json:"entry"`
	Position int              `json:"position"`
}
