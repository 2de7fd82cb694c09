package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// TicketRecord mirrors a row of the tickets table.
type TicketRecord struct {
	ID            int64           `db:"id"`
	EventID       int64           `db:"event_id"`
	UserID        string          `db:"user_id"`
	TransactionID int64           `db:"transaction_id"`
	Status        string          `db:"status"`
	Amount        decimal.Decimal `db:"amount"`
	PurchasedAt   int64           `db:"purchased_at"`
	UpdatedAt     int64           `db:"updated_at"`
}

// Model converts the record to its domain form.
func (r TicketRecord) Model() model.Ticket {
	return model.Ticket{
		ID:            model.TicketID(r.ID),
		EventID:       model.EventID(r.EventID),
		UserID:        model.UserID(r.UserID),
		TransactionID: model.TransactionID(r.TransactionID),
		Status:        model.TicketStatus(r.Status),
		Amount:        r.Amount,
		PurchasedAt:   fromMillis(r.PurchasedAt),
		UpdatedAt:     fromMillis(r.UpdatedAt),
	}
}

// TicketHolder is a ticket joined with the contact captured on its
// purchase transaction.
type TicketHolder struct {
	TicketID int64  `db:"ticket_id"`
	UserID   string `db:"user_id"`
	Name     string `db:"name"`
	Email    string `db:"email"`
}

const ticketColumns = `id, event_id, user_id, transaction_id, status, amount, purchased_at, updated_at`

// TicketRepo provides access to the tickets table.
type TicketRepo struct{}

// NewTicketRepo creates a new TicketRepo.
func NewTicketRepo() *TicketRepo { return &TicketRepo{} }

// Insert stores a ticket and returns its id.
func (r *TicketRepo) Insert(ctx context.Context, q sqlx.ExtContext, t model.Ticket) (model.TicketID, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO tickets (event_id, user_id, transaction_id, status, amount, purchased_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(t.EventID), string(t.UserID), int64(t.TransactionID), string(t.Status), t.Amount,
		toMillis(t.PurchasedAt), toMillis(t.PurchasedAt))
	if err != nil {
		return 0, wrap("insert ticket", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("insert ticket", err)
	}
	return model.TicketID(id), nil
}

// CountIssued counts an event's tickets that consume capacity.
func (r *TicketRepo) CountIssued(ctx context.Context, q sqlx.QueryerContext, eventID model.EventID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM tickets WHERE event_id = ? AND status IN (?, ?)`,
		int64(eventID), string(model.TicketValid), string(model.TicketUsed))
	return n, wrap("count issued", err)
}

// ListByUser returns a user's tickets, newest first.
func (r *TicketRepo) ListByUser(ctx context.Context, q sqlx.QueryerContext, userID model.UserID) ([]model.Ticket, error) {
	var recs []TicketRecord
	if err := sqlx.SelectContext(ctx, q, &recs,
		`SELECT `+ticketColumns+` FROM tickets WHERE user_id = ? ORDER BY id DESC`, string(userID)); err != nil {
		return nil, wrap("list user tickets", err)
	}
	out := make([]model.Ticket, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Model())
	}
	return out, nil
}

// ValidHolders lists the holders of an event's valid tickets.
func (r *TicketRepo) ValidHolders(ctx context.Context, q sqlx.QueryerContext, eventID model.EventID) ([]TicketHolder, error) {
	var out []TicketHolder
	err := sqlx.SelectContext(ctx, q, &out,
		`SELECT tk.id AS ticket_id, tk.user_id AS user_id, tr.name AS name, tr.email AS email
		 FROM tickets tk JOIN transactions tr ON tr.id = tk.transaction_id
		 WHERE tk.event_id = ? AND tk.status = ? ORDER BY tk.id`,
		int64(eventID), string(model.TicketValid))
	return out, wrap("valid holders", err)
}

// RefundValid marks every valid ticket of an event refunded and returns
// how many changed.
func (r *TicketRepo) RefundValid(ctx context.Context, q sqlx.ExecerContext, eventID model.EventID, now time.Time) (int, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = ? WHERE event_id = ? AND status = ?`,
		string(model.TicketRefunded), toMillis(now), int64(eventID), string(model.TicketValid))
	if err != nil {
		return 0, wrap("refund tickets", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("refund tickets", err)
	}
	return int(n), nil
}
