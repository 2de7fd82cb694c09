package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// TransactionRecord mirrors a row of the transactions table.
type TransactionRecord struct {
	ID            int64           `db:"id"`
	EventID       int64           `db:"event_id"`
	UserID        string          `db:"user_id"`
	WaitingListID int64           `db:"waiting_list_id"`
	Status        string          `db:"status"`
	Amount        decimal.Decimal `db:"amount"`
	Name          string          `db:"name"`
	Email         string          `db:"email"`
	Phone         string          `db:"phone"`
	Resolution    string          `db:"resolution"`
	CreatedAt     int64           `db:"created_at"`
	ExpiresAt     int64           `db:"expires_at"`
	DecidedAt     sql.NullInt64   `db:"decided_at"`
}

// Model converts the record to its domain form.
func (r TransactionRecord) Model() model.Transaction {
	return model.Transaction{
		ID:            model.TransactionID(r.ID),
		EventID:       model.EventID(r.EventID),
		UserID:        model.UserID(r.UserID),
		WaitingListID: model.WaitingListID(r.WaitingListID),
		Status:        model.TransactionStatus(r.Status),
		Amount:        r.Amount,
		Contact:       model.Contact{Name: r.Name, Email: r.Email, Phone: r.Phone},
		Resolution:    model.Resolution(r.Resolution),
		CreatedAt:     fromMillis(r.CreatedAt),
		ExpiresAt:     fromMillis(r.ExpiresAt),
		DecidedAt:     fromNullMillis(r.DecidedAt),
	}
}

const transactionColumns = `id, event_id, user_id, waiting_list_id, status, amount, name, email, phone,
	resolution, created_at, expires_at, decided_at`

// TransactionRepo provides access to the transactions table.
type TransactionRepo struct{}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo() *TransactionRepo { return &TransactionRepo{} }

// Insert stores a pending transaction and returns its id.
func (r *TransactionRepo) Insert(ctx context.Context, q sqlx.ExtContext, t model.Transaction) (model.TransactionID, error) {
	const query = `INSERT INTO transactions
		(event_id, user_id, waiting_list_id, status, amount, name, email, phone, resolution, created_at, expires_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`
	res, err := q.ExecContext(ctx, query,
		int64(t.EventID), string(t.UserID), int64(t.WaitingListID), string(t.Status), t.Amount,
		t.Contact.Name, t.Contact.Email, t.Contact.Phone, string(t.Resolution),
		toMillis(t.CreatedAt), toMillis(t.ExpiresAt))
	if err != nil {
		return 0, wrap("insert transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("insert transaction", err)
	}
	return model.TransactionID(id), nil
}

// Get loads one transaction.
func (r *TransactionRepo) Get(ctx context.Context, q sqlx.QueryerContext, id model.TransactionID) (*model.Transaction, error) {
	var rec TransactionRecord
	if err := sqlx.GetContext(ctx, q, &rec,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, int64(id)); err != nil {
		return nil, wrap("get transaction", err)
	}
	t := rec.Model()
	return &t, nil
}

// ForEntry returns the transaction attached to a waiting-list entry, or
// ErrNotFound.  An entry carries at most one transaction.
func (r *TransactionRepo) ForEntry(ctx context.Context, q sqlx.QueryerContext, entryID model.WaitingListID) (*model.Transaction, error) {
	var rec TransactionRecord
	if err := sqlx.GetContext(ctx, q, &rec,
		`SELECT `+transactionColumns+` FROM transactions WHERE waiting_list_id = ?`, int64(entryID)); err != nil {
		return nil, wrap("transaction for entry", err)
	}
	t := rec.Model()
	return &t, nil
}

// HasForEntry reports whether the entry already has a transaction.
func (r *TransactionRepo) HasForEntry(ctx context.Context, q sqlx.QueryerContext, entryID model.WaitingListID) (bool, error) {
	_, err := r.ForEntry(ctx, q, entryID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Resolve moves a pending transaction to status.  It reports false when
// the transaction was no longer pending.
func (r *TransactionRepo) Resolve(ctx context.Context, q sqlx.ExecerContext, id model.TransactionID, status model.TransactionStatus, resolution model.Resolution, now time.Time) (bool, error) {
	ok, err := rowsChanged(q.ExecContext(ctx,
		`UPDATE transactions SET status = ?, resolution = ?, decided_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), string(resolution), toMillis(now), int64(id), string(model.TransactionPending)))
	return ok, wrap("resolve transaction", err)
}

// ListByEvent returns an event's transactions, oldest first.  An empty
// status lists all of them.
func (r *TransactionRepo) ListByEvent(ctx context.Context, q sqlx.QueryerContext, eventID model.EventID, status model.TransactionStatus) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE event_id = ?`
	args := []any{int64(eventID)}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`
	var recs []TransactionRecord
	if err := sqlx.SelectContext(ctx, q, &recs, query, args...); err != nil {
		return nil, wrap("list event transactions", err)
	}
	return transactionModels(recs), nil
}

// StalePending lists pending transactions whose expiry is before now,
// across all events.
func (r *TransactionRepo) StalePending(ctx context.Context, q sqlx.QueryerContext, now time.Time) ([]model.Transaction, error) {
	var recs []TransactionRecord
	err := sqlx.SelectContext(ctx, q, &recs,
		`SELECT `+transactionColumns+` FROM transactions WHERE status = ? AND expires_at < ? ORDER BY id`,
		string(model.TransactionPending), toMillis(now))
	if err != nil {
		return nil, wrap("stale pending", err)
	}
	return transactionModels(recs), nil
}

// ListPending returns every pending transaction.  Used to re-arm
// transaction timers on startup.
func (r *TransactionRepo) ListPending(ctx context.Context, q sqlx.QueryerContext) ([]model.Transaction, error) {
	var recs []TransactionRecord
	err := sqlx.SelectContext(ctx, q, &recs,
		`SELECT `+transactionColumns+` FROM transactions WHERE status = ? ORDER BY id`,
		string(model.TransactionPending))
	if err != nil {
		return nil, wrap("list pending", err)
	}
	return transactionModels(recs), nil
}

func transactionModels(recs []TransactionRecord) []model.Transaction {
	out := make([]model.Transaction, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Model())
	}
	return out
}
