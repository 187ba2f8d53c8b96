package ledger

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

// Append inserts the owner's copy of a transaction. The counterparty's copy is
// a separate row written by a separate call; the two rows share the
// transaction ID.
func (r *repository) Append(ctx context.Context, ownerID, counterpartyID uuid.UUID, tx Transaction) error {
	query := `INSERT INTO ledger_transactions (transaction_id, owner_id, counterparty_id, amount, paid_by, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		tx.ID,
		ownerID,
		counterpartyID,
		tx.Amount,
		tx.PaidBy,
		tx.OccurredAt,
	)
	return err
}

// History loads every transaction row owned by ownerID, keyed by counterparty.
// Rows that fail to scan or carry a non-positive amount are skipped so one bad
// record cannot take down a balance read.
func (r *repository) History(ctx context.Context, ownerID uuid.UUID) (History, error) {
	query := `SELECT transaction_id, counterparty_id, amount, paid_by, occurred_at
              FROM ledger_transactions
              WHERE owner_id = $1
              ORDER BY occurred_at ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make(History)
	for rows.Next() {
		var tx Transaction
		var counterpartyID uuid.UUID
		var amount string
		err := rows.Scan(&tx.ID, &counterpartyID, &amount, &tx.PaidBy, &tx.OccurredAt)
		if err != nil {
			slog.Warn("skipping unreadable ledger row", "owner_id", ownerID, "error", err)
			continue
		}
		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil || !tx.Amount.IsPositive() {
			slog.Warn("skipping malformed ledger row", "owner_id", ownerID, "transaction_id", tx.ID, "amount", amount)
			continue
		}
		history[counterpartyID] = append(history[counterpartyID], tx)
	}

	return history, rows.Err()
}

var _ Repository = (*repository)(nil)
