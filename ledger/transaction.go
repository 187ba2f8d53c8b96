package ledger

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidParty  = errors.New("payer must be one of the two transacting parties")
)

// Transaction is a single money movement between two parties. Amounts are
// always in the storage currency. Transactions are never mutated after
// creation.
type Transaction struct {
	ID         uuid.UUID       `json:"id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	PaidBy     uuid.UUID       `json:"paid_by,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewTransaction(amount decimal.Decimal, paidBy uuid.UUID, occurredAt time.Time) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	return Transaction{
		ID:         uuid.New(),
		Amount:     amount,
		PaidBy:     paidBy,
		OccurredAt: occurredAt,
	}, nil
}

// History holds one user's transaction lists keyed by counterparty. Lists are
// in insertion order; callers that present them re-sort by OccurredAt.
type History map[uuid.UUID][]Transaction

// NetBalance reduces the owner's history with one counterparty into a signed
// balance in the storage currency. Positive means the counterparty owes the
// owner. Unknown counterparties reduce to zero.
func NetBalance(history History, ownerID, counterpartyID uuid.UUID) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range history[counterpartyID] {
		if tx.PaidBy == ownerID {
			balance = balance.Add(tx.Amount)
		} else {
			balance = balance.Sub(tx.Amount)
		}
	}
	return balance
}

// AggregateBalance sums NetBalance across every counterparty in the history.
func AggregateBalance(history History, ownerID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for counterpartyID := range history {
		total = total.Add(NetBalance(history, ownerID, counterpartyID))
	}
	return total
}

// SortedByDate returns the transactions with one counterparty, newest first.
func SortedByDate(history History, counterpartyID uuid.UUID) []Transaction {
	txs := make([]Transaction, len(history[counterpartyID]))
	copy(txs, history[counterpartyID])
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].OccurredAt.After(txs[j].OccurredAt)
	})
	return txs
}
