package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository persists per-user transaction histories. Append writes one row
// from the owner's perspective only; recording a transaction calls it once per
// party. Implementations offer at most per-row atomicity.
type Repository interface {
	History(ctx context.Context, ownerID uuid.UUID) (History, error)
	Append(ctx context.Context, ownerID, counterpartyID uuid.UUID, tx Transaction) error
}

// PartialWriteError reports a symmetric write where one side committed and the
// other failed. The succeeded side is left in place; the caller decides
// whether to retry the failed side or reconcile.
type PartialWriteError struct {
	WrittenFor uuid.UUID
	FailedFor  uuid.UUID
	Err        error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("ledger write committed for %s but failed for %s: %v", e.WrittenFor, e.FailedFor, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// Store records transactions against a Repository. It holds no ledger state
// of its own.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// RecordTransaction validates the input, builds one Transaction and appends it
// to both parties' histories. The two appends are separate writes: if the
// second fails after the first committed, the caller gets a
// *PartialWriteError and may retry.
func (s *Store) RecordTransaction(ctx context.Context, ownerID, counterpartyID uuid.UUID, amount decimal.Decimal, paidBy uuid.UUID, now time.Time) (Transaction, error) {
	if paidBy != ownerID && paidBy != counterpartyID {
		return Transaction{}, ErrInvalidParty
	}

	tx, err := NewTransaction(amount, paidBy, now)
	if err != nil {
		return Transaction{}, err
	}

	if err := s.repo.Append(ctx, ownerID, counterpartyID, tx); err != nil {
		return Transaction{}, fmt.Errorf("appending transaction for owner: %w", err)
	}
	if err := s.repo.Append(ctx, counterpartyID, ownerID, tx); err != nil {
		return tx, &PartialWriteError{
			WrittenFor: ownerID,
			FailedFor:  counterpartyID,
			Err:        err,
		}
	}

	return tx, nil
}

// NetBalance reads the owner's history and reduces it against one counterparty.
func (s *Store) NetBalance(ctx context.Context, ownerID, counterpartyID uuid.UUID) (decimal.Decimal, error) {
	history, err := s.repo.History(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	return NetBalance(history, ownerID, counterpartyID), nil
}

// AggregateBalance reads the owner's history and reduces it across all
// counterparties.
func (s *Store) AggregateBalance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	history, err := s.repo.History(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	return AggregateBalance(history, ownerID), nil
}

// Transactions returns the owner's transactions with one counterparty, newest
// first.
func (s *Store) Transactions(ctx context.Context, ownerID, counterpartyID uuid.UUID) ([]Transaction, error) {
	history, err := s.repo.History(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return SortedByDate(history, counterpartyID), nil
}
