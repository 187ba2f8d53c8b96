package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyRepository fails Append after a configured number of successful calls.
type flakyRepository struct {
	*MemoryRepository
	failAfter int
	appends   int
}

func (f *flakyRepository) Append(ctx context.Context, ownerID, counterpartyID uuid.UUID, tx Transaction) error {
	if f.appends >= f.failAfter {
		return errors.New("connection reset")
	}
	f.appends++
	return f.MemoryRepository.Append(ctx, ownerID, counterpartyID, tx)
}

func TestRecordTransactionSymmetric(t *testing.T) {
	repo := NewMemoryRepository()
	store := NewStore(repo)
	ctx := context.Background()

	_, err := store.RecordTransaction(ctx, alice, bob, decimal.NewFromInt(100), alice, time.Now())
	require.NoError(t, err)
	_, err = store.RecordTransaction(ctx, alice, bob, decimal.NewFromInt(50), bob, time.Now())
	require.NoError(t, err)
	_, err = store.RecordTransaction(ctx, alice, bob, decimal.NewFromInt(25), alice, time.Now())
	require.NoError(t, err)

	aliceView, err := store.NetBalance(ctx, alice, bob)
	require.NoError(t, err)
	bobView, err := store.NetBalance(ctx, bob, alice)
	require.NoError(t, err)

	assert.True(t, aliceView.Equal(decimal.NewFromInt(75)), "alice sees %s", aliceView)
	assert.True(t, bobView.Equal(aliceView.Neg()), "views must be antisymmetric, bob sees %s", bobView)

	// both copies describe the same events
	aliceHistory, err := repo.History(ctx, alice)
	require.NoError(t, err)
	bobHistory, err := repo.History(ctx, bob)
	require.NoError(t, err)
	require.Len(t, aliceHistory[bob], 3)
	require.Len(t, bobHistory[alice], 3)
	for i := range aliceHistory[bob] {
		assert.Equal(t, aliceHistory[bob][i].ID, bobHistory[alice][i].ID)
	}
}

func TestRecordTransactionValidation(t *testing.T) {
	tests := []struct {
		name    string
		amount  decimal.Decimal
		paidBy  uuid.UUID
		wantErr error
	}{
		{name: "zero amount", amount: decimal.Zero, paidBy: alice, wantErr: ErrInvalidAmount},
		{name: "negative amount", amount: decimal.NewFromInt(-5), paidBy: alice, wantErr: ErrInvalidAmount},
		{name: "third party payer", amount: decimal.NewFromInt(10), paidBy: carol, wantErr: ErrInvalidParty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryRepository()
			store := NewStore(repo)

			_, err := store.RecordTransaction(context.Background(), alice, bob, tt.amount, tt.paidBy, time.Now())
			assert.ErrorIs(t, err, tt.wantErr)

			// a rejected transaction writes nothing, on either side
			for _, owner := range []uuid.UUID{alice, bob} {
				history, err := repo.History(context.Background(), owner)
				require.NoError(t, err)
				assert.Empty(t, history)
			}
		})
	}
}

func TestRecordTransactionPartialWrite(t *testing.T) {
	repo := &flakyRepository{MemoryRepository: NewMemoryRepository(), failAfter: 1}
	store := NewStore(repo)
	ctx := context.Background()

	tx, err := store.RecordTransaction(ctx, alice, bob, decimal.NewFromInt(30), alice, time.Now())

	var partial *PartialWriteError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, alice, partial.WrittenFor)
	assert.Equal(t, bob, partial.FailedFor)
	assert.NotEqual(t, uuid.Nil, tx.ID)

	// the succeeded side stays in place for reconciliation
	aliceHistory, repoErr := repo.History(ctx, alice)
	require.NoError(t, repoErr)
	assert.Len(t, aliceHistory[bob], 1)

	bobHistory, repoErr := repo.History(ctx, bob)
	require.NoError(t, repoErr)
	assert.Empty(t, bobHistory)
}

func TestRecordTransactionFirstWriteFails(t *testing.T) {
	repo := &flakyRepository{MemoryRepository: NewMemoryRepository(), failAfter: 0}
	store := NewStore(repo)

	_, err := store.RecordTransaction(context.Background(), alice, bob, decimal.NewFromInt(30), alice, time.Now())
	require.Error(t, err)

	var partial *PartialWriteError
	assert.False(t, errors.As(err, &partial), "nothing committed, so not a partial write")
}
