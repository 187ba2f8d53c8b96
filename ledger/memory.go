package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository, safe for concurrent use.
// Used in tests and when running without a database.
type MemoryRepository struct {
	mu        sync.Mutex
	histories map[uuid.UUID]History
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		histories: make(map[uuid.UUID]History),
	}
}

func (m *MemoryRepository) Append(ctx context.Context, ownerID, counterpartyID uuid.UUID, tx Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history, ok := m.histories[ownerID]
	if !ok {
		history = make(History)
		m.histories[ownerID] = history
	}
	history[counterpartyID] = append(history[counterpartyID], tx)
	return nil
}

// History returns a copy so callers cannot mutate the stored lists.
func (m *MemoryRepository) History(ctx context.Context, ownerID uuid.UUID) (History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make(History, len(m.histories[ownerID]))
	for counterpartyID, txs := range m.histories[ownerID] {
		list := make([]Transaction, len(txs))
		copy(list, txs)
		copied[counterpartyID] = list
	}
	return copied, nil
}

var _ Repository = (*MemoryRepository)(nil)
