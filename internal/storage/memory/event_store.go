package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.EventSnapshot // keyed by wallet|method
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string][]*domain.EventSnapshot),
	}
}

func eventKey(wallet common.Address, method domain.AccountingMethod) string {
	return storage.WalletKey(wallet) + "|" + string(method)
}

// ReplaceByWallet swaps the stored events of (wallet, method) for events.
func (s *EventStore) ReplaceByWallet(_ context.Context, wallet common.Address, method domain.AccountingMethod, events []*domain.EventSnapshot) error {
	if !method.IsValid() {
		return storage.ErrInvalidInput
	}

	seen := make(map[string]struct{}, len(events))
	stored := make([]*domain.EventSnapshot, 0, len(events))
	for _, e := range events {
		if e == nil || e.TxHash == "" {
			return storage.ErrInvalidInput
		}
		h := strings.ToLower(e.TxHash)
		if _, exists := seen[h]; exists {
			return storage.ErrDuplicateKey
		}
		seen[h] = struct{}{}
		stored = append(stored, copySnapshot(e))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[eventKey(wallet, method)] = stored
	return nil
}

// GetByWallet retrieves the events of (wallet, method) ordered by seq ASC.
func (s *EventStore) GetByWallet(_ context.Context, wallet common.Address, method domain.AccountingMethod) ([]*domain.EventSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.data[eventKey(wallet, method)]
	result := make([]*domain.EventSnapshot, 0, len(stored))
	for _, e := range stored {
		result = append(result, copySnapshot(e))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// GetByHash retrieves one event. Returns ErrNotFound if not exists.
func (s *EventStore) GetByHash(_ context.Context, wallet common.Address, method domain.AccountingMethod, txHash string) (*domain.EventSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.data[eventKey(wallet, method)] {
		if strings.EqualFold(e.TxHash, txHash) {
			return copySnapshot(e), nil
		}
	}
	return nil, storage.ErrNotFound
}

func copySnapshot(e *domain.EventSnapshot) *domain.EventSnapshot {
	copy := *e
	copy.Fields = make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		copy.Fields[k] = v
	}
	return &copy
}

var _ storage.EventStore = (*EventStore)(nil)
