package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/storage"
)

// RawRecordStore is an in-memory implementation of storage.RawRecordStore.
type RawRecordStore struct {
	mu   sync.RWMutex
	data map[string]*walletRecords // keyed by lowercase wallet
}

type walletRecords struct {
	set  domain.RecordSet
	seen map[string]struct{}
}

// NewRawRecordStore creates a new in-memory raw record store.
func NewRawRecordStore() *RawRecordStore {
	return &RawRecordStore{
		data: make(map[string]*walletRecords),
	}
}

// InsertBulk appends unseen records of every stream.
func (s *RawRecordStore) InsertBulk(_ context.Context, wallet common.Address, set *domain.RecordSet) (int, error) {
	if set == nil {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := storage.WalletKey(wallet)
	w, ok := s.data[key]
	if !ok {
		w = &walletRecords{seen: make(map[string]struct{})}
		s.data[key] = w
	}

	inserted := 0
	for _, kind := range []domain.RecordKind{domain.KindNative, domain.KindToken, domain.KindInternal} {
		for _, r := range set.Stream(kind) {
			rk := storage.RecordKey(kind, r)
			if _, exists := w.seen[rk]; exists {
				continue
			}
			w.seen[rk] = struct{}{}
			switch kind {
			case domain.KindNative:
				w.set.Native = append(w.set.Native, r)
			case domain.KindToken:
				w.set.Token = append(w.set.Token, r)
			case domain.KindInternal:
				w.set.Internal = append(w.set.Internal, r)
			}
			inserted++
		}
	}
	return inserted, nil
}

// GetByWallet returns a copy of the stored streams. Unknown wallets yield an empty set.
func (s *RawRecordStore) GetByWallet(_ context.Context, wallet common.Address) (*domain.RecordSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &domain.RecordSet{}
	w, ok := s.data[storage.WalletKey(wallet)]
	if !ok {
		return out, nil
	}
	out.Native = append([]domain.RawRecord(nil), w.set.Native...)
	out.Token = append([]domain.RawRecord(nil), w.set.Token...)
	out.Internal = append([]domain.RawRecord(nil), w.set.Internal...)
	return out, nil
}

var _ storage.RawRecordStore = (*RawRecordStore)(nil)
