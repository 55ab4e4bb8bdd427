package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"eth-tax-ledger/internal/domain"
	"eth-tax-ledger/internal/storage"
)

// Source yields the three raw record streams of a wallet.
type Source interface {
	Fetch(ctx context.Context, wallet common.Address) (*domain.RecordSet, error)
}

// ClientSource fetches the streams from the explorer API, one after another.
type ClientSource struct {
	Client *Client
}

var _ Source = (*ClientSource)(nil)

// Fetch calls the three account actions.
func (s *ClientSource) Fetch(ctx context.Context, wallet common.Address) (*domain.RecordSet, error) {
	native, err := s.Client.NormalTransactions(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch native transactions: %w", err)
	}
	token, err := s.Client.TokenTransfers(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch token transfers: %w", err)
	}
	internal, err := s.Client.InternalTransactions(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch internal transactions: %w", err)
	}
	return &domain.RecordSet{Native: native, Token: token, Internal: internal}, nil
}

// FileSource reads <Dir>/<wallet>_<action>.json files. Each file holds
// either a bare array of records or a full explorer response.
type FileSource struct {
	Dir string
}

var _ Source = (*FileSource)(nil)

// FileName returns the path of one stream file under dir.
func FileName(dir string, wallet common.Address, action string) string {
	return filepath.Join(dir, strings.ToLower(wallet.Hex())+"_"+action+".json")
}

// Fetch reads the three stream files. A missing file is an empty stream.
func (s *FileSource) Fetch(_ context.Context, wallet common.Address) (*domain.RecordSet, error) {
	set := &domain.RecordSet{}
	for _, stream := range []struct {
		action string
		dst    *[]domain.RawRecord
	}{
		{ActionNormal, &set.Native},
		{ActionToken, &set.Token},
		{ActionInternal, &set.Internal},
	} {
		records, err := readFile(FileName(s.Dir, wallet, stream.action))
		if err != nil {
			return nil, err
		}
		*stream.dst = records
	}
	return set, nil
}

func readFile(path string) ([]domain.RawRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []domain.RawRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return records, nil
	}

	records, _, err := decodeEnvelope(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

// WriteFiles stores set as three bare-array files readable by FileSource.
func WriteFiles(dir string, wallet common.Address, set *domain.RecordSet) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	for _, stream := range []struct {
		action  string
		records []domain.RawRecord
	}{
		{ActionNormal, set.Native},
		{ActionToken, set.Token},
		{ActionInternal, set.Internal},
	} {
		records := stream.records
		if records == nil {
			records = []domain.RawRecord{}
		}
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", stream.action, err)
		}
		if err := os.WriteFile(FileName(dir, wallet, stream.action), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", stream.action, err)
		}
	}
	return nil
}

// StoreSource reads raw records previously persisted to a RawRecordStore.
type StoreSource struct {
	Store storage.RawRecordStore
}

var _ Source = (*StoreSource)(nil)

// Fetch loads the stored streams of wallet.
func (s *StoreSource) Fetch(ctx context.Context, wallet common.Address) (*domain.RecordSet, error) {
	set, err := s.Store.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("load raw records: %w", err)
	}
	return set, nil
}
