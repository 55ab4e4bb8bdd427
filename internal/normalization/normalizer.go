package normalization

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"eth-tax-ledger/internal/domain"
)

// ErrMissingField is returned when a mandatory field is absent or unparseable.
var ErrMissingField = errors.New("missing mandatory field")

// DefaultDecimals applies when a record carries no decimal precision.
const DefaultDecimals int32 = 18

// Normalizer converts raw explorer records into domain.Record.
// It is stateless; one instance can serve any number of wallets.
type Normalizer struct {
	nativeSymbol   string
	nativeDecimals int32
}

// NewNormalizer creates a Normalizer for a chain whose native asset is nativeSymbol.
func NewNormalizer(nativeSymbol string, nativeDecimals int32) *Normalizer {
	if nativeDecimals <= 0 {
		nativeDecimals = DefaultDecimals
	}
	return &Normalizer{nativeSymbol: nativeSymbol, nativeDecimals: nativeDecimals}
}

// Normalize converts one raw record. Mandatory fields are hash, timestamp,
// sender and receiver; anything else missing defaults to zero or empty.
func (n *Normalizer) Normalize(kind domain.RecordKind, index int, raw domain.RawRecord) (domain.Record, error) {
	hash := strings.ToLower(strings.TrimSpace(raw.Hash))
	if hash == "" {
		return domain.Record{}, fmt.Errorf("%w: hash", ErrMissingField)
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(raw.TimeStamp), 10, 64)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: timeStamp", ErrMissingField)
	}

	from, ok := parseAddress(raw.From)
	if !ok {
		return domain.Record{}, fmt.Errorf("%w: from", ErrMissingField)
	}
	to, ok := parseAddress(raw.To)
	if !ok {
		return domain.Record{}, fmt.Errorf("%w: to", ErrMissingField)
	}

	rec := domain.Record{
		Kind:         kind,
		StreamIndex:  index,
		TxHash:       hash,
		BlockNumber:  parseUint(raw.BlockNumber),
		Timestamp:    time.Unix(ts, 0).UTC(),
		From:         from,
		To:           to,
		RawAmount:    parseBig(raw.Value),
		GasPrice:     parseBig(raw.GasPrice),
		GasUsed:      parseBig(raw.GasUsed),
		MethodID:     strings.ToLower(strings.TrimSpace(raw.MethodID)),
		FunctionName: strings.TrimSpace(raw.FunctionName),
		IsError:      strings.TrimSpace(raw.IsError) == "1",
		Position:     raw.Position(),
	}

	switch kind {
	case domain.KindNative:
		rec.Asset = n.nativeSymbol
		rec.Decimals = n.nativeDecimals
	case domain.KindToken:
		rec.Asset = strings.TrimSpace(raw.TokenSymbol)
		if rec.Asset == "" {
			rec.Asset = strings.ToLower(strings.TrimSpace(raw.ContractAddress))
		}
		rec.Decimals = parseDecimals(raw.TokenDecimal, DefaultDecimals)
	case domain.KindInternal:
		rec.Asset = strings.TrimSpace(raw.TokenSymbol)
		if rec.Asset == "" {
			rec.Asset = n.nativeSymbol
		}
		rec.Decimals = parseDecimals(raw.TokenDecimal, n.nativeDecimals)
	default:
		return domain.Record{}, fmt.Errorf("unknown record kind %d", kind)
	}

	return rec, nil
}

// NormalizeSet normalizes the three streams of a record set. Records that
// fail are returned as dropped and do not stop the rest.
func (n *Normalizer) NormalizeSet(set *domain.RecordSet) ([]domain.Record, []domain.DroppedRecord) {
	var (
		records = make([]domain.Record, 0, set.Len())
		dropped []domain.DroppedRecord
	)

	for _, kind := range []domain.RecordKind{domain.KindNative, domain.KindToken, domain.KindInternal} {
		for i, raw := range set.Stream(kind) {
			rec, err := n.Normalize(kind, i, raw)
			if err != nil {
				dropped = append(dropped, domain.DroppedRecord{
					Kind:        kind,
					StreamIndex: i,
					TxHash:      raw.Hash,
					Reason:      err.Error(),
				})
				continue
			}
			records = append(records, rec)
		}
	}

	return records, dropped
}

func parseAddress(s string) (common.Address, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseUint(s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseBig accepts decimal or 0x-prefixed hex; anything else is zero.
func parseBig(s string) *big.Int {
	v, ok := math.ParseBig256(strings.TrimSpace(s))
	if !ok || v == nil {
		return new(big.Int)
	}
	return v
}

func parseDecimals(s string, fallback int32) int32 {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v < 0 {
		return fallback
	}
	return int32(v)
}
