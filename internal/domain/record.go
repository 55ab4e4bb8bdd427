package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RecordKind identifies which explorer stream a record came from.
// The numeric order is the tie-break order used when records share a block.
type RecordKind int

const (
	KindNative RecordKind = iota
	KindToken
	KindInternal
)

// String returns the string representation of RecordKind.
func (k RecordKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindToken:
		return "token"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ParseRecordKind parses the value produced by String.
func ParseRecordKind(s string) (RecordKind, bool) {
	switch s {
	case "native":
		return KindNative, true
	case "token":
		return KindToken, true
	case "internal":
		return KindInternal, true
	default:
		return 0, false
	}
}

// RawRecord is one explorer record in its wire shape.
// Every field is a string because that is how Etherscan-style APIs serve them.
// Token transfers omit IsError and Nonce; internal transfers carry a subset.
type RawRecord struct {
	Hash              string `json:"hash"`
	BlockNumber       string `json:"blockNumber"`
	TimeStamp         string `json:"timeStamp"`
	Nonce             string `json:"nonce,omitempty"`
	From              string `json:"from"`
	To                string `json:"to"`
	Value             string `json:"value"`
	Gas               string `json:"gas,omitempty"`
	GasPrice          string `json:"gasPrice,omitempty"`
	IsError           string `json:"isError,omitempty"`
	TxReceiptStatus   string `json:"txreceipt_status,omitempty"`
	Input             string `json:"input,omitempty"`
	ContractAddress   string `json:"contractAddress,omitempty"`
	CumulativeGasUsed string `json:"cumulativeGasUsed,omitempty"`
	GasUsed           string `json:"gasUsed,omitempty"`
	Confirmations     string `json:"confirmations,omitempty"`
	MethodID          string `json:"methodId,omitempty"`
	FunctionName      string `json:"functionName,omitempty"`
	TokenName         string `json:"tokenName,omitempty"`
	TokenSymbol       string `json:"tokenSymbol,omitempty"`
	TokenDecimal      string `json:"tokenDecimal,omitempty"`
	Type              string `json:"type,omitempty"`
	TraceID           string `json:"traceId,omitempty"`
	LogIndex          string `json:"logIndex,omitempty"`
	ErrCode           string `json:"errCode,omitempty"`
}

// RecordSet holds the three raw streams fetched for one wallet.
type RecordSet struct {
	Native   []RawRecord
	Token    []RawRecord
	Internal []RawRecord
}

// Stream returns the records of the given kind.
func (s *RecordSet) Stream(kind RecordKind) []RawRecord {
	switch kind {
	case KindNative:
		return s.Native
	case KindToken:
		return s.Token
	case KindInternal:
		return s.Internal
	default:
		return nil
	}
}

// Len returns the total number of records across streams.
func (s *RecordSet) Len() int {
	return len(s.Native) + len(s.Token) + len(s.Internal)
}

// Record is a normalized raw record with a fixed field set regardless of kind.
type Record struct {
	Kind         RecordKind
	StreamIndex  int            // position within its source stream
	TxHash       string         // lowercase 0x-prefixed hash
	BlockNumber  uint64
	Timestamp    time.Time      // UTC
	From         common.Address
	To           common.Address
	RawAmount    *big.Int       // integer amount before decimal scaling
	Asset        string         // token symbol, native symbol for native/internal records
	Decimals     int32          // 18 when absent
	GasPrice     *big.Int       // wei
	GasUsed      *big.Int
	MethodID     string         // lowercase 4-byte selector, "0x" or empty
	FunctionName string
	IsError      bool
	Position     string         // trace id or log index, see RawRecord.Position
}

// Position identifies the record among the legs of its transaction: the
// trace id of an internal transfer or the log index of a token transfer.
// Empty when the explorer serves neither.
func (r RawRecord) Position() string {
	if r.TraceID != "" {
		return strings.TrimSpace(r.TraceID)
	}
	return strings.TrimSpace(r.LogIndex)
}

// DroppedRecord reports a raw record rejected by normalization.
type DroppedRecord struct {
	Kind        RecordKind
	StreamIndex int
	TxHash      string
	Reason      string
}
