package costbasis

import (
	"errors"
	"strings"

	"eth-tax-ledger/internal/domain"
)

// ErrUnknownMethod is returned for an unsupported accounting method name.
var ErrUnknownMethod = errors.New("unknown accounting method")

// FromName creates a Method from its identifier. Matching is case-insensitive.
func FromName(name string) (Method, error) {
	switch domain.AccountingMethod(strings.ToUpper(strings.TrimSpace(name))) {
	case domain.MethodFIFO:
		return FIFO{}, nil
	case domain.MethodLIFO:
		return LIFO{}, nil
	case domain.MethodWAC:
		return WAC{}, nil
	default:
		return nil, ErrUnknownMethod
	}
}
