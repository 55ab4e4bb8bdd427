package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountingMethod identifies a lot consumption policy.
type AccountingMethod string

const (
	MethodFIFO AccountingMethod = "FIFO"
	MethodLIFO AccountingMethod = "LIFO"
	MethodWAC  AccountingMethod = "WAC"
)

// IsValid checks if the method is supported.
func (m AccountingMethod) IsValid() bool {
	return m == MethodFIFO || m == MethodLIFO || m == MethodWAC
}

// Lot is an acquired quantity of one asset with its remaining cost basis.
type Lot struct {
	Quantity   decimal.Decimal
	Cost       decimal.Decimal
	AcquiredAt time.Time
}

// UnitCost returns cost per unit, zero for an empty lot.
func (l Lot) UnitCost() decimal.Decimal {
	if l.Quantity.IsZero() {
		return decimal.Zero
	}
	return l.Cost.Div(l.Quantity)
}
