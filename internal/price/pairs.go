package price

import "strings"

// PairBook maps assets to the trading pair used to price them.
type PairBook struct {
	quote string
	pairs map[string]string
}

// NewPairBook maps native to native+quote and adds extra asset→pair entries.
func NewPairBook(native, quote string, extra map[string]string) *PairBook {
	b := &PairBook{
		quote: strings.ToUpper(quote),
		pairs: make(map[string]string, len(extra)+1),
	}
	if native != "" && quote != "" {
		b.pairs[strings.ToUpper(native)] = strings.ToUpper(native + quote)
	}
	for asset, pair := range extra {
		b.pairs[strings.ToUpper(asset)] = strings.ToUpper(pair)
	}
	return b
}

// Pair returns the trading pair for asset. Unpriced assets return false.
func (b *PairBook) Pair(asset string) (string, bool) {
	p, ok := b.pairs[strings.ToUpper(asset)]
	return p, ok
}

// IsQuote reports whether asset is the quote currency itself, priced at 1.
func (b *PairBook) IsQuote(asset string) bool {
	return b.quote != "" && strings.ToUpper(asset) == b.quote
}
