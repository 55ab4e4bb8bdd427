package domain

// TaxRow is one line of the tax report. Values are pre-formatted strings;
// fiat amounts carry two decimals and empty cells are empty strings.
type TaxRow struct {
	ID       string // see idhash.ComputeRowID
	Wallet   string
	Method   AccountingMethod
	TxHash   string
	Seq      int
	Category Category

	Date           string
	InType         string
	AssetIn        string
	AmountPaid     string
	QuantityIn     string
	BuyFee         string
	OutType        string
	AssetOut       string
	QuantityOut    string
	AmountReceived string
	SellFee        string
	Profit         string
	Balance        string
	BalanceFiat    string
	FiscalYear     int
	LongTermGain   string
	ShortTermGain  string
	Issues         string
}
