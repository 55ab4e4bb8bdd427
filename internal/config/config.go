// Package config loads the YAML run configuration with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"eth-tax-ledger/internal/domain"
)

// ErrNoWallet is returned when no wallet address is configured.
var ErrNoWallet = errors.New("wallets is required")

// Router outbound amount sources.
const (
	OutboundRunningBalance   = "running-balance"
	OutboundTransactionValue = "transaction-value"
)

// Leg precedence policies.
const (
	PrecedenceInternalFirst = "internal-first"
	PrecedenceTokenFirst    = "token-first"
)

// Resolver names usable from extra rules.
const (
	ResolverTokenFlow         = "token-flow"
	ResolverTokenFlowInternal = "token-flow-internal"
	ResolverSingleLeg         = "single-leg"
	ResolverNone              = "none"
)

// Price providers.
const (
	ProviderBinance = "binance"
	ProviderStatic  = "static"
)

type Config struct {
	Chain          ChainConfig          `yaml:"chain"`
	Wallets        []WalletConfig       `yaml:"wallets"`
	Counterparties []CounterpartyConfig `yaml:"counterparties"`
	Routers        []RouterConfig       `yaml:"routers"`
	Signatures     SignatureConfig      `yaml:"signatures"`
	ExtraRules     []RuleConfig         `yaml:"extra_rules"`
	Resolver       ResolverConfig       `yaml:"resolver"`
	Accounting     AccountingConfig     `yaml:"accounting"`
	Pricing        PricingConfig        `yaml:"pricing"`
	Explorer       ExplorerConfig       `yaml:"explorer"`
	Storage        StorageConfig        `yaml:"storage"`
	Logging        LoggingConfig        `yaml:"logging"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Output         OutputConfig         `yaml:"output"`
	Server         ServerConfig         `yaml:"server"`
}

type ChainConfig struct {
	NativeSymbol   string `yaml:"native_symbol"`
	NativeDecimals int32  `yaml:"native_decimals"`
}

type WalletConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// CounterpartyConfig is a known buyer address. Plain transfers to it are
// classified as sold-to-counterparty.
type CounterpartyConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// RouterConfig describes a contract whose transfers to the wallet are swaps
// between two fixed assets.
type RouterConfig struct {
	Name                 string `yaml:"name"`
	Address              string `yaml:"address"`
	Label                string `yaml:"label"`
	OutboundSymbol       string `yaml:"outbound_symbol"`
	OutboundDecimals     int32  `yaml:"outbound_decimals"`
	InboundSymbol        string `yaml:"inbound_symbol"`
	InboundDecimals      int32  `yaml:"inbound_decimals"`
	OutboundAmountSource string `yaml:"outbound_amount_source"`
}

// SignatureConfig holds the method selectors and function-name markers the
// classifier matches on.
type SignatureConfig struct {
	PlainTransfer      []string `yaml:"plain_transfer"`
	SwapMarker         string   `yaml:"swap_marker"`
	MultiLegSwap       string   `yaml:"multi_leg_swap"`
	ContractCallMarker string   `yaml:"contract_call_marker"`
	ApprovalMarker     string   `yaml:"approval_marker"`
}

// RuleConfig is an additional classification rule evaluated before the
// built-in table. Empty match fields are ignored; at least one must be set.
type RuleConfig struct {
	Name             string `yaml:"name"`
	FunctionContains string `yaml:"function_contains"`
	MethodID         string `yaml:"method_id"`
	Sender           string `yaml:"sender"`
	Receiver         string `yaml:"receiver"`
	Direction        string `yaml:"direction"`
	Category         string `yaml:"category"`
	Resolver         string `yaml:"resolver"`
}

type ResolverConfig struct {
	LegPrecedence string `yaml:"leg_precedence"`
}

type AccountingConfig struct {
	Method               string        `yaml:"method"`
	BalanceEpsilon       string        `yaml:"balance_epsilon"`
	FiscalYearStartMonth int           `yaml:"fiscal_year_start_month"`
	LongTermAfter        time.Duration `yaml:"long_term_after"`
}

type PricingConfig struct {
	Provider            string             `yaml:"provider"`
	Quote               string             `yaml:"quote"`
	BaseURL             string             `yaml:"base_url"`
	Pairs               map[string]string  `yaml:"pairs"`
	Static              map[string]float64 `yaml:"static"`
	CacheTTL            time.Duration      `yaml:"cache_ttl"`
	RedisAddr           string             `yaml:"redis_addr"`
	RedisTTL            time.Duration      `yaml:"redis_ttl"`
	PrefetchConcurrency int                `yaml:"prefetch_concurrency"`
	RequestsPerSecond   float64            `yaml:"requests_per_second"`
	Timeout             time.Duration      `yaml:"timeout"`
}

type ExplorerConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	ChainID           int           `yaml:"chain_id"`
	PageSize          int           `yaml:"page_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	DataDir           string        `yaml:"data_dir"`
}

type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

type ServerConfig struct {
	Addr     string        `yaml:"addr"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used when a field is absent from YAML.
// The counterparty and router entries reproduce the wallets this tool was
// first written for; override them per deployment.
func Default() Config {
	return Config{
		Chain: ChainConfig{NativeSymbol: "ETH", NativeDecimals: 18},
		Counterparties: []CounterpartyConfig{
			{Name: "KK", Address: "0x2da83ace1da226f2afe337db28dcd0bd8d97b23d"},
		},
		Routers: []RouterConfig{{
			Name:                 "SPI",
			Address:              "0xa5025faba6e70b84f74e9b1113e5f7f4e7f4859f",
			Label:                "SPI TokenSwap",
			OutboundSymbol:       "SPI",
			OutboundDecimals:     0,
			InboundSymbol:        "SHOP",
			InboundDecimals:      18,
			OutboundAmountSource: OutboundRunningBalance,
		}},
		Signatures: SignatureConfig{
			PlainTransfer:      []string{"0xa9059cbb", "0x"},
			SwapMarker:         "swap",
			MultiLegSwap:       "processRouteWithTransferValueOutput",
			ContractCallMarker: "call",
			ApprovalMarker:     "approve",
		},
		Resolver: ResolverConfig{LegPrecedence: PrecedenceInternalFirst},
		Accounting: AccountingConfig{
			Method:               string(domain.MethodFIFO),
			BalanceEpsilon:       "0.000000000001",
			FiscalYearStartMonth: 1,
			LongTermAfter:        365 * 24 * time.Hour,
		},
		Pricing: PricingConfig{
			Provider:            ProviderBinance,
			Quote:               "USDT",
			CacheTTL:            24 * time.Hour,
			RedisTTL:            30 * 24 * time.Hour,
			PrefetchConcurrency: 4,
			RequestsPerSecond:   10,
			Timeout:             15 * time.Second,
		},
		Explorer: ExplorerConfig{
			BaseURL:           "https://api.etherscan.io/api",
			PageSize:          10000,
			RequestsPerSecond: 5,
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			DataDir:           "data",
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Output:  OutputConfig{Dir: "reports"},
		Server:  ServerConfig{Addr: ":8080", Interval: time.Hour},
	}
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ETHERSCAN_API_KEY"); v != "" {
		c.Explorer.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = strings.TrimSpace(v)
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Pricing.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("WALLET_ADDRESSES"); v != "" {
		var wallets []WalletConfig
		for _, addr := range strings.Split(v, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				wallets = append(wallets, WalletConfig{Address: addr})
			}
		}
		c.Wallets = wallets
	}
}

// fillDefaults completes list entries that YAML replaced wholesale.
func (c *Config) fillDefaults() {
	if c.Chain.NativeDecimals == 0 {
		c.Chain.NativeDecimals = 18
	}
	for i := range c.Routers {
		r := &c.Routers[i]
		if r.OutboundAmountSource == "" {
			r.OutboundAmountSource = OutboundRunningBalance
		}
		if r.Label == "" {
			r.Label = r.Name + " TokenSwap"
		}
		if r.InboundDecimals == 0 {
			r.InboundDecimals = c.Chain.NativeDecimals
		}
	}
}

// Validate checks every field the pipeline depends on.
func (c *Config) Validate() error {
	if len(c.Wallets) == 0 {
		return ErrNoWallet
	}
	for i, w := range c.Wallets {
		if !common.IsHexAddress(w.Address) {
			return fmt.Errorf("wallets[%d].address %q is not a valid address", i, w.Address)
		}
	}

	if c.Chain.NativeSymbol == "" {
		return fmt.Errorf("chain.native_symbol is required")
	}

	for i, cp := range c.Counterparties {
		if !common.IsHexAddress(cp.Address) {
			return fmt.Errorf("counterparties[%d].address %q is not a valid address", i, cp.Address)
		}
	}

	for i, r := range c.Routers {
		if !common.IsHexAddress(r.Address) {
			return fmt.Errorf("routers[%d].address %q is not a valid address", i, r.Address)
		}
		if r.OutboundSymbol == "" || r.InboundSymbol == "" {
			return fmt.Errorf("routers[%d] outbound_symbol and inbound_symbol are required", i)
		}
		switch r.OutboundAmountSource {
		case OutboundRunningBalance, OutboundTransactionValue:
		default:
			return fmt.Errorf("routers[%d].outbound_amount_source %q must be %s or %s",
				i, r.OutboundAmountSource, OutboundRunningBalance, OutboundTransactionValue)
		}
	}

	switch c.Resolver.LegPrecedence {
	case PrecedenceInternalFirst, PrecedenceTokenFirst:
	default:
		return fmt.Errorf("resolver.leg_precedence %q must be %s or %s",
			c.Resolver.LegPrecedence, PrecedenceInternalFirst, PrecedenceTokenFirst)
	}

	for i, r := range c.ExtraRules {
		if err := r.validate(); err != nil {
			return fmt.Errorf("extra_rules[%d]: %w", i, err)
		}
	}

	if !domain.AccountingMethod(c.Accounting.Method).IsValid() {
		return fmt.Errorf("accounting.method %q must be FIFO, LIFO or WAC", c.Accounting.Method)
	}
	eps, err := decimal.NewFromString(c.Accounting.BalanceEpsilon)
	if err != nil {
		return fmt.Errorf("accounting.balance_epsilon: %w", err)
	}
	if eps.IsNegative() {
		return fmt.Errorf("accounting.balance_epsilon must not be negative")
	}
	if c.Accounting.FiscalYearStartMonth < 1 || c.Accounting.FiscalYearStartMonth > 12 {
		return fmt.Errorf("accounting.fiscal_year_start_month must be between 1 and 12")
	}
	if c.Accounting.LongTermAfter <= 0 {
		return fmt.Errorf("accounting.long_term_after must be greater than 0")
	}

	switch c.Pricing.Provider {
	case ProviderBinance:
	case ProviderStatic:
		if len(c.Pricing.Static) == 0 {
			return fmt.Errorf("pricing.static is required for the static provider")
		}
	default:
		return fmt.Errorf("pricing.provider %q must be %s or %s", c.Pricing.Provider, ProviderBinance, ProviderStatic)
	}
	if c.Pricing.PrefetchConcurrency <= 0 {
		return fmt.Errorf("pricing.prefetch_concurrency must be greater than 0")
	}

	if c.Explorer.PageSize <= 0 {
		return fmt.Errorf("explorer.page_size must be greater than 0")
	}

	return nil
}

func (r RuleConfig) validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.FunctionContains == "" && r.MethodID == "" && r.Sender == "" && r.Receiver == "" {
		return fmt.Errorf("rule %s needs at least one match field", r.Name)
	}
	if r.Sender != "" && !common.IsHexAddress(r.Sender) {
		return fmt.Errorf("rule %s sender %q is not a valid address", r.Name, r.Sender)
	}
	if r.Receiver != "" && !common.IsHexAddress(r.Receiver) {
		return fmt.Errorf("rule %s receiver %q is not a valid address", r.Name, r.Receiver)
	}
	switch strings.ToLower(r.Direction) {
	case "", "in", "out":
	default:
		return fmt.Errorf("rule %s direction %q must be in or out", r.Name, r.Direction)
	}
	if !domain.Category(r.Category).IsValid() {
		return fmt.Errorf("rule %s category %q is unknown", r.Name, r.Category)
	}
	switch r.Resolver {
	case "", ResolverTokenFlow, ResolverTokenFlowInternal, ResolverSingleLeg, ResolverNone:
	default:
		return fmt.Errorf("rule %s resolver %q is unknown", r.Name, r.Resolver)
	}
	return nil
}

// WalletAddresses returns the configured wallets as addresses.
// Call after Validate.
func (c *Config) WalletAddresses() []common.Address {
	out := make([]common.Address, len(c.Wallets))
	for i, w := range c.Wallets {
		out[i] = common.HexToAddress(w.Address)
	}
	return out
}

// Epsilon returns the parsed balance epsilon. Call after Validate.
func (c *Config) Epsilon() decimal.Decimal {
	return decimal.RequireFromString(c.Accounting.BalanceEpsilon)
}
