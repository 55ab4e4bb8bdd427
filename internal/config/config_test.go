package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0x1111111111111111111111111111111111111111"

// writeTempConfig writes content to a config file in a per-test directory.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ETHERSCAN_API_KEY", "POSTGRES_DSN", "CLICKHOUSE_DSN", "REDIS_ADDR", "WALLET_ADDRESSES"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `
wallets:
  - name: Trust_ETH
    address: "`+testWallet+`"
routers:
  - name: SPI
    address: "0xa5025faba6e70b84f74e9b1113e5f7f4e7f4859f"
    outbound_symbol: SPI
    inbound_symbol: SHOP
accounting:
  method: LIFO
  fiscal_year_start_month: 7
pricing:
  pairs:
    USDC: USDCUSDT
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Trust_ETH", cfg.Wallets[0].Name)
	assert.Equal(t, "LIFO", cfg.Accounting.Method)
	assert.Equal(t, 7, cfg.Accounting.FiscalYearStartMonth)
	assert.Equal(t, "USDCUSDT", cfg.Pricing.Pairs["USDC"])

	// Defaults survive for omitted sections.
	assert.Equal(t, "ETH", cfg.Chain.NativeSymbol)
	assert.Equal(t, 365*24*time.Hour, cfg.Accounting.LongTermAfter)
	assert.Equal(t, PrecedenceInternalFirst, cfg.Resolver.LegPrecedence)

	// Router list entries get their omitted fields filled.
	require.Len(t, cfg.Routers, 1)
	assert.Equal(t, OutboundRunningBalance, cfg.Routers[0].OutboundAmountSource)
	assert.Equal(t, "SPI TokenSwap", cfg.Routers[0].Label)
	assert.Equal(t, int32(18), cfg.Routers[0].InboundDecimals)
}

func TestLoad_NoWalletIsFatal(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "accounting:\n  method: FIFO\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoWallet))
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WALLET_ADDRESSES", testWallet+", 0x2222222222222222222222222222222222222222")
	t.Setenv("ETHERSCAN_API_KEY", " key ")
	t.Setenv("POSTGRES_DSN", "postgres://u:p@localhost:5432/db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Len(t, cfg.Wallets, 2)
	assert.Equal(t, "key", cfg.Explorer.APIKey)
	assert.Equal(t, "postgres://u:p@localhost:5432/db", cfg.Storage.PostgresDSN)
	assert.Len(t, cfg.WalletAddresses(), 2)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Default()
		c.Wallets = []WalletConfig{{Address: testWallet}}
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid wallet", func(c *Config) { c.Wallets[0].Address = "nope" }},
		{"unknown method", func(c *Config) { c.Accounting.Method = "HIFO" }},
		{"bad epsilon", func(c *Config) { c.Accounting.BalanceEpsilon = "abc" }},
		{"negative epsilon", func(c *Config) { c.Accounting.BalanceEpsilon = "-1" }},
		{"fiscal month", func(c *Config) { c.Accounting.FiscalYearStartMonth = 13 }},
		{"router source", func(c *Config) { c.Routers[0].OutboundAmountSource = "guess" }},
		{"leg precedence", func(c *Config) { c.Resolver.LegPrecedence = "random" }},
		{"static without prices", func(c *Config) { c.Pricing.Provider = ProviderStatic }},
		{"unknown provider", func(c *Config) { c.Pricing.Provider = "coingecko" }},
		{"extra rule without match", func(c *Config) {
			c.ExtraRules = []RuleConfig{{Name: "x", Category: "deposit"}}
		}},
		{"extra rule bad category", func(c *Config) {
			c.ExtraRules = []RuleConfig{{Name: "x", FunctionContains: "bridge", Category: "bridge"}}
		}},
	}

	valid := base()
	require.NoError(t, valid.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
