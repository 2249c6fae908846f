package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-hft/internal/source"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, 3*time.Second, cfg.Tick)
	assert.Equal(t, 10*time.Second, cfg.SnapshotTTL)
	assert.Equal(t, 30*time.Second, cfg.RefreshTimeout)
	assert.Equal(t, 20*time.Second, cfg.HoldingsTimeout)
	assert.True(t, cfg.FallbackPrice().IsZero())
	assert.False(t, cfg.RequireWallet)
	assert.Len(t, cfg.Sources, len(DefaultSources()))
	assert.Equal(t, MainnetRPC, cfg.HoldingsEndpoint())
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `{
		"sources": [
			{"name": "a", "kind": "rpc", "endpoint": "https://a.example", "capability": "balance", "timeout_ms": 1500},
			{"name": "b", "kind": "solscan", "endpoint": "https://b.example", "capability": "balance"},
			{"name": "p", "kind": "coingecko", "endpoint": "https://p.example", "capability": "price", "asset": "solana"}
		],
		"static_balances": [{"identity": "AbCdEf", "amount": "1.25"}],
		"price_fallback": "150.5",
		"accrual": {"tick_ms": 500, "seed": 7},
		"require_wallet": true,
		"refresh_timeout_ms": 2500
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	descs := cfg.Descriptors()
	require.Len(t, descs, 3)
	assert.Equal(t, "a", descs[0].Name)
	assert.Equal(t, 1500*time.Millisecond, descs[0].Timeout)
	assert.Equal(t, source.KindSolscan, descs[1].Kind)
	assert.Equal(t, source.CapabilityPrice, descs[2].Capability)

	assert.True(t, cfg.StaticTable()["AbCdEf"].Equal(decimal.RequireFromString("1.25")))
	assert.True(t, cfg.FallbackPrice().Equal(decimal.RequireFromString("150.5")))
	assert.Equal(t, 500*time.Millisecond, cfg.Tick)
	assert.Equal(t, uint64(7), cfg.Accrual.Seed)
	assert.True(t, cfg.RequireWallet)
	assert.Equal(t, 2500*time.Millisecond, cfg.RefreshTimeout)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("SOLANA_HFT_RPC_LIST", "https://one.example, https://two.example,")
	t.Setenv("SOLANA_HFT_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("SOLANA_HFT_WEBHOOK_URL", "https://hooks.example/x")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.HTTPAddr)
	assert.Equal(t, "https://hooks.example/x", cfg.WebhookURL)

	descs := cfg.Descriptors()
	last := descs[len(descs)-2:]
	assert.Equal(t, "https://one.example", last[0].Endpoint)
	assert.Equal(t, "https://two.example", last[1].Endpoint)
	assert.Equal(t, source.CapabilityBalance, last[1].Capability)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no balance source", `{"sources": [{"name": "p", "kind": "coingecko", "endpoint": "https://p.example", "capability": "price", "asset": "solana"}]}`},
		{"bad scheme", `{"sources": [{"name": "a", "kind": "rpc", "endpoint": "ftp://a.example", "capability": "balance"}]}`},
		{"unknown kind", `{"sources": [{"name": "a", "kind": "nope", "endpoint": "https://a.example", "capability": "balance"}]}`},
		{"duplicate name", `{"sources": [
			{"name": "a", "kind": "rpc", "endpoint": "https://a.example", "capability": "balance"},
			{"name": "a", "kind": "rpc", "endpoint": "https://b.example", "capability": "balance"}]}`},
		{"bad tick", `{"accrual": {"tick_ms": 0}}`},
		{"bad fallback", `{"price_fallback": "abc"}`},
		{"negative static", `{"static_balances": [{"identity": "x", "amount": "-1"}]}`},
		{"zero refresh timeout", `{"refresh_timeout_ms": 0}`},
		{"negative holdings timeout", `{"holdings_timeout_ms": -1}`},
		{"plain webhook", `{"webhook_url": "http://hooks.example"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
