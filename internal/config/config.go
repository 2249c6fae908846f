// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/solana-hft/internal/source"
)

// SourceConfig описывает один источник данных в порядке приоритета
type SourceConfig struct {
	Name          string  `mapstructure:"name"`
	Kind          string  `mapstructure:"kind"`
	Endpoint      string  `mapstructure:"endpoint"`
	Capability    string  `mapstructure:"capability"`
	TimeoutMs     int     `mapstructure:"timeout_ms"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Asset         string  `mapstructure:"asset"`
}

// StaticBalance is one entry of the balance fallback table. A list is used
// because viper lowercases map keys and identities are case-sensitive.
type StaticBalance struct {
	Identity string `mapstructure:"identity"`
	Amount   string `mapstructure:"amount"`
}

type AccrualConfig struct {
	TickMs int    `mapstructure:"tick_ms"`
	Seed   uint64 `mapstructure:"seed"`
}

type Config struct {
	Sources           []SourceConfig  `mapstructure:"sources"`
	RPCList           []string        `mapstructure:"rpc_list"`
	StaticBalances    []StaticBalance `mapstructure:"static_balances"`
	PriceFallback     string          `mapstructure:"price_fallback"`
	SnapshotTTLMs     int             `mapstructure:"snapshot_ttl_ms"`
	TokenListTTLMs    int             `mapstructure:"token_list_ttl_ms"`
	HoldingsRPC       string          `mapstructure:"holdings_rpc"`
	Accrual           AccrualConfig   `mapstructure:"accrual"`
	StrategiesFile    string          `mapstructure:"strategies_file"`
	RequireWallet     bool            `mapstructure:"require_wallet"`
	HTTPAddr          string          `mapstructure:"http_addr"`
	WebhookURL        string          `mapstructure:"webhook_url"`
	DebugLogging      bool            `mapstructure:"debug_logging"`
	LogFile           string          `mapstructure:"log_file"`
	EventBuffer       int             `mapstructure:"event_buffer"`
	ShutdownTimeoutMs int             `mapstructure:"shutdown_timeout_ms"`
	RefreshTimeoutMs  int             `mapstructure:"refresh_timeout_ms"`
	HoldingsTimeoutMs int             `mapstructure:"holdings_timeout_ms"`

	SnapshotTTL     time.Duration `mapstructure:"-"`
	TokenListTTL    time.Duration `mapstructure:"-"`
	Tick            time.Duration `mapstructure:"-"`
	ShutdownTimeout time.Duration `mapstructure:"-"`
	RefreshTimeout  time.Duration `mapstructure:"-"`
	HoldingsTimeout time.Duration `mapstructure:"-"`
}

const (
	DefaultHTTPAddr        = ":8080"
	DefaultTickMs          = 3000
	DefaultSnapshotTTLMs   = 10000
	DefaultTokenListTTLMs  = 600000
	DefaultEventBuffer     = 256
	DefaultShutdownTimeout = 10000
	DefaultRefreshTimeout  = 30000
	DefaultHoldingsTimeout = 20000
	DefaultLogFile         = "logs/solana-hft.log"
	DefaultPriceFallback   = "0"

	MainnetRPC = "https://api.mainnet-beta.solana.com"
	SOLMint    = "So11111111111111111111111111111111111111112"
)

// DefaultSources is used when the file configures no sources.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "mainnet-rpc", Kind: string(source.KindRPC), Endpoint: MainnetRPC, Capability: string(source.CapabilityBalance), TimeoutMs: 5000},
		{Name: "jupiter-price", Kind: string(source.KindJupiterPrice), Endpoint: "https://api.jup.ag/price/v2", Capability: string(source.CapabilityPrice), Asset: SOLMint, TimeoutMs: 5000},
		{Name: "coingecko", Kind: string(source.KindCoinGecko), Endpoint: "https://api.coingecko.com/api/v3/simple/price", Capability: string(source.CapabilityPrice), Asset: "solana", TimeoutMs: 5000, RatePerSecond: 0.5},
		{Name: "jupiter-tokens", Kind: string(source.KindJupiterTokens), Endpoint: "https://cache.jup.ag/tokens", Capability: string(source.CapabilityTokenList), TimeoutMs: 15000},
	}
}

// LoadConfig reads path (JSON) and environment overrides. An empty path
// loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"price_fallback":      DefaultPriceFallback,
		"snapshot_ttl_ms":     DefaultSnapshotTTLMs,
		"token_list_ttl_ms":   DefaultTokenListTTLMs,
		"accrual.tick_ms":     DefaultTickMs,
		"accrual.seed":        0,
		"http_addr":           DefaultHTTPAddr,
		"event_buffer":        DefaultEventBuffer,
		"shutdown_timeout_ms": DefaultShutdownTimeout,
		"refresh_timeout_ms":  DefaultRefreshTimeout,
		"holdings_timeout_ms": DefaultHoldingsTimeout,
		"log_file":            DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	loadEnvironmentVariables(v, &cfg)

	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
	}
	cfg.Sources = append(cfg.Sources, rpcListSources(cfg.RPCList, cfg.Sources)...)

	cfg.SnapshotTTL = time.Duration(cfg.SnapshotTTLMs) * time.Millisecond
	cfg.TokenListTTL = time.Duration(cfg.TokenListTTLMs) * time.Millisecond
	cfg.Tick = time.Duration(cfg.Accrual.TickMs) * time.Millisecond
	cfg.ShutdownTimeout = time.Duration(cfg.ShutdownTimeoutMs) * time.Millisecond
	cfg.RefreshTimeout = time.Duration(cfg.RefreshTimeoutMs) * time.Millisecond
	cfg.HoldingsTimeout = time.Duration(cfg.HoldingsTimeoutMs) * time.Millisecond

	return &cfg, validateConfig(&cfg)
}

// rpcListSources turns the rpc_list shorthand into balance sources placed
// after the explicit ones. Endpoints already configured are skipped.
func rpcListSources(list []string, existing []SourceConfig) []SourceConfig {
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s.Endpoint] = struct{}{}
	}
	var out []SourceConfig
	for i, endpoint := range list {
		if _, dup := seen[endpoint]; dup {
			continue
		}
		seen[endpoint] = struct{}{}
		out = append(out, SourceConfig{
			Name:       fmt.Sprintf("rpc-%d", i+1),
			Kind:       string(source.KindRPC),
			Endpoint:   endpoint,
			Capability: string(source.CapabilityBalance),
		})
	}
	return out
}

func validateConfig(cfg *Config) error {
	descs := cfg.Descriptors()
	names := make(map[string]struct{}, len(descs))
	balances := 0
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return err
		}
		if _, dup := names[d.Name]; dup {
			return fmt.Errorf("duplicate source name %q", d.Name)
		}
		names[d.Name] = struct{}{}
		if err := validateURLWithCache(d.Endpoint, "http"); err != nil {
			return fmt.Errorf("source %s: %w", d.Name, err)
		}
		if d.Capability == source.CapabilityBalance {
			balances++
		}
	}
	if balances == 0 {
		return errors.New("no balance sources configured")
	}
	if cfg.HoldingsRPC != "" {
		if err := validateURLWithCache(cfg.HoldingsRPC, "http"); err != nil {
			return errors.New("invalid holdings_rpc URL")
		}
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if _, err := decimal.NewFromString(cfg.PriceFallback); err != nil {
		return fmt.Errorf("invalid price_fallback: %w", err)
	}
	for _, sb := range cfg.StaticBalances {
		if strings.TrimSpace(sb.Identity) == "" {
			return errors.New("static balance without identity")
		}
		amount, err := decimal.NewFromString(sb.Amount)
		if err != nil || amount.IsNegative() {
			return fmt.Errorf("invalid static balance for %s", sb.Identity)
		}
	}
	if cfg.WebhookURL != "" {
		if err := validateURLWithCache(cfg.WebhookURL, "https"); err != nil {
			return errors.New("webhook URL must use HTTPS")
		}
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.Accrual.TickMs <= 0 {
		return errors.New("invalid accrual.tick_ms")
	}
	if cfg.SnapshotTTLMs < 0 {
		return errors.New("invalid snapshot_ttl_ms")
	}
	if cfg.TokenListTTLMs < 0 {
		return errors.New("invalid token_list_ttl_ms")
	}
	if cfg.EventBuffer <= 0 {
		return errors.New("invalid event_buffer")
	}
	if cfg.ShutdownTimeoutMs <= 0 {
		return errors.New("invalid shutdown_timeout_ms")
	}
	if cfg.RefreshTimeoutMs <= 0 {
		return errors.New("invalid refresh_timeout_ms")
	}
	if cfg.HoldingsTimeoutMs <= 0 {
		return errors.New("invalid holdings_timeout_ms")
	}
	for _, s := range cfg.Sources {
		if s.TimeoutMs < 0 {
			return fmt.Errorf("invalid timeout_ms for source %s", s.Name)
		}
		if s.RatePerSecond < 0 {
			return fmt.Errorf("invalid rate_per_second for source %s", s.Name)
		}
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL + "|" + protocol); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL+"|"+protocol, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("SOLANA_HFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envRPCList := v.GetString("RPC_LIST"); envRPCList != "" {
		var cleanRPCs []string
		for _, rpc := range strings.Split(envRPCList, ",") {
			if clean := strings.TrimSpace(rpc); clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	if webhook := v.GetString("WEBHOOK_URL"); webhook != "" {
		cfg.WebhookURL = webhook
	}
	if addr := v.GetString("HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
}

// Descriptors converts sources into immutable descriptors, keeping order.
func (c *Config) Descriptors() []source.Descriptor {
	out := make([]source.Descriptor, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, source.Descriptor{
			Name:          s.Name,
			Kind:          source.Kind(strings.ToLower(s.Kind)),
			Endpoint:      s.Endpoint,
			Capability:    source.Capability(s.Capability),
			Timeout:       time.Duration(s.TimeoutMs) * time.Millisecond,
			RatePerSecond: s.RatePerSecond,
			Asset:         s.Asset,
		})
	}
	return out
}

// StaticTable returns the balance fallback table. Entries are validated by
// LoadConfig.
func (c *Config) StaticTable() map[string]decimal.Decimal {
	table := make(map[string]decimal.Decimal, len(c.StaticBalances))
	for _, sb := range c.StaticBalances {
		if amount, err := decimal.NewFromString(sb.Amount); err == nil {
			table[strings.TrimSpace(sb.Identity)] = amount
		}
	}
	return table
}

// FallbackPrice returns price_fallback as a decimal.
func (c *Config) FallbackPrice() decimal.Decimal {
	price, err := decimal.NewFromString(c.PriceFallback)
	if err != nil {
		return decimal.Zero
	}
	return price
}

// HoldingsEndpoint returns the RPC used for token accounts: holdings_rpc or
// the first rpc balance source.
func (c *Config) HoldingsEndpoint() string {
	if c.HoldingsRPC != "" {
		return c.HoldingsRPC
	}
	for _, s := range c.Sources {
		if source.Kind(strings.ToLower(s.Kind)) == source.KindRPC {
			return s.Endpoint
		}
	}
	return ""
}
