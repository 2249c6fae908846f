// internal/source/types.go
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Capability names the kind of data a source can provide.
type Capability string

const (
	CapabilityBalance   Capability = "balance"
	CapabilityTokenList Capability = "tokenList"
	CapabilityPrice     Capability = "price"
)

// Kind selects the wire implementation behind a descriptor.
type Kind string

const (
	KindRPC           Kind = "rpc"
	KindSolscan       Kind = "solscan"
	KindJupiterPrice  Kind = "jupiter-price"
	KindCoinGecko     Kind = "coingecko"
	KindJupiterTokens Kind = "jupiter-tokens"
)

const (
	DefaultTimeout = 5 * time.Second

	// LamportsPerSOL converts getBalance results to SOL.
	LamportsPerSOL = 1_000_000_000
)

// Descriptor is the immutable description of one configured source.
type Descriptor struct {
	Name       string
	Kind       Kind
	Endpoint   string
	Capability Capability
	Timeout    time.Duration
	// RatePerSecond enables a client-side limiter when > 0.
	RatePerSecond float64
	// Asset is the price id (mint or coin id) for price sources.
	Asset string
}

// Token is one entry of a token list.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// Client is the part shared by every source.
type Client interface {
	Descriptor() Descriptor
}

// BalanceClient fetches the native balance (in SOL) of an identity.
type BalanceClient interface {
	Client
	FetchBalance(ctx context.Context, identity string) (decimal.Decimal, error)
}

// PriceClient fetches the unit price of the configured asset.
type PriceClient interface {
	Client
	FetchPrice(ctx context.Context) (decimal.Decimal, error)
}

// TokenListClient fetches a token list.
type TokenListClient interface {
	Client
	FetchTokens(ctx context.Context) ([]Token, error)
}

// MultiPriceClient prices several assets at once.
type MultiPriceClient interface {
	FetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// supports reports which capabilities a kind can serve.
func (k Kind) supports(c Capability) bool {
	switch k {
	case KindRPC, KindSolscan:
		return c == CapabilityBalance
	case KindJupiterPrice, KindCoinGecko:
		return c == CapabilityPrice
	case KindJupiterTokens:
		return c == CapabilityTokenList
	default:
		return false
	}
}

// Validate checks a descriptor before a client is built for it.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if d.Endpoint == "" {
		return fmt.Errorf("source %s: endpoint is required", d.Name)
	}
	if !d.Kind.supports(d.Capability) {
		return fmt.Errorf("source %s: kind %q cannot serve capability %q", d.Name, d.Kind, d.Capability)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("source %s: negative timeout", d.Name)
	}
	if d.Capability == CapabilityPrice && d.Asset == "" {
		return fmt.Errorf("source %s: price sources need an asset id", d.Name)
	}
	return nil
}

// withTimeout bounds one fetch by the descriptor timeout.
func (d Descriptor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
