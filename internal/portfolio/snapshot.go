// internal/portfolio/snapshot.go
package portfolio

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-hft/internal/resolver"
)

// Position is one non-native holding as reported by a HoldingsProvider.
type Position struct {
	Symbol   string
	Mint     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// HoldingsProvider lists the token holdings of an identity. It may fail; the
// assembler then reports no holdings.
type HoldingsProvider interface {
	ListHoldings(ctx context.Context, identity string) ([]Position, error)
}

// BalanceResolver – источник баланса для снимка
type BalanceResolver interface {
	ResolveBalance(ctx context.Context, identity string) (resolver.BalanceResult, error)
}

// PriceResolver – источник цены базового актива
type PriceResolver interface {
	ResolvePrice(ctx context.Context) (resolver.PriceQuote, error)
}

// Holding – позиция с оценкой
type Holding struct {
	Symbol    string          `json:"symbol"`
	Mint      string          `json:"mint,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Valuation decimal.Decimal `json:"valuation"`
}

// Snapshot is an immutable view of one identity at one point in time.
type Snapshot struct {
	ID             string                 `json:"id"`
	Identity       string                 `json:"identity"`
	Balance        resolver.BalanceResult `json:"balance"`
	Price          resolver.PriceQuote    `json:"price"`
	ValuationQuote decimal.Decimal        `json:"valuationQuote"`
	Holdings       []Holding              `json:"holdings"`
	TotalValue     decimal.Decimal        `json:"totalValue"`
	TakenAt        time.Time              `json:"takenAt"`
}

// Degraded reports whether balance or price came from a fallback.
func (s Snapshot) Degraded() bool {
	return s.Balance.Degraded() || s.Price.Source == resolver.SourceFallback
}

// Age returns how old the snapshot is at now.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.TakenAt)
}

func (s Snapshot) clone() Snapshot {
	s.Holdings = append(make([]Holding, 0, len(s.Holdings)), s.Holdings...)
	return s
}
