// internal/resolver/price.go
package resolver

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/source"
)

// PriceQuote – цена единицы базового актива
type PriceQuote struct {
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Source    string          `json:"source"`
	AsOf      time.Time       `json:"asOf"`
}

// PriceConverter resolves the base asset price with the same failover rules
// as BalanceResolver and one constant fallback.
type PriceConverter struct {
	clients  []source.PriceClient
	fallback decimal.Decimal
	logger   *zap.Logger
	opts     options
}

// NewPriceConverter создает конвертер цен. Отрицательный fallback приводится к нулю.
func NewPriceConverter(clients []source.PriceClient, fallback decimal.Decimal, logger *zap.Logger, opts ...Option) *PriceConverter {
	if fallback.IsNegative() {
		fallback = decimal.Zero
	}
	return &PriceConverter{
		clients:  append([]source.PriceClient(nil), clients...),
		fallback: fallback,
		logger:   logger.Named("price-converter"),
		opts:     buildOptions(opts),
	}
}

// ResolvePrice never fails except on cancellation.
func (p *PriceConverter) ResolvePrice(ctx context.Context) (PriceQuote, error) {
	price, name, err := firstSuccess(ctx, p.logger, p.opts.observer, source.CapabilityPrice, p.clients,
		func(ctx context.Context, c source.PriceClient) (decimal.Decimal, error) {
			return c.FetchPrice(ctx)
		})
	switch {
	case err == nil:
		return PriceQuote{UnitPrice: price, Source: name, AsOf: p.opts.now()}, nil
	case err != errExhausted:
		return PriceQuote{}, err
	}

	p.logger.Warn("all price sources failed, using fallback price", zap.String("price", p.fallback.String()))
	p.opts.observer.ObserveFallback(string(source.CapabilityPrice), SourceFallback)
	return PriceQuote{UnitPrice: p.fallback, Source: SourceFallback, AsOf: p.opts.now()}, nil
}
