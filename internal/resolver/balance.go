// internal/resolver/balance.go
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/source"
)

// BalanceResult is the balance of one identity in SOL.
type BalanceResult struct {
	Amount     decimal.Decimal `json:"amount"`
	Source     string          `json:"source"`
	ResolvedAt time.Time       `json:"resolvedAt"`
}

// Degraded reports whether no live source produced the amount.
func (r BalanceResult) Degraded() bool {
	return r.Source == SourceStatic || r.Source == SourceNone
}

// BalanceResolver walks the configured balance sources in priority order.
type BalanceResolver struct {
	clients []source.BalanceClient
	static  map[string]decimal.Decimal
	logger  *zap.Logger
	opts    options
}

// NewBalanceResolver создает резолвер баланса. static – таблица балансов по
// identity на случай отказа всех источников, может быть пустой.
func NewBalanceResolver(clients []source.BalanceClient, static map[string]decimal.Decimal, logger *zap.Logger, opts ...Option) *BalanceResolver {
	table := make(map[string]decimal.Decimal, len(static))
	for id, amount := range static {
		table[id] = amount
	}
	return &BalanceResolver{
		clients: append([]source.BalanceClient(nil), clients...),
		static:  table,
		logger:  logger.Named("balance-resolver"),
		opts:    buildOptions(opts),
	}
}

// ResolveBalance returns the first successful source answer, then the static
// table entry, then a zero amount from "none". It fails only when ctx is done.
func (r *BalanceResolver) ResolveBalance(ctx context.Context, identity string) (BalanceResult, error) {
	amount, name, err := firstSuccess(ctx, r.logger.With(zap.String("identity", identity)), r.opts.observer,
		source.CapabilityBalance, r.clients,
		func(ctx context.Context, c source.BalanceClient) (decimal.Decimal, error) {
			amount, err := c.FetchBalance(ctx, identity)
			if err == nil && amount.IsNegative() {
				return decimal.Zero, source.NewError(fmt.Errorf("%w: negative balance %s", source.ErrInvalidResponse, amount),
					c.Descriptor().Name, "balance")
			}
			return amount, err
		})
	if err == nil {
		return BalanceResult{Amount: amount, Source: name, ResolvedAt: r.opts.now()}, nil
	}
	if err != errExhausted {
		return BalanceResult{}, err
	}

	if amount, ok := r.static[identity]; ok {
		r.logger.Warn("all balance sources failed, using static entry", zap.String("identity", identity))
		r.opts.observer.ObserveFallback(string(source.CapabilityBalance), SourceStatic)
		return BalanceResult{Amount: amount, Source: SourceStatic, ResolvedAt: r.opts.now()}, nil
	}

	r.logger.Warn("all balance sources failed", zap.String("identity", identity), zap.Int("sources", len(r.clients)))
	r.opts.observer.ObserveFallback(string(source.CapabilityBalance), SourceNone)
	return BalanceResult{Amount: decimal.Zero, Source: SourceNone, ResolvedAt: r.opts.now()}, nil
}

// Sources returns source names in attempt order.
func (r *BalanceResolver) Sources() []string {
	names := make([]string, 0, len(r.clients))
	for _, c := range r.clients {
		names = append(names, c.Descriptor().Name)
	}
	return names
}
