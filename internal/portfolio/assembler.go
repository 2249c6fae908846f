// internal/portfolio/assembler.go
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-hft/internal/resolver"
)

// Assembler builds portfolio snapshots and keeps the latest one per identity.
type Assembler struct {
	balance  BalanceResolver
	price    PriceResolver
	holdings HoldingsProvider
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.RWMutex
	latest map[string]Snapshot
}

// NewAssembler создает сборщик снимков. holdings может быть nil.
// ttl задаёт, сколько Get переиспользует последний снимок; 0 отключает кэш.
func NewAssembler(balance BalanceResolver, price PriceResolver, holdings HoldingsProvider, ttl time.Duration, logger *zap.Logger) *Assembler {
	return &Assembler{
		balance:  balance,
		price:    price,
		holdings: holdings,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.Named("portfolio"),
		latest:   make(map[string]Snapshot),
	}
}

// Refresh resolves balance and price concurrently, then holdings, and stores
// the result. A cancelled ctx yields resolver.ErrCanceled and no snapshot.
func (a *Assembler) Refresh(ctx context.Context, identity string) (Snapshot, error) {
	var (
		balance resolver.BalanceResult
		price   resolver.PriceQuote
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = a.balance.ResolveBalance(gctx, identity)
		return err
	})
	g.Go(func() error {
		var err error
		price, err = a.price.ResolvePrice(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.Info("refresh canceled", zap.String("identity", identity), zap.Error(err))
		return Snapshot{}, err
	}
	if ctx.Err() != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", resolver.ErrCanceled, context.Cause(ctx))
	}

	holdings, err := a.listHoldings(ctx, identity)
	if err != nil {
		return Snapshot{}, err
	}

	valuation := balance.Amount.Mul(price.UnitPrice)
	total := valuation
	for _, h := range holdings {
		total = total.Add(h.Valuation)
	}

	snap := Snapshot{
		ID:             uuid.NewString(),
		Identity:       identity,
		Balance:        balance,
		Price:          price,
		ValuationQuote: valuation,
		Holdings:       holdings,
		TotalValue:     total,
		TakenAt:        a.now(),
	}

	a.mu.Lock()
	a.latest[identity] = snap
	a.mu.Unlock()

	a.logger.Debug("snapshot refreshed",
		zap.String("identity", identity),
		zap.String("balance_source", balance.Source),
		zap.String("price_source", price.Source),
		zap.Int("holdings", len(holdings)),
		zap.String("total", total.String()))

	return snap.clone(), nil
}

// listHoldings returns an empty slice on provider failure and an error only
// on cancellation.
func (a *Assembler) listHoldings(ctx context.Context, identity string) ([]Holding, error) {
	if a.holdings == nil {
		return []Holding{}, nil
	}

	positions, err := a.holdings.ListHoldings(ctx, identity)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", resolver.ErrCanceled, context.Cause(ctx))
		}
		a.logger.Warn("holdings unavailable, reporting none", zap.String("identity", identity), zap.Error(err))
		return []Holding{}, nil
	}

	holdings := make([]Holding, 0, len(positions))
	for _, p := range positions {
		qty, px := p.Quantity, p.Price
		if qty.IsNegative() {
			qty = decimal.Zero
		}
		if px.IsNegative() {
			px = decimal.Zero
		}
		holdings = append(holdings, Holding{
			Symbol:    p.Symbol,
			Mint:      p.Mint,
			Quantity:  qty,
			Price:     px,
			Valuation: qty.Mul(px),
		})
	}
	sort.SliceStable(holdings, func(i, j int) bool {
		if c := holdings[i].Valuation.Cmp(holdings[j].Valuation); c != 0 {
			return c > 0
		}
		return holdings[i].Symbol < holdings[j].Symbol
	})
	return holdings, nil
}

// Cached returns the latest snapshot for identity regardless of age.
func (a *Assembler) Cached(identity string) (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap, ok := a.latest[identity]
	if !ok {
		return Snapshot{}, false
	}
	return snap.clone(), true
}

// Get returns the cached snapshot while it is younger than the TTL and
// refreshes otherwise.
func (a *Assembler) Get(ctx context.Context, identity string) (Snapshot, error) {
	if a.ttl > 0 {
		if snap, ok := a.Cached(identity); ok && snap.Age(a.now()) < a.ttl {
			return snap, nil
		}
	}
	return a.Refresh(ctx, identity)
}

// Forget drops the cached snapshot of identity.
func (a *Assembler) Forget(identity string) {
	a.mu.Lock()
	delete(a.latest, identity)
	a.mu.Unlock()
}
