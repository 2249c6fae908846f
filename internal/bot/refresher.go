// internal/bot/refresher.go
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/events"
	"github.com/rovshanmuradov/solana-hft/internal/portfolio"
	"github.com/rovshanmuradov/solana-hft/internal/resolver"
)

// Refresher is the part of the assembler the wallet subscriber needs.
type Refresher interface {
	Refresh(ctx context.Context, identity string) (portfolio.Snapshot, error)
	Forget(identity string)
}

// Publisher принимает события
type Publisher interface {
	Publish(event events.Event) error
}

// walletRefresher rebuilds the portfolio whenever the connected wallet
// changes. Refreshes run off the bus goroutine; only the latest pending
// identity is kept.
type walletRefresher struct {
	portfolio Refresher
	publisher Publisher
	timeout   time.Duration
	logger    *zap.Logger

	pending chan string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

func newWalletRefresher(p Refresher, publisher Publisher, timeout time.Duration, logger *zap.Logger) *walletRefresher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &walletRefresher{
		portfolio: p,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger.Named("wallet_refresher"),
		pending:   make(chan string, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Handle implements events.Handler.
func (r *walletRefresher) Handle(_ context.Context, event events.Event) error {
	ev, ok := event.(events.WalletEvent)
	if !ok {
		return nil
	}

	if ev.Previous != "" {
		r.portfolio.Forget(ev.Previous)
	}
	if ev.Type() == events.WalletConnected && ev.Identity != "" {
		r.enqueue(ev.Identity)
	}
	return nil
}

func (r *walletRefresher) enqueue(identity string) {
	for {
		select {
		case r.pending <- identity:
			return
		default:
		}
		// replace the stale request
		select {
		case <-r.pending:
		default:
		}
	}
}

func (r *walletRefresher) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case identity := <-r.pending:
			r.refresh(identity)
		}
	}
}

func (r *walletRefresher) refresh(identity string) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	snap, err := r.portfolio.Refresh(ctx, identity)
	if err != nil {
		if errors.Is(err, resolver.ErrCanceled) {
			r.logger.Debug("Portfolio refresh canceled", zap.Error(err))
			return
		}
		r.logger.Warn("Portfolio refresh failed", zap.Error(err))
		return
	}

	r.logger.Info("Portfolio refreshed after wallet change",
		zap.String("snapshot_id", snap.ID),
		zap.String("total_value", snap.TotalValue.String()),
		zap.Bool("degraded", snap.Degraded()))

	if r.publisher == nil {
		return
	}
	err = r.publisher.Publish(events.PortfolioRefreshedEvent{
		BaseEvent:  events.NewBaseEvent(events.PortfolioRefreshed),
		Identity:   identity,
		SnapshotID: snap.ID,
		TotalValue: snap.TotalValue.String(),
		Degraded:   snap.Degraded(),
	})
	if err != nil {
		r.logger.Warn("Failed to publish portfolio event", zap.Error(err))
	}
}

// Close stops the worker; an in-flight refresh is canceled.
func (r *walletRefresher) Close() error {
	r.once.Do(func() {
		r.cancel()
		r.wg.Wait()
	})
	return nil
}
