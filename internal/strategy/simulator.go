// internal/strategy/simulator.go
package strategy

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultTick is the accrual period used when none is configured.
const DefaultTick = 3 * time.Second

// pnlPrecision – точность приращения (лампорты)
const pnlPrecision = 9

// TickCallback is called after every tick with the PnL of all slots.
type TickCallback func(pnl map[Kind]decimal.Decimal)

// Simulator periodically adds a bounded random delta to the PnL of every
// RUNNING slot. The period does not depend on when slots start or stop.
type Simulator struct {
	orch     *Orchestrator
	interval time.Duration
	logger   *zap.Logger
	callback TickCallback

	rngMu sync.Mutex
	rng   *rand.Rand

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSimulator creates a simulator over orch. seed 0 seeds from the clock.
func NewSimulator(orch *Orchestrator, interval time.Duration, seed uint64, logger *zap.Logger, callback TickCallback) *Simulator {
	if interval <= 0 {
		interval = DefaultTick
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Simulator{
		orch:     orch,
		interval: interval,
		logger:   logger.Named("simulator"),
		callback: callback,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Run ticks until ctx is done or Stop is called.
func (s *Simulator) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("Starting accrual simulator", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-ctx.Done():
			s.logger.Debug("Accrual simulator stopped")
			return
		}
	}
}

// Stop stops a running Run loop.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Tick performs one accrual step and returns the PnL of every slot.
func (s *Simulator) Tick() map[Kind]decimal.Decimal {
	pnl := s.orch.accrue(s.draw)
	if s.callback != nil {
		s.callback(pnl)
	}
	return pnl
}

// draw returns drift + maxStep*(2u-1) with u in [0,1), truncated toward
// zero. Accrual is normalized, so the interval always contains zero and
// truncation keeps the delta inside [drift-maxStep, drift+maxStep].
func (s *Simulator) draw(a Accrual) decimal.Decimal {
	if a.MaxStep.IsZero() {
		return a.Drift.Truncate(pnlPrecision)
	}

	s.rngMu.Lock()
	u := s.rng.Float64()
	s.rngMu.Unlock()

	x := decimal.NewFromFloat(2*u - 1)
	return a.Drift.Add(a.MaxStep.Mul(x)).Truncate(pnlPrecision)
}
