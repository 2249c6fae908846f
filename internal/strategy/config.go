// internal/strategy/config.go
package strategy

import (
	"github.com/shopspring/decimal"
)

// MaxAccrualStep bounds the per-tick PnL step of any strategy.
var MaxAccrualStep = decimal.NewFromInt(1000)

// Accrual parameterizes the simulated PnL walk of a slot.
type Accrual struct {
	Drift   decimal.Decimal `json:"drift" yaml:"drift"`
	MaxStep decimal.Decimal `json:"maxStep" yaml:"max_step"`
}

// GridParams – параметры сеточной стратегии
type GridParams struct {
	Levels     int             `json:"levels"`
	SpacingPct decimal.Decimal `json:"spacingPct"`
	OrderSize  decimal.Decimal `json:"orderSize"`
}

// SniperParams – параметры снайпера новых токенов
type SniperParams struct {
	MinLiquidity   decimal.Decimal `json:"minLiquidity"`
	MaxSlippagePct decimal.Decimal `json:"maxSlippagePct"`
	BuyAmount      decimal.Decimal `json:"buyAmount"`
	MaxRiskScore   int             `json:"maxRiskScore"`
}

// MEVParams – параметры MEV стратегии
type MEVParams struct {
	MinProfit     decimal.Decimal `json:"minProfit"`
	PriorityFee   decimal.Decimal `json:"priorityFee"`
	MaxConcurrent int             `json:"maxConcurrent"`
}

// SignalParams – параметры стратегии по сигналам настроения рынка
type SignalParams struct {
	MinPsychoScore int             `json:"minPsychoScore"`
	MinFomo        int             `json:"minFomo"`
	PositionSize   decimal.Decimal `json:"positionSize"`
}

// Config is a tagged record: Kind selects which one of the parameter
// blocks is set.
type Config struct {
	Kind    Kind          `json:"kind"`
	Accrual Accrual       `json:"accrual"`
	Grid    *GridParams   `json:"grid,omitempty"`
	Sniper  *SniperParams `json:"sniper,omitempty"`
	MEV     *MEVParams    `json:"mev,omitempty"`
	Signal  *SignalParams `json:"signal,omitempty"`
}

// DefaultConfig returns the built-in configuration of a kind.
func DefaultConfig(kind Kind) Config {
	d := decimal.RequireFromString
	switch kind {
	case KindGrid:
		return Config{
			Kind:    kind,
			Accrual: Accrual{Drift: d("0.002"), MaxStep: d("0.01")},
			Grid:    &GridParams{Levels: 10, SpacingPct: d("1"), OrderSize: d("0.1")},
		}
	case KindSniper:
		return Config{
			Kind:    kind,
			Accrual: Accrual{Drift: d("0.005"), MaxStep: d("0.05")},
			Sniper:  &SniperParams{MinLiquidity: d("10000"), MaxSlippagePct: d("5"), BuyAmount: d("0.05"), MaxRiskScore: 60},
		}
	case KindMEV:
		return Config{
			Kind:    kind,
			Accrual: Accrual{Drift: d("0.001"), MaxStep: d("0.005")},
			MEV:     &MEVParams{MinProfit: d("0.001"), PriorityFee: d("0.0001"), MaxConcurrent: 4},
		}
	case KindSignal:
		return Config{
			Kind:    kind,
			Accrual: Accrual{Drift: d("0.003"), MaxStep: d("0.03")},
			Signal:  &SignalParams{MinPsychoScore: 70, MinFomo: 50, PositionSize: d("0.02")},
		}
	default:
		return Config{Kind: kind}
	}
}

func (c Config) clone() Config {
	if c.Grid != nil {
		g := *c.Grid
		c.Grid = &g
	}
	if c.Sniper != nil {
		s := *c.Sniper
		c.Sniper = &s
	}
	if c.MEV != nil {
		m := *c.MEV
		c.MEV = &m
	}
	if c.Signal != nil {
		s := *c.Signal
		c.Signal = &s
	}
	return c
}

// normalize clamps every field into its valid range. Malformed values are
// never rejected.
func (c *Config) normalize() {
	c.Accrual = c.Accrual.normalized()

	switch c.Kind {
	case KindGrid:
		if c.Grid == nil {
			c.Grid = DefaultConfig(KindGrid).Grid
		}
		c.Grid.Levels = clampInt(c.Grid.Levels, 2, 100)
		c.Grid.SpacingPct = clampDec(c.Grid.SpacingPct, "0.1", "50")
		c.Grid.OrderSize = clampDec(c.Grid.OrderSize, "0.001", "1000")
	case KindSniper:
		if c.Sniper == nil {
			c.Sniper = DefaultConfig(KindSniper).Sniper
		}
		c.Sniper.MinLiquidity = clampDec(c.Sniper.MinLiquidity, "0", "1000000000")
		c.Sniper.MaxSlippagePct = clampDec(c.Sniper.MaxSlippagePct, "0.1", "50")
		c.Sniper.BuyAmount = clampDec(c.Sniper.BuyAmount, "0.001", "1000")
		c.Sniper.MaxRiskScore = clampInt(c.Sniper.MaxRiskScore, 0, 100)
	case KindMEV:
		if c.MEV == nil {
			c.MEV = DefaultConfig(KindMEV).MEV
		}
		c.MEV.MinProfit = clampDec(c.MEV.MinProfit, "0", "1000")
		c.MEV.PriorityFee = clampDec(c.MEV.PriorityFee, "0", "1")
		c.MEV.MaxConcurrent = clampInt(c.MEV.MaxConcurrent, 1, 32)
	case KindSignal:
		if c.Signal == nil {
			c.Signal = DefaultConfig(KindSignal).Signal
		}
		c.Signal.MinPsychoScore = clampInt(c.Signal.MinPsychoScore, 0, 100)
		c.Signal.MinFomo = clampInt(c.Signal.MinFomo, 0, 100)
		c.Signal.PositionSize = clampDec(c.Signal.PositionSize, "0.001", "1000")
	}

	// Only the block of the own kind survives.
	if c.Kind != KindGrid {
		c.Grid = nil
	}
	if c.Kind != KindSniper {
		c.Sniper = nil
	}
	if c.Kind != KindMEV {
		c.MEV = nil
	}
	if c.Kind != KindSignal {
		c.Signal = nil
	}
}

// normalized enforces 0 <= maxStep <= MaxAccrualStep and |drift| <= maxStep.
func (a Accrual) normalized() Accrual {
	step := a.MaxStep.Abs()
	if step.GreaterThan(MaxAccrualStep) {
		step = MaxAccrualStep
	}
	drift := a.Drift
	if drift.GreaterThan(step) {
		drift = step
	}
	if drift.LessThan(step.Neg()) {
		drift = step.Neg()
	}
	return Accrual{Drift: drift, MaxStep: step}
}

// Bounds returns the closed interval every tick delta falls into.
func (a Accrual) Bounds() (lo, hi decimal.Decimal) {
	return a.Drift.Sub(a.MaxStep), a.Drift.Add(a.MaxStep)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDec(v decimal.Decimal, lo, hi string) decimal.Decimal {
	l, h := decimal.RequireFromString(lo), decimal.RequireFromString(hi)
	if v.LessThan(l) {
		return l
	}
	if v.GreaterThan(h) {
		return h
	}
	return v
}
