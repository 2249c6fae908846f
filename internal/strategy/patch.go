// internal/strategy/patch.go
package strategy

import (
	"github.com/shopspring/decimal"
)

// Patch is a partial configuration. Nil fields are left untouched; blocks
// that do not belong to the patched kind are ignored.
type Patch struct {
	Accrual *AccrualPatch `json:"accrual,omitempty" yaml:"accrual"`
	Grid    *GridPatch    `json:"grid,omitempty" yaml:"grid"`
	Sniper  *SniperPatch  `json:"sniper,omitempty" yaml:"sniper"`
	MEV     *MEVPatch     `json:"mev,omitempty" yaml:"mev"`
	Signal  *SignalPatch  `json:"signal,omitempty" yaml:"signal"`
}

type AccrualPatch struct {
	Drift   *decimal.Decimal `json:"drift,omitempty" yaml:"drift"`
	MaxStep *decimal.Decimal `json:"maxStep,omitempty" yaml:"max_step"`
}

type GridPatch struct {
	Levels     *int             `json:"levels,omitempty" yaml:"levels"`
	SpacingPct *decimal.Decimal `json:"spacingPct,omitempty" yaml:"spacing_pct"`
	OrderSize  *decimal.Decimal `json:"orderSize,omitempty" yaml:"order_size"`
}

type SniperPatch struct {
	MinLiquidity   *decimal.Decimal `json:"minLiquidity,omitempty" yaml:"min_liquidity"`
	MaxSlippagePct *decimal.Decimal `json:"maxSlippagePct,omitempty" yaml:"max_slippage_pct"`
	BuyAmount      *decimal.Decimal `json:"buyAmount,omitempty" yaml:"buy_amount"`
	MaxRiskScore   *int             `json:"maxRiskScore,omitempty" yaml:"max_risk_score"`
}

type MEVPatch struct {
	MinProfit     *decimal.Decimal `json:"minProfit,omitempty" yaml:"min_profit"`
	PriorityFee   *decimal.Decimal `json:"priorityFee,omitempty" yaml:"priority_fee"`
	MaxConcurrent *int             `json:"maxConcurrent,omitempty" yaml:"max_concurrent"`
}

type SignalPatch struct {
	MinPsychoScore *int             `json:"minPsychoScore,omitempty" yaml:"min_psycho_score"`
	MinFomo        *int             `json:"minFomo,omitempty" yaml:"min_fomo"`
	PositionSize   *decimal.Decimal `json:"positionSize,omitempty" yaml:"position_size"`
}

// foreign reports blocks of the patch that do not apply to kind.
func (p Patch) foreign(kind Kind) []string {
	var out []string
	if p.Grid != nil && kind != KindGrid {
		out = append(out, string(KindGrid))
	}
	if p.Sniper != nil && kind != KindSniper {
		out = append(out, string(KindSniper))
	}
	if p.MEV != nil && kind != KindMEV {
		out = append(out, string(KindMEV))
	}
	if p.Signal != nil && kind != KindSignal {
		out = append(out, string(KindSignal))
	}
	return out
}

// applyTo merges the patch into c. The caller normalizes afterwards.
func (p Patch) applyTo(c *Config) {
	if a := p.Accrual; a != nil {
		setDec(&c.Accrual.Drift, a.Drift)
		setDec(&c.Accrual.MaxStep, a.MaxStep)
	}

	switch c.Kind {
	case KindGrid:
		if g := p.Grid; g != nil && c.Grid != nil {
			setInt(&c.Grid.Levels, g.Levels)
			setDec(&c.Grid.SpacingPct, g.SpacingPct)
			setDec(&c.Grid.OrderSize, g.OrderSize)
		}
	case KindSniper:
		if s := p.Sniper; s != nil && c.Sniper != nil {
			setDec(&c.Sniper.MinLiquidity, s.MinLiquidity)
			setDec(&c.Sniper.MaxSlippagePct, s.MaxSlippagePct)
			setDec(&c.Sniper.BuyAmount, s.BuyAmount)
			setInt(&c.Sniper.MaxRiskScore, s.MaxRiskScore)
		}
	case KindMEV:
		if m := p.MEV; m != nil && c.MEV != nil {
			setDec(&c.MEV.MinProfit, m.MinProfit)
			setDec(&c.MEV.PriorityFee, m.PriorityFee)
			setInt(&c.MEV.MaxConcurrent, m.MaxConcurrent)
		}
	case KindSignal:
		if s := p.Signal; s != nil && c.Signal != nil {
			setInt(&c.Signal.MinPsychoScore, s.MinPsychoScore)
			setInt(&c.Signal.MinFomo, s.MinFomo)
			setDec(&c.Signal.PositionSize, s.PositionSize)
		}
	}
}

func setDec(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
