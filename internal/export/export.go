// internal/export/export.go
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-hft/internal/portfolio"
	"github.com/rovshanmuradov/solana-hft/internal/strategy"
)

// Format represents the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "csv" and "json"; empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Filename builds a download name like portfolio_<id>_20060102_150405.csv.
func Filename(prefix string, f Format, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, at.UTC().Format("20060102_150405"), f)
}

var holdingHeaders = []string{"symbol", "mint", "quantity", "price", "valuation"}

// PortfolioReport is the JSON form of an exported snapshot.
type PortfolioReport struct {
	ExportTime   time.Time           `json:"export_time"`
	SnapshotID   string              `json:"snapshot_id"`
	Identity     string              `json:"identity"`
	Native       decimal.Decimal     `json:"native_balance"`
	NativeSource string              `json:"native_source"`
	UnitPrice    decimal.Decimal     `json:"unit_price"`
	PriceSource  string              `json:"price_source"`
	TotalValue   decimal.Decimal     `json:"total_value"`
	Degraded     bool                `json:"degraded"`
	Holdings     []portfolio.Holding `json:"holdings"`
	TakenAt      time.Time           `json:"taken_at"`
}

// WritePortfolio writes the snapshot. The CSV form has one row for the
// native balance followed by one row per holding.
func WritePortfolio(w io.Writer, snap portfolio.Snapshot, f Format, now time.Time) error {
	switch f {
	case FormatCSV:
		writer := csv.NewWriter(w)
		if err := writer.Write(holdingHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
		native := []string{"SOL", "", snap.Balance.Amount.String(), snap.Price.UnitPrice.String(), snap.ValuationQuote.String()}
		if err := writer.Write(native); err != nil {
			return fmt.Errorf("failed to write native row: %w", err)
		}
		for _, h := range snap.Holdings {
			row := []string{h.Symbol, h.Mint, h.Quantity.String(), h.Price.String(), h.Valuation.String()}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write holding: %w", err)
			}
		}
		writer.Flush()
		return writer.Error()

	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		report := PortfolioReport{
			ExportTime:   now,
			SnapshotID:   snap.ID,
			Identity:     snap.Identity,
			Native:       snap.Balance.Amount,
			NativeSource: snap.Balance.Source,
			UnitPrice:    snap.Price.UnitPrice,
			PriceSource:  snap.Price.Source,
			TotalValue:   snap.TotalValue,
			Degraded:     snap.Degraded(),
			Holdings:     snap.Holdings,
			TakenAt:      snap.TakenAt,
		}
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported format: %s", f)
	}
}

var strategyHeaders = []string{"kind", "state", "resource", "accrued_pnl", "drift", "max_step", "started_at", "updated_at"}

// Summary aggregates strategy views.
type Summary struct {
	Strategies int             `json:"strategies"`
	Running    int             `json:"running"`
	TotalPnL   decimal.Decimal `json:"total_pnl"`
	Best       string          `json:"best,omitempty"`
	Worst      string          `json:"worst,omitempty"`
}

// StrategyReport is the JSON form of exported strategies.
type StrategyReport struct {
	ExportTime time.Time       `json:"export_time"`
	Summary    Summary         `json:"summary"`
	Strategies []strategy.View `json:"strategies"`
}

// Summarize computes totals and the best and worst slot by PnL. Ties keep
// display order.
func Summarize(views []strategy.View) Summary {
	s := Summary{Strategies: len(views), TotalPnL: decimal.Zero}
	if len(views) == 0 {
		return s
	}

	ranked := append([]strategy.View(nil), views...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].AccruedPnl.GreaterThan(ranked[j].AccruedPnl)
	})
	s.Best = string(ranked[0].Kind)
	s.Worst = string(ranked[len(ranked)-1].Kind)

	for _, v := range views {
		if v.Running() {
			s.Running++
		}
		s.TotalPnL = s.TotalPnL.Add(v.AccruedPnl)
	}
	return s
}

// WriteStrategies writes the strategy views in f.
func WriteStrategies(w io.Writer, views []strategy.View, f Format, now time.Time) error {
	switch f {
	case FormatCSV:
		writer := csv.NewWriter(w)
		if err := writer.Write(strategyHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
		for _, v := range views {
			if err := writer.Write(strategyRow(v)); err != nil {
				return fmt.Errorf("failed to write strategy: %w", err)
			}
		}
		writer.Flush()
		return writer.Error()

	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		report := StrategyReport{ExportTime: now, Summary: Summarize(views), Strategies: views}
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported format: %s", f)
	}
}

func strategyRow(v strategy.View) []string {
	resource := ""
	if v.AssignedResource != nil {
		resource = *v.AssignedResource
	}
	started := ""
	if v.StartedAt != nil {
		started = v.StartedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		string(v.Kind),
		string(v.State),
		resource,
		v.AccruedPnl.String(),
		v.Config.Accrual.Drift.String(),
		v.Config.Accrual.MaxStep.String(),
		started,
		v.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
