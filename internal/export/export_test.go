package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-hft/internal/portfolio"
	"github.com/rovshanmuradov/solana-hft/internal/resolver"
	"github.com/rovshanmuradov/solana-hft/internal/strategy"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleSnapshot() portfolio.Snapshot {
	return portfolio.Snapshot{
		ID:             "snap-1",
		Identity:       "wallet",
		Balance:        resolver.BalanceResult{Amount: d("2"), Source: "rpc"},
		Price:          resolver.PriceQuote{UnitPrice: d("100"), Source: resolver.SourceFallback},
		ValuationQuote: d("200"),
		Holdings: []portfolio.Holding{
			{Symbol: "BONK", Mint: "mintA", Quantity: d("1000"), Price: d("0.01"), Valuation: d("10")},
		},
		TotalValue: d("210"),
		TakenAt:    now,
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", f.ContentType())

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "portfolio_20260301_120000.csv", Filename("portfolio", FormatCSV, now))
}

func TestWritePortfolio_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePortfolio(&buf, sampleSnapshot(), FormatCSV, now))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, holdingHeaders, rows[0])
	assert.Equal(t, []string{"SOL", "", "2", "100", "200"}, rows[1])
	assert.Equal(t, "BONK", rows[2][0])
	assert.Equal(t, "10", rows[2][4])
}

func TestWritePortfolio_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePortfolio(&buf, sampleSnapshot(), FormatJSON, now))

	var report map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "snap-1", report["snapshot_id"])
	assert.Equal(t, "210", report["total_value"])
	assert.Equal(t, true, report["degraded"])
	assert.Len(t, report["holdings"], 1)
}

func views() []strategy.View {
	pool := "pool-1"
	started := now.Add(-time.Minute)
	return []strategy.View{
		{Kind: strategy.KindGrid, State: strategy.StateRunning, AssignedResource: &pool, StartedAt: &started,
			AccruedPnl: d("0.5"), Config: strategy.DefaultConfig(strategy.KindGrid), UpdatedAt: now},
		{Kind: strategy.KindSniper, State: strategy.StateStopped, AccruedPnl: d("-0.2"),
			Config: strategy.DefaultConfig(strategy.KindSniper), UpdatedAt: now},
		{Kind: strategy.KindMEV, State: strategy.StateStopped, AccruedPnl: decimal.Zero,
			Config: strategy.DefaultConfig(strategy.KindMEV), UpdatedAt: now},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(views())
	assert.Equal(t, 3, s.Strategies)
	assert.Equal(t, 1, s.Running)
	assert.True(t, s.TotalPnL.Equal(d("0.3")))
	assert.Equal(t, "grid", s.Best)
	assert.Equal(t, "sniper", s.Worst)

	empty := Summarize(nil)
	assert.Empty(t, empty.Best)
	assert.True(t, empty.TotalPnL.IsZero())
}

func TestWriteStrategies_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStrategies(&buf, views(), FormatCSV, now))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"grid", "running", "pool-1", "0.5", "0.002", "0.01", "2026-03-01T11:59:00Z", "2026-03-01T12:00:00Z"}, rows[1])
	assert.Equal(t, "", rows[2][2])
	assert.Equal(t, "", rows[2][6])
}

func TestWriteStrategies_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStrategies(&buf, views(), FormatJSON, now))

	var report StrategyReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, 1, report.Summary.Running)
	assert.Len(t, report.Strategies, 3)
}
