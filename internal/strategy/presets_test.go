package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const presetsYAML = `
strategies:
  grid:
    accrual:
      drift: "0.004"
      max_step: "0.02"
    grid:
      levels: 14
      spacing_pct: "0.75"
  psycho:
    signal:
      min_psycho_score: 150
  creator:
    accrual:
      drift: "1"
  mev:
    sniper:
      buy_amount: "3"
`

func TestLoadPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(presetsYAML), 0o600))

	presets, err := LoadPresets(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Len(t, presets, 3, "unknown kinds are skipped")

	orch := New(nil, zaptest.NewLogger(t), WithPresets(presets))

	grid, _ := orch.Get(KindGrid)
	assert.Equal(t, 14, grid.Config.Grid.Levels)
	assert.Equal(t, "0.75", grid.Config.Grid.SpacingPct.String())
	assert.Equal(t, "0.004", grid.Config.Accrual.Drift.String())
	assert.Equal(t, "0.02", grid.Config.Accrual.MaxStep.String())

	signal, _ := orch.Get(KindSignal)
	assert.Equal(t, 100, signal.Config.Signal.MinPsychoScore, "presets are clamped like patches")

	mev, _ := orch.Get(KindMEV)
	assert.Nil(t, mev.Config.Sniper)
	assert.Equal(t, DefaultConfig(KindMEV).MEV.MaxConcurrent, mev.Config.MEV.MaxConcurrent)
}

func TestLoadPresets_Errors(t *testing.T) {
	_, err := LoadPresets(filepath.Join(t.TempDir(), "missing.yaml"), zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = ParsePresets([]byte("strategies: [1, 2"), zaptest.NewLogger(t))
	assert.Error(t, err)
}
