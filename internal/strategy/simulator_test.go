package strategy

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTick_StoppedSlotsNeverChange(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	sim := NewSimulator(orch, time.Second, 42, zaptest.NewLogger(t), nil)

	for i := 0; i < 100; i++ {
		sim.Tick()
	}
	for _, v := range orch.Snapshot() {
		assert.True(t, v.AccruedPnl.IsZero(), "%s accrued while stopped", v.Kind)
	}
}

func TestTick_RunningDeltaWithinBounds(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	_, err := orch.Start(KindMEV)
	require.NoError(t, err)

	drift := decimal.RequireFromString("0.3")
	step := decimal.RequireFromString("1")
	_, err = orch.UpdateConfiguration(KindMEV, Patch{Accrual: &AccrualPatch{Drift: &drift, MaxStep: &step}})
	require.NoError(t, err)

	sim := NewSimulator(orch, time.Second, 7, zaptest.NewLogger(t), nil)
	lo, hi := decimal.RequireFromString("-0.7"), decimal.RequireFromString("1.3")

	prev := decimal.Zero
	changed := 0
	for i := 0; i < 1000; i++ {
		pnl := sim.Tick()[KindMEV]
		delta := pnl.Sub(prev)
		assert.True(t, delta.GreaterThanOrEqual(lo) && delta.LessThanOrEqual(hi), "delta %s out of bounds", delta)
		if !delta.IsZero() {
			changed++
		}
		prev = pnl
	}
	assert.Greater(t, changed, 900)
}

func TestTick_SameSeedSameWalk(t *testing.T) {
	walk := func() decimal.Decimal {
		orch := New(nil, zaptest.NewLogger(t))
		_, err := orch.Start(KindMEV)
		require.NoError(t, err)
		sim := NewSimulator(orch, time.Second, 99, zaptest.NewLogger(t), nil)
		for i := 0; i < 50; i++ {
			sim.Tick()
		}
		v, _ := orch.Get(KindMEV)
		return v.AccruedPnl
	}
	assert.True(t, walk().Equal(walk()))
}

func TestGridScenario(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	sim := NewSimulator(orch, time.Second, 1, zaptest.NewLogger(t), nil)

	_, err := orch.AssignResource(KindGrid, "TOKEN1")
	require.NoError(t, err)
	v, err := orch.Start(KindGrid)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, v.State)

	for i := 0; i < 5; i++ {
		sim.Tick()
	}

	v, err = orch.Stop(KindGrid)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, v.State)
	frozen := v.AccruedPnl

	for i := 0; i < 20; i++ {
		sim.Tick()
	}
	after, _ := orch.Get(KindGrid)
	assert.True(t, frozen.Equal(after.AccruedPnl), "stopped grid changed from %s to %s", frozen, after.AccruedPnl)

	// restart continues from the frozen value
	_, err = orch.Start(KindGrid)
	require.NoError(t, err)
	sim.Tick()
	after, _ = orch.Get(KindGrid)
	lo, hi := DefaultConfig(KindGrid).Accrual.Bounds()
	delta := after.AccruedPnl.Sub(frozen)
	assert.True(t, delta.GreaterThanOrEqual(lo) && delta.LessThanOrEqual(hi))
}

func TestZeroStepAccruesNothing(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	zero := decimal.Zero
	drift := decimal.RequireFromString("0.5")
	_, err := orch.UpdateConfiguration(KindMEV, Patch{Accrual: &AccrualPatch{Drift: &drift, MaxStep: &zero}})
	require.NoError(t, err)
	_, err = orch.Start(KindMEV)
	require.NoError(t, err)

	sim := NewSimulator(orch, time.Second, 3, zaptest.NewLogger(t), nil)
	sim.Tick()
	v, _ := orch.Get(KindMEV)
	assert.True(t, v.AccruedPnl.IsZero())
}

func TestRun_TicksPeriodicallyUntilCanceled(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	var ticks atomic.Int32
	sim := NewSimulator(orch, 10*time.Millisecond, 5, zaptest.NewLogger(t), func(map[Kind]decimal.Decimal) {
		ticks.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sim.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop")
	}
}

func TestStop_EndsRun(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	sim := NewSimulator(orch, 5*time.Millisecond, 5, zaptest.NewLogger(t), nil)

	done := make(chan struct{})
	go func() {
		sim.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		sim.mu.Lock()
		defer sim.mu.Unlock()
		return sim.cancel != nil
	}, time.Second, time.Millisecond)
	sim.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop")
	}
}

func TestAccrualNormalized(t *testing.T) {
	a := Accrual{Drift: decimal.NewFromInt(-5000), MaxStep: decimal.NewFromInt(5000)}.normalized()
	assert.True(t, a.MaxStep.Equal(MaxAccrualStep))
	assert.True(t, a.Drift.Equal(MaxAccrualStep.Neg()))
}
