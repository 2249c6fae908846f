package strategy

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-hft/internal/events"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.StrategyEvent
	err    error
}

func (s *recordingSink) Publish(e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if se, ok := e.(events.StrategyEvent); ok {
		s.events = append(s.events, se)
	}
	return s.err
}

func (s *recordingSink) types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type())
	}
	return out
}

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	return New(sink, zaptest.NewLogger(t), opts...), sink
}

func TestNew_InitialState(t *testing.T) {
	orch, sink := newTestOrchestrator(t)

	views := orch.Snapshot()
	require.Len(t, views, 4)
	for i, kind := range []Kind{KindGrid, KindSniper, KindMEV, KindSignal} {
		v := views[i]
		assert.Equal(t, kind, v.Kind)
		assert.Equal(t, StateStopped, v.State)
		assert.Nil(t, v.AssignedResource)
		assert.True(t, v.AccruedPnl.IsZero())
		assert.Nil(t, v.StartedAt)
		assert.Equal(t, kind, v.Config.Kind)
	}
	assert.Empty(t, sink.types())
}

func TestStart_RequiresResource(t *testing.T) {
	for _, kind := range []Kind{KindGrid, KindSniper, KindSignal} {
		t.Run(string(kind), func(t *testing.T) {
			orch, sink := newTestOrchestrator(t)

			v, err := orch.Start(kind)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrResourceNotAssigned))

			var rnaErr *ResourceNotAssignedError
			require.ErrorAs(t, err, &rnaErr)
			assert.Equal(t, kind, rnaErr.Kind)

			assert.Equal(t, StateStopped, v.State)
			got, _ := orch.Get(kind)
			assert.Equal(t, StateStopped, got.State)
			assert.Empty(t, sink.types())
		})
	}
}

func TestStart_MEVNeedsNoResource(t *testing.T) {
	orch, sink := newTestOrchestrator(t)

	v, err := orch.Start(KindMEV)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, v.State)
	assert.NotNil(t, v.StartedAt)
	assert.Equal(t, []events.EventType{events.StrategyStarted}, sink.types())
}

func TestStart_Idempotent(t *testing.T) {
	orch, sink := newTestOrchestrator(t)

	_, err := orch.AssignResource(KindSniper, "MINT1")
	require.NoError(t, err)

	first, err := orch.Start(KindSniper)
	require.NoError(t, err)
	second, err := orch.Start(KindSniper)
	require.NoError(t, err)

	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.StartedAt, second.StartedAt)
	assert.Equal(t, []events.EventType{events.StrategyResourceAssigned, events.StrategyStarted}, sink.types())
}

func TestStop_Idempotent(t *testing.T) {
	orch, sink := newTestOrchestrator(t)

	v, err := orch.Stop(KindGrid)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, v.State)
	assert.Empty(t, sink.types(), "stopping a stopped slot emits nothing")

	_, err = orch.Start(KindMEV)
	require.NoError(t, err)
	_, err = orch.Stop(KindMEV)
	require.NoError(t, err)
	_, err = orch.Stop(KindMEV)
	require.NoError(t, err)
	assert.Equal(t, []events.EventType{events.StrategyStarted, events.StrategyStopped}, sink.types())
}

func TestAssignResource(t *testing.T) {
	orch, sink := newTestOrchestrator(t)

	v, err := orch.AssignResource(KindGrid, "TOKEN1")
	require.NoError(t, err)
	require.NotNil(t, v.AssignedResource)
	assert.Equal(t, "TOKEN1", *v.AssignedResource)

	// allowed while running, overwrites
	_, err = orch.Start(KindGrid)
	require.NoError(t, err)
	v, err = orch.AssignResource(KindGrid, "TOKEN2")
	require.NoError(t, err)
	assert.Equal(t, "TOKEN2", *v.AssignedResource)
	assert.Equal(t, StateRunning, v.State)

	// blank clears
	v, err = orch.AssignResource(KindGrid, "   ")
	require.NoError(t, err)
	assert.Nil(t, v.AssignedResource)

	// the returned view is a copy
	v2, err := orch.AssignResource(KindSniper, "X")
	require.NoError(t, err)
	*v2.AssignedResource = "mutated"
	got, _ := orch.Get(KindSniper)
	assert.Equal(t, "X", *got.AssignedResource)

	evs := sink.types()
	assert.Equal(t, events.StrategyResourceAssigned, evs[len(evs)-1])
	require.NotNil(t, sink.events[0].Resource)
	assert.Equal(t, "TOKEN1", *sink.events[0].Resource)
	assert.Equal(t, "grid", sink.events[0].Kind)
}

func TestUpdateConfiguration_MergesAndClamps(t *testing.T) {
	orch, sink := newTestOrchestrator(t)

	levels := 500
	spacing := decimal.RequireFromString("2.5")
	drift := decimal.RequireFromString("5")
	step := decimal.RequireFromString("-0.5")

	v, err := orch.UpdateConfiguration(KindGrid, Patch{
		Accrual: &AccrualPatch{Drift: &drift, MaxStep: &step},
		Grid:    &GridPatch{Levels: &levels, SpacingPct: &spacing},
		Sniper:  &SniperPatch{MaxRiskScore: &levels},
	})
	require.NoError(t, err)

	require.NotNil(t, v.Config.Grid)
	assert.Equal(t, 100, v.Config.Grid.Levels)
	assert.Equal(t, "2.5", v.Config.Grid.SpacingPct.String())
	assert.Equal(t, "0.1", v.Config.Grid.OrderSize.String(), "untouched fields keep their value")
	assert.Nil(t, v.Config.Sniper, "blocks of other kinds are ignored")
	assert.Equal(t, "0.5", v.Config.Accrual.MaxStep.String())
	assert.Equal(t, "0.5", v.Config.Accrual.Drift.String())
	assert.Equal(t, StateStopped, v.State)

	sniper, _ := orch.Get(KindSniper)
	assert.Equal(t, 60, sniper.Config.Sniper.MaxRiskScore)

	assert.Equal(t, []events.EventType{events.StrategyConfigUpdated}, sink.types())
}

func TestUpdateConfiguration_KeepsRunningState(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	_, err := orch.Start(KindMEV)
	require.NoError(t, err)

	n := 0
	v, err := orch.UpdateConfiguration(KindMEV, Patch{MEV: &MEVPatch{MaxConcurrent: &n}})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, v.State)
	assert.Equal(t, 1, v.Config.MEV.MaxConcurrent)
}

func TestUnknownKind(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	_, err := orch.Start(Kind("creator"))
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = orch.Get(Kind(""))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = ParseKind("creator")
	assert.ErrorIs(t, err, ErrUnknownKind)

	k, err := ParseKind(" GRID ")
	require.NoError(t, err)
	assert.Equal(t, KindGrid, k)

	k, err = ParseKind("psycho")
	require.NoError(t, err)
	assert.Equal(t, KindSignal, k)
}

func TestPublishErrorsAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("bus closed")}
	orch := New(sink, zaptest.NewLogger(t))

	v, err := orch.Start(KindMEV)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, v.State)
}

func TestNilSink(t *testing.T) {
	orch := New(nil, zaptest.NewLogger(t))
	_, err := orch.Start(KindMEV)
	require.NoError(t, err)
}

func TestConcurrentMutations(t *testing.T) {
	orch, sink := newTestOrchestrator(t)
	_, err := orch.AssignResource(KindGrid, "T")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = orch.Start(KindGrid)
		}()
		go func() {
			defer wg.Done()
			_, _ = orch.Stop(KindGrid)
		}()
	}
	wg.Wait()

	// started and stopped events strictly alternate for one kind
	var last events.EventType
	for _, typ := range sink.types()[1:] {
		assert.NotEqual(t, last, typ)
		last = typ
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	running map[string]bool
}

func (o *recordingObserver) ObserveStrategy(kind string, running bool, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running == nil {
		o.running = map[string]bool{}
	}
	o.running[kind] = running
}

func TestObserverSeesTransitions(t *testing.T) {
	obs := &recordingObserver{}
	orch := New(nil, zaptest.NewLogger(t), WithObserver(obs))

	assert.Len(t, obs.running, 4)
	_, err := orch.Start(KindMEV)
	require.NoError(t, err)
	assert.True(t, obs.running["mev"])
	_, err = orch.Stop(KindMEV)
	require.NoError(t, err)
	assert.False(t, obs.running["mev"])
}
