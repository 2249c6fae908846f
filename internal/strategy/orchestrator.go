// internal/strategy/orchestrator.go
package strategy

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/events"
)

// EventSink receives lifecycle notifications. Publish must not block; its
// errors are logged and otherwise ignored.
type EventSink interface {
	Publish(event events.Event) error
}

// Observer receives the state of a slot after every change and every tick.
type Observer interface {
	ObserveStrategy(kind string, running bool, pnl float64)
}

// View is a read-only copy of one slot.
type View struct {
	Kind             Kind            `json:"kind"`
	AssignedResource *string         `json:"assignedResource"`
	Config           Config          `json:"config"`
	State            State           `json:"state"`
	AccruedPnl       decimal.Decimal `json:"accruedPnl"`
	StartedAt        *time.Time      `json:"startedAt,omitempty"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Running reports whether the slot is RUNNING.
func (v View) Running() bool {
	return v.State == StateRunning
}

// instance is guarded by its own mutex, so mutations of one kind are totally
// ordered while different kinds proceed independently.
type instance struct {
	mu        sync.Mutex
	kind      Kind
	resource  *string
	config    Config
	state     State
	pnl       decimal.Decimal
	startedAt time.Time
	updatedAt time.Time
}

func (i *instance) view() View {
	v := View{
		Kind:       i.kind,
		Config:     i.config.clone(),
		State:      i.state,
		AccruedPnl: i.pnl,
		UpdatedAt:  i.updatedAt,
	}
	if i.resource != nil {
		r := *i.resource
		v.AssignedResource = &r
	}
	if i.state == StateRunning {
		t := i.startedAt
		v.StartedAt = &t
	}
	return v
}

type orchestratorOptions struct {
	presets  map[Kind]Patch
	observer Observer
	now      func() time.Time
}

// Option настраивает оркестратор
type Option func(*orchestratorOptions)

// WithPresets overrides the built-in configuration per kind.
func WithPresets(presets map[Kind]Patch) Option {
	return func(o *orchestratorOptions) { o.presets = presets }
}

// WithObserver attaches a state observer (metrics).
func WithObserver(obs Observer) Option {
	return func(o *orchestratorOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *orchestratorOptions) {
		if now != nil {
			o.now = now
		}
	}
}

type nopObserver struct{}

func (nopObserver) ObserveStrategy(string, bool, float64) {}

// Orchestrator owns the fixed table of strategy slots.
type Orchestrator struct {
	instances map[Kind]*instance
	sink      EventSink
	observer  Observer
	now       func() time.Time
	logger    *zap.Logger
}

// New builds every slot STOPPED, unassigned, with zero PnL. sink may be nil.
func New(sink EventSink, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := orchestratorOptions{observer: nopObserver{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	orch := &Orchestrator{
		instances: make(map[Kind]*instance, len(Kinds)),
		sink:      sink,
		observer:  o.observer,
		now:       o.now,
		logger:    logger.Named("orchestrator"),
	}

	created := o.now()
	for _, kind := range Kinds {
		cfg := DefaultConfig(kind)
		if p, ok := o.presets[kind]; ok {
			p.applyTo(&cfg)
		}
		cfg.normalize()

		orch.instances[kind] = &instance{
			kind:      kind,
			config:    cfg,
			state:     StateStopped,
			pnl:       decimal.Zero,
			updatedAt: created,
		}
		orch.observer.ObserveStrategy(string(kind), false, 0)
	}
	return orch
}

func (o *Orchestrator) lookup(kind Kind) (*instance, error) {
	inst, ok := o.instances[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	return inst, nil
}

// AssignResource sets the resource of a slot in any state. A blank id
// clears the assignment.
func (o *Orchestrator) AssignResource(kind Kind, resourceID string) (View, error) {
	inst, err := o.lookup(kind)
	if err != nil {
		return View{}, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if id := strings.TrimSpace(resourceID); id != "" {
		inst.resource = &id
	} else {
		inst.resource = nil
	}
	inst.updatedAt = o.now()

	o.logger.Info("Resource assigned",
		zap.String("kind", string(kind)),
		zap.String("resource", resourceID))
	o.emit(events.StrategyResourceAssigned, inst)
	return inst.view(), nil
}

// UpdateConfiguration merges patch into the slot configuration, clamping
// malformed values. State is never changed.
func (o *Orchestrator) UpdateConfiguration(kind Kind, patch Patch) (View, error) {
	inst, err := o.lookup(kind)
	if err != nil {
		return View{}, err
	}

	if foreign := patch.foreign(kind); len(foreign) > 0 {
		o.logger.Debug("Ignoring configuration blocks of other strategies",
			zap.String("kind", string(kind)),
			zap.Strings("ignored", foreign))
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	cfg := inst.config.clone()
	patch.applyTo(&cfg)
	cfg.normalize()
	inst.config = cfg
	inst.updatedAt = o.now()

	o.emit(events.StrategyConfigUpdated, inst)
	return inst.view(), nil
}

// Start moves a slot to RUNNING. Starting a running slot is a no-op without
// an event. Kinds that need a resource fail with *ResourceNotAssignedError
// while none is assigned.
func (o *Orchestrator) Start(kind Kind) (View, error) {
	inst, err := o.lookup(kind)
	if err != nil {
		return View{}, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state == StateRunning {
		return inst.view(), nil
	}
	if kind.RequiresResource() && inst.resource == nil {
		o.logger.Warn("Start rejected, no resource assigned", zap.String("kind", string(kind)))
		return inst.view(), &ResourceNotAssignedError{Kind: kind}
	}

	now := o.now()
	inst.state = StateRunning
	inst.startedAt = now
	inst.updatedAt = now

	o.logger.Info("Strategy started", zap.String("kind", string(kind)))
	o.emit(events.StrategyStarted, inst)
	return inst.view(), nil
}

// Stop moves a slot to STOPPED. It is idempotent and keeps the accrued PnL.
func (o *Orchestrator) Stop(kind Kind) (View, error) {
	inst, err := o.lookup(kind)
	if err != nil {
		return View{}, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state == StateStopped {
		return inst.view(), nil
	}

	inst.state = StateStopped
	inst.updatedAt = o.now()

	o.logger.Info("Strategy stopped",
		zap.String("kind", string(kind)),
		zap.String("pnl", inst.pnl.String()))
	o.emit(events.StrategyStopped, inst)
	return inst.view(), nil
}

// Get returns one slot.
func (o *Orchestrator) Get(kind Kind) (View, error) {
	inst, err := o.lookup(kind)
	if err != nil {
		return View{}, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.view(), nil
}

// Snapshot returns every slot in display order. Slots are read one at a
// time; the result is not a single atomic cut across kinds.
func (o *Orchestrator) Snapshot() []View {
	views := make([]View, 0, len(Kinds))
	for _, kind := range Kinds {
		inst := o.instances[kind]
		inst.mu.Lock()
		views = append(views, inst.view())
		inst.mu.Unlock()
	}
	return views
}

// TotalPnL sums the accrued PnL of all slots.
func (o *Orchestrator) TotalPnL() decimal.Decimal {
	total := decimal.Zero
	for _, v := range o.Snapshot() {
		total = total.Add(v.AccruedPnl)
	}
	return total
}

// accrue adds draw(accrual) to every RUNNING slot and returns the PnL of all
// slots. It is the only writer of PnL.
func (o *Orchestrator) accrue(draw func(Accrual) decimal.Decimal) map[Kind]decimal.Decimal {
	out := make(map[Kind]decimal.Decimal, len(Kinds))
	for _, kind := range Kinds {
		inst := o.instances[kind]
		inst.mu.Lock()
		if inst.state == StateRunning {
			inst.pnl = inst.pnl.Add(draw(inst.config.Accrual))
			o.observer.ObserveStrategy(string(kind), true, inst.pnl.InexactFloat64())
		}
		out[kind] = inst.pnl
		inst.mu.Unlock()
	}
	return out
}

// emit is called with inst.mu held so events of one kind keep their order.
func (o *Orchestrator) emit(t events.EventType, inst *instance) {
	o.observer.ObserveStrategy(string(inst.kind), inst.state == StateRunning, inst.pnl.InexactFloat64())
	if o.sink == nil {
		return
	}

	ev := events.StrategyEvent{
		BaseEvent: events.NewBaseEvent(t),
		Kind:      string(inst.kind),
		State:     string(inst.state),
		PnL:       inst.pnl.String(),
	}
	if inst.resource != nil {
		r := *inst.resource
		ev.Resource = &r
	}
	if err := o.sink.Publish(ev); err != nil {
		o.logger.Warn("Failed to publish strategy event",
			zap.String("kind", string(inst.kind)),
			zap.String("event", string(t)),
			zap.Error(err))
	}
}
