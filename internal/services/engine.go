package services

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"cpmsync/internal/graph"
	"cpmsync/internal/metrics"
	"cpmsync/internal/models"

	"github.com/rs/zerolog/log"
)

// RemoteAPI fetches the entity snapshots a cycle reconciles.
type RemoteAPI interface {
	Zones(ctx context.Context) ([]models.Zone, error)
	ChargingStations(ctx context.Context) ([]models.ChargingStation, error)
	Connectors(ctx context.Context) ([]models.Connector, error)
	Equipment(ctx context.Context) ([]models.Equipment, error)
	Transactions(ctx context.Context) ([]models.Transaction, error)
}

// SyncRecorder persists the outcome of successful reconciliations.
type SyncRecorder interface {
	RecordSync(ctx context.Context, phase string, at time.Time, created, updated, skipped int) error
}

// AttributeNames selects where remote attributes and identity keys live.
type AttributeNames struct {
	Category     string
	LinkCategory string
	LinkLabel    string
}

const (
	PhaseInit  = "init"
	PhaseCycle = "cycle"
)

// Status is a snapshot of the engine for the status endpoint.
type Status struct {
	Initialized bool               `json:"initialized"`
	LastSync    *time.Time         `json:"lastSync,omitempty"`
	LastPhase   string             `json:"lastPhase,omitempty"`
	LastSummary map[string]Summary `json:"lastSummary,omitempty"`
	LastError   string             `json:"lastError,omitempty"`
	LastErrorAt *time.Time         `json:"lastErrorAt,omitempty"`
	Cycles      int                `json:"cycles"`
	Failures    int                `json:"failures"`
}

// Engine runs the bootstrap reconciliation and the recurring cycle.
type Engine struct {
	API      RemoteAPI
	Store    graph.Store
	Layout   graph.Layout
	Names    AttributeNames
	Recorder SyncRecorder

	now func() time.Time

	rec *Reconciler
	tx  *TransactionDriver

	mu     sync.RWMutex
	status Status
}

func NewEngine(api RemoteAPI, store graph.Store, layout graph.Layout, names AttributeNames) *Engine {
	return &Engine{API: api, Store: store, Layout: layout, Names: names, now: time.Now}
}

// Init resolves the layout nodes and runs the bootstrap reconciliation. A
// *LookupError means the graph is missing required nodes.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.resolve(ctx); err != nil {
		return err
	}
	return e.run(ctx, PhaseInit, e.bootstrap)
}

// Cycle refreshes live values and transactions. When the bootstrap has not
// completed yet it is run first.
func (e *Engine) Cycle(ctx context.Context) error {
	if err := e.resolve(ctx); err != nil {
		e.fail(PhaseCycle, e.now(), err)
		return err
	}
	if !e.Ready() {
		log.Info().Str("component", "engine").Msg("Bootstrap incomplete, running it before the cycle")
		if err := e.run(ctx, PhaseInit, e.bootstrap); err != nil {
			return err
		}
	}
	return e.run(ctx, PhaseCycle, e.cycle)
}

func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status.Initialized
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	s.LastSummary = maps.Clone(e.status.LastSummary)
	return s
}

func (e *Engine) resolve(ctx context.Context) error {
	if e.rec != nil {
		return nil
	}
	nodes, err := ResolveRequiredNodes(ctx, e.Store, e.Layout)
	if err != nil {
		return err
	}
	e.rec = NewReconciler(e.Store, nodes, e.Names.Category, e.Names.LinkCategory, e.Names.LinkLabel)
	e.tx = NewTransactionDriver(e.Store, nodes, e.Names.Category)
	log.Info().Str("component", "engine").Msg("Required nodes resolved")
	return nil
}

type phaseFunc func(ctx context.Context, out map[string]Summary) error

func (e *Engine) run(ctx context.Context, phase string, fn phaseFunc) error {
	started := e.now()
	log.Info().Str("component", "engine").Str("phase", phase).Msg("Reconciliation started")

	summaries := make(map[string]Summary)
	if err := fn(ctx, summaries); err != nil {
		e.fail(phase, started, err)
		return err
	}
	e.succeed(ctx, phase, started, summaries)
	return nil
}

func (e *Engine) bootstrap(ctx context.Context, out map[string]Summary) error {
	zones, err := e.API.Zones(ctx)
	if err != nil {
		return fmt.Errorf("fetch zones: %w", err)
	}
	stations, err := e.API.ChargingStations(ctx)
	if err != nil {
		return fmt.Errorf("fetch charging stations: %w", err)
	}
	equipment, err := e.API.Equipment(ctx)
	if err != nil {
		return fmt.Errorf("fetch equipment: %w", err)
	}
	log.Info().
		Str("component", "engine").
		Int("zones", len(zones)).
		Int("stations", len(stations)).
		Int("equipment", len(equipment)).
		Msg("Fetched entities")

	steps := []step{
		{"zones", func() (Summary, error) { return e.rec.CreateZonesIfNotExist(ctx, zones) }},
		{"zone-attributes", func() (Summary, error) { return e.rec.UpdateZoneAttributes(ctx, zones) }},
		{"station-attributes", func() (Summary, error) { return e.rec.UpdateChargingStationAttributes(ctx, stations) }},
		{"equipment-attributes", func() (Summary, error) { return e.rec.UpdateEquipmentAttributes(ctx, equipment) }},
		{"zone-links", func() (Summary, error) { return e.rec.LinkStationsToZones(ctx) }},
	}
	if err := runSteps(out, steps); err != nil {
		return err
	}

	connectors, err := e.API.Connectors(ctx)
	if err != nil {
		return fmt.Errorf("fetch connectors: %w", err)
	}
	steps = []step{
		{"station-devices", func() (Summary, error) { return e.rec.CreateStationDevices(ctx, stations, connectors) }},
		{"equipment-devices", func() (Summary, error) { return e.rec.CreateEquipmentDevices(ctx, equipment) }},
		{"device-links", func() (Summary, error) { return e.rec.LinkDevices(ctx) }},
	}
	if err := runSteps(out, steps); err != nil {
		return err
	}

	return e.transactions(ctx, out)
}

func (e *Engine) cycle(ctx context.Context, out map[string]Summary) error {
	stations, err := e.API.ChargingStations(ctx)
	if err != nil {
		return fmt.Errorf("fetch charging stations: %w", err)
	}
	connectors, err := e.API.Connectors(ctx)
	if err != nil {
		return fmt.Errorf("fetch connectors: %w", err)
	}
	s, err := e.rec.UpdateStationDevices(ctx, stations, connectors)
	if err != nil {
		return fmt.Errorf("station-endpoints: %w", err)
	}
	out["station-endpoints"] = s

	equipment, err := e.API.Equipment(ctx)
	if err != nil {
		return fmt.Errorf("fetch equipment: %w", err)
	}
	s, err = e.rec.UpdateEquipmentDevices(ctx, equipment)
	if err != nil {
		return fmt.Errorf("equipment-endpoints: %w", err)
	}
	out["equipment-endpoints"] = s

	return e.transactions(ctx, out)
}

func (e *Engine) transactions(ctx context.Context, out map[string]Summary) error {
	txs, err := e.API.Transactions(ctx)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}
	s, err := e.tx.Reconcile(ctx, txs)
	if err != nil {
		return fmt.Errorf("transactions: %w", err)
	}
	out["transactions"] = s
	return nil
}

type step struct {
	name string
	fn   func() (Summary, error)
}

func runSteps(out map[string]Summary, steps []step) error {
	for _, st := range steps {
		s, err := st.fn()
		if err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
		out[st.name] = s
	}
	return nil
}

func (e *Engine) succeed(ctx context.Context, phase string, started time.Time, summaries map[string]Summary) {
	at := e.now()
	elapsed := at.Sub(started)
	metrics.CyclesTotal.WithLabelValues(phase, "success").Inc()
	metrics.CycleDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
	metrics.LastSyncTimestamp.Set(float64(at.Unix()))

	var total Summary
	for _, s := range summaries {
		total.Add(s)
	}

	e.mu.Lock()
	if phase == PhaseInit {
		e.status.Initialized = true
	}
	e.status.LastSync = &at
	e.status.LastPhase = phase
	e.status.LastSummary = summaries
	e.status.Cycles++
	e.mu.Unlock()

	if e.Recorder != nil {
		if err := e.Recorder.RecordSync(ctx, phase, at, total.Created, total.Updated, total.Skipped); err != nil {
			log.Warn().Err(err).Str("component", "engine").Msg("Failed to record last sync")
		}
	}
	log.Info().
		Str("component", "engine").
		Str("phase", phase).
		Dur("elapsed", elapsed).
		Int("created", total.Created).
		Int("updated", total.Updated).
		Int("skipped", total.Skipped).
		Msg("Reconciliation complete")
}

func (e *Engine) fail(phase string, started time.Time, err error) {
	at := e.now()
	metrics.CyclesTotal.WithLabelValues(phase, "error").Inc()
	metrics.CycleDuration.WithLabelValues(phase).Observe(at.Sub(started).Seconds())

	e.mu.Lock()
	e.status.LastError = err.Error()
	e.status.LastErrorAt = &at
	e.status.Failures++
	e.mu.Unlock()
}
