package services

import (
	"context"
	"testing"

	"cpmsync/internal/graph"
	"cpmsync/internal/models"

	"github.com/stretchr/testify/require"
)

const attrCategory = "Charge Unix"

func testLayout() graph.Layout {
	return graph.Layout{
		NetworkContext:       "Network",
		VirtualNetwork:       "Charge Unix",
		TypologyContext:      "Typology",
		TypologyCategory:     "Equipments",
		ChargingStationGroup: "Charging Stations",
		EnergyCounterGroup:   "Energy Counters",
		ZoneContext:          "Zones",
		ZoneCategory:         "Parking",
		WorkflowContext:      "Transactions",
		Process:              "Charging",
		PendingStep:          "Pending",
		TerminatedStep:       "Terminated",
	}
}

func testNames() AttributeNames {
	return AttributeNames{Category: attrCategory, LinkCategory: attrCategory, LinkLabel: "identity"}
}

type fixture struct {
	ctx   context.Context
	store *graph.MemoryStore
	nodes RequiredNodes
	rec   *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := graph.NewMemoryStore()
	require.NoError(t, graph.EnsureLayout(ctx, store, testLayout()))
	nodes, err := ResolveRequiredNodes(ctx, store, testLayout())
	require.NoError(t, err)
	return &fixture{
		ctx:   ctx,
		store: store,
		nodes: nodes,
		rec:   NewReconciler(store, nodes, attrCategory, attrCategory, "identity"),
	}
}

// addStationNode creates a typology node for a station, tagged with its identity.
func (f *fixture) addStationNode(t *testing.T, identity string) graph.Node {
	t.Helper()
	n, err := f.store.CreateNode(f.ctx, f.nodes.StationGroup, f.nodes.TypologyContext, graph.NodeSpec{
		Name: "BIM " + identity, Type: graph.TypeGroup, Relation: graph.RelCategoryItem,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.UpsertAttributes(f.ctx, n, attrCategory, map[string]string{"identity": identity}))
	return n
}

func (f *fixture) addEquipmentNode(t *testing.T, id string) graph.Node {
	t.Helper()
	n, err := f.store.CreateNode(f.ctx, f.nodes.EquipmentGroup, f.nodes.TypologyContext, graph.NodeSpec{
		Name: "BIM EC " + id, Type: graph.TypeGroup, Relation: graph.RelCategoryItem,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.UpsertAttributes(f.ctx, n, attrCategory, map[string]string{"identity": id}))
	return n
}

func (f *fixture) children(t *testing.T, parent graph.Node, relation string) []graph.Node {
	t.Helper()
	out, err := f.store.Children(f.ctx, parent, relation)
	require.NoError(t, err)
	return out
}

func (f *fixture) inContext(t *testing.T, parent, scope graph.Node) []graph.Node {
	t.Helper()
	out, err := f.store.FindChildrenInContext(f.ctx, parent, scope)
	require.NoError(t, err)
	return out
}

func float(v float64) *float64 { return &v }

func str(v string) *string { return &v }

type fakeAPI struct {
	zones        []models.Zone
	stations     []models.ChargingStation
	connectors   []models.Connector
	equipment    []models.Equipment
	transactions []models.Transaction
	err          error
	calls        int
}

func (a *fakeAPI) Zones(context.Context) ([]models.Zone, error) {
	a.calls++
	return a.zones, a.err
}

func (a *fakeAPI) ChargingStations(context.Context) ([]models.ChargingStation, error) {
	a.calls++
	return a.stations, a.err
}

func (a *fakeAPI) Connectors(context.Context) ([]models.Connector, error) {
	a.calls++
	return a.connectors, a.err
}

func (a *fakeAPI) Equipment(context.Context) ([]models.Equipment, error) {
	a.calls++
	return a.equipment, a.err
}

func (a *fakeAPI) Transactions(context.Context) ([]models.Transaction, error) {
	a.calls++
	return a.transactions, a.err
}
