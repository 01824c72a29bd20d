package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"cpmsync/internal/db"
	"cpmsync/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(t *testing.T) *db.DB {
	t.Helper()
	url := os.Getenv("CPMSYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CPMSYNC_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	d, err := db.Connect(ctx, url, 2)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	require.NoError(t, d.Migrate(ctx))
	_, err = d.Pool.Exec(ctx, `truncate graph_nodes, graph_relations, graph_attributes, endpoint_values, endpoint_history, sync_state`)
	require.NoError(t, err)
	return d
}

func TestGraphStoreNodesAndRelations(t *testing.T) {
	d := testPool(t)
	ctx := context.Background()
	s := NewGraphStore(d.Pool)

	network, err := s.CreateContext(ctx, "Network", "Network")
	require.NoError(t, err)
	again, err := s.CreateContext(ctx, "Network", "Network")
	require.NoError(t, err)
	assert.Equal(t, network.ID, again.ID)

	_, err = s.Context(ctx, "Missing")
	assert.ErrorIs(t, err, graph.ErrNotFound)

	vn, err := s.CreateNode(ctx, network, network, graph.NodeSpec{Name: "VN", Type: graph.TypeNetwork, Relation: graph.RelContains})
	require.NoError(t, err)
	dev, err := s.CreateNode(ctx, vn, network, graph.NodeSpec{Name: "CS-1", Type: graph.TypeDevice, Relation: graph.RelHasDevice})
	require.NoError(t, err)

	children, err := s.FindChildrenInContext(ctx, vn, network)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, dev, children[0])

	require.NoError(t, s.AddChild(ctx, vn, dev, graph.RelHasDevice, network))
	byRel, err := s.Children(ctx, vn, graph.RelHasDevice)
	require.NoError(t, err)
	assert.Len(t, byRel, 1)

	_, err = s.CreateNode(ctx, graph.Node{ID: "nope", Name: "nope"}, network, graph.NodeSpec{Name: "x", Type: graph.TypeGroup})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestGraphStoreAttributesAndEndpoints(t *testing.T) {
	d := testPool(t)
	ctx := context.Background()
	s := NewGraphStore(d.Pool)

	network, err := s.CreateContext(ctx, "Network", "Network")
	require.NoError(t, err)
	ep, err := s.CreateNode(ctx, network, network, graph.NodeSpec{Name: "connected", Type: graph.TypeEndpoint, Relation: graph.RelHasEndpoint})
	require.NoError(t, err)

	require.NoError(t, s.UpsertAttributes(ctx, ep, "default", map[string]string{"unit": "A", "timeSeries maxDay": "14"}))
	require.NoError(t, s.UpsertAttributes(ctx, ep, "default", map[string]string{"unit": ""}))
	v, ok, err := s.FindAttribute(ctx, ep, "default", "unit")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, v)
	_, ok, err = s.FindAttribute(ctx, ep, "default", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	since := time.Now().Add(-time.Minute)
	require.NoError(t, s.SetEndpointValue(ctx, ep, true))
	require.NoError(t, s.SetEndpointValue(ctx, ep, false))
	history, err := s.EndpointHistory(ctx, ep, since)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "true", history[0].Value)
	assert.Equal(t, "false", history[1].Value)

	removed, err := s.PruneEndpointHistory(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
}

func TestGraphStoreMoveToStep(t *testing.T) {
	d := testPool(t)
	ctx := context.Background()
	s := NewGraphStore(d.Pool)
	require.NoError(t, graph.EnsureLayout(ctx, s, graph.Layout{
		NetworkContext: "N", VirtualNetwork: "VN",
		TypologyContext: "T", TypologyCategory: "TC", ChargingStationGroup: "CS", EnergyCounterGroup: "EC",
		ZoneContext: "Z", ZoneCategory: "ZC",
		WorkflowContext: "W", Process: "P", PendingStep: "Pending", TerminatedStep: "Done",
	}))

	wf, err := s.Context(ctx, "W")
	require.NoError(t, err)
	proc, err := graph.FindChild(ctx, s, wf, wf, "P")
	require.NoError(t, err)
	pending, err := graph.FindChild(ctx, s, proc, wf, "Pending")
	require.NoError(t, err)
	done, err := graph.FindChild(ctx, s, proc, wf, "Done")
	require.NoError(t, err)

	ticket, err := s.CreateNode(ctx, pending, wf, graph.NodeSpec{Name: "42", Type: graph.TypeTicket, Relation: graph.RelStepTicket})
	require.NoError(t, err)
	require.NoError(t, s.MoveToStep(ctx, ticket, pending, done, wf))

	inDone, err := s.FindChildrenInContext(ctx, done, wf)
	require.NoError(t, err)
	assert.Len(t, inDone, 1)
	assert.ErrorIs(t, s.MoveToStep(ctx, ticket, pending, done, wf), graph.ErrNotFound)
}

func TestSyncStateRepo(t *testing.T) {
	d := testPool(t)
	ctx := context.Background()
	r := NewSyncStateRepo(d.Pool)

	last, err := r.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.RecordSync(ctx, "init", at, 3, 1, 0))
	require.NoError(t, r.RecordSync(ctx, "cycle", at.Add(time.Minute), 0, 4, 2))

	last, err = r.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "cycle", last.Phase)
	assert.Equal(t, 4, last.Updated)
	assert.True(t, at.Add(time.Minute).Equal(last.SyncedAt))
}
