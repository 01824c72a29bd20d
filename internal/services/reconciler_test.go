package services

import (
	"testing"

	"cpmsync/internal/graph"
	"cpmsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateZonesIfNotExistIsIdempotent(t *testing.T) {
	f := newFixture(t)
	zones := []models.Zone{{ID: 1, Name: "Parking A"}, {ID: 2, Name: "Parking B"}}

	sum, err := f.rec.CreateZonesIfNotExist(f.ctx, zones)
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 2}, sum)

	sum, err = f.rec.CreateZonesIfNotExist(f.ctx, zones)
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 2}, sum)

	groups := f.inContext(t, f.nodes.ZoneCategory, f.nodes.ZoneContext)
	require.Len(t, groups, 2)
	assert.Equal(t, map[string]string{"color": "#ff0000", "icon": "local_parking"}, f.store.Attributes(groups[0], "default"))
}

func TestCreateZonesDeduplicatesWithinBatch(t *testing.T) {
	f := newFixture(t)
	sum, err := f.rec.CreateZonesIfNotExist(f.ctx, []models.Zone{{ID: 1, Name: "A"}, {ID: 1, Name: "A"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Created)
	assert.Equal(t, 1, sum.Skipped)
}

func TestUpdateZoneAttributesWritesEveryKey(t *testing.T) {
	f := newFixture(t)
	price := 0.25
	zones := []models.Zone{{ID: 7, Name: "A", EnergyPrice: &price, StaticLimitL1: float(0)}, {ID: 8, Name: "Missing"}}
	_, err := f.rec.CreateZonesIfNotExist(f.ctx, zones[:1])
	require.NoError(t, err)

	sum, err := f.rec.UpdateZoneAttributes(f.ctx, zones)
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1, Skipped: 1}, sum)

	group := f.inContext(t, f.nodes.ZoneCategory, f.nodes.ZoneContext)[0]
	attrs := f.store.Attributes(group, attrCategory)
	assert.Equal(t, map[string]string{
		"id":             "7",
		"dynamicLimitL1": "",
		"dynamicLimitL2": "",
		"dynamicLimitL3": "",
		"staticLimitL1":  "",
		"staticLimitL2":  "",
		"staticLimitL3":  "",
		"energyPrice":    "0.25",
	}, attrs)
}

func TestUpdateChargingStationAttributes(t *testing.T) {
	f := newFixture(t)
	node := f.addStationNode(t, "CS-1")

	sum, err := f.rec.UpdateChargingStationAttributes(f.ctx, []models.ChargingStation{
		{Identity: "CS-1", VIP: false, ZoneID: 3, ChargePointVendor: "Acme", OperatorHeartbeatMinimumInterval: 0},
		{Identity: "CS-unknown"},
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1, Skipped: 1}, sum)

	attrs := f.store.Attributes(node, attrCategory)
	assert.Equal(t, "CS-1", attrs["identity"])
	assert.Equal(t, "false", attrs["vip"])
	assert.Equal(t, "3", attrs["zoneId"])
	assert.Equal(t, "Acme", attrs["chargePointVendor"])
	assert.Contains(t, attrs, "operatorHeartbeatMinimumInterval")
	assert.Empty(t, attrs["operatorHeartbeatMinimumInterval"])
	assert.Contains(t, attrs, "firmwareVersion")
}

func TestUpdateEquipmentAttributesMatchesByID(t *testing.T) {
	f := newFixture(t)
	node := f.addEquipmentNode(t, "12")

	sum, err := f.rec.UpdateEquipmentAttributes(f.ctx, []models.Equipment{
		{ID: 12, Name: "EC-12", ProductID: 4, Zones: []models.Zone{{ID: 1}, {ID: 3}}},
		{ID: 13, Name: "EC-13"},
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1, Skipped: 1}, sum)
	assert.Equal(t, map[string]string{
		"identity":  "12",
		"name":      "EC-12",
		"id":        "12",
		"productId": "4",
		"zoneIds":   "1,3",
	}, f.store.Attributes(node, attrCategory))
}

func TestLinkStationsToZones(t *testing.T) {
	f := newFixture(t)
	zones := []models.Zone{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}
	_, err := f.rec.CreateZonesIfNotExist(f.ctx, zones)
	require.NoError(t, err)
	_, err = f.rec.UpdateZoneAttributes(f.ctx, zones)
	require.NoError(t, err)

	s1 := f.addStationNode(t, "CS-1")
	f.addStationNode(t, "CS-2")
	f.addStationNode(t, "CS-3")
	_, err = f.rec.UpdateChargingStationAttributes(f.ctx, []models.ChargingStation{
		{Identity: "CS-1", ZoneID: 2},
		{Identity: "CS-2", ZoneID: 9},
		{Identity: "CS-3"},
	})
	require.NoError(t, err)

	sum, err := f.rec.LinkStationsToZones(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 1, Skipped: 1}, sum)

	groups := f.inContext(t, f.nodes.ZoneCategory, f.nodes.ZoneContext)
	b, ok := graph.FindByName(groups, "B")
	require.True(t, ok)
	members := f.children(t, b, graph.RelGroupMember)
	require.Len(t, members, 1)
	assert.Equal(t, s1.ID, members[0].ID)

	sum, err = f.rec.LinkStationsToZones(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Created)
	assert.Len(t, f.children(t, b, graph.RelGroupMember), 1)
}

func TestCreateStationDevices(t *testing.T) {
	f := newFixture(t)
	stations := []models.ChargingStation{{Identity: "CS-1", Connected: true, LastHeartbeat: "2026-03-01T12:00:00Z"}}
	connectors := []models.Connector{
		{ID: 11, ChargingStationIdentity: "CS-1", ConnectorID: 1, Status: "Charging"},
		{ID: 12, ChargingStationIdentity: "CS-1", ConnectorID: 2, Status: "Bogus"},
		{ID: 13, ChargingStationIdentity: "CS-2", ConnectorID: 1, Status: "Available"},
	}

	sum, err := f.rec.CreateStationDevices(f.ctx, stations, connectors)
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 1}, sum)

	devices := f.inContext(t, f.nodes.VirtualNetwork, f.nodes.NetworkContext)
	require.Len(t, devices, 1)
	device := devices[0]
	assert.Equal(t, "CS-1", device.Name)
	assert.Equal(t, graph.TypeDevice, device.Type)
	assert.Equal(t, "ChargingStation", f.store.Attributes(device, "default")["type"])

	endpoints := f.children(t, device, graph.RelHasEndpoint)
	values := make(map[string]any)
	for _, ep := range endpoints {
		v, ok := f.store.Value(ep)
		require.True(t, ok)
		values[ep.Name] = v
		assert.Equal(t, "14", f.store.Attributes(ep, "default")["timeSeries maxDay"])
	}
	assert.Equal(t, map[string]any{
		"connected":           true,
		"lastHeartbeat":       int64(1772366400000),
		"Connector_11_Status": 3,
		"Connector_12_Status": 0,
	}, values)

	sum, err = f.rec.CreateStationDevices(f.ctx, stations, connectors)
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 1}, sum)
	assert.Equal(t, 1, f.store.CountByType(graph.TypeDevice))
}

func TestCreateEquipmentDevicesDefaultsMissingReadings(t *testing.T) {
	f := newFixture(t)
	equipment := []models.Equipment{{
		ID: 5, Name: "EC-5", Connected: true,
		Values: &models.EquipmentValues{
			Currents: &models.Currents{L1: models.Measurement{Value: float(12.5), Unit: "A"}},
		},
	}}

	sum, err := f.rec.CreateEquipmentDevices(f.ctx, equipment)
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 1}, sum)

	device := f.inContext(t, f.nodes.VirtualNetwork, f.nodes.NetworkContext)[0]
	assert.Equal(t, "EnergyCounter", f.store.Attributes(device, "default")["type"])

	endpoints := f.children(t, device, graph.RelHasEndpoint)
	require.Len(t, endpoints, 5)
	for _, ep := range endpoints {
		v, _ := f.store.Value(ep)
		switch ep.Name {
		case "connected":
			assert.Equal(t, true, v)
		case "Current_L1":
			assert.Equal(t, 12.5, v)
			assert.Equal(t, "A", f.store.Attributes(ep, "default")["unit"])
		default:
			assert.Equal(t, 0, v, ep.Name)
			assert.NotContains(t, f.store.Attributes(ep, "default"), "unit")
		}
	}
}

func TestLinkDevices(t *testing.T) {
	f := newFixture(t)
	station := f.addStationNode(t, "CS-1")
	counter := f.addEquipmentNode(t, "5")
	_, err := f.rec.UpdateEquipmentAttributes(f.ctx, []models.Equipment{{ID: 5, Name: "EC-5"}})
	require.NoError(t, err)

	_, err = f.rec.CreateStationDevices(f.ctx, []models.ChargingStation{{Identity: "CS-1"}, {Identity: "CS-orphan"}}, nil)
	require.NoError(t, err)
	_, err = f.rec.CreateEquipmentDevices(f.ctx, []models.Equipment{{ID: 5, Name: "EC-5"}})
	require.NoError(t, err)

	sum, err := f.rec.LinkDevices(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 2, Skipped: 1}, sum)

	linked := f.children(t, station, graph.RelHasDevice)
	require.Len(t, linked, 1)
	assert.Equal(t, "CS-1", linked[0].Name)
	linked = f.children(t, counter, graph.RelHasDevice)
	require.Len(t, linked, 1)
	assert.Equal(t, "EC-5", linked[0].Name)

	sum, err = f.rec.LinkDevices(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 3}, sum)
	assert.Len(t, f.children(t, station, graph.RelHasDevice), 1)
}

func TestUpdateStationDevicesOnlyTouchesExistingEndpoints(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.CreateStationDevices(f.ctx,
		[]models.ChargingStation{{Identity: "CS-1", Connected: true}},
		[]models.Connector{{ID: 11, ChargingStationIdentity: "CS-1", Status: "Available"}})
	require.NoError(t, err)

	sum, err := f.rec.UpdateStationDevices(f.ctx,
		[]models.ChargingStation{{Identity: "CS-1", Connected: false}, {Identity: "CS-new"}},
		[]models.Connector{
			{ID: 11, ChargingStationIdentity: "CS-1", Status: "Faulted"},
			{ID: 99, ChargingStationIdentity: "CS-1", Status: "Charging"},
		})
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1}, sum)

	device := f.inContext(t, f.nodes.VirtualNetwork, f.nodes.NetworkContext)[0]
	endpoints := f.children(t, device, graph.RelHasEndpoint)
	assert.Len(t, endpoints, 3)
	for _, ep := range endpoints {
		v, _ := f.store.Value(ep)
		switch ep.Name {
		case "connected":
			assert.Equal(t, []any{true, false}, f.store.History(ep))
		case "Connector_11_Status":
			assert.Equal(t, 8, v)
		}
	}
	assert.Equal(t, 1, f.store.CountByType(graph.TypeDevice))
}

func TestUpdateEquipmentDevicesSkipsMissingReadings(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.CreateEquipmentDevices(f.ctx, []models.Equipment{{
		ID: 5, Name: "EC-5",
		Values: &models.EquipmentValues{Energy: &models.Measurement{Value: float(100), Unit: "kWh"}},
	}})
	require.NoError(t, err)

	sum, err := f.rec.UpdateEquipmentDevices(f.ctx, []models.Equipment{{
		ID: 5, Name: "EC-5", Connected: true,
		Values: &models.EquipmentValues{Currents: &models.Currents{L2: models.Measurement{Value: float(3)}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1}, sum)

	device := f.inContext(t, f.nodes.VirtualNetwork, f.nodes.NetworkContext)[0]
	for _, ep := range f.children(t, device, graph.RelHasEndpoint) {
		v, _ := f.store.Value(ep)
		switch ep.Name {
		case "Energy_Consumption":
			assert.Equal(t, 100.0, v)
			assert.Len(t, f.store.History(ep), 1)
		case "Current_L2":
			assert.Equal(t, 3.0, v)
		case "connected":
			assert.Equal(t, true, v)
		}
	}
}

func TestResolveRequiredNodesReportsMissingNode(t *testing.T) {
	f := newFixture(t)
	l := testLayout()
	l.TerminatedStep = "Archived"

	_, err := ResolveRequiredNodes(f.ctx, f.store, l)
	require.Error(t, err)
	assert.True(t, IsLookupError(err))
	assert.ErrorIs(t, err, graph.ErrNotFound)
	assert.Contains(t, err.Error(), `terminated step "Archived"`)

	_, err = ResolveRequiredNodes(f.ctx, graph.NewMemoryStore(), testLayout())
	assert.True(t, IsLookupError(err))
}

func TestConnectorStatusCode(t *testing.T) {
	cases := map[string]int{
		"Available":   1,
		"Charging":    3,
		"Faulted":     8,
		"Offline":     10,
		"":            0,
		"not-a-state": 0,
	}
	for status, want := range cases {
		assert.Equal(t, want, ConnectorStatusCode(status), status)
	}
}
