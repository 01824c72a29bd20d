package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cpmsync/internal/graph"
	"cpmsync/internal/identity"
	"cpmsync/internal/metrics"
	"cpmsync/internal/models"

	"github.com/rs/zerolog/log"
)

// Summary counts what one reconciliation phase did.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

func (s *Summary) Add(o Summary) {
	s.Created += o.Created
	s.Updated += o.Updated
	s.Skipped += o.Skipped
}

func (s Summary) log(phase string) {
	log.Info().
		Str("component", "reconciler").
		Str("phase", phase).
		Int("created", s.Created).
		Int("updated", s.Updated).
		Int("skipped", s.Skipped).
		Msg("Phase complete")
	metrics.RecordEntities(phase, s.Created, s.Updated, s.Skipped)
}

// Reconciler writes zones, stations, equipment and their devices into the graph.
// Every store call is made in sequence and awaited before the next.
type Reconciler struct {
	Store graph.Store
	Nodes RequiredNodes

	// Category receives the attributes copied from remote records.
	Category string
	// LinkCategory and LinkLabel locate the identity attribute on typology nodes.
	LinkCategory string
	LinkLabel    string
}

func NewReconciler(store graph.Store, nodes RequiredNodes, category, linkCategory, linkLabel string) *Reconciler {
	return &Reconciler{Store: store, Nodes: nodes, Category: category, LinkCategory: linkCategory, LinkLabel: linkLabel}
}

func (r *Reconciler) zoneGroups(ctx context.Context) ([]graph.Node, error) {
	return r.Store.FindChildrenInContext(ctx, r.Nodes.ZoneCategory, r.Nodes.ZoneContext)
}

func (r *Reconciler) devices(ctx context.Context) ([]graph.Node, error) {
	return r.Store.FindChildrenInContext(ctx, r.Nodes.VirtualNetwork, r.Nodes.NetworkContext)
}

func (r *Reconciler) stationIndex(ctx context.Context) (identity.Index, error) {
	nodes, err := r.Store.FindChildrenInContext(ctx, r.Nodes.StationGroup, r.Nodes.TypologyContext)
	if err != nil {
		return identity.Index{}, err
	}
	return identity.Build(ctx, r.Store, nodes, r.LinkCategory, r.LinkLabel)
}

func (r *Reconciler) equipmentNodes(ctx context.Context) ([]graph.Node, error) {
	return r.Store.FindChildrenInContext(ctx, r.Nodes.EquipmentGroup, r.Nodes.TypologyContext)
}

// CreateZonesIfNotExist creates a zone group for every zone not already present.
func (r *Reconciler) CreateZonesIfNotExist(ctx context.Context, zones []models.Zone) (Summary, error) {
	var sum Summary
	existing, err := r.zoneGroups(ctx)
	if err != nil {
		return sum, err
	}
	byName := identity.ByName(existing)

	for _, z := range zones {
		if _, ok := byName.Lookup(z.Name); ok {
			sum.Skipped++
			continue
		}
		node, err := r.Store.CreateNode(ctx, r.Nodes.ZoneCategory, r.Nodes.ZoneContext, graph.NodeSpec{
			Name:     z.Name,
			Type:     graph.TypeGroup,
			Relation: graph.RelCategoryItem,
		})
		if err != nil {
			return sum, fmt.Errorf("create zone %q: %w", z.Name, err)
		}
		if err := r.Store.UpsertAttributes(ctx, node, defaultCategory, map[string]string{"color": zoneColor, "icon": zoneIcon}); err != nil {
			return sum, fmt.Errorf("zone %q appearance: %w", z.Name, err)
		}
		byName.Add(z.Name, node)
		sum.Created++
	}
	sum.log("zones")
	return sum, nil
}

func (r *Reconciler) UpdateZoneAttributes(ctx context.Context, zones []models.Zone) (Summary, error) {
	var sum Summary
	existing, err := r.zoneGroups(ctx)
	if err != nil {
		return sum, err
	}
	byName := identity.ByName(existing)

	for _, z := range zones {
		node, ok := byName.Lookup(z.Name)
		if !ok {
			log.Warn().Str("component", "reconciler").Str("zone", z.Name).Msg("Zone not found, skipping attribute update")
			sum.Skipped++
			continue
		}
		if err := r.Store.UpsertAttributes(ctx, node, r.Category, zoneAttributes(z)); err != nil {
			return sum, fmt.Errorf("zone %q attributes: %w", z.Name, err)
		}
		sum.Updated++
	}
	sum.log("zone-attributes")
	return sum, nil
}

func (r *Reconciler) UpdateChargingStationAttributes(ctx context.Context, stations []models.ChargingStation) (Summary, error) {
	var sum Summary
	idx, err := r.stationIndex(ctx)
	if err != nil {
		return sum, err
	}

	for _, cs := range stations {
		node, ok := idx.Lookup(cs.Identity)
		if !ok {
			log.Debug().Str("component", "reconciler").Str("identity", cs.Identity).Str("name", cs.Name).Msg("Charging station not mapped, skipping")
			sum.Skipped++
			continue
		}
		if err := r.Store.UpsertAttributes(ctx, node, r.Category, stationAttributes(cs)); err != nil {
			return sum, fmt.Errorf("station %q attributes: %w", cs.Identity, err)
		}
		sum.Updated++
	}
	sum.log("station-attributes")
	return sum, nil
}

// UpdateEquipmentAttributes matches equipment by id through the link attribute.
func (r *Reconciler) UpdateEquipmentAttributes(ctx context.Context, equipment []models.Equipment) (Summary, error) {
	var sum Summary
	nodes, err := r.equipmentNodes(ctx)
	if err != nil {
		return sum, err
	}
	idx, err := identity.Build(ctx, r.Store, nodes, r.LinkCategory, r.LinkLabel)
	if err != nil {
		return sum, err
	}

	for _, e := range equipment {
		node, ok := idx.Lookup(strconv.Itoa(e.ID))
		if !ok {
			log.Debug().Str("component", "reconciler").Int("id", e.ID).Str("name", e.Name).Msg("Energy counter not mapped, skipping")
			sum.Skipped++
			continue
		}
		if err := r.Store.UpsertAttributes(ctx, node, r.Category, equipmentAttributes(e)); err != nil {
			return sum, fmt.Errorf("equipment %d attributes: %w", e.ID, err)
		}
		sum.Updated++
	}
	sum.log("equipment-attributes")
	return sum, nil
}

// LinkStationsToZones adds each station to the zone group named by its zoneId
// attribute. Existing memberships are left alone.
func (r *Reconciler) LinkStationsToZones(ctx context.Context) (Summary, error) {
	var sum Summary
	groups, err := r.zoneGroups(ctx)
	if err != nil {
		return sum, err
	}
	zonesByID, err := identity.Build(ctx, r.Store, groups, r.Category, "id")
	if err != nil {
		return sum, err
	}
	stations, err := r.Store.FindChildrenInContext(ctx, r.Nodes.StationGroup, r.Nodes.TypologyContext)
	if err != nil {
		return sum, err
	}

	for _, station := range stations {
		zoneID, ok, err := r.Store.FindAttribute(ctx, station, r.Category, "zoneId")
		if err != nil {
			return sum, err
		}
		zoneID = strings.TrimSpace(zoneID)
		if !ok || zoneID == "" {
			continue
		}
		zone, ok := zonesByID.Lookup(zoneID)
		if !ok {
			sum.Skipped++
			continue
		}
		linked, err := r.link(ctx, zone, station, graph.RelGroupMember, r.Nodes.ZoneContext)
		if err != nil {
			return sum, fmt.Errorf("link %q to zone %q: %w", station.Name, zone.Name, err)
		}
		if linked {
			sum.Created++
		} else {
			sum.Skipped++
		}
	}
	sum.log("zone-links")
	return sum, nil
}

// link adds child under parent unless it is already one of parent's children
// through relation. It reports whether a link was added.
func (r *Reconciler) link(ctx context.Context, parent, child graph.Node, relation string, scope graph.Node) (bool, error) {
	existing, err := r.Store.Children(ctx, parent, relation)
	if err != nil {
		return false, err
	}
	if graph.Contains(existing, child) {
		return false, nil
	}
	if err := r.Store.AddChild(ctx, parent, child, relation, scope); err != nil {
		return false, err
	}
	return true, nil
}

// CreateStationDevices creates a device, named by station identity, for every
// station that has none, along with its connectivity, heartbeat and
// connector status endpoints.
func (r *Reconciler) CreateStationDevices(ctx context.Context, stations []models.ChargingStation, connectors []models.Connector) (Summary, error) {
	var sum Summary
	existing, err := r.devices(ctx)
	if err != nil {
		return sum, err
	}
	byName := identity.ByName(existing)
	byStation := connectorsByStation(connectors)

	for _, cs := range stations {
		if _, ok := byName.Lookup(cs.Identity); ok {
			sum.Skipped++
			continue
		}
		log.Info().Str("component", "reconciler").Str("identity", cs.Identity).Msg("Creating charging station device")
		device, err := r.createDevice(ctx, cs.Identity, "ChargingStation")
		if err != nil {
			return sum, err
		}
		byName.Add(cs.Identity, device)

		if err := r.createEndpoint(ctx, device, "connected", cs.Connected, ""); err != nil {
			return sum, err
		}
		if err := r.createEndpoint(ctx, device, "lastHeartbeat", cs.LastHeartbeatMillis(), ""); err != nil {
			return sum, err
		}
		for _, c := range byStation[cs.Identity] {
			if err := r.createEndpoint(ctx, device, connectorEndpointName(c), ConnectorStatusCode(c.Status), ""); err != nil {
				return sum, err
			}
		}
		sum.Created++
	}
	sum.log("station-devices")
	return sum, nil
}

// CreateEquipmentDevices creates a device, named by equipment name, with
// connectivity, per-phase current and energy endpoints.
func (r *Reconciler) CreateEquipmentDevices(ctx context.Context, equipment []models.Equipment) (Summary, error) {
	var sum Summary
	existing, err := r.devices(ctx)
	if err != nil {
		return sum, err
	}
	byName := identity.ByName(existing)

	for _, e := range equipment {
		if _, ok := byName.Lookup(e.Name); ok {
			sum.Skipped++
			continue
		}
		log.Info().Str("component", "reconciler").Str("name", e.Name).Msg("Creating energy counter device")
		device, err := r.createDevice(ctx, e.Name, "EnergyCounter")
		if err != nil {
			return sum, err
		}
		byName.Add(e.Name, device)

		if err := r.createEndpoint(ctx, device, "connected", e.Connected, ""); err != nil {
			return sum, err
		}
		for _, rd := range e.Readings() {
			var v any = 0
			if rd.Value != nil {
				v = *rd.Value
			}
			if err := r.createEndpoint(ctx, device, rd.Name, v, rd.Unit); err != nil {
				return sum, err
			}
		}
		sum.Created++
	}
	sum.log("equipment-devices")
	return sum, nil
}

// LinkDevices attaches every device to its typology node: the station whose
// identity equals the device name, or else the energy counter with that name.
func (r *Reconciler) LinkDevices(ctx context.Context) (Summary, error) {
	var sum Summary
	devices, err := r.devices(ctx)
	if err != nil {
		return sum, err
	}
	stations, err := r.stationIndex(ctx)
	if err != nil {
		return sum, err
	}
	counters, err := r.equipmentNodes(ctx)
	if err != nil {
		return sum, err
	}
	countersByName, err := identity.Build(ctx, r.Store, counters, r.Category, "name")
	if err != nil {
		return sum, err
	}

	for _, device := range devices {
		parent, ok := stations.Lookup(device.Name)
		if !ok {
			parent, ok = countersByName.Lookup(device.Name)
		}
		if !ok {
			sum.Skipped++
			continue
		}
		linked, err := r.link(ctx, parent, device, graph.RelHasDevice, graph.Node{})
		if err != nil {
			return sum, fmt.Errorf("link device %q: %w", device.Name, err)
		}
		if linked {
			sum.Created++
		} else {
			sum.Skipped++
		}
	}
	sum.log("device-links")
	return sum, nil
}

// UpdateStationDevices overwrites the endpoint values of existing station
// devices. Endpoints that do not exist are not created here.
func (r *Reconciler) UpdateStationDevices(ctx context.Context, stations []models.ChargingStation, connectors []models.Connector) (Summary, error) {
	var sum Summary
	devices, err := r.devices(ctx)
	if err != nil {
		return sum, err
	}
	byIdentity := make(map[string]models.ChargingStation, len(stations))
	for _, cs := range stations {
		byIdentity[cs.Identity] = cs
	}
	byStation := connectorsByStation(connectors)

	for _, device := range devices {
		cs, ok := byIdentity[device.Name]
		if !ok {
			continue
		}
		endpoints, err := r.endpoints(ctx, device)
		if err != nil {
			return sum, err
		}
		if err := r.updateEndpoint(ctx, endpoints, "connected", cs.Connected); err != nil {
			return sum, err
		}
		if err := r.updateEndpoint(ctx, endpoints, "lastHeartbeat", cs.LastHeartbeatMillis()); err != nil {
			return sum, err
		}
		for _, c := range byStation[cs.Identity] {
			if err := r.updateEndpoint(ctx, endpoints, connectorEndpointName(c), ConnectorStatusCode(c.Status)); err != nil {
				return sum, err
			}
		}
		sum.Updated++
	}
	sum.log("station-endpoints")
	return sum, nil
}

func (r *Reconciler) UpdateEquipmentDevices(ctx context.Context, equipment []models.Equipment) (Summary, error) {
	var sum Summary
	devices, err := r.devices(ctx)
	if err != nil {
		return sum, err
	}
	byName := make(map[string]models.Equipment, len(equipment))
	for _, e := range equipment {
		byName[e.Name] = e
	}

	for _, device := range devices {
		e, ok := byName[device.Name]
		if !ok {
			continue
		}
		endpoints, err := r.endpoints(ctx, device)
		if err != nil {
			return sum, err
		}
		if err := r.updateEndpoint(ctx, endpoints, "connected", e.Connected); err != nil {
			return sum, err
		}
		for _, rd := range e.Readings() {
			if rd.Value == nil {
				continue
			}
			if err := r.updateEndpoint(ctx, endpoints, rd.Name, *rd.Value); err != nil {
				return sum, err
			}
		}
		sum.Updated++
	}
	sum.log("equipment-endpoints")
	return sum, nil
}

func (r *Reconciler) createDevice(ctx context.Context, name, deviceType string) (graph.Node, error) {
	device, err := r.Store.CreateNode(ctx, r.Nodes.VirtualNetwork, r.Nodes.NetworkContext, graph.NodeSpec{
		Name:     name,
		Type:     graph.TypeDevice,
		Relation: graph.RelHasDevice,
	})
	if err != nil {
		return graph.Node{}, fmt.Errorf("create device %q: %w", name, err)
	}
	if err := r.Store.UpsertAttributes(ctx, device, defaultCategory, map[string]string{"type": deviceType}); err != nil {
		return graph.Node{}, fmt.Errorf("device %q type: %w", name, err)
	}
	return device, nil
}

// createEndpoint creates the endpoint, writes its initial value and then
// applies the history retention attribute.
func (r *Reconciler) createEndpoint(ctx context.Context, device graph.Node, name string, value any, unit string) error {
	ep, err := r.Store.CreateNode(ctx, device, r.Nodes.NetworkContext, graph.NodeSpec{
		Name:     name,
		Type:     graph.TypeEndpoint,
		Relation: graph.RelHasEndpoint,
	})
	if err != nil {
		return fmt.Errorf("create endpoint %s/%s: %w", device.Name, name, err)
	}
	if value == nil {
		value = 0
	}
	if err := r.Store.SetEndpointValue(ctx, ep, value); err != nil {
		return fmt.Errorf("endpoint %s/%s value: %w", device.Name, name, err)
	}
	attrs := map[string]string{"timeSeries maxDay": historyMaxDays}
	if unit != "" {
		attrs["unit"] = unit
	}
	if err := r.Store.UpsertAttributes(ctx, ep, defaultCategory, attrs); err != nil {
		return fmt.Errorf("endpoint %s/%s attributes: %w", device.Name, name, err)
	}
	return nil
}

func (r *Reconciler) endpoints(ctx context.Context, device graph.Node) (identity.Index, error) {
	children, err := r.Store.Children(ctx, device, graph.RelHasEndpoint)
	if err != nil {
		return identity.Index{}, fmt.Errorf("endpoints of %q: %w", device.Name, err)
	}
	return identity.ByName(children), nil
}

func (r *Reconciler) updateEndpoint(ctx context.Context, endpoints identity.Index, name string, value any) error {
	ep, ok := endpoints.Lookup(name)
	if !ok {
		return nil
	}
	if err := r.Store.SetEndpointValue(ctx, ep, value); err != nil {
		return fmt.Errorf("endpoint %s value: %w", name, err)
	}
	log.Debug().Str("component", "reconciler").Str("endpoint", name).Interface("value", value).Msg("Endpoint updated")
	return nil
}

func connectorsByStation(connectors []models.Connector) map[string][]models.Connector {
	out := make(map[string][]models.Connector)
	for _, c := range connectors {
		out[c.ChargingStationIdentity] = append(out[c.ChargingStationIdentity], c)
	}
	return out
}
