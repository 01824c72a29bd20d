package services

import (
	"context"
	"errors"
	"fmt"

	"cpmsync/internal/graph"
)

// LookupError reports a required layout node that does not exist. The
// engine cannot start without it.
type LookupError struct {
	Kind string
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *LookupError) Unwrap() error { return e.Err }

// IsLookupError checks if an error is a LookupError
func IsLookupError(err error) bool {
	var e *LookupError
	return errors.As(err, &e)
}

// RequiredNodes are the layout nodes every reconciliation phase hangs off.
type RequiredNodes struct {
	NetworkContext  graph.Node
	TypologyContext graph.Node
	ZoneContext     graph.Node
	WorkflowContext graph.Node

	VirtualNetwork   graph.Node
	TypologyCategory graph.Node
	ZoneCategory     graph.Node
	Process          graph.Node

	StationGroup   graph.Node
	EquipmentGroup graph.Node
	PendingStep    graph.Node
	TerminatedStep graph.Node
}

// ResolveRequiredNodes looks up every layout node by name.
func ResolveRequiredNodes(ctx context.Context, s graph.Store, l graph.Layout) (RequiredNodes, error) {
	var n RequiredNodes
	var err error

	contexts := []struct {
		dst  *graph.Node
		name string
	}{
		{&n.NetworkContext, l.NetworkContext},
		{&n.TypologyContext, l.TypologyContext},
		{&n.ZoneContext, l.ZoneContext},
		{&n.WorkflowContext, l.WorkflowContext},
	}
	for _, c := range contexts {
		if *c.dst, err = s.Context(ctx, c.name); err != nil {
			return RequiredNodes{}, wrapLookup("context", c.name, err)
		}
	}

	children := []struct {
		dst           *graph.Node
		kind          string
		parent, scope *graph.Node
		name          string
	}{
		{&n.VirtualNetwork, "virtual network", &n.NetworkContext, &n.NetworkContext, l.VirtualNetwork},
		{&n.TypologyCategory, "typology category", &n.TypologyContext, &n.TypologyContext, l.TypologyCategory},
		{&n.ZoneCategory, "zone category", &n.ZoneContext, &n.ZoneContext, l.ZoneCategory},
		{&n.Process, "process", &n.WorkflowContext, &n.WorkflowContext, l.Process},
		{&n.StationGroup, "charging station group", &n.TypologyCategory, &n.TypologyContext, l.ChargingStationGroup},
		{&n.EquipmentGroup, "energy counter group", &n.TypologyCategory, &n.TypologyContext, l.EnergyCounterGroup},
		{&n.PendingStep, "pending step", &n.Process, &n.WorkflowContext, l.PendingStep},
		{&n.TerminatedStep, "terminated step", &n.Process, &n.WorkflowContext, l.TerminatedStep},
	}
	for _, c := range children {
		if *c.dst, err = graph.FindChild(ctx, s, *c.parent, *c.scope, c.name); err != nil {
			return RequiredNodes{}, wrapLookup(c.kind, c.name, err)
		}
	}
	return n, nil
}

func wrapLookup(kind, name string, err error) error {
	if errors.Is(err, graph.ErrNotFound) {
		return &LookupError{Kind: kind, Name: name, Err: err}
	}
	return fmt.Errorf("resolve %s %q: %w", kind, name, err)
}
