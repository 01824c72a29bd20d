package graph

import (
	"context"
	"fmt"
)

// Layout names the fixed nodes the sync engine attaches its data to.
type Layout struct {
	NetworkContext       string
	VirtualNetwork       string
	TypologyContext      string
	TypologyCategory     string
	ChargingStationGroup string
	EnergyCounterGroup   string
	ZoneContext          string
	ZoneCategory         string
	WorkflowContext      string
	Process              string
	PendingStep          string
	TerminatedStep       string
}

// FindChild returns the child of parent named name within scope.
func FindChild(ctx context.Context, s Store, parent, scope Node, name string) (Node, error) {
	children, err := s.FindChildrenInContext(ctx, parent, scope)
	if err != nil {
		return Node{}, err
	}
	if n, ok := FindByName(children, name); ok {
		return n, nil
	}
	return Node{}, fmt.Errorf("%q under %q: %w", name, parent.Name, ErrNotFound)
}

// EnsureLayout creates whatever part of the layout is missing. Existing nodes
// are left untouched, so it is safe to run repeatedly.
func EnsureLayout(ctx context.Context, s Store, l Layout) error {
	network, err := s.CreateContext(ctx, l.NetworkContext, "Network")
	if err != nil {
		return err
	}
	if _, err := ensureChild(ctx, s, network, network, l.VirtualNetwork, TypeNetwork, RelContains); err != nil {
		return err
	}

	typology, err := s.CreateContext(ctx, l.TypologyContext, "Typology")
	if err != nil {
		return err
	}
	category, err := ensureChild(ctx, s, typology, typology, l.TypologyCategory, TypeCategory, RelContains)
	if err != nil {
		return err
	}
	for _, name := range []string{l.ChargingStationGroup, l.EnergyCounterGroup} {
		if _, err := ensureChild(ctx, s, category, typology, name, TypeGroup, RelCategoryItem); err != nil {
			return err
		}
	}

	zones, err := s.CreateContext(ctx, l.ZoneContext, "Group")
	if err != nil {
		return err
	}
	if _, err := ensureChild(ctx, s, zones, zones, l.ZoneCategory, TypeCategory, RelContains); err != nil {
		return err
	}

	workflow, err := s.CreateContext(ctx, l.WorkflowContext, "Workflow")
	if err != nil {
		return err
	}
	process, err := ensureChild(ctx, s, workflow, workflow, l.Process, TypeProcess, RelContains)
	if err != nil {
		return err
	}
	for _, name := range []string{l.PendingStep, l.TerminatedStep} {
		if _, err := ensureChild(ctx, s, process, workflow, name, TypeStep, RelProcessStep); err != nil {
			return err
		}
	}
	return nil
}

func ensureChild(ctx context.Context, s Store, parent, scope Node, name, nodeType, relation string) (Node, error) {
	children, err := s.FindChildrenInContext(ctx, parent, scope)
	if err != nil {
		return Node{}, err
	}
	if n, ok := FindByName(children, name); ok {
		return n, nil
	}
	n, err := s.CreateNode(ctx, parent, scope, NodeSpec{Name: name, Type: nodeType, Relation: relation})
	if err != nil {
		return Node{}, fmt.Errorf("create %s %q: %w", nodeType, name, err)
	}
	return n, nil
}
