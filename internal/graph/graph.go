// Package graph defines the node-and-relationship store the sync engine writes to.
package graph

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var ErrNotFound = errors.New("graph node not found")

// Node types.
const (
	TypeContext  = "context"
	TypeNetwork  = "network"
	TypeCategory = "category"
	TypeGroup    = "group"
	TypeProcess  = "process"
	TypeStep     = "step"
	TypeDevice   = "bmsDevice"
	TypeEndpoint = "bmsEndpoint"
	TypeTicket   = "ticket"
)

// Relation names.
const (
	RelContains     = "contains"
	RelHasDevice    = "hasBmsDevice"
	RelHasEndpoint  = "hasBmsEndpoint"
	RelGroupMember  = "groupHasBIMObject"
	RelHasTicket    = "hasTicket"
	RelStepTicket   = "stepHasTicket"
	RelProcessStep  = "processHasStep"
	RelCategoryItem = "categoryHasItem"
)

// Node is an opaque handle into the store. Two handles refer to the same
// node when their IDs are equal.
type Node struct {
	ID   string
	Name string
	Type string
}

// NodeSpec describes a node to create under a parent.
type NodeSpec struct {
	Name     string
	Type     string
	Relation string
}

// Store is the capability set the reconciler needs from the graph.
type Store interface {
	// Context returns the root context node with the given name.
	Context(ctx context.Context, name string) (Node, error)
	CreateContext(ctx context.Context, name, contextType string) (Node, error)

	// FindChildrenInContext lists the children of parent reached through
	// relations registered in the given scope context.
	FindChildrenInContext(ctx context.Context, parent, scope Node) ([]Node, error)
	// Children lists the children of parent reached through the named relation.
	Children(ctx context.Context, parent Node, relation string) ([]Node, error)

	// CreateNode creates a node and links it under parent within the scope context.
	CreateNode(ctx context.Context, parent, scope Node, spec NodeSpec) (Node, error)
	// AddChild links child under parent. A zero scope means the link is not
	// registered in any context.
	AddChild(ctx context.Context, parent, child Node, relation string, scope Node) error
	// MoveToStep relinks a ticket from one workflow step to another.
	MoveToStep(ctx context.Context, ticket, from, to, scope Node) error

	// UpsertAttributes creates or replaces every attribute in attrs under category.
	UpsertAttributes(ctx context.Context, node Node, category string, attrs map[string]string) error
	// FindAttribute returns the attribute value and whether it exists.
	FindAttribute(ctx context.Context, node Node, category, label string) (string, bool, error)

	// SetEndpointValue stores the current value of an endpoint and appends it
	// to the endpoint's history.
	SetEndpointValue(ctx context.Context, endpoint Node, value any) error
}

// IsZero reports whether n is the zero handle.
func (n Node) IsZero() bool { return n.ID == "" }

// FormatValue renders an endpoint value in its persisted string form.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return strconv.FormatInt(t.UnixMilli(), 10)
	default:
		return ""
	}
}

// FindByName returns the first node named name.
func FindByName(nodes []Node, name string) (Node, bool) {
	for _, n := range nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Contains reports whether nodes holds a handle equal to n.
func Contains(nodes []Node, n Node) bool {
	for _, c := range nodes {
		if c.ID == n.ID {
			return true
		}
	}
	return false
}
