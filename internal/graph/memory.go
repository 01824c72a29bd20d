package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type edge struct {
	parent   string
	child    string
	relation string
	context  string
}

// MemoryStore is an in-process Store. It backs dry runs (GRAPH_BACKEND=memory)
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	nodes   map[string]Node
	order   []string
	edges   []edge
	attrs   map[string]map[string]map[string]string
	values  map[string]any
	history map[string][]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:   make(map[string]Node),
		attrs:   make(map[string]map[string]map[string]string),
		values:  make(map[string]any),
		history: make(map[string][]any),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Context(_ context.Context, name string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		n := s.nodes[id]
		if n.Type == TypeContext && n.Name == name {
			return n, nil
		}
	}
	return Node{}, fmt.Errorf("context %q: %w", name, ErrNotFound)
}

// CreateContext returns the existing context when one with the same name exists.
func (s *MemoryStore) CreateContext(ctx context.Context, name, contextType string) (Node, error) {
	if n, err := s.Context(ctx, name); err == nil {
		return n, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.addNode(name, TypeContext)
	s.setAttr(n.ID, "info", "contextType", contextType)
	return n, nil
}

func (s *MemoryStore) FindChildrenInContext(_ context.Context, parent, scope Node) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Node
	for _, e := range s.edges {
		if e.parent == parent.ID && e.context == scope.ID && scope.ID != "" {
			out = append(out, s.nodes[e.child])
		}
	}
	return out, nil
}

func (s *MemoryStore) Children(_ context.Context, parent Node, relation string) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Node
	for _, e := range s.edges {
		if e.parent == parent.ID && e.relation == relation {
			out = append(out, s.nodes[e.child])
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateNode(_ context.Context, parent, scope Node, spec NodeSpec) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[parent.ID]; !ok {
		return Node{}, fmt.Errorf("parent %q: %w", parent.Name, ErrNotFound)
	}
	n := s.addNode(spec.Name, spec.Type)
	s.edges = append(s.edges, edge{parent: parent.ID, child: n.ID, relation: spec.Relation, context: scope.ID})
	return n, nil
}

func (s *MemoryStore) AddChild(_ context.Context, parent, child Node, relation string, scope Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[parent.ID]; !ok {
		return fmt.Errorf("parent %q: %w", parent.Name, ErrNotFound)
	}
	if _, ok := s.nodes[child.ID]; !ok {
		return fmt.Errorf("child %q: %w", child.Name, ErrNotFound)
	}
	for _, e := range s.edges {
		if e.parent == parent.ID && e.child == child.ID && e.relation == relation {
			return nil
		}
	}
	s.edges = append(s.edges, edge{parent: parent.ID, child: child.ID, relation: relation, context: scope.ID})
	return nil
}

func (s *MemoryStore) MoveToStep(_ context.Context, ticket, from, to, scope Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.edges {
		if e.parent == from.ID && e.child == ticket.ID && e.context == scope.ID {
			s.edges[i].parent = to.ID
			return nil
		}
	}
	return fmt.Errorf("ticket %q in step %q: %w", ticket.Name, from.Name, ErrNotFound)
}

func (s *MemoryStore) UpsertAttributes(_ context.Context, node Node, category string, attrs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[node.ID]; !ok {
		return fmt.Errorf("node %q: %w", node.Name, ErrNotFound)
	}
	for label, value := range attrs {
		s.setAttr(node.ID, category, label, value)
	}
	return nil
}

func (s *MemoryStore) FindAttribute(_ context.Context, node Node, category, label string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[node.ID][category][label]
	return v, ok, nil
}

func (s *MemoryStore) SetEndpointValue(_ context.Context, endpoint Node, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[endpoint.ID]; !ok {
		return fmt.Errorf("endpoint %q: %w", endpoint.Name, ErrNotFound)
	}
	s.values[endpoint.ID] = value
	s.history[endpoint.ID] = append(s.history[endpoint.ID], value)
	return nil
}

// Attributes returns a copy of the attributes of node under category.
func (s *MemoryStore) Attributes(node Node, category string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.attrs[node.ID][category]))
	for k, v := range s.attrs[node.ID][category] {
		out[k] = v
	}
	return out
}

// Value returns the current value of an endpoint.
func (s *MemoryStore) Value(endpoint Node) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[endpoint.ID]
	return v, ok
}

// History returns every value written to an endpoint, oldest first.
func (s *MemoryStore) History(endpoint Node) []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]any(nil), s.history[endpoint.ID]...)
}

// CountByType returns how many nodes of the given type exist.
func (s *MemoryStore) CountByType(nodeType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, node := range s.nodes {
		if node.Type == nodeType {
			n++
		}
	}
	return n
}

func (s *MemoryStore) addNode(name, nodeType string) Node {
	n := Node{ID: uuid.NewString(), Name: name, Type: nodeType}
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	return n
}

func (s *MemoryStore) setAttr(id, category, label, value string) {
	if s.attrs[id] == nil {
		s.attrs[id] = make(map[string]map[string]string)
	}
	if s.attrs[id][category] == nil {
		s.attrs[id][category] = make(map[string]string)
	}
	s.attrs[id][category][label] = value
}
