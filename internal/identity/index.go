// Package identity maps external identity keys onto graph nodes.
//
// An Index is a snapshot: it is built from the nodes present when Build or
// ByName runs and is never patched afterwards. Callers rebuild it whenever
// they need lookups that reflect nodes created since.
package identity

import (
	"context"

	"cpmsync/internal/graph"

	"github.com/rs/zerolog/log"
)

// AttributeReader is the part of graph.Store the index reads from.
type AttributeReader interface {
	FindAttribute(ctx context.Context, node graph.Node, category, label string) (string, bool, error)
}

type Index struct {
	byKey map[string]graph.Node
}

// Build indexes nodes by the value of one attribute. Nodes without the
// attribute are skipped. When two nodes carry the same value the later one wins.
func Build(ctx context.Context, r AttributeReader, nodes []graph.Node, category, label string) (Index, error) {
	idx := Index{byKey: make(map[string]graph.Node, len(nodes))}
	for _, n := range nodes {
		v, ok, err := r.FindAttribute(ctx, n, category, label)
		if err != nil {
			return Index{}, err
		}
		if !ok || v == "" {
			log.Debug().
				Str("component", "identity").
				Str("node", n.Name).
				Str("category", category).
				Str("label", label).
				Msg("Node has no identity attribute, skipping")
			continue
		}
		idx.byKey[v] = n
	}
	return idx, nil
}

// ByName indexes nodes by their name.
func ByName(nodes []graph.Node) Index {
	idx := Index{byKey: make(map[string]graph.Node, len(nodes))}
	for _, n := range nodes {
		if _, dup := idx.byKey[n.Name]; dup {
			continue
		}
		idx.byKey[n.Name] = n
	}
	return idx
}

func (i Index) Lookup(key string) (graph.Node, bool) {
	n, ok := i.byKey[key]
	return n, ok
}

func (i Index) Len() int { return len(i.byKey) }

// Add records a node created after the index was built.
func (i Index) Add(key string, n graph.Node) {
	if i.byKey != nil {
		i.byKey[key] = n
	}
}
