package db

import (
	"context"
	"fmt"
)

const graphSchema = `
CREATE TABLE IF NOT EXISTS graph_nodes (
    id text PRIMARY KEY,
    name text NOT NULL,
    type text NOT NULL,
    created_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS graph_nodes_type_name_idx
ON graph_nodes (type, name);

CREATE TABLE IF NOT EXISTS graph_relations (
    seq bigserial PRIMARY KEY,
    parent_id text NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    child_id text NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    relation text NOT NULL,
    context_id text REFERENCES graph_nodes(id) ON DELETE SET NULL,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT graph_relations_unique
        UNIQUE (parent_id, child_id, relation)
);

CREATE INDEX IF NOT EXISTS graph_relations_parent_context_idx
ON graph_relations (parent_id, context_id);

CREATE TABLE IF NOT EXISTS graph_attributes (
    node_id text NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    category text NOT NULL,
    label text NOT NULL,
    value text NOT NULL DEFAULT '',
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    PRIMARY KEY (node_id, category, label)
);

CREATE TABLE IF NOT EXISTS endpoint_values (
    node_id text PRIMARY KEY REFERENCES graph_nodes(id) ON DELETE CASCADE,
    value text NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS endpoint_history (
    id bigserial PRIMARY KEY,
    node_id text NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    value text NOT NULL,
    recorded_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS endpoint_history_node_time_idx
ON endpoint_history (node_id, recorded_at);

CREATE TABLE IF NOT EXISTS sync_state (
    phase text PRIMARY KEY,
    synced_at timestamptz NOT NULL,
    created integer NOT NULL DEFAULT 0,
    updated integer NOT NULL DEFAULT 0,
    skipped integer NOT NULL DEFAULT 0
);
`

// Migrate creates the graph and sync tables. It is safe to run on every start.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, graphSchema); err != nil {
		return fmt.Errorf("migrate graph schema: %w", err)
	}
	return nil
}
