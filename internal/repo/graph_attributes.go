package repo

import (
	"context"
	"errors"
	"maps"
	"slices"

	"cpmsync/internal/graph"

	"github.com/jackc/pgx/v5"
)

func (r *GraphStore) UpsertAttributes(ctx context.Context, node graph.Node, category string, attrs map[string]string) error {
	if len(attrs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, label := range slices.Sorted(maps.Keys(attrs)) {
		batch.Queue(`
			insert into graph_attributes (node_id, category, label, value, updated_at)
			values ($1,$2,$3,$4, now())
			on conflict (node_id, category, label) do update set
			  value=excluded.value,
			  updated_at=now()
		`, node.ID, category, label, attrs[label])
	}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	return notFound(err, "node %q", node.Name)
}

func (r *GraphStore) FindAttribute(ctx context.Context, node graph.Node, category, label string) (string, bool, error) {
	row := r.db.QueryRow(ctx, `
		select value from graph_attributes
		where node_id=$1 and category=$2 and label=$3
	`, node.ID, category, label)

	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}
