package repo

import (
	"context"
	"time"

	"cpmsync/internal/graph"

	"github.com/jackc/pgx/v5"
)

// SetEndpointValue replaces the current value and appends a history row in
// one transaction.
func (r *GraphStore) SetEndpointValue(ctx context.Context, endpoint graph.Node, value any) error {
	v := graph.FormatValue(value)
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			insert into endpoint_values (node_id, value, updated_at)
			values ($1,$2, now())
			on conflict (node_id) do update set
			  value=excluded.value,
			  updated_at=now()
		`, endpoint.ID, v); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `insert into endpoint_history (node_id, value) values ($1,$2)`, endpoint.ID, v)
		return err
	})
	return notFound(err, "endpoint %q", endpoint.Name)
}

// HistoryRetention matches the "timeSeries maxDay" attribute written on endpoints.
const HistoryRetention = 14 * 24 * time.Hour

type EndpointSample struct {
	Value      string
	RecordedAt time.Time
}

// EndpointHistory returns the samples of an endpoint recorded since the given
// time, oldest first.
func (r *GraphStore) EndpointHistory(ctx context.Context, endpoint graph.Node, since time.Time) ([]EndpointSample, error) {
	rows, err := r.db.Query(ctx, `
		select value, recorded_at from endpoint_history
		where node_id=$1 and recorded_at >= $2
		order by recorded_at asc, id asc
	`, endpoint.ID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EndpointSample
	for rows.Next() {
		var s EndpointSample
		if err := rows.Scan(&s.Value, &s.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneEndpointHistory deletes history rows older than the cutoff and returns
// how many were removed.
func (r *GraphStore) PruneEndpointHistory(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `delete from endpoint_history where recorded_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
