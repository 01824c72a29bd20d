package repo

import (
	"context"
	"errors"
	"fmt"

	"cpmsync/internal/graph"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GraphStore persists the graph in PostgreSQL.
type GraphStore struct{ db *pgxpool.Pool }

func NewGraphStore(db *pgxpool.Pool) *GraphStore { return &GraphStore{db: db} }

var _ graph.Store = (*GraphStore)(nil)

func (r *GraphStore) Context(ctx context.Context, name string) (graph.Node, error) {
	row := r.db.QueryRow(ctx, `
		select id, name, type from graph_nodes
		where type=$1 and name=$2
		order by created_at asc
		limit 1
	`, graph.TypeContext, name)

	var n graph.Node
	if err := row.Scan(&n.ID, &n.Name, &n.Type); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return graph.Node{}, fmt.Errorf("context %q: %w", name, graph.ErrNotFound)
		}
		return graph.Node{}, err
	}
	return n, nil
}

// CreateContext returns the existing context when one with the same name exists.
func (r *GraphStore) CreateContext(ctx context.Context, name, contextType string) (graph.Node, error) {
	n, err := r.Context(ctx, name)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, graph.ErrNotFound) {
		return graph.Node{}, err
	}

	n = graph.Node{ID: uuid.NewString(), Name: name, Type: graph.TypeContext}
	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `insert into graph_nodes (id, name, type) values ($1,$2,$3)`, n.ID, n.Name, n.Type); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			insert into graph_attributes (node_id, category, label, value)
			values ($1,'info','contextType',$2)
		`, n.ID, contextType)
		return err
	})
	if err != nil {
		return graph.Node{}, err
	}
	return n, nil
}

func (r *GraphStore) FindChildrenInContext(ctx context.Context, parent, scope graph.Node) ([]graph.Node, error) {
	if parent.IsZero() || scope.IsZero() {
		return nil, nil
	}
	return r.queryNodes(ctx, `
		select n.id, n.name, n.type
		from graph_relations rel
		join graph_nodes n on n.id = rel.child_id
		where rel.parent_id=$1 and rel.context_id=$2
		order by rel.seq asc
	`, parent.ID, scope.ID)
}

func (r *GraphStore) Children(ctx context.Context, parent graph.Node, relation string) ([]graph.Node, error) {
	if parent.IsZero() {
		return nil, nil
	}
	return r.queryNodes(ctx, `
		select n.id, n.name, n.type
		from graph_relations rel
		join graph_nodes n on n.id = rel.child_id
		where rel.parent_id=$1 and rel.relation=$2
		order by rel.seq asc
	`, parent.ID, relation)
}

func (r *GraphStore) CreateNode(ctx context.Context, parent, scope graph.Node, spec graph.NodeSpec) (graph.Node, error) {
	n := graph.Node{ID: uuid.NewString(), Name: spec.Name, Type: spec.Type}
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `insert into graph_nodes (id, name, type) values ($1,$2,$3)`, n.ID, n.Name, n.Type); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			insert into graph_relations (parent_id, child_id, relation, context_id)
			values ($1,$2,$3,$4)
		`, parent.ID, n.ID, spec.Relation, nullableID(scope))
		return err
	})
	if err != nil {
		return graph.Node{}, notFound(err, "parent %q", parent.Name)
	}
	return n, nil
}

// AddChild is a no-op when the link already exists.
func (r *GraphStore) AddChild(ctx context.Context, parent, child graph.Node, relation string, scope graph.Node) error {
	_, err := r.db.Exec(ctx, `
		insert into graph_relations (parent_id, child_id, relation, context_id)
		values ($1,$2,$3,$4)
		on conflict (parent_id, child_id, relation) do nothing
	`, parent.ID, child.ID, relation, nullableID(scope))
	return notFound(err, "link %q -> %q", parent.Name, child.Name)
}

func (r *GraphStore) MoveToStep(ctx context.Context, ticket, from, to, scope graph.Node) error {
	tag, err := r.db.Exec(ctx, `
		update graph_relations set parent_id=$3
		where parent_id=$1 and child_id=$2 and context_id=$4
	`, from.ID, ticket.ID, to.ID, nullableID(scope))
	if err != nil {
		return notFound(err, "step %q", to.Name)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket %q in step %q: %w", ticket.Name, from.Name, graph.ErrNotFound)
	}
	return nil
}

func (r *GraphStore) queryNodes(ctx context.Context, sql string, args ...any) ([]graph.Node, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graph.Node
	for rows.Next() {
		var n graph.Node
		if err := rows.Scan(&n.ID, &n.Name, &n.Type); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func nullableID(n graph.Node) *string {
	if n.IsZero() {
		return nil
	}
	return &n.ID
}

const foreignKeyViolation = "23503"

// notFound maps a foreign key violation, raised when a referenced node does
// not exist, to graph.ErrNotFound.
func notFound(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf(format+": %w", append(args, graph.ErrNotFound)...)
	}
	return err
}
