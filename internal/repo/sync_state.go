package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SyncState struct {
	Phase    string
	SyncedAt time.Time
	Created  int
	Updated  int
	Skipped  int
}

type SyncStateRepo struct{ db *pgxpool.Pool }

func NewSyncStateRepo(db *pgxpool.Pool) *SyncStateRepo { return &SyncStateRepo{db: db} }

func (r *SyncStateRepo) RecordSync(ctx context.Context, phase string, at time.Time, created, updated, skipped int) error {
	_, err := r.db.Exec(ctx, `
		insert into sync_state (phase, synced_at, created, updated, skipped)
		values ($1,$2,$3,$4,$5)
		on conflict (phase) do update set
		  synced_at=excluded.synced_at,
		  created=excluded.created,
		  updated=excluded.updated,
		  skipped=excluded.skipped
	`, phase, at, created, updated, skipped)
	return err
}

// Last returns the most recent sync of any phase, or nil when none was recorded.
func (r *SyncStateRepo) Last(ctx context.Context) (*SyncState, error) {
	row := r.db.QueryRow(ctx, `
		select phase, synced_at, created, updated, skipped
		from sync_state
		order by synced_at desc
		limit 1
	`)

	var s SyncState
	if err := row.Scan(&s.Phase, &s.SyncedAt, &s.Created, &s.Updated, &s.Skipped); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
