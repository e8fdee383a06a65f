package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists entries in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createEntriesSQL = `
CREATE TABLE IF NOT EXISTS reconcile_entries (
    id TEXT PRIMARY KEY,
    workflow TEXT NOT NULL,
    object_id TEXT NOT NULL,
    sponsor TEXT NOT NULL,
    user_address TEXT NOT NULL,
    mint_digest TEXT NOT NULL,
    transfer_digest TEXT NOT NULL,
    reason TEXT NOT NULL,
    detail TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    resolved_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS reconcile_entries_pending ON reconcile_entries (created_at) WHERE resolved_at IS NULL;
`

// NewPostgresStore connects using dsn and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createEntriesSQL); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Record(ctx context.Context, e Entry) (Entry, error) {
	e = prepare(e, time.Now())
	_, err := p.pool.Exec(ctx, `
INSERT INTO reconcile_entries (id, workflow, object_id, sponsor, user_address, mint_digest, transfer_digest, reason, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, e.ID, e.Workflow, e.ObjectID, e.Sponsor, e.User, e.MintDigest, e.TransferDigest, string(e.Reason), e.Detail, e.CreatedAt)
	return e, err
}

func (p *PostgresStore) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, workflow, object_id, sponsor, user_address, mint_digest, transfer_digest, reason, detail, created_at
FROM reconcile_entries
WHERE resolved_at IS NULL
ORDER BY created_at, id
`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e      Entry
			reason string
		)
		err := row.Scan(&e.ID, &e.Workflow, &e.ObjectID, &e.Sponsor, &e.User, &e.MintDigest, &e.TransferDigest, &reason, &e.Detail, &e.CreatedAt)
		e.Reason = Reason(reason)
		return e, err
	})
}

func (p *PostgresStore) Resolve(ctx context.Context, id string, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE reconcile_entries SET resolved_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
