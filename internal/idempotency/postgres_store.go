package idempotency

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
)

// PostgresStore persists records in a PostgreSQL table so replicas share
// replay state.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS idempotency_records (
    key TEXT PRIMARY KEY,
    status_code INT NOT NULL,
    headers JSONB NOT NULL DEFAULT '{}',
    body BYTEA NOT NULL,
    fingerprint TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
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
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
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

// Ping is used by the health endpoint.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, key string) (*Record, error) {
	row := p.pool.QueryRow(ctx, `
SELECT status_code, headers, body, fingerprint, created_at, expires_at
FROM idempotency_records
WHERE key = $1 AND expires_at > now()
`, key)

	var (
		rec     Record
		headers []byte
	)
	if err := row.Scan(&rec.StatusCode, &headers, &rec.Body, &rec.Fingerprint, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(headers) > 0 {
		rec.Header = http.Header{}
		if err := jsoniter.Unmarshal(headers, &rec.Header); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func (p *PostgresStore) Save(ctx context.Context, key string, record Record) error {
	headers, err := jsoniter.Marshal(record.Header)
	if err != nil {
		return err
	}
	if record.Header == nil {
		headers = []byte("{}")
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO idempotency_records (key, status_code, headers, body, fingerprint, created_at, expires_at)
VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7)
ON CONFLICT (key) DO UPDATE
SET status_code = EXCLUDED.status_code,
    headers = EXCLUDED.headers,
    body = EXCLUDED.body,
    fingerprint = EXCLUDED.fingerprint,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at
`, key, record.StatusCode, string(headers), record.Body, record.Fingerprint, record.CreatedAt, record.ExpiresAt)
	return err
}

// Purge deletes expired records.
func (p *PostgresStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
