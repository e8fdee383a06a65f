package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const createSQLiteEntries = `
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
  created_at_unix INTEGER NOT NULL,
  resolved_at_unix INTEGER
);`

// SQLiteStore persists entries in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

type sqliteRow struct {
	ID             string        `db:"id"`
	Workflow       string        `db:"workflow"`
	ObjectID       string        `db:"object_id"`
	Sponsor        string        `db:"sponsor"`
	User           string        `db:"user_address"`
	MintDigest     string        `db:"mint_digest"`
	TransferDigest string        `db:"transfer_digest"`
	Reason         string        `db:"reason"`
	Detail         string        `db:"detail"`
	CreatedAtUnix  int64         `db:"created_at_unix"`
	ResolvedAtUnix sql.NullInt64 `db:"resolved_at_unix"`
}

func (r sqliteRow) entry() Entry {
	e := Entry{
		ID:             r.ID,
		Workflow:       r.Workflow,
		ObjectID:       r.ObjectID,
		Sponsor:        r.Sponsor,
		User:           r.User,
		MintDigest:     r.MintDigest,
		TransferDigest: r.TransferDigest,
		Reason:         Reason(r.Reason),
		Detail:         r.Detail,
		CreatedAt:      time.Unix(0, r.CreatedAtUnix).UTC(),
	}
	if r.ResolvedAtUnix.Valid {
		at := time.Unix(0, r.ResolvedAtUnix.Int64).UTC()
		e.ResolvedAt = &at
	}
	return e
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open reconcile sqlite database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("cannot set sqlite database parameter: %w", err)
		}
	}
	if _, err := db.Exec(createSQLiteEntries); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot create reconcile_entries table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Record(ctx context.Context, e Entry) (Entry, error) {
	e = prepare(e, time.Now())
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO reconcile_entries (id, workflow, object_id, sponsor, user_address, mint_digest, transfer_digest, reason, detail, created_at_unix)
		 VALUES (:id, :workflow, :object_id, :sponsor, :user_address, :mint_digest, :transfer_digest, :reason, :detail, :created_at_unix)`,
		sqliteRow{
			ID:             e.ID,
			Workflow:       e.Workflow,
			ObjectID:       e.ObjectID,
			Sponsor:        e.Sponsor,
			User:           e.User,
			MintDigest:     e.MintDigest,
			TransferDigest: e.TransferDigest,
			Reason:         string(e.Reason),
			Detail:         e.Detail,
			CreatedAtUnix:  e.CreatedAt.UnixNano(),
		})
	if err != nil {
		return e, fmt.Errorf("insert reconcile entry: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Pending(ctx context.Context) ([]Entry, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM reconcile_entries WHERE resolved_at_unix IS NULL ORDER BY created_at_unix, id`)
	if err != nil {
		return nil, fmt.Errorf("select pending entries: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

func (s *SQLiteStore) Resolve(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reconcile_entries SET resolved_at_unix = ? WHERE id = ?`, at.UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("resolve reconcile entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
