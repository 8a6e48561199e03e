package postgres

import (
	"context"
	"errors"

	"opd/opd-service/internal/kv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Write(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, upsertEntry, key, value)
	return err
}

const upsertEntry = `
	INSERT INTO kv_entries (key, value, version, updated_at)
	VALUES ($1, $2, 1, now())
	ON CONFLICT (key) DO UPDATE
	SET value = EXCLUDED.value,
	    version = kv_entries.version + 1,
	    updated_at = now()
`

// Update takes a transaction-scoped advisory lock per key, in sorted order,
// so keys that do not exist yet are serialized too.
func (s *Store) Update(ctx context.Context, keys []string, fn func(tx kv.Tx) error) (err error) {
	keys = kv.SortedKeys(keys)
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, key := range keys {
		if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return err
		}
	}

	buf := kv.NewBuffer(keys)
	rows, err := tx.Query(ctx, `SELECT key, value FROM kv_entries WHERE key = ANY($1)`, keys)
	if err != nil {
		return err
	}
	for rows.Next() {
		var key string
		var value []byte
		if err = rows.Scan(&key, &value); err != nil {
			rows.Close()
			return err
		}
		buf.Load(key, value)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	if err = fn(buf); err != nil {
		return err
	}
	for _, entry := range buf.Writes() {
		if _, err = tx.Exec(ctx, upsertEntry, entry.Key, entry.Value); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
