package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one SQL file, versioned by its numeric filename prefix.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

const ensureMigrationsTable = `
	CREATE TABLE IF NOT EXISTS _migrations (
	    version    INTEGER PRIMARY KEY,
	    name       TEXT NOT NULL,
	    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// LoadMigrations reads the .sql files of dir and parses the version from the
// filename prefix ("0001_kv_entries.sql" is version 1). Files without a
// numeric prefix are skipped. Two files with the same version are an error.
func LoadMigrations(dir fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(dir, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, other, name)
		}
		seen[version] = name

		content, err := fs.ReadFile(dir, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// ApplyMigrations applies the pending migrations of dir in version order and
// returns how many ran. Each migration runs in its own transaction together
// with its _migrations row. An advisory lock serializes instances starting at
// the same time, and the applied check is repeated under that lock.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, dir fs.FS) (int, error) {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return 0, err
	}
	if _, err := pool.Exec(ctx, ensureMigrationsTable); err != nil {
		return 0, fmt.Errorf("create _migrations table: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		ran, err := applyMigration(ctx, pool, m)
		if err != nil {
			return applied, fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if ran {
			applied++
		}
	}
	return applied, nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, m Migration) (ran bool, err error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('_migrations', 0))`); err != nil {
		return false, err
	}
	var done bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM _migrations WHERE version = $1)`, m.Version).Scan(&done); err != nil {
		return false, err
	}
	if done {
		return false, tx.Rollback(ctx)
	}

	if strings.TrimSpace(m.SQL) != "" {
		if _, err = tx.Exec(ctx, m.SQL); err != nil {
			return false, err
		}
	}
	if _, err = tx.Exec(ctx, `INSERT INTO _migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
