package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// ApplyMigrations runs every pending .up.sql under migrationsDir in lexical
// order, each in its own transaction, recording applied versions in
// schema_migrations. An up file without its paired .down.sql is refused
// before anything touches the database, so every applied version stays
// reversible.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	versions, err := migrationVersions(migrationsDir)
	if err != nil {
		return err
	}

	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}

	applied := 0
	for _, version := range versions {
		done, err := isApplied(ctx, db, version)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		if err := runMigration(ctx, db, migrationsDir, version); err != nil {
			return err
		}
		applied++
	}
	if applied > 0 {
		log.Printf("applied %d migrations", applied)
	}
	return nil
}

// migrationVersions lists the up migrations in apply order, failing fast on
// any up file that lacks its down counterpart.
func migrationVersions(migrationsDir string) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var versions []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, upSuffix) {
			continue
		}
		down := strings.TrimSuffix(name, upSuffix) + downSuffix
		if _, err := os.Stat(filepath.Join(migrationsDir, down)); err != nil {
			return nil, fmt.Errorf("migration %s is missing its %s counterpart", name, down)
		}
		versions = append(versions, name)
	}
	sort.Strings(versions)
	return versions, nil
}

func runMigration(ctx context.Context, db *sql.DB, migrationsDir, version string) error {
	contents, err := os.ReadFile(filepath.Join(migrationsDir, version))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isApplied(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var applied bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version,
	).Scan(&applied)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return applied, nil
}
