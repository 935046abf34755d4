package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/izavyalov-dev/octane-bridge/state/migrations"
)

// migrationLockKey serializes concurrent bridge instances migrating the same database.
const migrationLockKey int64 = 0x6f6374616e65

// ApplyMigrations runs pending SQL migrations in order and returns the IDs it applied.
func (s *Store) ApplyMigrations(ctx context.Context) ([]string, error) {
	var applied []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if err := ensureSchemaMigrationsTable(ctx, tx); err != nil {
			return err
		}

		done, err := loadAppliedMigrations(ctx, tx)
		if err != nil {
			return err
		}

		for _, migration := range migrations.All {
			if _, ok := done[migration.ID]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, migration.Script); err != nil {
				return fmt.Errorf("apply migration %s: %w", migration.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (id, applied_at) VALUES ($1, NOW())`, migration.ID); err != nil {
				return fmt.Errorf("record migration %s: %w", migration.ID, err)
			}
			applied = append(applied, migration.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func ensureSchemaMigrationsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    id TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`)
	return err
}

func loadAppliedMigrations(ctx context.Context, tx *sql.Tx) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied[id] = struct{}{}
	}
	return applied, rows.Err()
}
