package registry

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migration represents a single database migration.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationsRunner applies versioned schema migrations in order, recording
// applied versions in schema_migrations.
type MigrationsRunner struct {
	db         *sql.DB
	logger     *zap.Logger
	migrations []Migration
}

// NewMigrationsRunner loads the embedded .up.sql files.
func NewMigrationsRunner(db *sql.DB, logger *zap.Logger) (*MigrationsRunner, error) {
	runner := &MigrationsRunner{
		db:     db,
		logger: logger,
	}
	if err := runner.loadMigrations(); err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return runner, nil
}

// loadMigrations reads every NNNNNN_name.up.sql file from the embedded filesystem.
func (r *MigrationsRunner) loadMigrations() error {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if !strings.HasSuffix(filename, ".up.sql") {
			continue
		}

		parts := strings.SplitN(filename, "_", 2)
		if len(parts) < 2 {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
			r.logger.Warn("skipping invalid migration file", zap.String("file", filename))
			continue
		}

		name := strings.TrimSuffix(parts[1], ".up.sql")

		content, err := migrationFiles.ReadFile("sql/" + filename)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}

		r.migrations = append(r.migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(content),
		})
	}

	sort.Slice(r.migrations, func(i, j int) bool {
		return r.migrations[i].Version < r.migrations[j].Version
	})

	return nil
}

// Run applies all pending migrations in version order.
func (r *MigrationsRunner) Run() error {
	if err := r.createMigrationsTable(); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := r.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}

	for _, m := range r.migrations {
		if applied[m.Version] {
			continue
		}

		tx, err := r.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		r.logger.Info("applied migration", zap.Int("version", m.Version), zap.String("name", m.Name))
	}

	return nil
}

// createMigrationsTable creates the schema_migrations table if it doesn't exist.
func (r *MigrationsRunner) createMigrationsTable() error {
	query := `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version INTEGER PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        )
    `
	_, err := r.db.Exec(query)
	return err
}

// getAppliedMigrations returns the set of applied migration versions.
func (r *MigrationsRunner) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := r.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
