package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/rickgao/candled/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewMigrator returns a migrator bound to the embedded schema and the
// database described by cfg.
func NewMigrator(cfg config.DBConfig, logger *slog.Logger) (*migrate.Migrate, error) {
	return NewMigratorURL(BuildConnString(cfg), logger)
}

// NewMigratorURL is NewMigrator for a ready postgres:// URL.
func NewMigratorURL(connString string, logger *slog.Logger) (*migrate.Migrate, error) {
	if logger == nil {
		logger = slog.Default()
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(connString))
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrationLogger{logger}
	return m, nil
}

// MigrateUp applies all pending migrations. An already current schema is
// not an error.
func MigrateUp(m *migrate.Migrate) (changed bool, err error) {
	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("migrate up: %w", err)
	}
	return true, nil
}

// MigrateDown reverts all migrations.
func MigrateDown(m *migrate.Migrate) (changed bool, err error) {
	err = m.Down()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("migrate down: %w", err)
	}
	return true, nil
}

// migrateURL switches a postgres URL to the scheme registered by the pgx/v5
// migrate driver.
func migrateURL(connString string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix)
		}
	}
	return connString
}

type migrationLogger struct {
	logger *slog.Logger
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l migrationLogger) Verbose() bool {
	return false
}
