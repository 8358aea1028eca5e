package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// MigratePostgres applies pending schema migrations through the pool.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	conn := stdlib.OpenDBFromPool(pool)
	defer conn.Close()
	return migrate(ctx, goose.DialectPostgres, conn, "migrations/postgres", logger)
}

// MigrateSQLite applies pending schema migrations to an embedded database.
func MigrateSQLite(ctx context.Context, conn *sql.DB, logger *slog.Logger) error {
	return migrate(ctx, goose.DialectSQLite3, conn, "migrations/sqlite", logger)
}

func migrate(ctx context.Context, dialect goose.Dialect, conn *sql.DB, dir string, logger *slog.Logger) error {
	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("platform/db: migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, conn, fsys)
	if err != nil {
		return fmt.Errorf("platform/db: migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("platform/db: migrate up: %w", err)
	}
	if logger != nil {
		for _, res := range results {
			logger.Info("migration applied", slog.String("source", res.Source.Path), slog.Duration("duration", res.Duration))
		}
	}
	return nil
}
