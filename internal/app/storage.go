package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-accounts/internal/auth"
	"github.com/odyssey-erp/odyssey-accounts/internal/platform/db"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
)

// Storage groups the repositories backed by the configured database.
type Storage struct {
	Driver   string
	Users    users.Repository
	Sessions auth.Repository
	close    func() error
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStorage connects to the configured driver and applies migrations.
func OpenStorage(ctx context.Context, cfg *Config, logger *slog.Logger) (*Storage, error) {
	switch cfg.DBDriver {
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if err := db.MigratePostgres(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
		return &Storage{
			Driver:   DriverPostgres,
			Users:    users.NewRepository(pool),
			Sessions: auth.NewRepository(pool),
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil
	case DriverSQLite:
		conn, err := db.NewSQLite(ctx, cfg.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		if err := db.MigrateSQLite(ctx, conn.DB, logger); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &Storage{
			Driver:   DriverSQLite,
			Users:    users.NewSQLiteRepository(conn),
			Sessions: auth.NewSQLiteRepository(conn),
			close:    conn.Close,
		}, nil
	default:
		return nil, fmt.Errorf("app: unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}
