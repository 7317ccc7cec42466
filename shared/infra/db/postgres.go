package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/shared/infra/db/migrator"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

// SetupDB opens the journal pool and brings the schema up to date.
func SetupDB(ctx context.Context, dbURI string, migrationsFS fs.FS) (*pgxpool.Pool, error) {
	pool, err := newPgxPool(ctx, dbURI)
	if err != nil {
		return nil, fmt.Errorf("NewPgxPool: %w", err)
	}

	sqlDB, err := sql.Open("pgx", dbURI)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	defer sqlDB.Close()

	dbMigrator := migrator.NewMigrator(sqlDB, migrationsFS)
	if err = dbMigrator.Up(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrator.Up: %w", err)
	}

	version, err := dbMigrator.Version(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrator.Version: %w", err)
	}
	zapLogger.Info(ctx, "journal schema ready", zap.Int64("version", version))

	return pool, nil
}

func newPgxPool(ctx context.Context, dbURI string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbURI)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pool.Ping: %w", err)
	}
	return pool, nil
}
