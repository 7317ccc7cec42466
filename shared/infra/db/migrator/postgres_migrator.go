package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

type Migrator struct {
	db           *sql.DB
	migrationsFS fs.FS
}

func NewMigrator(db *sql.DB, migrationsFS fs.FS) *Migrator {
	return &Migrator{
		db:           db,
		migrationsFS: migrationsFS,
	}
}

// Up applies every pending migration from the embedded directory root.
func (m *Migrator) Up(ctx context.Context) error {
	goose.SetBaseFS(m.migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose.SetDialect: %w", err)
	}

	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("goose.Up: %w", err)
	}

	return nil
}

// Version returns the currently applied migration version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	goose.SetBaseFS(m.migrationsFS)
	defer goose.SetBaseFS(nil)

	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("goose.GetDBVersion: %w", err)
	}

	return version, nil
}
