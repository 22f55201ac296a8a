package db

import (
	"context"
	"database/sql"
	"fmt"

	"bountyexpo/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies the embedded goose migrations. A non-zero version migrates
// up or down to exactly that version.
func Migrate(ctx context.Context, databaseURL string, version int64) error {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if version > 0 {
		current, err := goose.GetDBVersionContext(ctx, sqlDB)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		if version < current {
			err = goose.DownToContext(ctx, sqlDB, ".", version)
		} else {
			err = goose.UpToContext(ctx, sqlDB, ".", version)
		}
		if err != nil {
			return fmt.Errorf("failed to migrate to version %d: %w", version, err)
		}
		return nil
	}

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationStatus returns the applied schema version.
func MigrationStatus(ctx context.Context, databaseURL string) (int64, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer sqlDB.Close()
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, sqlDB)
}
