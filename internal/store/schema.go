package store

import (
	"context"
	"fmt"
	"strings"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS places (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		category    TEXT NOT NULL,
		lat         REAL NOT NULL,
		lng         REAL NOT NULL,
		city        TEXT NOT NULL DEFAULT '',
		address     TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		phone       TEXT NOT NULL DEFAULT '',
		website     TEXT NOT NULL DEFAULT '',
		verified    BOOLEAN NOT NULL DEFAULT 0,
		h3_r5       TEXT NOT NULL,
		h3_r7       TEXT NOT NULL,
		h3_r9       TEXT NOT NULL,
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS places_h3_r5 ON places(h3_r5, category)`,
	`CREATE INDEX IF NOT EXISTS places_h3_r7 ON places(h3_r7, category)`,
	`CREATE INDEX IF NOT EXISTS places_h3_r9 ON places(h3_r9, category)`,
	`CREATE INDEX IF NOT EXISTS places_category ON places(category)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS places (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		category    TEXT NOT NULL,
		lat         DOUBLE PRECISION NOT NULL,
		lng         DOUBLE PRECISION NOT NULL,
		city        TEXT NOT NULL DEFAULT '',
		address     TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		phone       TEXT NOT NULL DEFAULT '',
		website     TEXT NOT NULL DEFAULT '',
		verified    BOOLEAN NOT NULL DEFAULT FALSE,
		h3_r5       TEXT NOT NULL,
		h3_r7       TEXT NOT NULL,
		h3_r9       TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		CONSTRAINT places_lat_range CHECK (lat BETWEEN -90 AND 90),
		CONSTRAINT places_lng_range CHECK (lng BETWEEN -180 AND 180)
	)`,
	`CREATE INDEX IF NOT EXISTS places_h3_r5 ON places(h3_r5, category)`,
	`CREATE INDEX IF NOT EXISTS places_h3_r7 ON places(h3_r7, category)`,
	`CREATE INDEX IF NOT EXISTS places_h3_r9 ON places(h3_r9, category)`,
	`CREATE INDEX IF NOT EXISTS places_category ON places(category)`,
}

// Migrate creates the places table and its cell indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.driver == DriverPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			head := strings.Fields(stmt)
			return fmt.Errorf("migrate %s: %w", strings.Join(head[:min(len(head), 6)], " "), err)
		}
	}
	return nil
}
