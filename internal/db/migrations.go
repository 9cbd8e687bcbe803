package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS participants (
		id          BIGSERIAL PRIMARY KEY,
		code        TEXT NOT NULL,
		name        TEXT NOT NULL,
		event_name  TEXT,
		ticket_type TEXT,
		status      TEXT NOT NULL DEFAULT 'registered',
		attributes  JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_participants_code ON participants(code);`,
	`CREATE INDEX IF NOT EXISTS idx_participants_event_name ON participants(event_name);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
