package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

const createUsageTable = `
CREATE TABLE IF NOT EXISTS tally_usage (
    namespace  TEXT NOT NULL,
    usage_key  TEXT NOT NULL,
    value      INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (namespace, usage_key)
);
`

const dropUsageTable = `DROP TABLE IF EXISTS tally_usage`

// Migrations is the grove migration group for the tally store (SQLite).
var Migrations = migrate.NewGroup("tally")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_usage",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, createUsageTable)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, dropUsageTable)
				return err
			},
		},
	)
}
