package store

import (
	"database/sql"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/migrations"
)

// DB wraps a database/sql connection together with the application logger.
// The same wrapper serves both backends: the agent's sqlite file and the
// server's postgres database.
type DB struct {
	*sql.DB
	logger *logger.Logger
}

// Migrate applies the embedded goose migrations. Only meaningful for the
// postgres backend; the sqlite schema is applied inline at open.
func (db *DB) Migrate() error {
	return migrations.Migrate(db.DB)
}
