package store

import (
	"context"
	"fmt"

	"github.com/stitchline/stitchline/internal/config"
	"github.com/stitchline/stitchline/internal/logger"
)

// Storages aggregates every repository the server binary needs.
type Storages struct {
	Entities  EntityRepository
	Conflicts ConflictRepository
}

// NewStorages connects to postgres, runs the embedded migrations and wires
// the server repositories.
func NewStorages(ctx context.Context, cfg config.Storage, log *logger.Logger) (*Storages, error) {
	db, err := NewConnectPostgres(ctx, cfg.ServerDB, log)
	if err != nil {
		return nil, err
	}

	if err = db.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate server schema: %w", err)
	}

	return &Storages{
		Entities:  NewEntityRepository(db, log),
		Conflicts: NewConflictRepository(db, log),
	}, nil
}
