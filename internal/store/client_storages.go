package store

import (
	"context"

	"github.com/stitchline/stitchline/internal/config"
	"github.com/stitchline/stitchline/internal/logger"
)

// ClientStorages aggregates every repository the agent binary needs.
type ClientStorages struct {
	Local LocalStore
}

// NewClientStorages opens the local sqlite database and wires the agent's
// repositories.
func NewClientStorages(ctx context.Context, cfg config.Storage, log *logger.Logger) (*ClientStorages, error) {
	db, err := NewConnectSQLite(ctx, cfg.LocalDB, log)
	if err != nil {
		return nil, err
	}

	return &ClientStorages{
		Local: NewLocalStore(db, log),
	}, nil
}
