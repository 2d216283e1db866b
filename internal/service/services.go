package service

import (
	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/store"
)

// NewServices wires the server-side services over the given storages.
func NewServices(storages *store.Storages, logger *logger.Logger) *Services {
	return &Services{
		Entity:   NewEntityService(storages.Entities, storages.Conflicts, logger),
		Conflict: NewConflictService(storages.Conflicts, logger),
	}
}
