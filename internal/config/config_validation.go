package config

import (
	"errors"
	"time"
)

// Defaults for values no source supplied. The retry bound and batch size
// match the sync protocol: three attempts per item, modest batches so
// progress events stay granular.
const (
	defaultSyncInterval   = 5 * time.Minute
	defaultProbeInterval  = 15 * time.Second
	defaultRequestTimeout = 15 * time.Second
	defaultBatchSize      = 25
	defaultMaxRetries     = 3

	// The admin API is an operator surface for one workstation; it stays on
	// loopback unless explicitly bound elsewhere.
	defaultAdminAddress = "127.0.0.1:8090"
)

var (
	errNoServerAddress = errors.New("server HTTP address is required")
	errNoDatabaseDSN   = errors.New("database DSN is required")
	errNoSyncServerURL = errors.New("sync server URL is required")
	errNoLocalDBPath   = errors.New("local database path is required")
)

func applyDefaults(cfg *StructuredConfig) {
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = defaultSyncInterval
	}
	if cfg.Sync.ProbeInterval <= 0 {
		cfg.Sync.ProbeInterval = defaultProbeInterval
	}
	if cfg.Sync.RequestTimeout <= 0 {
		cfg.Sync.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = defaultBatchSize
	}
	if cfg.Sync.MaxRetries <= 0 {
		cfg.Sync.MaxRetries = defaultMaxRetries
	}
	if cfg.Sync.AdminAddress == "" {
		cfg.Sync.AdminAddress = defaultAdminAddress
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
}

func validateServer(cfg *StructuredConfig) error {
	if cfg.Server.HTTPAddress == "" {
		return errNoServerAddress
	}
	if cfg.Storage.ServerDB.DSN == "" {
		return errNoDatabaseDSN
	}
	return nil
}

func validateAgent(cfg *StructuredConfig) error {
	if cfg.Sync.ServerURL == "" {
		return errNoSyncServerURL
	}
	if cfg.Storage.LocalDB.Path == "" {
		return errNoLocalDBPath
	}
	return nil
}
