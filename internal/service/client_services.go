package service

import (
	"github.com/stitchline/stitchline/internal/adapter"
	"github.com/stitchline/stitchline/internal/config"
	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/store"
)

// ClientServices aggregates the agent-side services: the retry policy, the
// drain engine and the connectivity monitor that schedules it.
type ClientServices struct {
	Queue   QueueManager
	Runner  SyncRunner
	Monitor ConnectivityMonitor
}

// NewClientServices wires the agent services over the local store and the
// server adapter according to the sync configuration.
func NewClientServices(cfg config.Sync, local store.LocalStore, server adapter.ServerAdapter, logger *logger.Logger) *ClientServices {
	queue := NewQueueManager(local, cfg.MaxRetries, 0, logger)
	monitor := &connectivityMonitor{
		server:        server,
		probeInterval: cfg.ProbeInterval,
		syncInterval:  cfg.Interval,
		trigger:       make(chan struct{}, 1),
		logger:        logger,
	}
	runner := NewSyncEngine(local, server, queue, monitor, cfg.BatchSize, cfg.ActorID, logger)
	monitor.runner = runner

	if monitor.probeInterval <= 0 {
		monitor.probeInterval = defaultProbeInterval
	}
	if monitor.syncInterval <= 0 {
		monitor.syncInterval = defaultSyncInterval
	}

	return &ClientServices{
		Queue:   queue,
		Runner:  runner,
		Monitor: monitor,
	}
}
