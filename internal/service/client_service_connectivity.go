// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stitchline/stitchline/internal/adapter"
	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/models"
)

const (
	defaultProbeInterval = 15 * time.Second
	defaultSyncInterval  = 5 * time.Minute
)

type connectivityMonitor struct {
	server adapter.ServerAdapter
	runner SyncRunner

	probeInterval time.Duration
	syncInterval  time.Duration

	online  atomic.Bool
	trigger chan struct{}

	probeMu     sync.Mutex
	lastProbeAt time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logger.Logger
}

// NewConnectivityMonitor creates the monitor that owns the online flag and
// the sync schedule. Intervals <= 0 default to 15s probes and 5m syncs.
// The monitor starts pessimistic: offline until the first probe succeeds.
func NewConnectivityMonitor(server adapter.ServerAdapter, runner SyncRunner, probeInterval, syncInterval time.Duration, logger *logger.Logger) ConnectivityMonitor {
	if probeInterval <= 0 {
		probeInterval = defaultProbeInterval
	}
	if syncInterval <= 0 {
		syncInterval = defaultSyncInterval
	}
	return &connectivityMonitor{
		server:        server,
		runner:        runner,
		probeInterval: probeInterval,
		syncInterval:  syncInterval,
		trigger:       make(chan struct{}, 1),
		logger:        logger,
	}
}

func (m *connectivityMonitor) Online() bool {
	return m.online.Load()
}

func (m *connectivityMonitor) LastProbeAt() time.Time {
	m.probeMu.Lock()
	defer m.probeMu.Unlock()
	return m.lastProbeAt
}

// Probe implements ConnectivityMonitor. A failed health check flips the
// monitor offline; a success after an offline stretch flips it online and
// requests an immediate drain so queued work is not held until the next
// scheduled sync.
func (m *connectivityMonitor) Probe(ctx context.Context) bool {
	err := m.server.Ping(ctx)
	online := err == nil

	m.probeMu.Lock()
	m.lastProbeAt = time.Now().UTC()
	m.probeMu.Unlock()

	wasOnline := m.online.Swap(online)
	switch {
	case online && !wasOnline:
		m.logger.Info().Str("func", "connectivityMonitor.Probe").Msg("connectivity restored, requesting drain cycle")
		m.TriggerSync()
	case !online && wasOnline:
		m.logger.Warn().Str("func", "connectivityMonitor.Probe").Err(err).Msg("connectivity lost")
	}

	return online
}

// TriggerSync implements ConnectivityMonitor. The channel holds one pending
// request; further triggers while a cycle is queued collapse into it.
func (m *connectivityMonitor) TriggerSync() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Start implements ConnectivityMonitor in the same shape as Stop: a
// background goroutine per loop, cancelled via the monitor's own context.
func (m *connectivityMonitor) Start(ctx context.Context) {
	m.Stop()

	m.mu.Lock()
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(2)
	m.mu.Unlock()

	go m.probeLoop(loopCtx)
	go m.syncLoop(loopCtx)
}

// Stop implements ConnectivityMonitor.
func (m *connectivityMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Run implements workers.Worker so the monitor can be launched alongside
// the agent's other background workers.
func (m *connectivityMonitor) Run() {
	m.Start(context.Background())
}

func (m *connectivityMonitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	m.Probe(ctx)

	t := time.NewTicker(m.probeInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Probe(ctx)
		}
	}
}

func (m *connectivityMonitor) syncLoop(ctx context.Context) {
	defer m.wg.Done()

	t := time.NewTicker(m.syncInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.runCycle(ctx)
		case <-m.trigger:
			m.runCycle(ctx)
		}
	}
}

func (m *connectivityMonitor) runCycle(ctx context.Context) {
	if !m.Online() {
		return
	}

	progress, err := m.runner.Sync(ctx)
	switch {
	case err == nil:
		if progress.Status == models.SyncStatusIdle {
			if pullErr := m.runner.Pull(ctx); pullErr != nil {
				m.logger.Err(pullErr).Str("func", "connectivityMonitor.runCycle").Msg("cache refresh failed")
			}
		}
	case errors.Is(err, ErrSyncBusy), errors.Is(err, ErrOffline):
		// Expected while a cycle runs or connectivity flaps. The next
		// trigger or tick picks the queue back up.
	default:
		m.logger.Err(err).Str("func", "connectivityMonitor.runCycle").Msg("drain cycle failed")
	}
}
