// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package service

import (
	"context"
	"time"

	"github.com/stitchline/stitchline/internal/workers"
	"github.com/stitchline/stitchline/models"
)

// ProgressObserver receives a progress event after every replayed item
// during a drain cycle, and once more when the cycle settles.
type ProgressObserver func(models.SyncProgress)

// OnlineChecker reports the current connectivity verdict. The sync engine
// consults it before and between item replays so a mid-cycle drop halts
// the cycle instead of burning the retry budget of every remaining item.
type OnlineChecker interface {
	Online() bool
}

// SyncRunner drains the write-ahead queue against the server. The
// connectivity monitor and any background trigger share one instance;
// concurrent cycle requests collapse into the running cycle via
// [ErrSyncBusy].
type SyncRunner interface {
	// Sync runs one drain cycle and returns the settled progress.
	Sync(ctx context.Context) (models.SyncProgress, error)

	// Pull refreshes the local cache and conflict view from the server.
	Pull(ctx context.Context) error

	// Observe registers an observer for per-item progress events.
	Observe(obs ProgressObserver)

	// Progress returns the progress of the running or last cycle.
	Progress() models.SyncProgress
}

// QueueManager decides what happens to a queue item after a failed replay:
// requeue with backoff while budget remains, park as a terminal failure
// once it is exhausted.
type QueueManager interface {
	// RetryLater reschedules the item with exponential backoff. Returns
	// [ErrMaxRetriesExceeded] once the retry budget is spent, after
	// parking the item as failed.
	RetryLater(ctx context.Context, item models.QueueItem, cause error) error

	// Failed lists terminally failed items for the workbench.
	Failed(ctx context.Context) ([]models.QueueItem, error)

	// Retry reactivates a failed item with a fresh retry budget.
	Retry(ctx context.Context, itemID string) error

	// Discard drops a failed item for good.
	Discard(ctx context.Context, itemID string) error
}

// ConnectivityMonitor tracks the online/offline state and drives the sync
// schedule: a reconnect and the periodic timer both trigger a drain cycle.
// The monitor is idle until Start is called.
//
// It also satisfies [workers.Worker] so the agent can launch it alongside
// other background workers; Run is Start with a background context.
type ConnectivityMonitor interface {
	OnlineChecker
	workers.Worker

	// Probe forces an immediate connectivity check and returns the verdict.
	Probe(ctx context.Context) bool

	// TriggerSync requests a drain cycle outside the regular schedule
	// (e.g. from a background scheduler or a UI action).
	TriggerSync()

	// LastProbeAt returns the time of the latest connectivity check.
	LastProbeAt() time.Time

	// Start launches the probe and sync loops. It stops any previously
	// running loops first.
	Start(ctx context.Context)

	// Stop cancels the loops and blocks until they exit. Safe to call when
	// the monitor is not running.
	Stop()
}
