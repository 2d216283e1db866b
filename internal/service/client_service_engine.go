// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stitchline Authors

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stitchline/stitchline/internal/adapter"
	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/internal/store"
	"github.com/stitchline/stitchline/models"
)

// syncEngine drains the write-ahead queue against the server, one cycle at
// a time. A cycle replays items strictly in queue order (priority rank
// descending, enqueue time ascending within a rank) and publishes a
// progress event after every item.
type syncEngine struct {
	local   store.LocalStore
	server  adapter.ServerAdapter
	queue   QueueManager
	checker OnlineChecker

	batchSize int
	actorID   string

	// busy admits one running cycle; concurrent requests get ErrSyncBusy.
	busy sync.Mutex

	obsMu     sync.Mutex
	observers []ProgressObserver

	progressMu sync.Mutex
	progress   models.SyncProgress

	logger *logger.Logger
}

// NewSyncEngine constructs the [SyncRunner] shared by the connectivity
// monitor and background triggers.
func NewSyncEngine(local store.LocalStore, server adapter.ServerAdapter, queue QueueManager, checker OnlineChecker, batchSize int, actorID string, logger *logger.Logger) SyncRunner {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &syncEngine{
		local:     local,
		server:    server,
		queue:     queue,
		checker:   checker,
		batchSize: batchSize,
		actorID:   actorID,
		progress:  models.SyncProgress{Status: models.SyncStatusIdle},
		logger:    logger,
	}
}

func (e *syncEngine) Observe(obs ProgressObserver) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, obs)
}

func (e *syncEngine) Progress() models.SyncProgress {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	return e.progress
}

// Sync implements SyncRunner.
func (e *syncEngine) Sync(ctx context.Context) (models.SyncProgress, error) {
	if !e.busy.TryLock() {
		return e.Progress(), ErrSyncBusy
	}
	defer e.busy.Unlock()

	log := logger.FromContext(ctx)

	if !e.checker.Online() {
		e.publish(models.SyncProgress{Status: models.SyncStatusOffline})
		return e.Progress(), ErrOffline
	}

	total, err := e.local.ActiveCount(ctx)
	if err != nil {
		return e.Progress(), fmt.Errorf("count queued items: %w", err)
	}

	e.progressMu.Lock()
	e.progress.LastError = ""
	e.progressMu.Unlock()

	progress := models.SyncProgress{Total: total, Status: models.SyncStatusDraining}
	e.publish(progress)

	log.Info().
		Str("func", "syncEngine.Sync").
		Int("queued", total).
		Msg("drain cycle started")

	halted := false

drain:
	for {
		batch, err := e.local.DequeueBatch(ctx, e.batchSize, time.Now().UTC())
		if err != nil {
			return e.Progress(), fmt.Errorf("dequeue batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, item := range batch {
			if ctx.Err() != nil {
				return e.Progress(), ctx.Err()
			}
			if !e.checker.Online() {
				// Connectivity dropped mid-cycle. Halt instead of burning
				// every remaining item's retry budget; the queue resumes
				// untouched on the next cycle.
				halted = true
				break drain
			}

			switch e.replay(ctx, item) {
			case replayOK:
				progress.Processed++
			case replayConflict:
				progress.Processed++
				progress.Conflicts++
			case replayFailed:
				progress.Processed++
				progress.Failed++
			case replayRetrying:
				// Settles in a later pass once its backoff expires.
			case replayOffline:
				halted = true
			}
			e.publish(progress)

			if halted {
				break drain
			}
		}
	}

	remaining, err := e.local.ActiveCount(ctx)
	if err != nil {
		return e.Progress(), fmt.Errorf("count remaining items: %w", err)
	}

	switch {
	case halted:
		progress.Status = models.SyncStatusOffline
	case progress.Failed > 0 || progress.Conflicts > 0 || remaining > 0:
		progress.Status = models.SyncStatusErrors
	default:
		progress.Status = models.SyncStatusIdle
		if err = e.local.SetLastSyncAt(ctx, time.Now().UTC()); err != nil {
			return e.Progress(), fmt.Errorf("record last sync time: %w", err)
		}
	}
	e.publish(progress)

	log.Info().
		Str("func", "syncEngine.Sync").
		Int("processed", progress.Processed).
		Int("failed", progress.Failed).
		Int("conflicts", progress.Conflicts).
		Int("remaining", remaining).
		Str("status", string(progress.Status)).
		Msg("drain cycle settled")

	// The stored snapshot carries the LastError folded in by publish.
	return e.Progress(), nil
}

type replayOutcome int

const (
	replayOK replayOutcome = iota
	replayRetrying
	replayConflict
	replayFailed
	replayOffline
)

// replay pushes one queue item to the server and settles its fate in the
// local store.
func (e *syncEngine) replay(ctx context.Context, item models.QueueItem) replayOutcome {
	log := logger.FromContext(ctx)

	version, err := e.push(ctx, item)

	var conflictErr *adapter.ConflictError
	switch {
	case err == nil:
		superseded, confirmErr := e.local.ConfirmSynced(ctx, item, version)
		if confirmErr != nil {
			log.Err(confirmErr).
				Str("func", "syncEngine.replay").
				Str("item_id", item.ID).
				Msg("failed to confirm synced item")
			return e.retry(ctx, item, confirmErr)
		}
		if superseded {
			log.Debug().
				Str("func", "syncEngine.replay").
				Str("item_id", item.ID).
				Msg("item conflated mid-flight, newer revision stays queued")
		}
		return replayOK

	case errors.As(err, &conflictErr):
		return e.recordConflict(ctx, item, conflictErr.Response)

	case errors.Is(err, adapter.ErrNotFound) && item.Operation == models.OpDelete:
		// The record is already gone server-side. The delete's intent is
		// satisfied.
		if rmErr := e.local.RemoveQueueItem(ctx, item.ID); rmErr != nil {
			return e.retry(ctx, item, rmErr)
		}
		return replayOK

	case errors.Is(err, adapter.ErrBadRequest):
		// Malformed payloads never heal with retries. Park immediately.
		if mfErr := e.local.MarkFailed(ctx, item.ID); mfErr != nil {
			log.Err(mfErr).Str("func", "syncEngine.replay").Str("item_id", item.ID).Msg("failed to park rejected item")
		}
		e.setLastError(err)
		return replayFailed

	default:
		return e.retry(ctx, item, err)
	}
}

func (e *syncEngine) push(ctx context.Context, item models.QueueItem) (int64, error) {
	switch item.Operation {
	case models.OpCreate:
		return e.server.Create(ctx, item.EntityType, item.EntityID, item.Payload)
	case models.OpUpdate:
		return e.server.Update(ctx, item.EntityType, item.EntityID, item.Payload, item.BaseVersion)
	case models.OpDelete:
		return e.server.Delete(ctx, item.EntityType, item.EntityID, item.BaseVersion)
	default:
		return 0, fmt.Errorf("%w: unknown operation %q", adapter.ErrBadRequest, item.Operation)
	}
}

// recordConflict settles a 409: the server has already minted the conflict
// record, so the item leaves the queue and the conflict is cached locally
// for the resolution workbench.
func (e *syncEngine) recordConflict(ctx context.Context, item models.QueueItem, resp models.ConflictResponse) replayOutcome {
	log := logger.FromContext(ctx)

	conflict := models.ConflictRecord{
		ConflictID:    resp.ConflictID,
		EntityType:    item.EntityType,
		EntityID:      item.EntityID,
		LocalPayload:  item.Payload,
		ServerPayload: resp.ServerPayload,
		LocalVersion:  item.BaseVersion + 1,
		ServerVersion: resp.ServerVersion,
		ActorID:       e.actorID,
		DetectedAt:    time.Now().UTC(),
		Status:        models.ConflictPending,
	}
	if err := e.local.CacheConflict(ctx, conflict); err != nil {
		return e.retry(ctx, item, err)
	}
	if err := e.local.RemoveQueueItem(ctx, item.ID); err != nil {
		return e.retry(ctx, item, err)
	}
	// The server now arbitrates this record. Adopting its state clears the
	// dirty flag so pulls pick up whatever resolution the server lands on.
	// The item is already gone from the queue, so an adoption failure is
	// surfaced but does not reschedule anything.
	if err := e.local.AdoptServerRecord(ctx, models.EntityRecord{
		EntityType:    item.EntityType,
		ID:            item.EntityID,
		Payload:       resp.ServerPayload,
		LocalVersion:  resp.ServerVersion,
		ServerVersion: resp.ServerVersion,
		UpdatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Err(err).
			Str("func", "syncEngine.recordConflict").
			Str("item_id", item.ID).
			Msg("failed to adopt server state after conflict")
		e.setLastError(err)
	}

	log.Warn().
		Str("func", "syncEngine.recordConflict").
		Str("item_id", item.ID).
		Str("conflict_id", resp.ConflictID).
		Int64("server_version", resp.ServerVersion).
		Msg("replay rejected with version conflict")

	e.setLastError(fmt.Errorf("version conflict on %s/%s", item.EntityType, item.EntityID))
	return replayConflict
}

func (e *syncEngine) retry(ctx context.Context, item models.QueueItem, cause error) replayOutcome {
	if errors.Is(cause, adapter.ErrNetworkUnavailable) && !e.checker.Online() {
		return replayOffline
	}

	e.setLastError(cause)
	if err := e.queue.RetryLater(ctx, item, cause); err != nil {
		if errors.Is(err, ErrMaxRetriesExceeded) {
			return replayFailed
		}
		logger.FromContext(ctx).Err(err).
			Str("func", "syncEngine.retry").
			Str("item_id", item.ID).
			Msg("failed to reschedule item")
		return replayFailed
	}
	return replayRetrying
}

// Pull implements SyncRunner: it refreshes the local entity cache from the
// server's bulk endpoints using per-type cursors, then mirrors the pending
// conflict list.
func (e *syncEngine) Pull(ctx context.Context) error {
	log := logger.FromContext(ctx)

	meta, err := e.local.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("load sync metadata: %w", err)
	}

	for _, entityType := range models.EntityTypes() {
		var since *time.Time
		if cursor, ok := meta.Cursors[entityType]; ok {
			since = &cursor
		}

		records, pullErr := e.server.Pull(ctx, entityType, since)
		if pullErr != nil {
			return fmt.Errorf("pull %s: %w", entityType, pullErr)
		}
		if len(records) == 0 {
			continue
		}
		if err = e.local.ApplyServerState(ctx, records); err != nil {
			return fmt.Errorf("apply pulled %s records: %w", entityType, err)
		}

		cursor := records[0].UpdatedAt
		for _, rec := range records[1:] {
			if rec.UpdatedAt.After(cursor) {
				cursor = rec.UpdatedAt
			}
		}
		if err = e.local.SetCursor(ctx, entityType, cursor); err != nil {
			return fmt.Errorf("advance %s cursor: %w", entityType, err)
		}

		log.Debug().
			Str("func", "syncEngine.Pull").
			Str("entity_type", string(entityType)).
			Int("records", len(records)).
			Time("cursor", cursor).
			Msg("entity cache refreshed")
	}

	return e.refreshConflictCache(ctx)
}

// refreshConflictCache mirrors the server's pending conflicts for this
// actor: new ones are cached, resolved ones are dropped.
func (e *syncEngine) refreshConflictCache(ctx context.Context) error {
	listing, err := e.server.ListConflicts(ctx, e.actorID)
	if err != nil {
		return fmt.Errorf("list server conflicts: %w", err)
	}

	pending := make(map[string]struct{}, len(listing.Conflicts))
	for _, conflict := range listing.Conflicts {
		pending[conflict.ConflictID] = struct{}{}
		if err = e.local.CacheConflict(ctx, conflict); err != nil {
			return fmt.Errorf("cache conflict %s: %w", conflict.ConflictID, err)
		}
	}

	cached, err := e.local.CachedConflicts(ctx)
	if err != nil {
		return fmt.Errorf("list cached conflicts: %w", err)
	}
	for _, conflict := range cached {
		if _, ok := pending[conflict.ConflictID]; ok {
			continue
		}
		if err = e.local.RemoveCachedConflict(ctx, conflict.ConflictID); err != nil {
			return fmt.Errorf("drop stale cached conflict %s: %w", conflict.ConflictID, err)
		}
	}

	return nil
}

func (e *syncEngine) setLastError(err error) {
	e.progressMu.Lock()
	e.progress.LastError = err.Error()
	e.progressMu.Unlock()
}

// publish stores the progress snapshot and fans it out to observers.
// LastError set by replay handlers is preserved across snapshots.
func (e *syncEngine) publish(progress models.SyncProgress) {
	e.progressMu.Lock()
	if progress.LastError == "" {
		progress.LastError = e.progress.LastError
	}
	e.progress = progress
	e.progressMu.Unlock()

	e.obsMu.Lock()
	observers := make([]ProgressObserver, len(e.observers))
	copy(observers, e.observers)
	e.obsMu.Unlock()

	for _, obs := range observers {
		obs(progress)
	}
}
