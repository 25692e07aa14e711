package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"erp-offline-sync/internal/cache"
	"erp-offline-sync/internal/config"
	"erp-offline-sync/internal/logger"
	"erp-offline-sync/internal/network"
	"erp-offline-sync/internal/queue"
	"erp-offline-sync/internal/remote"
	"erp-offline-sync/internal/store"
)

// ErrSyncInProgress is returned when a drain trigger arrives while a pass
// is already running. The trigger is coalesced into a no-op; the running
// pass will pick up anything enqueued meanwhile.
var ErrSyncInProgress = errors.New("sync is already running")

// Manager orchestrates queue replay against the remote backend and
// reconciles the cache. At most one drain pass runs at a time; replay is
// strictly sequential in enqueue order.
type Manager struct {
	cfg     config.SyncConfig
	cache   *cache.Cache
	queue   *queue.Queue
	remote  remote.Client
	monitor *network.Monitor
	store   store.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    *network.Subscription

	mu     sync.Mutex
	status Status
}

func NewManager(cfg config.SyncConfig, c *cache.Cache, q *queue.Queue, rc remote.Client, mon *network.Monitor, st store.Store) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:     cfg,
		cache:   c,
		queue:   q,
		remote:  rc,
		monitor: mon,
		store:   st,
		ctx:     ctx,
		cancel:  cancel,
		status:  StatusIdle,
	}
}

// Start begins watching connectivity. When auto-sync is enabled, a
// transition to online with a non-empty queue triggers a drain pass.
func (m *Manager) Start() {
	if !m.cfg.AutoSync {
		logger.Log.Info("Auto-sync disabled, queue drains on manual or scheduled triggers only")
		return
	}

	m.sub = m.monitor.Subscribe()
	m.wg.Add(1)
	go m.watch()
}

func (m *Manager) watch() {
	defer m.wg.Done()

	for {
		select {
		case online, ok := <-m.sub.C:
			if !ok {
				return
			}
			if !online {
				continue
			}
			n, err := m.queue.Length(m.ctx)
			if err != nil {
				logger.Log.Error("Failed to read queue depth", zap.Error(err))
				continue
			}
			if n == 0 {
				continue
			}
			logger.Log.Info("Connectivity regained with pending actions", zap.Int("pending", n))
			if _, err := m.Sync(m.ctx, TriggerNetwork); err != nil && !errors.Is(err, ErrSyncInProgress) {
				logger.Log.Error("Auto-sync failed", zap.Error(err))
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// Stop ends connectivity watching. An in-flight drain pass is not
// interrupted mid-action; it finishes its current call and exits.
func (m *Manager) Stop() {
	m.cancel()
	if m.sub != nil {
		m.sub.Unsubscribe()
	}
	m.wg.Wait()
}

// MaxAttempts is the configured retry ceiling shown by the UI next to an
// action's attempt count. Actions are never dropped for exceeding it.
func (m *Manager) MaxAttempts() int {
	return m.cfg.MaxAttempts
}

func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Sync runs one drain pass and reports its CycleResult. Concurrent
// triggers are refused with ErrSyncInProgress.
func (m *Manager) Sync(ctx context.Context, trigger string) (*CycleResult, error) {
	m.mu.Lock()
	if m.status == StatusDraining {
		m.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	m.status = StatusDraining
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.status = StatusIdle
		m.mu.Unlock()
	}()

	result := &CycleResult{
		Trigger:   trigger,
		StartedAt: time.Now(),
	}

	record := &store.SyncRecord{
		ID:        uuid.New().String(),
		StartedAt: result.StartedAt,
		Trigger:   trigger,
		Status:    "running",
	}
	if err := m.store.CreateSyncRecord(ctx, record); err != nil {
		// History is reporting, not correctness; the drain still runs.
		logger.Log.Warn("Failed to record sync start", zap.Error(err))
	}

	drainErr := m.drain(ctx, result)
	result.CompletedAt = time.Now()

	record.CompletedAt = sql.NullTime{Time: result.CompletedAt, Valid: true}
	record.SuccessCount = result.SuccessCount
	record.FailedCount = result.FailedCount
	switch {
	case drainErr != nil:
		record.Status = "failed"
		record.ErrorMessage = sql.NullString{String: drainErr.Error(), Valid: true}
	case result.Aborted:
		record.Status = "aborted"
	default:
		record.Status = "completed"
	}
	if err := m.store.UpdateSyncRecord(ctx, record); err != nil {
		logger.Log.Warn("Failed to record sync completion", zap.Error(err))
	}

	logger.Log.Info("Sync cycle finished",
		zap.String("trigger", trigger),
		zap.Int("applied", result.SuccessCount),
		zap.Int("rejected", result.FailedCount),
		zap.Bool("aborted", result.Aborted),
	)

	return result, drainErr
}

// drain replays the queue head-first. The next action's call is never
// issued before the current one has resolved: a later action may depend
// on server state produced by an earlier one.
func (m *Manager) drain(ctx context.Context, result *CycleResult) error {
	for {
		// Going offline aborts the remaining loop, never an in-flight call.
		if !m.monitor.IsOnline() {
			result.Aborted = true
			return nil
		}

		action, err := m.queue.Peek(ctx)
		if err != nil {
			return fmt.Errorf("failed to peek queue: %w", err)
		}
		if action == nil {
			return nil
		}

		err = m.remote.Apply(ctx, action)
		switch {
		case err == nil:
			if err := m.queue.Dequeue(ctx, action.ID); err != nil {
				return fmt.Errorf("failed to dequeue %s: %w", action.ID, err)
			}
			// Drop the pre-mutation cache so readers refetch server truth.
			if err := m.cache.InvalidateResource(ctx, action.Resource); err != nil {
				logger.Log.Warn("Failed to invalidate cache after apply",
					zap.String("resource", action.Resource), zap.Error(err))
			}
			result.SuccessCount++

		case remote.IsPermanent(err):
			// The action can never succeed unmodified; it must not block
			// the rest of the queue. Mark it rejected and roll back the
			// optimistic cache state.
			if rejErr := m.queue.Reject(ctx, action.ID, err.Error()); rejErr != nil {
				return fmt.Errorf("failed to reject %s: %w", action.ID, rejErr)
			}
			if invErr := m.cache.InvalidateResource(ctx, action.Resource); invErr != nil {
				logger.Log.Warn("Failed to roll back cache after rejection",
					zap.String("resource", action.Resource), zap.Error(invErr))
			}
			result.FailedCount++
			result.RejectedResources = append(result.RejectedResources, action.Resource)
			logger.Log.Warn("Action permanently rejected",
				zap.String("id", action.ID),
				zap.String("resource", action.Resource),
				zap.Error(err),
			)

		default:
			// Retryable: leave the action at the head and halt the pass.
			// Skipping ahead would break replay ordering.
			if bumpErr := m.queue.IncrementAttempts(ctx, action.ID); bumpErr != nil {
				return fmt.Errorf("failed to record attempt for %s: %w", action.ID, bumpErr)
			}
			logger.Log.Info("Drain halted on retryable failure",
				zap.String("id", action.ID),
				zap.Int("attempts", action.Attempts+1),
				zap.Error(err),
			)
			return nil
		}
	}
}

// RefreshCache refetches every registered resource key and stores the
// responses. Read-only with respect to the queue.
func (m *Manager) RefreshCache(ctx context.Context) (int, error) {
	refreshed := 0
	var firstErr error

	for _, key := range m.cfg.Resources {
		payload, err := m.remote.Fetch(ctx, key)
		if err != nil {
			logger.Log.Warn("Failed to refresh resource", zap.String("key", key), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := m.cache.Set(ctx, key, payload); err != nil {
			logger.Log.Warn("Failed to store refreshed resource", zap.String("key", key), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		refreshed++
	}

	return refreshed, firstErr
}

// History lists recent sync cycles, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]*store.SyncRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return m.store.ListSyncRecords(ctx, limit)
}
