package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"erp-offline-sync/internal/logger"
	"erp-offline-sync/internal/store"
)

// QueueError is a sentinel error kind for queue failures.
type QueueError string

func (e QueueError) Error() string { return string(e) }

const (
	// ErrUnavailable indicates the persistent storage layer failed.
	// An enqueue that returns this has NOT recorded the mutation; the
	// caller must surface it rather than drop the user's change.
	ErrUnavailable QueueError = "queue storage unavailable"

	// ErrNotRejected is returned by Discard for an action that is not
	// in the rejected state. Pending actions are never discarded.
	ErrNotRejected QueueError = "action is not rejected"
)

// Queue is the durable FIFO of mutations not yet confirmed applied to the
// remote system. Enqueue order is replay order, preserved across restarts.
type Queue struct {
	store store.Store
	mu    sync.Mutex
}

func New(st store.Store) *Queue {
	return &Queue{store: st}
}

// Enqueue appends the mutation to the tail and persists it before
// returning, so a crash immediately after Enqueue cannot lose it. The
// mutex makes queue order reflect true call order when two screens write
// at once.
func (q *Queue) Enqueue(ctx context.Context, kind store.ActionKind, resource string, body json.RawMessage) (*store.PendingAction, error) {
	switch kind {
	case store.ActionCreate, store.ActionUpdate, store.ActionDelete:
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
	if resource == "" {
		return nil, fmt.Errorf("resource is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	action := &store.PendingAction{
		ID:        uuid.New().String(),
		Kind:      kind,
		Resource:  resource,
		Body:      body,
		State:     store.MutationPending,
		CreatedAt: time.Now(),
	}

	if err := q.store.AppendAction(ctx, action); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.Log.Debug("Enqueued action",
		zap.String("id", action.ID),
		zap.String("kind", string(kind)),
		zap.String("resource", resource),
	)

	return action, nil
}

// Peek returns the head of the queue without removing it, or nil when the
// queue is empty.
func (q *Queue) Peek(ctx context.Context) (*store.PendingAction, error) {
	action, err := q.store.HeadAction(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return action, nil
}

// Dequeue removes a confirmed action by id. Removal by id rather than
// position guards against the queue changing underneath the caller.
func (q *Queue) Dequeue(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.DeleteAction(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IncrementAttempts records a failed replay without removing the action.
func (q *Queue) IncrementAttempts(ctx context.Context, id string) error {
	if err := q.store.BumpAttempts(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Reject marks an action permanently rejected. The row is kept for the
// rejection report; it no longer blocks the queue.
func (q *Queue) Reject(ctx context.Context, id string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.MarkRejected(ctx, id, reason); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Length reports current queue depth for "N pending changes" indicators.
func (q *Queue) Length(ctx context.Context) (int, error) {
	n, err := q.store.CountPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Pending lists queued actions in replay order.
func (q *Queue) Pending(ctx context.Context) ([]*store.PendingAction, error) {
	actions, err := q.store.ListByState(ctx, store.MutationPending)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return actions, nil
}

// Rejected lists permanently rejected actions awaiting user review.
func (q *Queue) Rejected(ctx context.Context) ([]*store.PendingAction, error) {
	actions, err := q.store.ListByState(ctx, store.MutationRejected)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return actions, nil
}

// Discard drops a rejected action after user review. This is the only
// user-initiated removal path and it is audited in the log. Pending
// actions cannot be discarded.
func (q *Queue) Discard(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rejected, err := q.store.ListByState(ctx, store.MutationRejected)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var target *store.PendingAction
	for _, a := range rejected {
		if a.ID == id {
			target = a
			break
		}
	}
	if target == nil {
		return ErrNotRejected
	}

	if err := q.store.DeleteAction(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.Log.Warn("Discarded rejected action",
		zap.String("id", id),
		zap.String("kind", string(target.Kind)),
		zap.String("resource", target.Resource),
		zap.String("reason", target.RejectReason.String),
	)

	return nil
}
