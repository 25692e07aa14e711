package store

import (
	"context"
)

type Store interface {
	// Cache entries
	GetEntry(ctx context.Context, key string) (*CacheEntry, error)
	PutEntry(ctx context.Context, entry *CacheEntry) error
	DeleteEntry(ctx context.Context, key string) error
	DeleteEntriesByPrefix(ctx context.Context, prefix string) error
	ClearEntries(ctx context.Context) error
	ListEntries(ctx context.Context) ([]*CacheEntry, error)

	// Pending actions
	AppendAction(ctx context.Context, action *PendingAction) error
	HeadAction(ctx context.Context) (*PendingAction, error)
	DeleteAction(ctx context.Context, id string) error
	BumpAttempts(ctx context.Context, id string) error
	MarkRejected(ctx context.Context, id string, reason string) error
	CountPending(ctx context.Context) (int, error)
	ListByState(ctx context.Context, state MutationState) ([]*PendingAction, error)

	// History
	CreateSyncRecord(ctx context.Context, record *SyncRecord) error
	UpdateSyncRecord(ctx context.Context, record *SyncRecord) error
	ListSyncRecords(ctx context.Context, limit int) ([]*SyncRecord, error)

	// General
	Close() error
}
