package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// MutationState tags the lifecycle of a locally-applied mutation.
// Pending actions form the replay queue; rejected ones are retained
// for the rejection report until explicitly discarded.
type MutationState string

const (
	MutationPending MutationState = "pending"
	// MutationConfirmed never reaches storage: confirmation is
	// represented by deleting the row on dequeue.
	MutationConfirmed MutationState = "confirmed"
	MutationRejected  MutationState = "rejected"
)

type CacheEntry struct {
	Key       string    `db:"key"`
	Payload   []byte    `db:"payload"`
	SizeBytes int64     `db:"size_bytes"`
	FetchedAt time.Time `db:"fetched_at"`
}

type PendingAction struct {
	Seq          int64           `db:"seq"`
	ID           string          `db:"id"`
	Kind         ActionKind      `db:"kind"`
	Resource     string          `db:"resource"`
	Body         json.RawMessage `db:"body"`
	State        MutationState   `db:"state"`
	CreatedAt    time.Time       `db:"created_at"`
	Attempts     int             `db:"attempts"`
	RejectReason sql.NullString  `db:"reject_reason"`
	RejectedAt   sql.NullTime    `db:"rejected_at"`
}

type SyncRecord struct {
	ID           string         `db:"id"`
	StartedAt    time.Time      `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	Trigger      string         `db:"trigger_source"`
	SuccessCount int            `db:"success_count"`
	FailedCount  int            `db:"failed_count"`
	Status       string         `db:"status"`
	ErrorMessage sql.NullString `db:"error_message"`
}
