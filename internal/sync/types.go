package sync

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusDraining Status = "draining"
)

// Drain triggers, recorded in sync history.
const (
	TriggerManual    = "manual"
	TriggerNetwork   = "network"
	TriggerScheduled = "scheduled"
)

// CycleResult summarizes one drain pass.
type CycleResult struct {
	Trigger           string    `json:"trigger"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at"`
	SuccessCount      int       `json:"success_count"`
	FailedCount       int       `json:"failed_count"`
	RejectedResources []string  `json:"rejected_resources,omitempty"`
	// Aborted is set when connectivity was lost mid-drain and the
	// remaining queue was left for the next trigger.
	Aborted bool `json:"aborted"`
}

func (r CycleResult) String() string {
	return fmt.Sprintf("[%s] applied=%d rejected=%d aborted=%v", r.Trigger, r.SuccessCount, r.FailedCount, r.Aborted)
}
