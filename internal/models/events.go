package models

import "time"

// Event types
const (
	EventTypeRunStarted   = "SYNC_RUN_STARTED"
	EventTypeRunCompleted = "SYNC_RUN_COMPLETED"
	EventTypeRunFailed    = "SYNC_RUN_FAILED"
	EventTypeRunCancelled = "SYNC_RUN_CANCELLED"
	EventTypeItemSynced   = "ITEM_SYNCED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RunStartedEvent published when a sync run enters the running state
type RunStartedEvent struct {
	BaseEvent
	RunID  string     `json:"run_id"`
	Target string     `json:"target"`
	Policy SyncPolicy `json:"policy"`
	Resume bool       `json:"resume"`
}

// RunFinishedEvent published when a run reaches a terminal state. EventType
// distinguishes completed, failed and cancelled.
type RunFinishedEvent struct {
	BaseEvent
	RunID    string      `json:"run_id"`
	Target   string      `json:"target"`
	Status   string      `json:"status"`
	Counters RunCounters `json:"counters"`
	Duration float64     `json:"duration_seconds"`
}

// ItemSyncedEvent published per processed source product
type ItemSyncedEvent struct {
	BaseEvent
	RunID     string `json:"run_id"`
	Target    string `json:"target"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Outcome   string `json:"outcome"`
	Variants  int    `json:"variants"`
}
