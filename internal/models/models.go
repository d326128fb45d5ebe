package models

import "time"

// VariantAxis is one dimension of product variation (e.g. color) with an
// ordered list of allowed values. Axis and value order come from the source
// system and are preserved through matrix generation.
type VariantAxis struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// SourceVariant is a concrete variant row from the source catalog.
// Attributes maps axis name to the value this variant holds on that axis.
type SourceVariant struct {
	ID         string            `json:"id"`
	SKU        string            `json:"sku"`
	Attributes map[string]string `json:"attributes"`
	PriceCents int64             `json:"price_cents"`
	Inventory  int               `json:"inventory"`
}

// Asset is a media file attached to a source product.
type Asset struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// SourceProduct is an immutable snapshot of one product as fetched from the
// source catalog.
type SourceProduct struct {
	ID          string                 `json:"id"`
	SKU         string                 `json:"sku"`
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	PriceCents  int64                  `json:"price_cents"`
	Axes        []VariantAxis          `json:"axes"`
	Variants    []SourceVariant        `json:"variants"`
	Attributes  map[string]interface{} `json:"attributes"`
	Assets      []Asset                `json:"assets"`
	Modified    time.Time              `json:"modified"`
}

// TargetVariant is a variant record on the destination side, keyed by SKU.
type TargetVariant struct {
	ID     string                 `json:"id"`
	SKU    string                 `json:"sku"`
	Fields map[string]interface{} `json:"fields"`
}

// TargetItem is an item on the destination side. SKU is the join key across
// systems; destination-internal IDs never cross the boundary.
type TargetItem struct {
	ID       string                 `json:"id"`
	SKU      string                 `json:"sku"`
	Slug     string                 `json:"slug"`
	Fields   map[string]interface{} `json:"fields"`
	Variants []TargetVariant        `json:"variants"`
}

// VariantBySKU returns the variant with the given SKU, or nil.
func (t *TargetItem) VariantBySKU(sku string) *TargetVariant {
	for i := range t.Variants {
		if t.Variants[i].SKU == sku {
			return &t.Variants[i]
		}
	}
	return nil
}

// Run statuses
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// SyncPolicy holds the operator-chosen flags for one run.
type SyncPolicy struct {
	TestMode   bool `json:"test_mode" db:"test_mode"`
	UpdateOnly bool `json:"update_only" db:"update_only"`
	MaxItems   int  `json:"max_items" db:"max_items"`
}

// RunCounters aggregates per-item outcomes for a run. They always equal the
// count of checkpoint entries partitioned by outcome.
type RunCounters struct {
	ItemsSeen          int `json:"items_seen" db:"items_seen"`
	Created            int `json:"created" db:"created"`
	Updated            int `json:"updated" db:"updated"`
	Skipped            int `json:"skipped" db:"skipped"`
	SkippedNotExisting int `json:"skipped_not_existing" db:"skipped_not_existing"`
	Missing            int `json:"missing_combinations" db:"missing_combinations"`
	Errored            int `json:"errored" db:"errored"`
}

// SyncRun is one end-to-end reconciliation attempt against a target
// collection. Mutated only by the orchestrator, finalized exactly once.
type SyncRun struct {
	ID         string      `json:"id" db:"id"`
	Target     string      `json:"target" db:"target"`
	Status     string      `json:"status" db:"status"`
	Policy     SyncPolicy  `json:"policy"`
	Counters   RunCounters `json:"counters"`
	StartedAt  time.Time   `json:"started_at" db:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty" db:"finished_at"`
}

// Checkpoint outcomes
const (
	OutcomeCreated            = "created"
	OutcomeUpdated            = "updated"
	OutcomeSkipped            = "skipped"
	OutcomeSkippedNotExisting = "skipped_not_existing"
	OutcomeErrored            = "errored"
)

// TerminalOutcome reports whether an outcome means the product needs no
// further work on resume. Errored products are retried by the next run.
func TerminalOutcome(outcome string) bool {
	switch outcome {
	case OutcomeCreated, OutcomeUpdated, OutcomeSkipped, OutcomeSkippedNotExisting:
		return true
	}
	return false
}

// CheckpointEntry records the latest outcome for one source product within a
// run. Entries are upserted per product key and never deleted.
type CheckpointEntry struct {
	RunID     string    `json:"run_id" db:"run_id"`
	ProductID string    `json:"product_id" db:"product_id"`
	Outcome   string    `json:"outcome" db:"outcome"`
	Attempts  int       `json:"attempts" db:"attempts"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SyncError is one recorded per-item (or run-level, ProductID empty) failure.
type SyncError struct {
	ID        int64     `json:"id" db:"id"`
	RunID     string    `json:"run_id" db:"run_id"`
	ProductID string    `json:"product_id,omitempty" db:"product_id"`
	Kind      string    `json:"kind" db:"kind"`
	Message   string    `json:"message" db:"message"`
	Retries   int       `json:"retries" db:"retries"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
