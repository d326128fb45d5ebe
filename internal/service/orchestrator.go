package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"catalog-sync/config"
	"catalog-sync/internal/broker"
	"catalog-sync/internal/client"
	"catalog-sync/internal/mapping"
	"catalog-sync/internal/models"
	"catalog-sync/internal/util"
)

// SourceClient is the slice of the source catalog API the orchestrator uses.
type SourceClient interface {
	ListProducts(ctx context.Context, page, pageSize int, modifiedSince time.Time) ([]models.SourceProduct, bool, error)
	GetProduct(ctx context.Context, id string) (*models.SourceProduct, error)
	GetVariants(ctx context.Context, productID string) ([]models.VariantAxis, []models.SourceVariant, error)
}

// TargetClient is the slice of the destination catalog API the orchestrator
// uses.
type TargetClient interface {
	ListExisting(ctx context.Context, collection string) ([]models.TargetItem, error)
	GetItemBySKU(ctx context.Context, collection, sku string) (*models.TargetItem, error)
	CreateItem(ctx context.Context, collection string, payload client.ItemPayload) (string, error)
	UpdateItem(ctx context.Context, collection, itemID string, payload client.ItemPayload) error
	UpdateVariant(ctx context.Context, collection, itemID, variantID string, fields map[string]interface{}) error
	PublishItems(ctx context.Context, collection string, itemIDs []string) error
}

// RunStore is the durable persistence the orchestrator depends on. Failures
// writing checkpoints are fatal for the run.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	GetRun(ctx context.Context, id string) (*models.SyncRun, error)
	UpdateRunStatus(ctx context.Context, runID, status string) error
	FinishRun(ctx context.Context, runID, status string) error
	UpdateRunCounters(ctx context.Context, runID string, c models.RunCounters) error
	LatestRun(ctx context.Context, target string) (*models.SyncRun, error)
	LastCompletedAt(ctx context.Context, target string) (time.Time, error)
	AppendCheckpoint(ctx context.Context, runID, productID, outcome string) error
	GetCheckpoint(ctx context.Context, runID string) (map[string]models.CheckpointEntry, error)
	RecordError(ctx context.Context, e *models.SyncError) error
	GetErrors(ctx context.Context, runID string) ([]models.SyncError, error)
	ActiveMappingDocument(ctx context.Context) (*mapping.Document, []byte, error)
}

// ItemCache holds target items by SKU for the duration of a run. Optional;
// cache failures degrade to live lookups, never to sync errors.
type ItemCache interface {
	PutItem(ctx context.Context, runID string, item *models.TargetItem) error
	GetItem(ctx context.Context, runID, sku string) (*models.TargetItem, error)
	ClearRun(ctx context.Context, runID string) error
}

// Orchestrator drives sync runs end to end: fetch, transform, matrix build,
// diff, apply, checkpoint, report.
type Orchestrator struct {
	store    RunStore
	source   SourceClient
	target   TargetClient
	cache    ItemCache
	events   broker.Publisher
	engine   *mapping.Engine
	cfg      config.SyncConfig
	registry *runRegistry
	logger   *zap.Logger

	mu      sync.Mutex
	handles map[string]*runHandle
}

// runHandle tracks one in-flight run for cooperative cancellation.
type runHandle struct {
	cancelRequested chan struct{}
	cancelOnce      sync.Once
	done            chan struct{}
}

func (h *runHandle) requestCancel() {
	h.cancelOnce.Do(func() { close(h.cancelRequested) })
}

func (h *runHandle) cancelled() bool {
	select {
	case <-h.cancelRequested:
		return true
	default:
		return false
	}
}

// NewOrchestrator creates a new sync orchestrator
func NewOrchestrator(
	store RunStore,
	source SourceClient,
	target TargetClient,
	cache ItemCache,
	events broker.Publisher,
	cfg config.SyncConfig,
) *Orchestrator {
	if events == nil {
		events = broker.NopPublisher{}
	}
	return &Orchestrator{
		store:    store,
		source:   source,
		target:   target,
		cache:    cache,
		events:   events,
		engine:   mapping.NewEngine(),
		cfg:      cfg,
		registry: newRunRegistry(),
		logger:   util.GetLogger(),
		handles:  make(map[string]*runHandle),
	}
}

// Trigger starts a full sync run for a target collection and returns its run
// ID. A second trigger while one is running for the same target is rejected
// with AlreadyRunningError, never queued.
func (o *Orchestrator) Trigger(ctx context.Context, target string, policy models.SyncPolicy) (string, error) {
	return o.start(ctx, target, policy, nil)
}

// TriggerSingle syncs exactly one source product through the same state
// machine as a full run.
func (o *Orchestrator) TriggerSingle(ctx context.Context, target, productID string) (string, error) {
	fetch := func(ctx context.Context, page, pageSize int, since time.Time) ([]models.SourceProduct, bool, error) {
		if page > 1 {
			return nil, false, nil
		}
		p, err := o.source.GetProduct(ctx, productID)
		if err != nil {
			return nil, false, err
		}
		return []models.SourceProduct{*p}, false, nil
	}
	return o.start(ctx, target, models.SyncPolicy{UpdateOnly: o.cfg.UpdateOnly, MaxItems: 1}, fetch)
}

type pageFetcher func(ctx context.Context, page, pageSize int, since time.Time) ([]models.SourceProduct, bool, error)

func (o *Orchestrator) start(ctx context.Context, target string, policy models.SyncPolicy, fetch pageFetcher) (string, error) {
	runID := uuid.New().String()

	if current, ok := o.registry.claim(target, runID); !ok {
		return "", &models.AlreadyRunningError{Target: target, RunID: current}
	}

	run := &models.SyncRun{
		ID:     runID,
		Target: target,
		Status: models.RunStatusPending,
		Policy: policy,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		o.registry.release(target)
		return "", fmt.Errorf("failed to create sync run: %w", err)
	}

	if fetch == nil {
		fetch = o.source.ListProducts
	}

	handle := &runHandle{
		cancelRequested: make(chan struct{}),
		done:            make(chan struct{}),
	}
	o.mu.Lock()
	o.handles[runID] = handle
	o.mu.Unlock()

	util.SyncRunsStartedTotal.Inc()

	go func() {
		defer close(handle.done)
		defer o.registry.release(target)
		defer func() {
			o.mu.Lock()
			delete(o.handles, runID)
			o.mu.Unlock()
		}()

		// The run outlives the trigger request; only cancellation or a
		// fatal error stops it.
		o.execute(context.Background(), run, handle, fetch)
	}()

	return runID, nil
}

// Status returns the run with live counters.
func (o *Orchestrator) Status(ctx context.Context, runID string) (*models.SyncRun, error) {
	return o.store.GetRun(ctx, runID)
}

// Errors returns all recorded errors of a run.
func (o *Orchestrator) Errors(ctx context.Context, runID string) ([]models.SyncError, error) {
	return o.store.GetErrors(ctx, runID)
}

// Cancel requests cooperative cancellation. Workers finish the product they
// hold and stop picking up new work; no partial-product writes happen.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) error {
	o.mu.Lock()
	handle, ok := o.handles[runID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s is not active", runID)
	}
	handle.requestCancel()
	o.logger.Info("Cancellation requested", zap.String("run_id", runID))
	return nil
}

// wait blocks until the run's goroutine exits. Test helper.
func (o *Orchestrator) wait(runID string) {
	o.mu.Lock()
	handle, ok := o.handles[runID]
	o.mu.Unlock()
	if ok {
		<-handle.done
	}
}
