package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"catalog-sync/internal/client"
	"catalog-sync/internal/mapping"
	"catalog-sync/internal/matrix"
	"catalog-sync/internal/models"
	"catalog-sync/internal/util"
)

// runState is everything shared by the workers of one run. Counters and the
// fatal slot are mutex-guarded; each product is owned by exactly one worker
// per attempt.
type runState struct {
	run        *models.SyncRun
	handle     *runHandle
	doc        *mapping.Document
	updateOnly bool
	resumeSkip map[string]bool

	index existingIndex

	mu         sync.Mutex
	counters   models.RunCounters
	updatedIDs []string
	fatal      error
}

func (rs *runState) setFatal(err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.fatal == nil {
		rs.fatal = err
	}
}

func (rs *runState) fatalErr() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.fatal
}

func (rs *runState) addUpdatedID(id string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.updatedIDs = append(rs.updatedIDs, id)
}

// existingIndex knows which SKUs exist in the destination collection. The
// SKU set stays in memory; full items live in the redis cache so large
// catalogs do not pin the whole destination state in the process.
type existingIndex struct {
	mu    sync.RWMutex
	skus  map[string]bool
	items map[string]*models.TargetItem
}

func (ix *existingIndex) has(sku string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.skus[sku]
}

func (ix *existingIndex) local(sku string) *models.TargetItem {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.items[sku]
}

func (o *Orchestrator) execute(ctx context.Context, run *models.SyncRun, handle *runHandle, fetch pageFetcher) {
	ctx, span := util.StartSpan(ctx, "Orchestrator.Run")
	defer span.End()

	start := time.Now()
	logger := o.logger.With(zap.String("run_id", run.ID), zap.String("target", run.Target))

	rs := &runState{
		run:        run,
		handle:     handle,
		updateOnly: run.Policy.UpdateOnly || !o.cfg.EnableCreation,
		resumeSkip: map[string]bool{},
	}

	resume, err := o.loadResumeSet(ctx, rs)
	if err != nil {
		logger.Error("Failed to load checkpoint for resume", zap.Error(err))
		o.finish(ctx, rs, models.RunStatusFailed, start)
		return
	}

	doc, _, err := o.store.ActiveMappingDocument(ctx)
	if err != nil {
		logger.Warn("No mapping document imported, using defaults", zap.Error(err))
		doc = DefaultDocument()
	}
	rs.doc = doc

	if err := o.store.UpdateRunStatus(ctx, run.ID, models.RunStatusRunning); err != nil {
		logger.Error("Failed to mark run running", zap.Error(err))
		o.finish(ctx, rs, models.RunStatusFailed, start)
		return
	}
	run.Status = models.RunStatusRunning

	if err := o.events.PublishRunStarted(ctx, run, resume); err != nil {
		logger.Error("Failed to publish RunStarted event", zap.Error(err))
	}
	logger.Info("Sync run started",
		zap.Bool("resume", resume),
		zap.Int("resume_skip", len(rs.resumeSkip)),
		zap.Bool("update_only", rs.updateOnly),
		zap.Bool("test_mode", run.Policy.TestMode))

	// Destination state is read fresh every run; without it the diff would
	// misclassify everything as a create, so a priming failure is fatal.
	if err := o.primeExisting(ctx, rs); err != nil {
		o.recordRunError(ctx, rs, "", err)
		o.finish(ctx, rs, models.RunStatusFailed, start)
		return
	}

	var since time.Time
	if o.cfg.DeltaSync {
		since, err = o.store.LastCompletedAt(ctx, run.Target)
		if err != nil {
			logger.Warn("Failed to resolve last completed sync, running full", zap.Error(err))
			since = time.Time{}
		}
	}

	status := o.pageLoop(ctx, rs, fetch, since)
	o.finish(ctx, rs, status, start)
}

// pageLoop pulls source pages and fans products out to workers until pages
// are exhausted, the item budget is spent, cancellation is requested, or a
// fatal error surfaces.
func (o *Orchestrator) pageLoop(ctx context.Context, rs *runState, fetch pageFetcher, since time.Time) string {
	logger := o.logger.With(zap.String("run_id", rs.run.ID))
	dispatched := 0

	for page := 1; ; page++ {
		if rs.handle.cancelled() {
			return models.RunStatusCancelled
		}
		if err := rs.fatalErr(); err != nil {
			return models.RunStatusFailed
		}

		products, hasMore, err := fetch(ctx, page, o.cfg.PageSize, since)
		if err != nil {
			// A run only completes when every page was exhausted. A listing
			// failure leaves the remaining catalog unread, so the run fails
			// and the checkpoint carries the finished products into the next
			// attempt.
			o.recordRunError(ctx, rs, "", err)
			return models.RunStatusFailed
		}

		pending := make([]models.SourceProduct, 0, len(products))
		for _, p := range products {
			if rs.resumeSkip[p.ID] {
				continue
			}
			if rs.run.Policy.MaxItems > 0 && dispatched >= rs.run.Policy.MaxItems {
				break
			}
			pending = append(pending, p)
			dispatched++
		}

		o.processPage(ctx, rs, pending)

		if err := o.store.UpdateRunCounters(ctx, rs.run.ID, rs.snapshotCounters()); err != nil {
			logger.Error("Failed to persist run counters", zap.Error(err))
		}

		if err := rs.fatalErr(); err != nil {
			return models.RunStatusFailed
		}
		if rs.handle.cancelled() {
			return models.RunStatusCancelled
		}
		if !hasMore || (rs.run.Policy.MaxItems > 0 && dispatched >= rs.run.Policy.MaxItems) {
			break
		}
	}

	return models.RunStatusCompleted
}

// processPage runs one page's products through a bounded worker pool. Each
// worker checks cancellation and the fatal slot between products, never
// mid-product.
func (o *Orchestrator) processPage(ctx context.Context, rs *runState, products []models.SourceProduct) {
	if len(products) == 0 {
		return
	}

	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(products) {
		workers = len(products)
	}

	jobs := make(chan models.SourceProduct)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for product := range jobs {
				if rs.handle.cancelled() || rs.fatalErr() != nil {
					continue
				}
				o.processOne(ctx, rs, product)
			}
		}()
	}

	for _, p := range products {
		jobs <- p
	}
	close(jobs)
	wg.Wait()
}

// processOne carries a single product through transform, matrix build, diff
// and apply, then checkpoints the outcome. All non-fatal failures stay
// scoped to this product.
func (o *Orchestrator) processOne(ctx context.Context, rs *runState, product models.SourceProduct) {
	ctx, span := util.StartSpan(ctx, "Orchestrator.SyncProduct")
	defer span.End()

	outcome, variants, missing, err := o.syncProduct(ctx, rs, &product)
	if err != nil {
		if models.Fatal(err) {
			rs.setFatal(err)
			o.logger.Error("Fatal error, aborting run",
				zap.String("run_id", rs.run.ID),
				zap.String("product_id", product.ID),
				zap.Error(err))
			return
		}
		o.recordRunError(ctx, rs, product.ID, err)
		o.checkpoint(ctx, rs, product.ID, models.OutcomeErrored, 0)
		return
	}

	o.checkpoint(ctx, rs, product.ID, outcome, missing)
	util.VariantsProcessedTotal.Add(float64(variants))

	if err := o.events.PublishItemSynced(ctx, rs.run, product.ID, product.SKU, outcome, variants); err != nil {
		o.logger.Error("Failed to publish ItemSynced event", zap.Error(err))
	}
}

// syncProduct returns the outcome, how many variant cells were eligible and
// how many combinations were missing.
func (o *Orchestrator) syncProduct(ctx context.Context, rs *runState, product *models.SourceProduct) (string, int, int, error) {
	logger := o.logger.With(zap.String("run_id", rs.run.ID), zap.String("sku", product.SKU))

	// The listing endpoint returns products without their variant space;
	// fetch it before expanding.
	if len(product.Axes) == 0 && len(product.Variants) == 0 {
		axes, variants, err := o.source.GetVariants(ctx, product.ID)
		if err != nil {
			return "", 0, 0, err
		}
		product.Axes = axes
		product.Variants = variants
	}

	if problems := matrix.ValidateVariants(product); len(problems) > 0 {
		return "", 0, 0, &models.MappingError{Detail: "inconsistent variant data: " + strings.Join(problems, "; ")}
	}

	m, err := matrix.Build(product, o.cfg.MaxMatrixCells)
	if err != nil {
		return "", 0, 0, err
	}

	itemFields, err := o.engine.Transform(productRecord(product), rs.doc)
	if err != nil {
		return "", 0, 0, err
	}

	candidates := make([]matrix.Candidate, 0, len(m.Entries))
	for _, entry := range m.Entries {
		c := matrix.Candidate{Cell: entry.Cell, SKU: entry.SKU, Missing: entry.Missing}
		if !entry.Missing {
			c.Fields = variantFields(product, m, entry)
		}
		candidates = append(candidates, c)
	}

	existing, err := o.lookupExisting(ctx, rs, product.SKU)
	if err != nil {
		return "", 0, 0, err
	}

	plan := matrix.Diff(candidates, existing, rs.updateOnly)
	missing := len(plan.Missing)
	eligible := plan.Total() - missing
	if missing > 0 {
		util.MissingCombinationsTotal.Add(float64(missing))
		logger.Warn("Missing variant combinations in source data",
			zap.Int("missing", missing),
			zap.Int("cells", plan.Total()))
	}

	outcome, err := o.apply(ctx, rs, product, existing, itemFields, plan)
	if err != nil {
		return "", 0, 0, err
	}

	logger.Debug("Product reconciled",
		zap.String("outcome", outcome),
		zap.Int("to_create", len(plan.ToCreate)),
		zap.Int("to_update", len(plan.ToUpdate)),
		zap.Int("to_skip", len(plan.ToSkip)),
		zap.Int("skip_not_existing", len(plan.SkipNotExisting)))
	return outcome, eligible, missing, nil
}

// apply pushes the plan to the destination. Test mode computes everything
// and writes nothing; the recorded outcome still names the action the plan
// called for, so a dry run previews real counters.
func (o *Orchestrator) apply(ctx context.Context, rs *runState, product *models.SourceProduct, existing *models.TargetItem, itemFields map[string]interface{}, plan matrix.Plan) (string, error) {
	if existing == nil {
		if rs.updateOnly || len(plan.ToCreate) == 0 {
			return models.OutcomeSkippedNotExisting, nil
		}
		if rs.run.Policy.TestMode {
			return models.OutcomeCreated, nil
		}
		payload := client.ItemPayload{Fields: itemFields, Variants: variantPayloads(plan.ToCreate)}
		id, err := o.target.CreateItem(ctx, rs.run.Target, payload)
		if err != nil {
			return "", err
		}
		rs.addUpdatedID(id)
		return models.OutcomeCreated, nil
	}

	itemChanged := matrix.FieldsDiffer(itemFields, existing.Fields)
	if !itemChanged && plan.Empty() {
		return models.OutcomeSkipped, nil
	}
	if rs.run.Policy.TestMode {
		return models.OutcomeUpdated, nil
	}

	payload := client.ItemPayload{Fields: itemFields, Variants: variantPayloads(plan.ToCreate)}
	if err := o.target.UpdateItem(ctx, rs.run.Target, existing.ID, payload); err != nil {
		return "", err
	}
	for _, upd := range plan.ToUpdate {
		if err := o.target.UpdateVariant(ctx, rs.run.Target, existing.ID, upd.VariantID, upd.Candidate.Fields); err != nil {
			return "", err
		}
	}
	rs.addUpdatedID(existing.ID)
	return models.OutcomeUpdated, nil
}

// loadResumeSet finds the target's latest run; a failed or cancelled
// predecessor donates its checkpoint so already-finished products are
// skipped. Errored products are always retried.
func (o *Orchestrator) loadResumeSet(ctx context.Context, rs *runState) (bool, error) {
	prev, err := o.store.LatestRun(ctx, rs.run.Target)
	if err != nil {
		return false, err
	}
	if prev == nil || prev.ID == rs.run.ID {
		return false, nil
	}
	if prev.Status != models.RunStatusFailed && prev.Status != models.RunStatusCancelled {
		return false, nil
	}

	checkpoint, err := o.store.GetCheckpoint(ctx, prev.ID)
	if err != nil {
		return false, err
	}
	for productID, entry := range checkpoint {
		if models.TerminalOutcome(entry.Outcome) {
			rs.resumeSkip[productID] = true
		}
	}
	return true, nil
}

// primeExisting lists the destination collection once and indexes it by
// SKU. Items go to the redis cache when one is wired, otherwise they stay
// in memory.
func (o *Orchestrator) primeExisting(ctx context.Context, rs *runState) error {
	items, err := o.target.ListExisting(ctx, rs.run.Target)
	if err != nil {
		return err
	}

	rs.index.skus = make(map[string]bool, len(items))
	rs.index.items = make(map[string]*models.TargetItem)

	for i := range items {
		item := &items[i]
		if item.SKU == "" {
			continue
		}
		rs.index.skus[item.SKU] = true
		if o.cache != nil {
			if err := o.cache.PutItem(ctx, rs.run.ID, item); err != nil {
				o.logger.Warn("Failed to cache target item, keeping in memory",
					zap.String("sku", item.SKU), zap.Error(err))
				rs.index.items[item.SKU] = item
			}
		} else {
			rs.index.items[item.SKU] = item
		}
	}

	o.logger.Info("Primed destination state",
		zap.String("run_id", rs.run.ID),
		zap.Int("existing_items", len(rs.index.skus)))
	return nil
}

// lookupExisting resolves the destination item for a SKU: index miss means
// the item does not exist; hits read through the cache with a live API
// fallback.
func (o *Orchestrator) lookupExisting(ctx context.Context, rs *runState, sku string) (*models.TargetItem, error) {
	if !rs.index.has(sku) {
		return nil, nil
	}
	if item := rs.index.local(sku); item != nil {
		return item, nil
	}
	if o.cache != nil {
		item, err := o.cache.GetItem(ctx, rs.run.ID, sku)
		if err != nil {
			o.logger.Warn("Cache read failed, falling back to live lookup",
				zap.String("sku", sku), zap.Error(err))
		} else if item != nil {
			return item, nil
		}
	}
	return o.target.GetItemBySKU(ctx, rs.run.Target, sku)
}

// checkpoint appends the product outcome and folds it into the counters.
// The counters always equal the checkpoint partitioned by outcome, so both
// move together here and nowhere else.
func (o *Orchestrator) checkpoint(ctx context.Context, rs *runState, productID, outcome string, missing int) {
	if err := o.store.AppendCheckpoint(ctx, rs.run.ID, productID, outcome); err != nil {
		rs.setFatal(err)
		o.logger.Error("Checkpoint write failed",
			zap.String("run_id", rs.run.ID),
			zap.String("product_id", productID),
			zap.Error(err))
		return
	}

	rs.mu.Lock()
	rs.counters.ItemsSeen++
	rs.counters.Missing += missing
	switch outcome {
	case models.OutcomeCreated:
		rs.counters.Created++
	case models.OutcomeUpdated:
		rs.counters.Updated++
	case models.OutcomeSkipped:
		rs.counters.Skipped++
	case models.OutcomeSkippedNotExisting:
		rs.counters.SkippedNotExisting++
	case models.OutcomeErrored:
		rs.counters.Errored++
	}
	rs.mu.Unlock()

	util.ProductsProcessedTotal.WithLabelValues(outcome).Inc()
}

func (rs *runState) snapshotCounters() models.RunCounters {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.counters
}

// recordRunError writes one failure to the audit log. productID is empty
// for run-level failures.
func (o *Orchestrator) recordRunError(ctx context.Context, rs *runState, productID string, cause error) {
	kind := models.ErrorKind(cause)
	util.SyncErrorsTotal.WithLabelValues(kind).Inc()
	o.logger.Error("Sync error",
		zap.String("run_id", rs.run.ID),
		zap.String("product_id", productID),
		zap.String("kind", kind),
		zap.Error(cause))

	e := &models.SyncError{
		RunID:     rs.run.ID,
		ProductID: productID,
		Kind:      kind,
		Message:   cause.Error(),
		Retries:   models.ErrorRetries(cause),
	}
	if err := o.store.RecordError(ctx, e); err != nil {
		o.logger.Error("Failed to record sync error", zap.Error(err))
	}
}

// finish drives the run to its terminal state, publishes the batch of
// updated items when configured, and emits the terminal event.
func (o *Orchestrator) finish(ctx context.Context, rs *runState, status string, start time.Time) {
	run := rs.run
	logger := o.logger.With(zap.String("run_id", run.ID), zap.String("target", run.Target))

	if status == models.RunStatusCompleted && o.cfg.EnableAutoPublish && !run.Policy.TestMode {
		rs.mu.Lock()
		ids := append([]string(nil), rs.updatedIDs...)
		rs.mu.Unlock()
		if len(ids) > 0 {
			if err := o.target.PublishItems(ctx, run.Target, ids); err != nil {
				logger.Error("Failed to publish updated items", zap.Error(err))
				o.recordRunError(ctx, rs, "", err)
			} else {
				logger.Info("Published updated items", zap.Int("count", len(ids)))
			}
		}
	}

	if err := o.store.UpdateRunCounters(ctx, run.ID, rs.snapshotCounters()); err != nil {
		logger.Error("Failed to persist final counters", zap.Error(err))
	}
	if err := o.store.FinishRun(ctx, run.ID, status); err != nil {
		logger.Error("Failed to finalize run", zap.Error(err))
	}

	now := time.Now()
	run.Status = status
	run.FinishedAt = &now
	run.Counters = rs.snapshotCounters()

	if o.cache != nil {
		if err := o.cache.ClearRun(ctx, run.ID); err != nil {
			logger.Warn("Failed to clear item cache", zap.Error(err))
		}
	}

	util.SyncRunsFinishedTotal.WithLabelValues(status).Inc()
	util.SyncRunDuration.Observe(time.Since(start).Seconds())

	if err := o.events.PublishRunFinished(ctx, run); err != nil {
		logger.Error("Failed to publish run finished event", zap.Error(err))
	}

	logger.Info("Sync run finished",
		zap.String("status", status),
		zap.Int("items_seen", run.Counters.ItemsSeen),
		zap.Int("created", run.Counters.Created),
		zap.Int("updated", run.Counters.Updated),
		zap.Int("skipped", run.Counters.Skipped),
		zap.Int("skipped_not_existing", run.Counters.SkippedNotExisting),
		zap.Int("missing_combinations", run.Counters.Missing),
		zap.Int("errored", run.Counters.Errored),
		zap.Duration("duration", time.Since(start)))
}
