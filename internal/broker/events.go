package broker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"catalog-sync/internal/models"
)

// Publisher is what the orchestrator needs to announce run lifecycle
// milestones; a nil-safe no-op implementation backs deployments without
// Kafka.
type Publisher interface {
	PublishRunStarted(ctx context.Context, run *models.SyncRun, resume bool) error
	PublishRunFinished(ctx context.Context, run *models.SyncRun) error
	PublishItemSynced(ctx context.Context, run *models.SyncRun, productID, sku, outcome string, variants int) error
}

// EventPublisher emits sync lifecycle events, keyed by run so consumers see
// one run's events in order.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func base(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// PublishRunStarted publishes a RunStarted event
func (ep *EventPublisher) PublishRunStarted(ctx context.Context, run *models.SyncRun, resume bool) error {
	event := &models.RunStartedEvent{
		BaseEvent: base(models.EventTypeRunStarted),
		RunID:     run.ID,
		Target:    run.Target,
		Policy:    run.Policy,
		Resume:    resume,
	}
	return ep.producer.PublishEvent(ctx, "run-"+run.ID, event)
}

// PublishRunFinished publishes the terminal event for a run; the event type
// follows the run's final status.
func (ep *EventPublisher) PublishRunFinished(ctx context.Context, run *models.SyncRun) error {
	eventType := models.EventTypeRunCompleted
	switch run.Status {
	case models.RunStatusFailed:
		eventType = models.EventTypeRunFailed
	case models.RunStatusCancelled:
		eventType = models.EventTypeRunCancelled
	}

	var duration float64
	if run.FinishedAt != nil {
		duration = run.FinishedAt.Sub(run.StartedAt).Seconds()
	}

	event := &models.RunFinishedEvent{
		BaseEvent: base(eventType),
		RunID:     run.ID,
		Target:    run.Target,
		Status:    run.Status,
		Counters:  run.Counters,
		Duration:  duration,
	}
	return ep.producer.PublishEvent(ctx, "run-"+run.ID, event)
}

// PublishItemSynced publishes one per-product outcome
func (ep *EventPublisher) PublishItemSynced(ctx context.Context, run *models.SyncRun, productID, sku, outcome string, variants int) error {
	event := &models.ItemSyncedEvent{
		BaseEvent: base(models.EventTypeItemSynced),
		RunID:     run.ID,
		Target:    run.Target,
		ProductID: productID,
		SKU:       sku,
		Outcome:   outcome,
		Variants:  variants,
	}
	return ep.producer.PublishEvent(ctx, "run-"+run.ID, event)
}

// NopPublisher drops every event; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishRunStarted(context.Context, *models.SyncRun, bool) error { return nil }
func (NopPublisher) PublishRunFinished(context.Context, *models.SyncRun) error      { return nil }
func (NopPublisher) PublishItemSynced(context.Context, *models.SyncRun, string, string, string, int) error {
	return nil
}
