// Package ingest receives webhook deliveries and bulk-sync results, routes
// them through the platform adapters into the dedup gate, and schedules
// enrichment for every newly created interaction.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/inbox"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms"
	"github.com/Mohd-umair/repmeup-backend/pkg/queue"
)

// Gate is the dedup/persistence surface the dispatcher writes through
type Gate interface {
	Upsert(ctx context.Context, draft *models.Interaction) (bool, *models.Interaction, error)
}

// Scheduler enqueues enrichment tasks at-least-once with bounded retries
type Scheduler interface {
	PublishWithRetry(ctx context.Context, queueName string, task interface{}) error
	Publish(ctx context.Context, queueName string, task interface{}) error
}

// Result summarizes one dispatch call
type Result struct {
	Handled    []*models.Interaction
	Created    int
	ItemErrors int
}

type Dispatcher struct {
	registry  *platforms.Registry
	gate      Gate
	scheduler Scheduler
	logger    *logrus.Logger
}

func NewDispatcher(registry *platforms.Registry, gate Gate, scheduler Scheduler, logger *logrus.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("gate is required")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Dispatcher{
		registry:  registry,
		gate:      gate,
		scheduler: scheduler,
		logger:    logger,
	}, nil
}

// EnqueueWebhook hands a verified webhook delivery to the ingest queue. The
// edge receiver acknowledges the platform as soon as this returns; any later
// processing failure is retried internally and never causes a redelivery.
func (d *Dispatcher) EnqueueWebhook(ctx context.Context, platform models.Platform, orgID string, payload json.RawMessage) error {
	return d.scheduler.Publish(ctx, queue.QueueIngest, queue.IngestTask{
		Platform:       platform,
		OrganizationID: orgID,
		Payload:        payload,
	})
}

// HandleIngestTask processes one queued webhook delivery
func (d *Dispatcher) HandleIngestTask(ctx context.Context, body []byte) error {
	var task queue.IngestTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("failed to decode ingest task: %w", err)
	}

	// Webhooks carry no stored connection; a synthetic one supplies identity.
	conn := &models.PlatformConnection{
		OrganizationID: task.OrganizationID,
		Platform:       task.Platform,
	}

	_, err := d.Dispatch(ctx, conn, task.Payload)
	return err
}

// Dispatch normalizes a raw payload, upserts every draft through the dedup
// gate, and schedules exactly one enrichment task per created interaction.
// Item-level adapter errors are logged and never abort sibling processing;
// persistence errors fail the whole call so the task can retry.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *models.PlatformConnection, payload json.RawMessage) (*Result, error) {
	log := d.logger.WithFields(logrus.Fields{
		"method":       "Dispatch",
		"platform":     conn.Platform,
		"organization": conn.OrganizationID,
	})

	adapter, err := d.registry.Get(conn.Platform)
	if err != nil {
		return nil, err
	}

	drafts, itemErrs := adapter.Normalize(ctx, payload, conn)
	for _, itemErr := range itemErrs {
		var adapterErr *platforms.AdapterError
		if errors.As(itemErr, &adapterErr) {
			log.WithFields(logrus.Fields{
				"item":  adapterErr.Item,
				"error": adapterErr.Err,
			}).Warn("Skipped malformed payload item")
		} else {
			log.WithError(itemErr).Warn("Skipped payload item")
		}
	}

	result := &Result{ItemErrors: len(itemErrs)}
	scheduled := make(map[string]bool, len(drafts))

	for i := range drafts {
		created, interaction, err := d.gate.Upsert(ctx, &drafts[i])
		if err != nil {
			var persistErr *inbox.PersistenceError
			if errors.As(err, &persistErr) {
				// Storage trouble fails the task; the upsert is idempotent
				// so the queue retry reprocesses safely.
				return nil, err
			}
			log.WithError(err).Warn("Failed to persist draft")
			result.ItemErrors++
			continue
		}

		result.Handled = append(result.Handled, interaction)
		if !created || scheduled[interaction.ID] {
			continue
		}
		scheduled[interaction.ID] = true
		result.Created++

		if err := d.scheduler.PublishWithRetry(ctx, queue.QueueEnrich, queue.EnrichTask{
			InteractionID: interaction.ID,
		}); err != nil {
			return nil, fmt.Errorf("failed to schedule enrichment for %s: %w", interaction.ID, err)
		}
	}

	log.WithFields(logrus.Fields{
		"handled":     len(result.Handled),
		"created":     result.Created,
		"item_errors": result.ItemErrors,
	}).Info("Dispatch completed")

	return result, nil
}
