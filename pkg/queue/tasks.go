package queue

import (
	"encoding/json"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
)

// Logically separate durable queues so a backlog in one concern (slow AI
// calls) cannot starve the others.
const (
	QueueIngest = "inbox_ingest"
	QueueSync   = "inbox_sync"
	QueueEnrich = "inbox_enrich"
	QueueNotify = "inbox_notify"
)

// IngestTask carries one webhook delivery handed off for async processing
type IngestTask struct {
	Platform       models.Platform `json:"platform"`
	OrganizationID string          `json:"organization_id"`
	Payload        json.RawMessage `json:"payload"`
}

// SyncTask requests a bulk re-pull for one platform connection
type SyncTask struct {
	ConnectionID string `json:"connection_id"`
}

// EnrichTask schedules AI enrichment for one persisted interaction
type EnrichTask struct {
	InteractionID string `json:"interaction_id"`
}

// NotifyTask requests delivery of one persisted notification
type NotifyTask struct {
	NotificationID string `json:"notification_id"`
}
