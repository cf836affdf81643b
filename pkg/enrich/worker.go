package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Mohd-umair/repmeup-backend/pkg/queue"
)

// Handle processes one EnrichTask body from the enrichment queue
func (p *Pipeline) Handle(ctx context.Context, body []byte) error {
	var task queue.EnrichTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("failed to decode enrich task: %w", err)
	}
	if task.InteractionID == "" {
		return fmt.Errorf("enrich task is missing an interaction id")
	}

	return p.Enrich(ctx, task.InteractionID)
}
