package inbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
)

// Store is the deduplication and persistence gate. Every interaction enters the
// inbox through Upsert; the unique index on (organization_id, platform,
// platform_id) absorbs duplicate webhook deliveries and overlapping sync runs.
type Store struct {
	mu     sync.RWMutex
	logger *logrus.Logger
	db     *gorm.DB
}

func NewStore(logger *logrus.Logger, db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Store{
		logger: logger,
		db:     db,
	}, nil
}

// Upsert persists a normalized draft if no interaction with the same
// platform-native identity exists. It reports whether a new record was created
// and always returns the persisted record. Calling it twice with the same draft
// yields exactly one row.
func (s *Store) Upsert(ctx context.Context, draft *models.Interaction) (bool, *models.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.ID == "" {
		draft.ID = uuid.New().String()
	}
	if draft.Status == "" {
		draft.Status = models.StatusUnread
	}
	if draft.Urgency == "" {
		draft.Urgency = models.UrgencyNormal
	}
	draft.IsRead = false

	now := time.Now()
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}
	draft.UpdatedAt = now

	log := s.logger.WithFields(logrus.Fields{
		"method":       "Upsert",
		"platform":     draft.Platform,
		"platform_id":  draft.PlatformID,
		"organization": draft.OrganizationID,
		"type":         draft.Type,
	})

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "organization_id"},
				{Name: "platform"},
				{Name: "platform_id"},
			},
			DoNothing: true,
		}).
		Create(draft)

	if result.Error != nil {
		return false, nil, &PersistenceError{Op: "upsert", Err: result.Error}
	}

	if result.RowsAffected == 0 {
		// Already seen: return the existing record, never a duplicate.
		var existing models.Interaction
		err := s.db.WithContext(ctx).
			Where("organization_id = ? AND platform = ? AND platform_id = ?",
				draft.OrganizationID, draft.Platform, draft.PlatformID).
			First(&existing).Error
		if err != nil {
			return false, nil, &PersistenceError{Op: "upsert lookup", Err: err}
		}

		log.WithField("interaction_id", existing.ID).Debug("Duplicate delivery absorbed")
		return false, &existing, nil
	}

	log.WithField("interaction_id", draft.ID).Info("Interaction created")
	return true, draft, nil
}

// GetByID loads a single interaction
func (s *Store) GetByID(ctx context.Context, id string) (*models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var interaction models.Interaction
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&interaction).Error; err != nil {
		return nil, &PersistenceError{Op: "get interaction", Err: err}
	}
	return &interaction, nil
}

// Enrichment holds the AI-derived fields owned by the enrichment pipeline.
type Enrichment struct {
	Sentiment           models.Sentiment
	SentimentScore      float64
	SentimentConfidence float64
	Intent              string
	Topics              []string
	SuggestedReply      string
	CanAutoReply        bool
}

// ApplyEnrichment writes only the enrichment-owned columns so concurrent
// workflow updates (assignment, read state) are never clobbered.
func (s *Store) ApplyEnrichment(ctx context.Context, id string, e Enrichment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	result := s.db.WithContext(ctx).Table("interactions").
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sentiment":            e.Sentiment,
			"sentiment_score":      e.SentimentScore,
			"sentiment_confidence": e.SentimentConfidence,
			"intent":               e.Intent,
			"topics":               pq.StringArray(e.Topics),
			"suggested_reply":      e.SuggestedReply,
			"can_auto_reply":       e.CanAutoReply,
			"enriched_at":          now,
			"updated_at":           now,
		})

	if result.Error != nil {
		return &PersistenceError{Op: "apply enrichment", Err: result.Error}
	}

	s.logger.WithFields(logrus.Fields{
		"method":         "ApplyEnrichment",
		"interaction_id": id,
		"sentiment":      e.Sentiment,
		"intent":         e.Intent,
		"can_auto_reply": e.CanAutoReply,
	}).Debug("Enrichment fields persisted")

	return nil
}

// Assign moves an interaction to an agent's queue
func (s *Store) Assign(ctx context.Context, id, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Table("interactions").
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"assigned_to": agentID,
			"status":      models.StatusAssigned,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return &PersistenceError{Op: "assign", Err: result.Error}
	}
	return nil
}

// SetUrgency updates only the urgency column
func (s *Store) SetUrgency(ctx context.Context, id string, urgency models.Urgency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Table("interactions").
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"urgency":    urgency,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return &PersistenceError{Op: "set urgency", Err: result.Error}
	}
	return nil
}

// ClearAutoReply withdraws auto-reply eligibility, used when routing escalates
// an interaction after enrichment already persisted the flag
func (s *Store) ClearAutoReply(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Table("interactions").
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"can_auto_reply": false,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return &PersistenceError{Op: "clear auto-reply", Err: result.Error}
	}
	return nil
}

// ActiveAgents returns assignable team members for an organization in stable
// id order. Stable order makes least-loaded tie-breaking deterministic.
func (s *Store) ActiveAgents(ctx context.Context, orgID string) ([]models.TeamAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var agents []models.TeamAgent
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND active = ?", orgID, true).
		Order("id").
		Find(&agents).Error
	if err != nil {
		return nil, &PersistenceError{Op: "list active agents", Err: err}
	}
	return agents, nil
}

// ActiveManagers returns active managers and admins in stable id order
func (s *Store) ActiveManagers(ctx context.Context, orgID string) ([]models.TeamAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var managers []models.TeamAgent
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND active = ? AND role IN ?",
			orgID, true, []models.AgentRole{models.RoleManager, models.RoleAdmin}).
		Order("id").
		Find(&managers).Error
	if err != nil {
		return nil, &PersistenceError{Op: "list active managers", Err: err}
	}
	return managers, nil
}

// OpenCounts returns, per agent id, the number of interactions currently in
// unread or assigned status. Agents with no open work are absent from the map.
func (s *Store) OpenCounts(ctx context.Context, orgID string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type row struct {
		AssignedTo string
		Count      int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Table("interactions").
		Select("assigned_to, count(*) as count").
		Where("organization_id = ? AND assigned_to <> '' AND status IN ?",
			orgID, []models.InteractionStatus{models.StatusUnread, models.StatusAssigned}).
		Group("assigned_to").
		Scan(&rows).Error
	if err != nil {
		return nil, &PersistenceError{Op: "count open interactions", Err: err}
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.AssignedTo] = r.Count
	}
	return counts, nil
}

// CountRecentNegativeComments counts negative comments on a post inside the
// trailing window, inclusive of any already-persisted current interaction.
func (s *Store) CountRecentNegativeComments(ctx context.Context, orgID string, platform models.Platform, postID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.WithContext(ctx).Table("interactions").
		Where("organization_id = ? AND platform = ? AND post_id = ? AND type = ? AND sentiment = ? AND created_at >= ?",
			orgID, platform, postID, models.TypeComment, models.SentimentNegative, since).
		Count(&count).Error
	if err != nil {
		return 0, &PersistenceError{Op: "count negative comments", Err: err}
	}
	return count, nil
}

// HasRecentSpikeAlert reports whether a spike alert was already raised for the
// post inside the trailing window. Routing uses it to keep the manager alert
// per spike, not per negative comment, since enrichment order is not fixed.
func (s *Store) HasRecentSpikeAlert(ctx context.Context, orgID string, platform models.Platform, postID string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.WithContext(ctx).Table("notifications").
		Joins("JOIN interactions ON interactions.id = notifications.interaction_id").
		Where("notifications.organization_id = ? AND notifications.type = ? AND notifications.created_at >= ?",
			orgID, models.NotificationSpikeAlert, since).
		Where("interactions.platform = ? AND interactions.post_id = ?", platform, postID).
		Count(&count).Error
	if err != nil {
		return false, &PersistenceError{Op: "check spike alert", Err: err}
	}
	return count > 0, nil
}

// TopKnowledgeEntries returns the highest-weighted active knowledge-base
// entries used as reply-drafting context.
func (s *Store) TopKnowledgeEntries(ctx context.Context, orgID string, limit int) ([]models.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []models.KnowledgeEntry
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND active = ?", orgID, true).
		Order("weight DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, &PersistenceError{Op: "list knowledge entries", Err: err}
	}
	return entries, nil
}

// CreateNotification persists a notification row for the notify worker
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return &PersistenceError{Op: "create notification", Err: err}
	}
	return nil
}

// GetNotification loads a notification by id
func (s *Store) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n models.Notification
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, &PersistenceError{Op: "get notification", Err: err}
	}
	return &n, nil
}

// MarkNotificationSent stamps the delivery time
func (s *Store) MarkNotificationSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Table("notifications").
		Where("id = ?", id).
		Update("sent_at", time.Now())
	if result.Error != nil {
		return &PersistenceError{Op: "mark notification sent", Err: result.Error}
	}
	return nil
}

// RecordTaskFailure surfaces a retry-exhausted task for operator visibility
func (s *Store) RecordTaskFailure(ctx context.Context, queue string, payload []byte, taskErr error, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failure := models.TaskFailure{
		ID:       uuid.New().String(),
		Queue:    queue,
		Payload:  string(payload),
		Error:    taskErr.Error(),
		Attempts: attempts,
	}
	if err := s.db.WithContext(ctx).Create(&failure).Error; err != nil {
		return &PersistenceError{Op: "record task failure", Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"method":   "RecordTaskFailure",
		"queue":    queue,
		"attempts": attempts,
		"error":    taskErr,
	}).Error("Task failed after retry exhaustion")

	return nil
}
