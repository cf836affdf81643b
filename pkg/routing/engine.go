// Package routing decides what happens to an interaction after enrichment:
// auto-reply eligibility, least-loaded agent assignment, or negative-spike
// escalation. Side effects are independent; a notification failure never
// rolls back an assignment.
package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
)

// SpikeThreshold is the number of negative comments on one post inside the
// trailing window that triggers escalation.
const SpikeThreshold = 3

// SpikeWindow is the trailing period negative comments are counted over
const SpikeWindow = 24 * time.Hour

// RoutingError indicates routing could not place the interaction, e.g. no
// active agents. It is logged, not retried: the interaction stays unassigned.
type RoutingError struct {
	Reason string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing error: %s", e.Reason)
}

// Store is the slice of the inbox store routing needs
type Store interface {
	ActiveAgents(ctx context.Context, orgID string) ([]models.TeamAgent, error)
	ActiveManagers(ctx context.Context, orgID string) ([]models.TeamAgent, error)
	OpenCounts(ctx context.Context, orgID string) (map[string]int64, error)
	CountRecentNegativeComments(ctx context.Context, orgID string, platform models.Platform, postID string, since time.Time) (int64, error)
	HasRecentSpikeAlert(ctx context.Context, orgID string, platform models.Platform, postID string, since time.Time) (bool, error)
	Assign(ctx context.Context, id, agentID string) error
	SetUrgency(ctx context.Context, id string, urgency models.Urgency) error
	ClearAutoReply(ctx context.Context, id string) error
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Notifier hands a persisted notification to the async delivery queue
type Notifier interface {
	Dispatch(ctx context.Context, notificationID string) error
}

// ReplySender is the hook for the external reply-dispatch collaborator.
// Routing marks eligibility; it never sends.
type ReplySender interface {
	Send(ctx context.Context, interaction *models.Interaction) error
}

type Engine struct {
	store    Store
	notifier Notifier
	sender   ReplySender
	logger   *logrus.Logger
}

func NewEngine(store Store, notifier Notifier, sender ReplySender, logger *logrus.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Engine{
		store:    store,
		notifier: notifier,
		sender:   sender,
		logger:   logger,
	}, nil
}

// Route applies the post-enrichment decision tree. Persistence failures
// propagate so the task can retry; a missing agent pool does not.
func (e *Engine) Route(ctx context.Context, interaction *models.Interaction) error {
	log := e.logger.WithFields(logrus.Fields{
		"method":         "Route",
		"interaction_id": interaction.ID,
		"platform":       interaction.Platform,
		"organization":   interaction.OrganizationID,
	})

	escalated, err := e.checkNegativeSpike(ctx, interaction)
	if err != nil {
		return err
	}

	if !escalated && interaction.CanAutoReply && interaction.SuggestedReply != "" {
		log.Info("Interaction eligible for auto-reply")
		if e.sender != nil {
			// External collaborator hook; failures are logged, the record
			// already carries its eligibility flag.
			if err := e.sender.Send(ctx, interaction); err != nil {
				log.WithError(err).Warn("Reply sender hook failed")
			}
		}
		return nil
	}

	return e.assignLeastLoaded(ctx, interaction)
}

// checkNegativeSpike escalates negative comments on a post that has reached
// the spike threshold inside the trailing window. Enrichment tasks carry no
// cross-interaction ordering, so the count may already be past the threshold
// when the first spike member is routed; the manager alert is deduplicated
// per post against existing notifications rather than tied to an exact count.
func (e *Engine) checkNegativeSpike(ctx context.Context, interaction *models.Interaction) (bool, error) {
	if interaction.Sentiment != models.SentimentNegative ||
		interaction.Type != models.TypeComment ||
		interaction.PostID == "" {
		return false, nil
	}

	log := e.logger.WithFields(logrus.Fields{
		"method":         "checkNegativeSpike",
		"interaction_id": interaction.ID,
		"post_id":        interaction.PostID,
	})

	since := time.Now().Add(-SpikeWindow)
	count, err := e.store.CountRecentNegativeComments(ctx,
		interaction.OrganizationID, interaction.Platform, interaction.PostID, since)
	if err != nil {
		return false, err
	}

	if count < SpikeThreshold {
		log.WithField("negative_count", count).Debug("No spike escalation")
		return false, nil
	}

	if err := e.store.SetUrgency(ctx, interaction.ID, models.UrgencyUrgent); err != nil {
		return false, err
	}
	interaction.Urgency = models.UrgencyUrgent

	// Enrichment may have persisted eligibility before the spike was visible.
	if interaction.CanAutoReply {
		if err := e.store.ClearAutoReply(ctx, interaction.ID); err != nil {
			return false, err
		}
		interaction.CanAutoReply = false
	}

	log.WithField("negative_count", count).Warn("Negative spike detected, escalating")

	alerted, err := e.store.HasRecentSpikeAlert(ctx,
		interaction.OrganizationID, interaction.Platform, interaction.PostID, since)
	if err != nil {
		// Notification failure must not roll back the urgency change.
		log.WithError(err).Error("Failed to check for an existing spike alert")
		return true, nil
	}
	if alerted {
		log.Debug("Spike alert already sent for this post")
		return true, nil
	}

	if err := e.notifyManager(ctx, interaction, count); err != nil {
		log.WithError(err).Error("Failed to notify manager about spike")
	}

	return true, nil
}

func (e *Engine) notifyManager(ctx context.Context, interaction *models.Interaction, count int64) error {
	managers, err := e.store.ActiveManagers(ctx, interaction.OrganizationID)
	if err != nil {
		return err
	}
	if len(managers) == 0 {
		return &RoutingError{Reason: "no active manager to notify"}
	}

	notification := &models.Notification{
		OrganizationID: interaction.OrganizationID,
		RecipientID:    managers[0].ID,
		Type:           models.NotificationSpikeAlert,
		Title:          "Negative comment spike detected",
		Body: fmt.Sprintf("%d negative comments on %s post %s in the last 24 hours",
			count, interaction.Platform, interaction.PostID),
		InteractionID: interaction.ID,
	}
	if err := e.store.CreateNotification(ctx, notification); err != nil {
		return err
	}

	if e.notifier != nil {
		return e.notifier.Dispatch(ctx, notification.ID)
	}
	return nil
}

// assignLeastLoaded picks the active agent with the fewest open interactions;
// ties go to the first agent in stable id order.
func (e *Engine) assignLeastLoaded(ctx context.Context, interaction *models.Interaction) error {
	log := e.logger.WithFields(logrus.Fields{
		"method":         "assignLeastLoaded",
		"interaction_id": interaction.ID,
	})

	agents, err := e.store.ActiveAgents(ctx, interaction.OrganizationID)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		log.WithError(&RoutingError{Reason: "no active agents"}).Warn("Leaving interaction unassigned")
		return nil
	}

	counts, err := e.store.OpenCounts(ctx, interaction.OrganizationID)
	if err != nil {
		return err
	}

	selected := agents[0]
	minLoad := counts[selected.ID]
	for _, agent := range agents[1:] {
		if counts[agent.ID] < minLoad {
			selected = agent
			minLoad = counts[agent.ID]
		}
	}

	if err := e.store.Assign(ctx, interaction.ID, selected.ID); err != nil {
		return err
	}
	interaction.AssignedTo = selected.ID
	interaction.Status = models.StatusAssigned

	log.WithFields(logrus.Fields{
		"agent_id": selected.ID,
		"load":     minLoad,
	}).Info("Interaction assigned")

	// Assignment notice is best-effort and independent of the assignment.
	notification := &models.Notification{
		OrganizationID: interaction.OrganizationID,
		RecipientID:    selected.ID,
		Type:           models.NotificationAssignment,
		Title:          "New interaction assigned",
		Body:           fmt.Sprintf("A %s %s was assigned to you", interaction.Platform, interaction.Type),
		InteractionID:  interaction.ID,
	}
	if err := e.store.CreateNotification(ctx, notification); err != nil {
		log.WithError(err).Error("Failed to create assignment notification")
		return nil
	}
	if e.notifier != nil {
		if err := e.notifier.Dispatch(ctx, notification.ID); err != nil {
			log.WithError(err).Error("Failed to dispatch assignment notification")
		}
	}

	return nil
}
