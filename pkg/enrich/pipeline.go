// Package enrich runs the asynchronous AI enrichment pipeline: sentiment,
// intent, topics and a drafted reply for each persisted interaction. Stages
// are best-effort; a provider failure writes a safe default and the pipeline
// always reaches routing.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/inbox"
)

// Store is the slice of the inbox store the pipeline needs
type Store interface {
	GetByID(ctx context.Context, id string) (*models.Interaction, error)
	ApplyEnrichment(ctx context.Context, id string, e inbox.Enrichment) error
	TopKnowledgeEntries(ctx context.Context, orgID string, limit int) ([]models.KnowledgeEntry, error)
}

// Router receives the enriched interaction once all stages have run
type Router interface {
	Route(ctx context.Context, interaction *models.Interaction) error
}

type Config struct {
	MaxKnowledgeEntries int
	DraftTemperature    float64
	DraftMaxTokens      int
	Policy              Policy
	Logger              *logrus.Logger
}

func (c *Config) Validate() error {
	if c.MaxKnowledgeEntries <= 0 {
		c.MaxKnowledgeEntries = 5
	}
	if c.DraftTemperature == 0 {
		c.DraftTemperature = 0.7
	}
	if c.DraftMaxTokens <= 0 {
		c.DraftMaxTokens = 300
	}
	if c.Policy == (Policy{}) {
		c.Policy = DefaultPolicy
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	return nil
}

type Pipeline struct {
	llm     llms.Model
	store   Store
	router  Router
	kbCache *gocache.Cache
	config  Config
	logger  *logrus.Logger
}

func NewPipeline(llm llms.Model, store Store, router Router, config Config) (*Pipeline, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		llm:     llm,
		store:   store,
		router:  router,
		kbCache: gocache.New(5*time.Minute, 10*time.Minute),
		config:  config,
		logger:  config.Logger,
	}, nil
}

// Enrich loads the interaction, runs every stage, persists the AI-owned
// fields, and hands off to routing. Only persistence failures propagate; they
// make the task eligible for queue retry.
func (p *Pipeline) Enrich(ctx context.Context, interactionID string) error {
	log := p.logger.WithFields(logrus.Fields{
		"method":         "Enrich",
		"interaction_id": interactionID,
	})

	interaction, err := p.store.GetByID(ctx, interactionID)
	if err != nil {
		return err
	}

	enrichment := inbox.Enrichment{
		Sentiment: models.SentimentNeutral,
		Intent:    IntentOther,
	}

	// Rating-bearing interactions carry a cheap pre-classification; keep it
	// as the fallback if the model call fails.
	if interaction.Sentiment != "" {
		enrichment.Sentiment = interaction.Sentiment
	}

	if result, err := p.scoreSentiment(ctx, interaction.Content); err != nil {
		log.WithError(err).Error("Sentiment stage failed, applying default")
	} else {
		enrichment.Sentiment = result.Label
		enrichment.SentimentScore = result.Score
		enrichment.SentimentConfidence = result.Confidence
	}

	if intent, err := p.classifyIntent(ctx, interaction.Content); err != nil {
		log.WithError(err).Error("Intent stage failed, applying default")
		enrichment.Intent = IntentOther
	} else {
		enrichment.Intent = intent
	}

	if topics, err := p.extractTopics(ctx, interaction.Content); err != nil {
		log.WithError(err).Error("Topics stage failed, applying default")
	} else {
		enrichment.Topics = topics
	}

	knowledge := p.knowledgeContext(ctx, interaction.OrganizationID)
	if draft, err := p.draftReply(ctx, interaction.Content, knowledge); err != nil {
		log.WithError(err).Error("Draft stage failed, applying default")
	} else {
		enrichment.SuggestedReply = draft
	}

	enrichment.CanAutoReply = CanAutoReply(
		enrichment.Sentiment,
		enrichment.SentimentConfidence,
		enrichment.Intent,
		interaction.Urgency,
		p.config.Policy,
	)

	if err := p.store.ApplyEnrichment(ctx, interactionID, enrichment); err != nil {
		return err
	}

	// Reflect the enrichment onto the in-memory record for routing.
	interaction.Sentiment = enrichment.Sentiment
	interaction.SentimentScore = enrichment.SentimentScore
	interaction.SentimentConfidence = enrichment.SentimentConfidence
	interaction.Intent = enrichment.Intent
	interaction.Topics = pq.StringArray(enrichment.Topics)
	interaction.SuggestedReply = enrichment.SuggestedReply
	interaction.CanAutoReply = enrichment.CanAutoReply

	log.WithFields(logrus.Fields{
		"sentiment":      enrichment.Sentiment,
		"intent":         enrichment.Intent,
		"topics":         enrichment.Topics,
		"can_auto_reply": enrichment.CanAutoReply,
	}).Info("Interaction enriched")

	return p.router.Route(ctx, interaction)
}

// knowledgeContext renders the highest-weighted active knowledge-base entries
// into prompt context. Cached per organization to spare the store on bursts.
func (p *Pipeline) knowledgeContext(ctx context.Context, orgID string) string {
	if cached, ok := p.kbCache.Get(orgID); ok {
		return cached.(string)
	}

	entries, err := p.store.TopKnowledgeEntries(ctx, orgID, p.config.MaxKnowledgeEntries)
	if err != nil {
		p.logger.WithError(err).WithField("organization", orgID).
			Warn("Failed to load knowledge entries, drafting without context")
		return ""
	}

	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", entry.Title, entry.Content)
	}

	context := b.String()
	p.kbCache.Set(orgID, context, gocache.DefaultExpiration)
	return context
}
