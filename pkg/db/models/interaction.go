package models

import (
	"time"

	"github.com/lib/pq"
)

// Platform identifies the external source of an interaction.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformYouTube   Platform = "youtube"
	PlatformGoogle    Platform = "google"
)

// InteractionType represents the kind of customer interaction
type InteractionType string

const (
	TypeComment InteractionType = "comment"
	TypeDM      InteractionType = "dm"
	TypeReview  InteractionType = "review"
	TypeMention InteractionType = "mention"
)

// Sentiment is the three-way label produced by enrichment (or rating pre-classification)
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// InteractionStatus tracks an interaction through the agent workflow
type InteractionStatus string

const (
	StatusUnread   InteractionStatus = "unread"
	StatusAssigned InteractionStatus = "assigned"
	StatusResolved InteractionStatus = "resolved"
	StatusArchived InteractionStatus = "archived"
)

// Urgency is set by routing (spike escalation) or by human agents
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// Interaction is the canonical record every platform payload is normalized into.
// Identity is (organization_id, platform, platform_id); the unique index is the
// concurrency guard against duplicate webhook deliveries.
type Interaction struct {
	ID             string   `gorm:"primaryKey;column:id"`
	OrganizationID string   `gorm:"column:organization_id;not null;uniqueIndex:ux_org_platform_pid,priority:1"`
	Platform       Platform `gorm:"column:platform;not null;uniqueIndex:ux_org_platform_pid,priority:2"`
	PlatformID     string   `gorm:"column:platform_id;not null;uniqueIndex:ux_org_platform_pid,priority:3"`

	Type        InteractionType `gorm:"column:type;not null"`
	Content     string          `gorm:"column:content"`
	ContentType string          `gorm:"column:content_type;default:text"`
	Language    string          `gorm:"column:language"`

	// Author Information
	AuthorID        string `gorm:"column:author_id"`
	AuthorName      string `gorm:"column:author_name"`
	AuthorUsername  string `gorm:"column:author_username"`
	AuthorAvatarURL string `gorm:"column:author_avatar_url"`
	AuthorVerified  bool   `gorm:"column:author_verified;default:false"`

	// Threading
	ParentID   string `gorm:"column:parent_id"`
	ThreadID   string `gorm:"column:thread_id;index"`
	PostID     string `gorm:"column:post_id;index"`
	ReplyCount int    `gorm:"column:reply_count;default:0"`
	HasReplies bool   `gorm:"column:has_replies;default:false"`

	// Enrichment fields, written only by the enrichment pipeline
	Sentiment           Sentiment      `gorm:"column:sentiment"`
	SentimentScore      float64        `gorm:"column:sentiment_score;default:0"`
	SentimentConfidence float64        `gorm:"column:sentiment_confidence;default:0"`
	Intent              string         `gorm:"column:intent"`
	Topics              pq.StringArray `gorm:"column:topics;type:text[]"`
	SuggestedReply      string         `gorm:"column:suggested_reply"`
	CanAutoReply        bool           `gorm:"column:can_auto_reply;default:false"`
	EnrichedAt          *time.Time     `gorm:"column:enriched_at"`

	// Workflow fields, written by routing and human agents
	Status     InteractionStatus `gorm:"column:status;not null;default:unread"`
	AssignedTo string            `gorm:"column:assigned_to;index"`
	Urgency    Urgency           `gorm:"column:urgency;default:normal"`
	Labels     pq.StringArray    `gorm:"column:labels;type:text[]"`
	Notes      string            `gorm:"column:notes"`
	IsRead     bool              `gorm:"column:is_read;default:false"`

	// Review-specific
	Rating     int        `gorm:"column:rating;default:0"`
	ReviewDate *time.Time `gorm:"column:review_date"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the Interaction model
func (Interaction) TableName() string {
	return "interactions"
}

// SentimentFromRating derives a coarse sentiment from a 1-5 star rating. It is
// the cheap fallback available before AI enrichment runs on review platforms.
func SentimentFromRating(rating int) Sentiment {
	switch {
	case rating >= 4:
		return SentimentPositive
	case rating > 0 && rating <= 2:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
