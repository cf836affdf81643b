// Package google normalizes Google Business Profile review payloads. Review
// events arrive either as a plain review list or wrapped in a Pub/Sub
// envelope carrying base64-encoded JSON. Star ratings pre-classify sentiment
// before AI enrichment runs.
package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms"
)

type pubsubEnvelope struct {
	Message struct {
		Data string `json:"data"`
	} `json:"message"`
}

type reviewPayload struct {
	Reviews []review `json:"reviews"`
	// Single-review notification form
	Review *review `json:"review"`
}

type review struct {
	ReviewID   string `json:"reviewId"`
	Name       string `json:"name"`
	StarRating string `json:"starRating"`
	Comment    string `json:"comment"`
	CreateTime string `json:"createTime"`
	Reviewer   struct {
		DisplayName     string `json:"displayName"`
		ProfilePhotoURL string `json:"profilePhotoUrl"`
	} `json:"reviewer"`
}

var starRatings = map[string]int{
	"ONE":   1,
	"TWO":   2,
	"THREE": 3,
	"FOUR":  4,
	"FIVE":  5,
}

type Adapter struct {
	logger *logrus.Logger
}

func NewAdapter(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger}
}

func (a *Adapter) Platform() models.Platform {
	return models.PlatformGoogle
}

func (a *Adapter) Normalize(ctx context.Context, raw json.RawMessage, conn *models.PlatformConnection) ([]models.Interaction, []error) {
	log := a.logger.WithFields(logrus.Fields{
		"method":   "Normalize",
		"platform": models.PlatformGoogle,
	})

	body, err := unwrapPubSub(raw)
	if err != nil {
		return nil, []error{&platforms.AdapterError{
			Platform: models.PlatformGoogle,
			Item:     "payload",
			Err:      err,
		}}
	}

	var payload reviewPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, []error{&platforms.AdapterError{
			Platform: models.PlatformGoogle,
			Item:     "payload",
			Err:      fmt.Errorf("failed to decode review payload: %w", err),
		}}
	}

	reviews := payload.Reviews
	if payload.Review != nil {
		reviews = append(reviews, *payload.Review)
	}

	var drafts []models.Interaction
	var itemErrs []error

	for i, r := range reviews {
		if r.ReviewID == "" {
			itemErrs = append(itemErrs, &platforms.AdapterError{
				Platform: models.PlatformGoogle,
				Item:     fmt.Sprintf("reviews[%d]", i),
				Err:      fmt.Errorf("review is missing a reviewId"),
			})
			continue
		}

		rating := parseStarRating(r.StarRating)

		reviewDate := time.Now()
		if t, err := time.Parse(time.RFC3339, r.CreateTime); err == nil {
			reviewDate = t
		}

		drafts = append(drafts, models.Interaction{
			OrganizationID:  conn.OrganizationID,
			Platform:        models.PlatformGoogle,
			PlatformID:      r.ReviewID,
			Type:            models.TypeReview,
			Content:         r.Comment,
			AuthorName:      platforms.NameOrAnonymous(r.Reviewer.DisplayName),
			AuthorAvatarURL: r.Reviewer.ProfilePhotoURL,
			PostID:          conn.LocationID,
			Rating:          rating,
			ReviewDate:      &reviewDate,
			// Cheap fallback before AI enrichment runs
			Sentiment: models.SentimentFromRating(rating),
			CreatedAt: reviewDate,
		})
	}

	log.WithFields(logrus.Fields{
		"drafts": len(drafts),
		"errors": len(itemErrs),
	}).Debug("Normalized Google review payload")

	return drafts, itemErrs
}

// unwrapPubSub extracts the inner JSON from a Pub/Sub push envelope. Payloads
// that are not wrapped pass through unchanged.
func unwrapPubSub(raw json.RawMessage) (json.RawMessage, error) {
	var envelope pubsubEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Message.Data == "" {
		return raw, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pubsub message data: %w", err)
	}
	return decoded, nil
}

// parseStarRating accepts both the enum form ("FIVE") and a bare number ("5")
func parseStarRating(s string) int {
	if rating, ok := starRatings[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return rating
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n >= 1 && n <= 5 {
		return n
	}
	return 0
}
