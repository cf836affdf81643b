// Package instagram normalizes Instagram Graph webhook payloads (comment
// changes and direct messages) into canonical interactions.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms"
)

// webhookPayload mirrors the Graph API webhook envelope: entry/changes arrays
// for comments, entry/messaging arrays for DMs.
type webhookPayload struct {
	Entry []entry `json:"entry"`
}

type entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Changes   []change    `json:"changes"`
	Messaging []messaging `json:"messaging"`
}

type change struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type commentValue struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	ParentID string `json:"parent_id"`
	From     struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
}

type messaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Timestamp int64 `json:"timestamp"`
	Message   struct {
		MID  string `json:"mid"`
		Text string `json:"text"`
	} `json:"message"`
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
	return models.PlatformInstagram
}

// Normalize emits one draft per comment change and per direct message.
// Malformed items are skipped and reported individually.
func (a *Adapter) Normalize(ctx context.Context, raw json.RawMessage, conn *models.PlatformConnection) ([]models.Interaction, []error) {
	log := a.logger.WithFields(logrus.Fields{
		"method":   "Normalize",
		"platform": models.PlatformInstagram,
	})

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, []error{&platforms.AdapterError{
			Platform: models.PlatformInstagram,
			Item:     "payload",
			Err:      fmt.Errorf("failed to decode webhook envelope: %w", err),
		}}
	}

	var drafts []models.Interaction
	var itemErrs []error

	for _, e := range payload.Entry {
		for i, ch := range e.Changes {
			if ch.Field != "comments" {
				continue
			}

			var value commentValue
			if err := json.Unmarshal(ch.Value, &value); err != nil {
				itemErrs = append(itemErrs, &platforms.AdapterError{
					Platform: models.PlatformInstagram,
					Item:     fmt.Sprintf("change[%d]", i),
					Err:      err,
				})
				continue
			}
			if value.ID == "" {
				itemErrs = append(itemErrs, &platforms.AdapterError{
					Platform: models.PlatformInstagram,
					Item:     fmt.Sprintf("change[%d]", i),
					Err:      fmt.Errorf("comment is missing an id"),
				})
				continue
			}

			draft := models.Interaction{
				OrganizationID: conn.OrganizationID,
				Platform:       models.PlatformInstagram,
				PlatformID:     value.ID,
				Type:           models.TypeComment,
				Content:        value.Text,
				Language:       "",
				AuthorID:       value.From.ID,
				AuthorName:     platforms.NameOrAnonymous(value.From.Username),
				AuthorUsername: value.From.Username,
				ParentID:       value.ParentID,
				PostID:         value.Media.ID,
				CreatedAt:      unixOrNow(e.Time),
			}
			if value.ParentID != "" {
				draft.ThreadID = value.ParentID
			}
			drafts = append(drafts, draft)
		}

		for i, m := range e.Messaging {
			if m.Message.MID == "" {
				itemErrs = append(itemErrs, &platforms.AdapterError{
					Platform: models.PlatformInstagram,
					Item:     fmt.Sprintf("messaging[%d]", i),
					Err:      fmt.Errorf("message is missing a mid"),
				})
				continue
			}

			drafts = append(drafts, models.Interaction{
				OrganizationID: conn.OrganizationID,
				Platform:       models.PlatformInstagram,
				PlatformID:     m.Message.MID,
				Type:           models.TypeDM,
				Content:        m.Message.Text,
				AuthorID:       m.Sender.ID,
				AuthorName:     platforms.AnonymousAuthor,
				ThreadID:       m.Sender.ID,
				CreatedAt:      unixMillisOrNow(m.Timestamp),
			})
		}
	}

	log.WithFields(logrus.Fields{
		"drafts": len(drafts),
		"errors": len(itemErrs),
	}).Debug("Normalized Instagram payload")

	return drafts, itemErrs
}

func unixOrNow(ts int64) time.Time {
	if ts <= 0 {
		return time.Now()
	}
	return time.Unix(ts, 0)
}

func unixMillisOrNow(ts int64) time.Time {
	if ts <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ts)
}
