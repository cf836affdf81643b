// Package facebook normalizes Facebook Graph webhook payloads (page feed
// comments and Messenger messages) into canonical interactions.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms"
)

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

// feedValue carries page feed changes; only verb=add comment items become drafts
type feedValue struct {
	Item        string `json:"item"`
	Verb        string `json:"verb"`
	CommentID   string `json:"comment_id"`
	PostID      string `json:"post_id"`
	ParentID    string `json:"parent_id"`
	Message     string `json:"message"`
	CreatedTime int64  `json:"created_time"`
	From        struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
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
	return models.PlatformFacebook
}

func (a *Adapter) Normalize(ctx context.Context, raw json.RawMessage, conn *models.PlatformConnection) ([]models.Interaction, []error) {
	log := a.logger.WithFields(logrus.Fields{
		"method":   "Normalize",
		"platform": models.PlatformFacebook,
	})

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, []error{&platforms.AdapterError{
			Platform: models.PlatformFacebook,
			Item:     "payload",
			Err:      fmt.Errorf("failed to decode webhook envelope: %w", err),
		}}
	}

	var drafts []models.Interaction
	var itemErrs []error

	for _, e := range payload.Entry {
		for i, ch := range e.Changes {
			if ch.Field != "feed" {
				continue
			}

			var value feedValue
			if err := json.Unmarshal(ch.Value, &value); err != nil {
				itemErrs = append(itemErrs, &platforms.AdapterError{
					Platform: models.PlatformFacebook,
					Item:     fmt.Sprintf("change[%d]", i),
					Err:      err,
				})
				continue
			}
			if value.Item != "comment" || value.Verb == "remove" {
				continue
			}
			if value.CommentID == "" {
				itemErrs = append(itemErrs, &platforms.AdapterError{
					Platform: models.PlatformFacebook,
					Item:     fmt.Sprintf("change[%d]", i),
					Err:      fmt.Errorf("feed comment is missing a comment_id"),
				})
				continue
			}

			created := time.Now()
			if value.CreatedTime > 0 {
				created = time.Unix(value.CreatedTime, 0)
			}

			draft := models.Interaction{
				OrganizationID: conn.OrganizationID,
				Platform:       models.PlatformFacebook,
				PlatformID:     value.CommentID,
				Type:           models.TypeComment,
				Content:        value.Message,
				AuthorID:       value.From.ID,
				AuthorName:     platforms.NameOrAnonymous(value.From.Name),
				ParentID:       value.ParentID,
				PostID:         value.PostID,
				CreatedAt:      created,
			}
			if value.ParentID != "" {
				draft.ThreadID = value.ParentID
			}
			drafts = append(drafts, draft)
		}

		for i, m := range e.Messaging {
			if m.Message.MID == "" {
				itemErrs = append(itemErrs, &platforms.AdapterError{
					Platform: models.PlatformFacebook,
					Item:     fmt.Sprintf("messaging[%d]", i),
					Err:      fmt.Errorf("message is missing a mid"),
				})
				continue
			}

			created := time.Now()
			if m.Timestamp > 0 {
				created = time.UnixMilli(m.Timestamp)
			}

			drafts = append(drafts, models.Interaction{
				OrganizationID: conn.OrganizationID,
				Platform:       models.PlatformFacebook,
				PlatformID:     m.Message.MID,
				Type:           models.TypeDM,
				Content:        m.Message.Text,
				AuthorID:       m.Sender.ID,
				AuthorName:     platforms.AnonymousAuthor,
				ThreadID:       m.Sender.ID,
				CreatedAt:      created,
			})
		}
	}

	log.WithFields(logrus.Fields{
		"drafts": len(drafts),
		"errors": len(itemErrs),
	}).Debug("Normalized Facebook payload")

	return drafts, itemErrs
}
