// Package youtube normalizes YouTube Data API commentThreads payloads. Each
// thread fans out into one draft for the top-level comment and one per reply,
// preserving parent/thread linkage.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms"
)

type threadListResponse struct {
	Items []thread `json:"items"`
}

type thread struct {
	ID      string `json:"id"`
	Snippet struct {
		VideoID         string  `json:"videoId"`
		TopLevelComment comment `json:"topLevelComment"`
		TotalReplyCount int     `json:"totalReplyCount"`
	} `json:"snippet"`
	Replies struct {
		Comments []comment `json:"comments"`
	} `json:"replies"`
}

type comment struct {
	ID      string `json:"id"`
	Snippet struct {
		VideoID               string `json:"videoId"`
		TextDisplay           string `json:"textDisplay"`
		AuthorDisplayName     string `json:"authorDisplayName"`
		AuthorProfileImageURL string `json:"authorProfileImageUrl"`
		AuthorChannelID       struct {
			Value string `json:"value"`
		} `json:"authorChannelId"`
		ParentID    string `json:"parentId"`
		PublishedAt string `json:"publishedAt"`
	} `json:"snippet"`
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
	return models.PlatformYouTube
}

func (a *Adapter) Normalize(ctx context.Context, raw json.RawMessage, conn *models.PlatformConnection) ([]models.Interaction, []error) {
	log := a.logger.WithFields(logrus.Fields{
		"method":   "Normalize",
		"platform": models.PlatformYouTube,
	})

	var payload threadListResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, []error{&platforms.AdapterError{
			Platform: models.PlatformYouTube,
			Item:     "payload",
			Err:      fmt.Errorf("failed to decode commentThreads response: %w", err),
		}}
	}

	var drafts []models.Interaction
	var itemErrs []error

	for i, t := range payload.Items {
		top := t.Snippet.TopLevelComment
		if top.ID == "" {
			itemErrs = append(itemErrs, &platforms.AdapterError{
				Platform: models.PlatformYouTube,
				Item:     fmt.Sprintf("items[%d]", i),
				Err:      fmt.Errorf("thread is missing a top-level comment id"),
			})
			continue
		}

		videoID := t.Snippet.VideoID
		if videoID == "" {
			videoID = top.Snippet.VideoID
		}

		parent := a.draftFromComment(conn, top, videoID, t.ID, "")
		parent.ReplyCount = t.Snippet.TotalReplyCount
		parent.HasReplies = t.Snippet.TotalReplyCount > 0
		drafts = append(drafts, parent)

		for j, r := range t.Replies.Comments {
			if r.ID == "" {
				itemErrs = append(itemErrs, &platforms.AdapterError{
					Platform: models.PlatformYouTube,
					Item:     fmt.Sprintf("items[%d].replies[%d]", i, j),
					Err:      fmt.Errorf("reply is missing an id"),
				})
				continue
			}

			parentID := r.Snippet.ParentID
			if parentID == "" {
				parentID = top.ID
			}
			drafts = append(drafts, a.draftFromComment(conn, r, videoID, t.ID, parentID))
		}
	}

	log.WithFields(logrus.Fields{
		"drafts": len(drafts),
		"errors": len(itemErrs),
	}).Debug("Normalized YouTube payload")

	return drafts, itemErrs
}

func (a *Adapter) draftFromComment(conn *models.PlatformConnection, c comment, videoID, threadID, parentID string) models.Interaction {
	created := time.Now()
	if t, err := time.Parse(time.RFC3339, c.Snippet.PublishedAt); err == nil {
		created = t
	}

	return models.Interaction{
		OrganizationID:  conn.OrganizationID,
		Platform:        models.PlatformYouTube,
		PlatformID:      c.ID,
		Type:            models.TypeComment,
		Content:         c.Snippet.TextDisplay,
		AuthorID:        c.Snippet.AuthorChannelID.Value,
		AuthorName:      platforms.NameOrAnonymous(c.Snippet.AuthorDisplayName),
		AuthorAvatarURL: c.Snippet.AuthorProfileImageURL,
		ParentID:        parentID,
		ThreadID:        threadID,
		PostID:          videoID,
		CreatedAt:       created,
	}
}
