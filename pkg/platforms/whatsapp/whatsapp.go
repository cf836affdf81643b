// Package whatsapp normalizes WhatsApp Cloud API webhook payloads into
// canonical direct-message interactions.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms"
)

type webhookPayload struct {
	Entry []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string `json:"field"`
	Value value  `json:"value"`
}

type value struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []contact `json:"contacts"`
	Messages         []message `json:"messages"`
}

type contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
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
	return models.PlatformWhatsApp
}

func (a *Adapter) Normalize(ctx context.Context, raw json.RawMessage, conn *models.PlatformConnection) ([]models.Interaction, []error) {
	log := a.logger.WithFields(logrus.Fields{
		"method":   "Normalize",
		"platform": models.PlatformWhatsApp,
	})

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, []error{&platforms.AdapterError{
			Platform: models.PlatformWhatsApp,
			Item:     "payload",
			Err:      fmt.Errorf("failed to decode webhook envelope: %w", err),
		}}
	}

	var drafts []models.Interaction
	var itemErrs []error

	for _, e := range payload.Entry {
		for _, ch := range e.Changes {
			if ch.Field != "messages" {
				continue
			}

			// Contact profile names are delivered alongside messages
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}

			for i, m := range ch.Value.Messages {
				if m.ID == "" {
					itemErrs = append(itemErrs, &platforms.AdapterError{
						Platform: models.PlatformWhatsApp,
						Item:     fmt.Sprintf("messages[%d]", i),
						Err:      fmt.Errorf("message is missing an id"),
					})
					continue
				}

				contentType := m.Type
				if contentType == "" {
					contentType = "text"
				}

				drafts = append(drafts, models.Interaction{
					OrganizationID: conn.OrganizationID,
					Platform:       models.PlatformWhatsApp,
					PlatformID:     m.ID,
					Type:           models.TypeDM,
					Content:        m.Text.Body,
					ContentType:    contentType,
					AuthorID:       m.From,
					AuthorName:     platforms.NameOrAnonymous(names[m.From]),
					AuthorUsername: m.From,
					ThreadID:       m.From,
					CreatedAt:      epochStringOrNow(m.Timestamp),
				})
			}
		}
	}

	log.WithFields(logrus.Fields{
		"drafts": len(drafts),
		"errors": len(itemErrs),
	}).Debug("Normalized WhatsApp payload")

	return drafts, itemErrs
}

// epochStringOrNow parses the Cloud API's string epoch-seconds timestamp
func epochStringOrNow(s string) time.Time {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return time.Unix(n, 0)
	}
	return time.Now()
}
