package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms/apiclient"
	"github.com/Mohd-umair/repmeup-backend/pkg/queue"
)

// ConnectionStore is the persistence surface the sync runner needs
type ConnectionStore interface {
	GetConnection(ctx context.Context, id string) (*models.PlatformConnection, error)
	ApplySyncResult(ctx context.Context, connID string, synced int64, runErr error) error
	MarkTokenExpired(ctx context.Context, connID string) error
}

// Fetcher pulls one platform resource; implemented by apiclient.Client
type Fetcher interface {
	Fetch(ctx context.Context, conn *models.PlatformConnection, path string, query map[string]string) (json.RawMessage, error)
	Refresh(ctx context.Context, conn *models.PlatformConnection) error
}

// resource is one syncable endpoint owned by a connection
type resource struct {
	Path  string
	Query map[string]string
}

// SyncRunner performs periodic and manual re-pulls for platform connections
type SyncRunner struct {
	dispatcher *Dispatcher
	store      ConnectionStore
	fetchers   map[models.Platform]Fetcher
	logger     *logrus.Logger
}

func NewSyncRunner(dispatcher *Dispatcher, store ConnectionStore, fetchers map[models.Platform]Fetcher, logger *logrus.Logger) (*SyncRunner, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &SyncRunner{
		dispatcher: dispatcher,
		store:      store,
		fetchers:   fetchers,
		logger:     logger,
	}, nil
}

// HandleSyncTask processes one queued sync request
func (r *SyncRunner) HandleSyncTask(ctx context.Context, body []byte) error {
	var task queue.SyncTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("failed to decode sync task: %w", err)
	}

	conn, err := r.store.GetConnection(ctx, task.ConnectionID)
	if err != nil {
		return err
	}

	return r.RunSync(ctx, conn)
}

// RunSync iterates the connection's resources, dispatches every fetched page,
// and updates the connection's sync statistics exactly once regardless of how
// many individual fetches failed.
func (r *SyncRunner) RunSync(ctx context.Context, conn *models.PlatformConnection) error {
	log := r.logger.WithFields(logrus.Fields{
		"method":        "RunSync",
		"platform":      conn.Platform,
		"connection_id": conn.ID,
		"organization":  conn.OrganizationID,
	})
	log.Info("Starting sync run")

	started := time.Now()
	var created int64
	var runErr error
	var tokenDead bool

	fetcher, ok := r.fetchers[conn.Platform]
	if !ok {
		runErr = fmt.Errorf("no api client configured for platform %s", conn.Platform)
	} else {
		for _, res := range resourcesFor(conn) {
			raw, err := r.fetchWithAuthRetry(ctx, fetcher, conn, res)
			if err != nil {
				var authErr *apiclient.AuthError
				if errors.As(err, &authErr) {
					// Refresh already failed once; the connection is dead
					// until reauthorized.
					tokenDead = true
					runErr = err
					break
				}
				log.WithFields(logrus.Fields{
					"resource": res.Path,
					"error":    err,
				}).Error("Resource fetch failed")
				runErr = err
				continue
			}

			result, err := r.dispatcher.Dispatch(ctx, conn, raw)
			if err != nil {
				log.WithFields(logrus.Fields{
					"resource": res.Path,
					"error":    err,
				}).Error("Resource dispatch failed")
				runErr = err
				continue
			}
			created += int64(result.Created)
		}
	}

	// Exactly one stats update per run.
	if err := r.store.ApplySyncResult(ctx, conn.ID, created, runErr); err != nil {
		log.WithError(err).Error("Failed to record sync result")
		if runErr == nil {
			runErr = err
		}
	}

	// Written after the stats update so the terminal status survives it and
	// the scheduler stops re-pulling until reauthorization.
	if tokenDead {
		if markErr := r.store.MarkTokenExpired(ctx, conn.ID); markErr != nil {
			log.WithError(markErr).Error("Failed to mark connection token_expired")
		}
	}

	log.WithFields(logrus.Fields{
		"created":  created,
		"duration": time.Since(started).String(),
		"error":    runErr,
	}).Info("Sync run finished")

	return runErr
}

// fetchWithAuthRetry fetches a resource, refreshing the token once if the
// platform rejects it mid-run.
func (r *SyncRunner) fetchWithAuthRetry(ctx context.Context, fetcher Fetcher, conn *models.PlatformConnection, res resource) (json.RawMessage, error) {
	raw, err := fetcher.Fetch(ctx, conn, res.Path, res.Query)
	if err == nil {
		return raw, nil
	}

	var authErr *apiclient.AuthError
	if !errors.As(err, &authErr) {
		return nil, err
	}

	if refreshErr := fetcher.Refresh(ctx, conn); refreshErr != nil {
		return nil, refreshErr
	}
	return fetcher.Fetch(ctx, conn, res.Path, res.Query)
}

// resourcesFor lists the candidate endpoints a connection owns. Platforms
// without a history API (WhatsApp) sync nothing and rely on webhooks alone.
func resourcesFor(conn *models.PlatformConnection) []resource {
	switch conn.Platform {
	case models.PlatformYouTube:
		if conn.ChannelID == "" {
			return nil
		}
		return []resource{{
			Path: "/commentThreads",
			Query: map[string]string{
				"part":                         "snippet,replies",
				"allThreadsRelatedToChannelId": conn.ChannelID,
				"maxResults":                   "100",
			},
		}}
	case models.PlatformGoogle:
		if conn.LocationID == "" {
			return nil
		}
		return []resource{{
			Path: fmt.Sprintf("/accounts/-/locations/%s/reviews", conn.LocationID),
		}}
	case models.PlatformFacebook, models.PlatformInstagram:
		if conn.PageID == "" {
			return nil
		}
		return []resource{{
			Path:  fmt.Sprintf("/%s/feed", conn.PageID),
			Query: map[string]string{"fields": "comments"},
		}}
	default:
		return nil
	}
}
