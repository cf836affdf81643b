package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/internal/appconfig"
	"github.com/Mohd-umair/repmeup-backend/pkg/db"
	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/enrich"
	"github.com/Mohd-umair/repmeup-backend/pkg/inbox"
	"github.com/Mohd-umair/repmeup-backend/pkg/ingest"
	"github.com/Mohd-umair/repmeup-backend/pkg/llm/openai"
	"github.com/Mohd-umair/repmeup-backend/pkg/logging"
	"github.com/Mohd-umair/repmeup-backend/pkg/notify"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms/apiclient"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms/facebook"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms/google"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms/instagram"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms/whatsapp"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms/youtube"
	"github.com/Mohd-umair/repmeup-backend/pkg/queue"
	"github.com/Mohd-umair/repmeup-backend/pkg/routing"
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(logging.NewColoredJSONFormatter())

	config, err := appconfig.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithFields(logrus.Fields{
			"attempted_level": config.LogLevel,
			"default_level":   "INFO",
		}).Warn("Invalid log level specified, defaulting to INFO")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	database, err := db.SetupDatabase(log)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up database")
	}

	store, err := inbox.NewStore(log, database)
	if err != nil {
		log.WithError(err).Fatal("Failed to create inbox store")
	}

	// Queue broker
	broker, err := queue.Dial(config.AMQPURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	defer broker.Close()

	// Platform adapters
	registry := platforms.NewRegistry(log)
	adapters := []platforms.Adapter{
		instagram.NewAdapter(log),
		facebook.NewAdapter(log),
		whatsapp.NewAdapter(log),
		youtube.NewAdapter(log),
		google.NewAdapter(log),
	}
	for _, adapter := range adapters {
		if err := registry.Register(adapter); err != nil {
			log.WithError(err).Fatal("Failed to register platform adapter")
		}
	}

	// Ingestion
	dispatcher, err := ingest.NewDispatcher(registry, store, broker, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create dispatcher")
	}

	// Platform API clients for sync. A platform without credentials in the
	// environment simply never syncs; webhooks still work.
	fetchers := buildFetchers(store, log)
	syncRunner, err := ingest.NewSyncRunner(dispatcher, store, fetchers, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create sync runner")
	}

	// Notifications
	notifier, err := notify.NewNotifier(broker, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create notifier")
	}
	notifyWorker, err := notify.NewWorker(store, &notify.LogMailer{Logger: log}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create notify worker")
	}

	// Routing
	engine, err := routing.NewEngine(store, notifier, nil, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create routing engine")
	}

	// Enrichment
	openaiConfig, err := openai.NewOpenAIConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to create OpenAI config")
	}
	openaiConfig.Logger = log

	llmClient, err := openai.NewOpenAIClient(openaiConfig)
	if err != nil {
		log.WithError(err).Fatal("Failed to create OpenAI client")
	}

	pipeline, err := enrich.NewPipeline(llmClient.GetLLM(), store, engine, enrich.Config{
		MaxKnowledgeEntries: config.MaxKnowledgeEntries,
		DraftTemperature:    config.DraftTemperature,
		DraftMaxTokens:      config.DraftMaxTokens,
		Logger:              log,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create enrichment pipeline")
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	var wg sync.WaitGroup

	consumers := map[string]queue.HandlerFunc{
		queue.QueueIngest: dispatcher.HandleIngestTask,
		queue.QueueSync:   syncRunner.HandleSyncTask,
		queue.QueueEnrich: pipeline.Handle,
		queue.QueueNotify: notifyWorker.Handle,
	}
	for queueName, handler := range consumers {
		wg.Add(1)
		go func(queueName string, handler queue.HandlerFunc) {
			defer wg.Done()
			consumer := queue.NewConsumer(broker, store, log)
			if err := consumer.Consume(ctx, queueName, handler); err != nil && err != context.Canceled {
				log.WithFields(logrus.Fields{
					"queue": queueName,
					"error": err,
				}).Error("Consumer stopped with error")
			}
		}(queueName, handler)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSyncScheduler(ctx, store, broker, config.SyncInterval, log)
	}()

	log.Info("Inbox workers started")

	wg.Wait()
	log.Info("Inbox shutdown complete")
}

// buildFetchers creates one API client per platform family that has
// credentials configured.
func buildFetchers(tokens apiclient.TokenStore, log *logrus.Logger) map[models.Platform]ingest.Fetcher {
	prefixes := map[models.Platform]string{
		models.PlatformInstagram: "META",
		models.PlatformFacebook:  "META",
		models.PlatformYouTube:   "YOUTUBE",
		models.PlatformGoogle:    "GOOGLE",
	}

	fetchers := make(map[models.Platform]ingest.Fetcher)
	for platform, prefix := range prefixes {
		config, err := apiclient.NewConfig(prefix, log)
		if err != nil {
			log.WithFields(logrus.Fields{
				"platform": platform,
				"error":    err,
			}).Warn("Platform API client not configured, sync disabled")
			continue
		}
		client, err := apiclient.NewClient(config, tokens)
		if err != nil {
			log.WithFields(logrus.Fields{
				"platform": platform,
				"error":    err,
			}).Warn("Failed to create platform API client, sync disabled")
			continue
		}
		fetchers[platform] = client
	}
	return fetchers
}

// runSyncScheduler periodically enqueues a sync task for every connection due
// for a re-pull.
func runSyncScheduler(ctx context.Context, store *inbox.Store, broker *queue.Client, interval time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	scheduleOnce := func() {
		connections, err := store.ConnectionsDueForSync(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to list connections due for sync")
			return
		}
		for _, conn := range connections {
			task := queue.SyncTask{ConnectionID: conn.ID}
			if err := broker.Publish(ctx, queue.QueueSync, task); err != nil {
				log.WithFields(logrus.Fields{
					"connection_id": conn.ID,
					"error":         err,
				}).Error("Failed to enqueue sync task")
			}
		}
		log.WithField("connections", len(connections)).Debug("Sync cycle scheduled")
	}

	scheduleOnce()
	for {
		select {
		case <-ctx.Done():
			log.Info("Sync scheduler stopped")
			return
		case <-ticker.C:
			scheduleOnce()
		}
	}
}
