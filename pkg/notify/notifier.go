// Package notify delivers persisted notifications asynchronously through the
// notify queue. Actual email transport is an external collaborator behind the
// Mailer interface.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/queue"
)

// Publisher is the queue surface the notifier needs
type Publisher interface {
	Publish(ctx context.Context, queueName string, task interface{}) error
}

// Notifier enqueues notification deliveries
type Notifier struct {
	publisher Publisher
	logger    *logrus.Logger
}

func NewNotifier(publisher Publisher, logger *logrus.Logger) (*Notifier, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Notifier{
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Dispatch schedules async delivery of a persisted notification
func (n *Notifier) Dispatch(ctx context.Context, notificationID string) error {
	return n.publisher.Publish(ctx, queue.QueueNotify, queue.NotifyTask{
		NotificationID: notificationID,
	})
}

// Mailer sends one notification to its recipient. Email delivery is out of
// scope; the process wires a logging stub by default.
type Mailer interface {
	Send(ctx context.Context, notification *models.Notification) error
}

// LogMailer is the default Mailer: it records the delivery in the log
type LogMailer struct {
	Logger *logrus.Logger
}

func (m *LogMailer) Send(ctx context.Context, notification *models.Notification) error {
	m.Logger.WithFields(logrus.Fields{
		"notification_id": notification.ID,
		"recipient":       notification.RecipientID,
		"type":            notification.Type,
		"title":           notification.Title,
	}).Info("Notification delivered (log mailer)")
	return nil
}

// Store is the persistence surface the worker needs
type Store interface {
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	MarkNotificationSent(ctx context.Context, id string) error
}

// Worker drains the notify queue
type Worker struct {
	store  Store
	mailer Mailer
	logger *logrus.Logger
}

func NewWorker(store Store, mailer Mailer, logger *logrus.Logger) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Worker{
		store:  store,
		mailer: mailer,
		logger: logger,
	}, nil
}

// Handle processes one NotifyTask body from the queue
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var task queue.NotifyTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("failed to decode notify task: %w", err)
	}

	notification, err := w.store.GetNotification(ctx, task.NotificationID)
	if err != nil {
		return err
	}

	if notification.SentAt != nil {
		// Redelivered task; delivery already happened.
		return nil
	}

	if err := w.mailer.Send(ctx, notification); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return w.store.MarkNotificationSent(ctx, notification.ID)
}
