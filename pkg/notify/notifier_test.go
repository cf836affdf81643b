package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/queue"
)

type fakePublisher struct {
	queues []string
	tasks  []interface{}
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, task interface{}) error {
	f.queues = append(f.queues, queueName)
	f.tasks = append(f.tasks, task)
	return nil
}

type fakeNotifyStore struct {
	notifications map[string]*models.Notification
	sent          []string
}

func (f *fakeNotifyStore) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	n, ok := f.notifications[id]
	if !ok {
		return nil, fmt.Errorf("notification %s not found", id)
	}
	return n, nil
}

func (f *fakeNotifyStore) MarkNotificationSent(ctx context.Context, id string) error {
	f.sent = append(f.sent, id)
	return nil
}

type fakeMailer struct {
	delivered []string
	err       error
}

func (f *fakeMailer) Send(ctx context.Context, notification *models.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, notification.ID)
	return nil
}

var _ = Describe("Notifier", func() {
	It("publishes a notify task for the persisted notification", func() {
		publisher := &fakePublisher{}
		notifier, err := NewNotifier(publisher, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(notifier.Dispatch(context.Background(), "notif-1")).To(Succeed())
		Expect(publisher.queues).To(Equal([]string{queue.QueueNotify}))
		Expect(publisher.tasks[0]).To(Equal(queue.NotifyTask{NotificationID: "notif-1"}))
	})
})

var _ = Describe("Worker", func() {
	var (
		store  *fakeNotifyStore
		mailer *fakeMailer
		worker *Worker
		ctx    context.Context
	)

	taskBody := func(id string) []byte {
		body, err := json.Marshal(queue.NotifyTask{NotificationID: id})
		Expect(err).NotTo(HaveOccurred())
		return body
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = &fakeNotifyStore{notifications: map[string]*models.Notification{
			"notif-1": {ID: "notif-1", RecipientID: "agent-a", Type: models.NotificationAssignment},
		}}
		mailer = &fakeMailer{}

		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)

		var err error
		worker, err = NewWorker(store, mailer, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	It("delivers and marks the notification sent", func() {
		Expect(worker.Handle(ctx, taskBody("notif-1"))).To(Succeed())
		Expect(mailer.delivered).To(Equal([]string{"notif-1"}))
		Expect(store.sent).To(Equal([]string{"notif-1"}))
	})

	It("skips redelivered tasks whose notification was already sent", func() {
		sentAt := time.Now()
		store.notifications["notif-1"].SentAt = &sentAt

		Expect(worker.Handle(ctx, taskBody("notif-1"))).To(Succeed())
		Expect(mailer.delivered).To(BeEmpty())
		Expect(store.sent).To(BeEmpty())
	})

	It("propagates mailer failures without marking sent", func() {
		mailer.err = fmt.Errorf("smtp refused")

		Expect(worker.Handle(ctx, taskBody("notif-1"))).To(HaveOccurred())
		Expect(store.sent).To(BeEmpty())
	})

	It("propagates unknown notifications for retry", func() {
		Expect(worker.Handle(ctx, taskBody("missing"))).To(HaveOccurred())
	})
})
