package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/inbox"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms"
	"github.com/Mohd-umair/repmeup-backend/pkg/queue"
)

// stubAdapter returns canned drafts and item errors regardless of payload
type stubAdapter struct {
	platform models.Platform
	drafts   []models.Interaction
	itemErrs []error
}

func (s *stubAdapter) Platform() models.Platform {
	return s.platform
}

func (s *stubAdapter) Normalize(ctx context.Context, raw json.RawMessage, conn *models.PlatformConnection) ([]models.Interaction, []error) {
	drafts := make([]models.Interaction, len(s.drafts))
	copy(drafts, s.drafts)
	for i := range drafts {
		drafts[i].OrganizationID = conn.OrganizationID
		drafts[i].Platform = conn.Platform
	}
	return drafts, s.itemErrs
}

// fakeGate deduplicates in memory on (organization, platform, platform id)
type fakeGate struct {
	seen       map[string]*models.Interaction
	upsertErr  error
	upsertCall int
}

func newFakeGate() *fakeGate {
	return &fakeGate{seen: map[string]*models.Interaction{}}
}

func (f *fakeGate) Upsert(ctx context.Context, draft *models.Interaction) (bool, *models.Interaction, error) {
	f.upsertCall++
	if f.upsertErr != nil {
		return false, nil, f.upsertErr
	}

	key := fmt.Sprintf("%s|%s|%s", draft.OrganizationID, draft.Platform, draft.PlatformID)
	if existing, ok := f.seen[key]; ok {
		return false, existing, nil
	}

	stored := *draft
	stored.ID = uuid.New().String()
	f.seen[key] = &stored
	return true, &stored, nil
}

type fakeScheduler struct {
	published  []string
	publishErr error
}

func (f *fakeScheduler) Publish(ctx context.Context, queueName string, task interface{}) error {
	return f.record(queueName, task)
}

func (f *fakeScheduler) PublishWithRetry(ctx context.Context, queueName string, task interface{}) error {
	return f.record(queueName, task)
}

func (f *fakeScheduler) record(queueName string, task interface{}) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	body, _ := json.Marshal(task)
	f.published = append(f.published, fmt.Sprintf("%s:%s", queueName, body))
	return nil
}

func (f *fakeScheduler) enrichCount() int {
	count := 0
	for _, p := range f.published {
		if len(p) > len(queue.QueueEnrich) && p[:len(queue.QueueEnrich)] == queue.QueueEnrich {
			count++
		}
	}
	return count
}

var _ = Describe("Dispatcher", func() {
	var (
		adapter   *stubAdapter
		gate      *fakeGate
		scheduler *fakeScheduler
		conn      *models.PlatformConnection
		ctx       context.Context
		logger    *logrus.Logger
	)

	newDispatcher := func() *Dispatcher {
		registry := platforms.NewRegistry(logger)
		Expect(registry.Register(adapter)).To(Succeed())
		dispatcher, err := NewDispatcher(registry, gate, scheduler, logger)
		Expect(err).NotTo(HaveOccurred())
		return dispatcher
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		gate = newFakeGate()
		scheduler = &fakeScheduler{}
		adapter = &stubAdapter{platform: models.PlatformInstagram}
		conn = &models.PlatformConnection{
			OrganizationID: "org-1",
			Platform:       models.PlatformInstagram,
		}
	})

	It("creates interactions and schedules one enrichment per creation", func() {
		adapter.drafts = []models.Interaction{
			{PlatformID: "pid-1", Type: models.TypeComment},
			{PlatformID: "pid-2", Type: models.TypeComment},
		}

		result, err := newDispatcher().Dispatch(ctx, conn, json.RawMessage(`{}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Created).To(Equal(2))
		Expect(result.Handled).To(HaveLen(2))
		Expect(scheduler.enrichCount()).To(Equal(2))
	})

	It("absorbs a duplicate delivery without re-scheduling enrichment", func() {
		adapter.drafts = []models.Interaction{{PlatformID: "pid-1", Type: models.TypeComment}}
		dispatcher := newDispatcher()

		first, err := dispatcher.Dispatch(ctx, conn, json.RawMessage(`{}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Created).To(Equal(1))

		second, err := dispatcher.Dispatch(ctx, conn, json.RawMessage(`{}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Created).To(BeZero())
		Expect(second.Handled).To(HaveLen(1))
		Expect(second.Handled[0].ID).To(Equal(first.Handled[0].ID))

		Expect(scheduler.enrichCount()).To(Equal(1))
	})

	It("counts item errors without aborting siblings", func() {
		adapter.drafts = []models.Interaction{{PlatformID: "pid-1", Type: models.TypeComment}}
		adapter.itemErrs = []error{
			&platforms.AdapterError{Platform: models.PlatformInstagram, Item: "entry[0]", Err: fmt.Errorf("missing id")},
		}

		result, err := newDispatcher().Dispatch(ctx, conn, json.RawMessage(`{}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ItemErrors).To(Equal(1))
		Expect(result.Created).To(Equal(1))
	})

	It("fails the whole task on a persistence error so the queue can retry", func() {
		adapter.drafts = []models.Interaction{{PlatformID: "pid-1", Type: models.TypeComment}}
		gate.upsertErr = &inbox.PersistenceError{Op: "upsert", Err: fmt.Errorf("connection refused")}

		result, err := newDispatcher().Dispatch(ctx, conn, json.RawMessage(`{}`))
		Expect(err).To(HaveOccurred())
		Expect(result).To(BeNil())
		Expect(scheduler.enrichCount()).To(BeZero())
	})

	It("fails the task when enrichment scheduling exhausts its retries", func() {
		adapter.drafts = []models.Interaction{{PlatformID: "pid-1", Type: models.TypeComment}}
		scheduler.publishErr = fmt.Errorf("broker unavailable")

		_, err := newDispatcher().Dispatch(ctx, conn, json.RawMessage(`{}`))
		Expect(err).To(MatchError(ContainSubstring("failed to schedule enrichment")))
	})

	It("rejects payloads for unregistered platforms", func() {
		conn.Platform = models.PlatformWhatsApp

		_, err := newDispatcher().Dispatch(ctx, conn, json.RawMessage(`{}`))
		Expect(err).To(HaveOccurred())
	})

	Describe("EnqueueWebhook", func() {
		It("hands the payload to the ingest queue without touching storage", func() {
			err := newDispatcher().EnqueueWebhook(ctx, models.PlatformInstagram, "org-1", json.RawMessage(`{"entry":[]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(scheduler.published).To(HaveLen(1))
			Expect(scheduler.published[0]).To(HavePrefix(queue.QueueIngest))
			Expect(gate.upsertCall).To(BeZero())
		})
	})

	Describe("HandleIngestTask", func() {
		It("builds identity from the task and dispatches", func() {
			adapter.drafts = []models.Interaction{{PlatformID: "pid-1", Type: models.TypeComment}}
			task, _ := json.Marshal(queue.IngestTask{
				Platform:       models.PlatformInstagram,
				OrganizationID: "org-9",
				Payload:        json.RawMessage(`{}`),
			})

			Expect(newDispatcher().HandleIngestTask(ctx, task)).To(Succeed())

			for _, stored := range gate.seen {
				Expect(stored.OrganizationID).To(Equal("org-9"))
			}
			Expect(gate.upsertCall).To(Equal(1))
		})

		It("rejects malformed task bodies", func() {
			err := newDispatcher().HandleIngestTask(ctx, []byte(`{not json`))
			Expect(err).To(HaveOccurred())
		})
	})
})
