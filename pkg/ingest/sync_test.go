package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms"
	"github.com/Mohd-umair/repmeup-backend/pkg/platforms/apiclient"
	"github.com/Mohd-umair/repmeup-backend/pkg/queue"
)

func platformsRegistry(logger *logrus.Logger, adapters ...platforms.Adapter) *platforms.Registry {
	registry := platforms.NewRegistry(logger)
	for _, a := range adapters {
		ExpectWithOffset(1, registry.Register(a)).To(Succeed())
	}
	return registry
}

type fakeConnectionStore struct {
	conn *models.PlatformConnection

	syncResults []struct {
		Synced int64
		Err    error
	}
	tokenExpired bool

	// statusWrites mirrors the status column writes the real store performs,
	// in order, so tests can assert the final persisted status.
	statusWrites []models.ConnectionStatus
}

func (f *fakeConnectionStore) finalStatus() models.ConnectionStatus {
	if len(f.statusWrites) == 0 {
		return ""
	}
	return f.statusWrites[len(f.statusWrites)-1]
}

func (f *fakeConnectionStore) GetConnection(ctx context.Context, id string) (*models.PlatformConnection, error) {
	if f.conn == nil || f.conn.ID != id {
		return nil, fmt.Errorf("connection %s not found", id)
	}
	return f.conn, nil
}

func (f *fakeConnectionStore) ApplySyncResult(ctx context.Context, connID string, synced int64, runErr error) error {
	f.syncResults = append(f.syncResults, struct {
		Synced int64
		Err    error
	}{synced, runErr})
	if runErr == nil {
		f.statusWrites = append(f.statusWrites, models.ConnectionConnected)
	} else {
		f.statusWrites = append(f.statusWrites, models.ConnectionError)
	}
	return nil
}

func (f *fakeConnectionStore) MarkTokenExpired(ctx context.Context, connID string) error {
	f.tokenExpired = true
	f.statusWrites = append(f.statusWrites, models.ConnectionTokenExpired)
	return nil
}

// fakeFetcher replays a scripted sequence of fetch outcomes
type fakeFetcher struct {
	responses  []json.RawMessage
	errs       []error
	fetchCalls int

	refreshCalls int
	refreshErr   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, conn *models.PlatformConnection, path string, query map[string]string) (json.RawMessage, error) {
	i := f.fetchCalls
	f.fetchCalls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeFetcher) Refresh(ctx context.Context, conn *models.PlatformConnection) error {
	f.refreshCalls++
	return f.refreshErr
}

var _ = Describe("SyncRunner", func() {
	var (
		adapter   *stubAdapter
		gate      *fakeGate
		scheduler *fakeScheduler
		store     *fakeConnectionStore
		fetcher   *fakeFetcher
		conn      *models.PlatformConnection
		ctx       context.Context
		logger    *logrus.Logger
	)

	authErr := func() error {
		return &apiclient.AuthError{Platform: models.PlatformInstagram, Err: fmt.Errorf("status 401")}
	}

	newRunner := func() *SyncRunner {
		registry := platformsRegistry(logger, adapter)
		dispatcher, err := NewDispatcher(registry, gate, scheduler, logger)
		Expect(err).NotTo(HaveOccurred())

		runner, err := NewSyncRunner(dispatcher, store,
			map[models.Platform]Fetcher{models.PlatformInstagram: fetcher}, logger)
		Expect(err).NotTo(HaveOccurred())
		return runner
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		gate = newFakeGate()
		scheduler = &fakeScheduler{}
		fetcher = &fakeFetcher{}
		adapter = &stubAdapter{
			platform: models.PlatformInstagram,
			drafts:   []models.Interaction{{PlatformID: "pid-1", Type: models.TypeComment}},
		}
		conn = &models.PlatformConnection{
			ID:             "conn-1",
			OrganizationID: "org-1",
			Platform:       models.PlatformInstagram,
			PageID:         "page-1",
			Status:         models.ConnectionConnected,
		}
		store = &fakeConnectionStore{conn: conn}
	})

	It("dispatches fetched pages and records stats exactly once", func() {
		Expect(newRunner().RunSync(ctx, conn)).To(Succeed())

		Expect(store.syncResults).To(HaveLen(1))
		Expect(store.syncResults[0].Synced).To(Equal(int64(1)))
		Expect(store.syncResults[0].Err).To(BeNil())
		Expect(scheduler.enrichCount()).To(Equal(1))
	})

	It("refreshes the token once on an auth rejection and retries the fetch", func() {
		fetcher.errs = []error{authErr()}

		Expect(newRunner().RunSync(ctx, conn)).To(Succeed())
		Expect(fetcher.refreshCalls).To(Equal(1))
		Expect(fetcher.fetchCalls).To(Equal(2))
		Expect(store.tokenExpired).To(BeFalse())
	})

	It("marks the connection token_expired when the refresh also fails", func() {
		fetcher.errs = []error{authErr()}
		fetcher.refreshErr = authErr()

		err := newRunner().RunSync(ctx, conn)
		Expect(err).To(HaveOccurred())
		Expect(store.tokenExpired).To(BeTrue())

		Expect(store.syncResults).To(HaveLen(1))
		Expect(store.syncResults[0].Err).To(HaveOccurred())
	})

	It("leaves a dead-token connection parked as token_expired, not error", func() {
		fetcher.errs = []error{authErr()}
		fetcher.refreshErr = authErr()

		Expect(newRunner().RunSync(ctx, conn)).To(HaveOccurred())

		// The stats update must land before the expiry mark so the scheduler
		// stops re-pulling the connection until reauthorization.
		Expect(store.finalStatus()).To(Equal(models.ConnectionTokenExpired))
	})

	It("records a plain error status for non-auth fetch failures", func() {
		fetcher.errs = []error{fmt.Errorf("rate limited: status 429")}

		Expect(newRunner().RunSync(ctx, conn)).To(HaveOccurred())
		Expect(store.tokenExpired).To(BeFalse())
		Expect(store.finalStatus()).To(Equal(models.ConnectionError))
	})

	It("records a failed run when no api client is configured", func() {
		conn.Platform = models.PlatformYouTube
		conn.ChannelID = "UC123"

		err := newRunner().RunSync(ctx, conn)
		Expect(err).To(HaveOccurred())
		Expect(store.syncResults).To(HaveLen(1))
		Expect(store.syncResults[0].Err).To(HaveOccurred())
	})

	Describe("HandleSyncTask", func() {
		It("loads the connection and runs the sync", func() {
			task, _ := json.Marshal(queue.SyncTask{ConnectionID: "conn-1"})
			Expect(newRunner().HandleSyncTask(ctx, task)).To(Succeed())
			Expect(store.syncResults).To(HaveLen(1))
		})

		It("propagates unknown connections for retry", func() {
			task, _ := json.Marshal(queue.SyncTask{ConnectionID: "missing"})
			Expect(newRunner().HandleSyncTask(ctx, task)).To(HaveOccurred())
		})
	})
})
