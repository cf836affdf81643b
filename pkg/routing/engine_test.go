package routing

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
)

type fakeRoutingStore struct {
	agents        []models.TeamAgent
	managers      []models.TeamAgent
	openCounts    map[string]int64
	negativeCount int64

	assigned         map[string]string
	urgencies        map[string]models.Urgency
	autoReplyCleared []string
	notifications    []*models.Notification

	createNotificationErr error
	assignErr             error
}

func newFakeRoutingStore() *fakeRoutingStore {
	return &fakeRoutingStore{
		openCounts: map[string]int64{},
		assigned:   map[string]string{},
		urgencies:  map[string]models.Urgency{},
	}
}

func (f *fakeRoutingStore) ActiveAgents(ctx context.Context, orgID string) ([]models.TeamAgent, error) {
	return f.agents, nil
}

func (f *fakeRoutingStore) ActiveManagers(ctx context.Context, orgID string) ([]models.TeamAgent, error) {
	return f.managers, nil
}

func (f *fakeRoutingStore) OpenCounts(ctx context.Context, orgID string) (map[string]int64, error) {
	return f.openCounts, nil
}

func (f *fakeRoutingStore) CountRecentNegativeComments(ctx context.Context, orgID string, platform models.Platform, postID string, since time.Time) (int64, error) {
	return f.negativeCount, nil
}

func (f *fakeRoutingStore) HasRecentSpikeAlert(ctx context.Context, orgID string, platform models.Platform, postID string, since time.Time) (bool, error) {
	return len(f.notificationsOfType(models.NotificationSpikeAlert)) > 0, nil
}

func (f *fakeRoutingStore) Assign(ctx context.Context, id, agentID string) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assigned[id] = agentID
	return nil
}

func (f *fakeRoutingStore) SetUrgency(ctx context.Context, id string, urgency models.Urgency) error {
	f.urgencies[id] = urgency
	return nil
}

func (f *fakeRoutingStore) ClearAutoReply(ctx context.Context, id string) error {
	f.autoReplyCleared = append(f.autoReplyCleared, id)
	return nil
}

func (f *fakeRoutingStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if f.createNotificationErr != nil {
		return f.createNotificationErr
	}
	if n.ID == "" {
		n.ID = fmt.Sprintf("notif-%d", len(f.notifications)+1)
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeRoutingStore) notificationsOfType(t models.NotificationType) []*models.Notification {
	var out []*models.Notification
	for _, n := range f.notifications {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type fakeNotifier struct {
	dispatched []string
	err        error
}

func (f *fakeNotifier) Dispatch(ctx context.Context, notificationID string) error {
	if f.err != nil {
		return f.err
	}
	f.dispatched = append(f.dispatched, notificationID)
	return nil
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, interaction *models.Interaction) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, interaction.ID)
	return nil
}

var _ = Describe("Engine", func() {
	var (
		store    *fakeRoutingStore
		notifier *fakeNotifier
		ctx      context.Context
		logger   *logrus.Logger
	)

	newInteraction := func() *models.Interaction {
		return &models.Interaction{
			ID:             "int-1",
			OrganizationID: "org-1",
			Platform:       models.PlatformInstagram,
			Type:           models.TypeComment,
			PostID:         "post-1",
			Sentiment:      models.SentimentNeutral,
			Urgency:        models.UrgencyNormal,
		}
	}

	newEngine := func(sender ReplySender) *Engine {
		engine, err := NewEngine(store, notifier, sender, logger)
		Expect(err).NotTo(HaveOccurred())
		return engine
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = newFakeRoutingStore()
		notifier = &fakeNotifier{}
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	})

	Describe("least-loaded assignment", func() {
		BeforeEach(func() {
			store.agents = []models.TeamAgent{
				{ID: "agent-a"}, {ID: "agent-b"}, {ID: "agent-c"},
			}
		})

		It("assigns to the agent with the fewest open interactions", func() {
			store.openCounts = map[string]int64{"agent-a": 2, "agent-b": 0, "agent-c": 1}

			Expect(newEngine(nil).Route(ctx, newInteraction())).To(Succeed())
			Expect(store.assigned["int-1"]).To(Equal("agent-b"))
		})

		It("breaks ties by stable agent order", func() {
			store.openCounts = map[string]int64{"agent-a": 1, "agent-b": 1, "agent-c": 1}

			Expect(newEngine(nil).Route(ctx, newInteraction())).To(Succeed())
			Expect(store.assigned["int-1"]).To(Equal("agent-a"))
		})

		It("treats agents with no open interactions as zero load", func() {
			store.openCounts = map[string]int64{"agent-a": 3}

			Expect(newEngine(nil).Route(ctx, newInteraction())).To(Succeed())
			Expect(store.assigned["int-1"]).To(Equal("agent-b"))
		})

		It("notifies the assigned agent", func() {
			Expect(newEngine(nil).Route(ctx, newInteraction())).To(Succeed())

			assignments := store.notificationsOfType(models.NotificationAssignment)
			Expect(assignments).To(HaveLen(1))
			Expect(assignments[0].RecipientID).To(Equal(store.assigned["int-1"]))
			Expect(notifier.dispatched).To(HaveLen(1))
		})

		It("keeps the assignment when the notification fails", func() {
			store.createNotificationErr = fmt.Errorf("notification table offline")

			Expect(newEngine(nil).Route(ctx, newInteraction())).To(Succeed())
			Expect(store.assigned["int-1"]).To(Equal("agent-a"))
		})

		It("updates the in-memory record", func() {
			interaction := newInteraction()
			Expect(newEngine(nil).Route(ctx, interaction)).To(Succeed())
			Expect(interaction.AssignedTo).NotTo(BeEmpty())
			Expect(interaction.Status).To(Equal(models.StatusAssigned))
		})
	})

	Describe("empty agent pool", func() {
		It("leaves the interaction unassigned without an error", func() {
			interaction := newInteraction()
			Expect(newEngine(nil).Route(ctx, interaction)).To(Succeed())
			Expect(store.assigned).To(BeEmpty())
			Expect(interaction.AssignedTo).To(BeEmpty())
		})
	})

	Describe("auto-reply eligibility", func() {
		It("skips assignment for eligible interactions", func() {
			store.agents = []models.TeamAgent{{ID: "agent-a"}}
			interaction := newInteraction()
			interaction.CanAutoReply = true
			interaction.SuggestedReply = "Thanks!"

			Expect(newEngine(nil).Route(ctx, interaction)).To(Succeed())
			Expect(store.assigned).To(BeEmpty())
		})

		It("invokes the reply sender hook when configured", func() {
			sender := &fakeSender{}
			interaction := newInteraction()
			interaction.CanAutoReply = true
			interaction.SuggestedReply = "Thanks!"

			Expect(newEngine(sender).Route(ctx, interaction)).To(Succeed())
			Expect(sender.sent).To(Equal([]string{"int-1"}))
		})

		It("routes on despite a failing sender hook", func() {
			sender := &fakeSender{err: fmt.Errorf("platform down")}
			interaction := newInteraction()
			interaction.CanAutoReply = true
			interaction.SuggestedReply = "Thanks!"

			Expect(newEngine(sender).Route(ctx, interaction)).To(Succeed())
		})

		It("still assigns when the flag is set but no draft exists", func() {
			store.agents = []models.TeamAgent{{ID: "agent-a"}}
			interaction := newInteraction()
			interaction.CanAutoReply = true

			Expect(newEngine(nil).Route(ctx, interaction)).To(Succeed())
			Expect(store.assigned["int-1"]).To(Equal("agent-a"))
		})
	})

	Describe("negative spike escalation", func() {
		newNegativeComment := func() *models.Interaction {
			interaction := newInteraction()
			interaction.Sentiment = models.SentimentNegative
			return interaction
		}

		BeforeEach(func() {
			store.agents = []models.TeamAgent{{ID: "agent-a"}}
			store.managers = []models.TeamAgent{{ID: "manager-1"}, {ID: "manager-2"}}
		})

		It("does not escalate below the threshold", func() {
			store.negativeCount = 2
			interaction := newNegativeComment()

			Expect(newEngine(nil).Route(ctx, interaction)).To(Succeed())
			Expect(store.urgencies).To(BeEmpty())
			Expect(store.notificationsOfType(models.NotificationSpikeAlert)).To(BeEmpty())
			Expect(store.assigned["int-1"]).To(Equal("agent-a"))
		})

		It("escalates exactly at the threshold with one manager alert", func() {
			store.negativeCount = 3
			interaction := newNegativeComment()

			Expect(newEngine(nil).Route(ctx, interaction)).To(Succeed())
			Expect(store.urgencies["int-1"]).To(Equal(models.UrgencyUrgent))
			Expect(interaction.Urgency).To(Equal(models.UrgencyUrgent))

			alerts := store.notificationsOfType(models.NotificationSpikeAlert)
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].RecipientID).To(Equal("manager-1"))
			Expect(alerts[0].InteractionID).To(Equal("int-1"))
		})

		It("does not re-alert past the threshold when an alert already exists", func() {
			store.negativeCount = 4
			store.notifications = append(store.notifications, &models.Notification{
				ID:          "notif-existing",
				Type:        models.NotificationSpikeAlert,
				RecipientID: "manager-1",
			})
			interaction := newNegativeComment()

			Expect(newEngine(nil).Route(ctx, interaction)).To(Succeed())
			// Later spike members still carry the urgency but not a new alert.
			Expect(store.urgencies["int-1"]).To(Equal(models.UrgencyUrgent))
			Expect(store.notificationsOfType(models.NotificationSpikeAlert)).To(HaveLen(1))
		})

		It("alerts past the threshold when no alert was raised yet", func() {
			// Unordered enrichment can route the first spike member after the
			// count has already moved past the threshold.
			store.negativeCount = 4
			interaction := newNegativeComment()

			Expect(newEngine(nil).Route(ctx, interaction)).To(Succeed())
			Expect(store.urgencies["int-1"]).To(Equal(models.UrgencyUrgent))
			Expect(store.notificationsOfType(models.NotificationSpikeAlert)).To(HaveLen(1))
		})

		It("blocks auto-reply on the escalated interaction", func() {
			store.negativeCount = 3
			interaction := newNegativeComment()
			interaction.CanAutoReply = true
			interaction.SuggestedReply = "Sorry to hear that!"
			sender := &fakeSender{}

			Expect(newEngine(sender).Route(ctx, interaction)).To(Succeed())
			Expect(sender.sent).To(BeEmpty())
			Expect(store.autoReplyCleared).To(Equal([]string{"int-1"}))
			Expect(interaction.CanAutoReply).To(BeFalse())
			Expect(store.assigned["int-1"]).To(Equal("agent-a"))
		})

		It("keeps the urgency when the manager alert fails", func() {
			store.negativeCount = 3
			store.createNotificationErr = fmt.Errorf("notification table offline")
			interaction := newNegativeComment()

			Expect(newEngine(nil).Route(ctx, interaction)).To(Succeed())
			Expect(store.urgencies["int-1"]).To(Equal(models.UrgencyUrgent))
		})

		It("ignores non-comment negatives", func() {
			store.negativeCount = 3
			interaction := newNegativeComment()
			interaction.Type = models.TypeDM
			interaction.PostID = ""

			Expect(newEngine(nil).Route(ctx, interaction)).To(Succeed())
			Expect(store.urgencies).To(BeEmpty())
		})
	})
})
