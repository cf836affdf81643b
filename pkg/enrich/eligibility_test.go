package enrich

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
)

var _ = Describe("CanAutoReply", func() {
	It("allows a confident positive non-complaint at normal urgency", func() {
		Expect(CanAutoReply(models.SentimentPositive, 0.9, IntentPraise, models.UrgencyNormal, DefaultPolicy)).To(BeTrue())
	})

	It("allows neutral sentiment when every other gate passes", func() {
		Expect(CanAutoReply(models.SentimentNeutral, 0.8, IntentQuestion, models.UrgencyNormal, DefaultPolicy)).To(BeTrue())
	})

	It("blocks negative sentiment regardless of confidence", func() {
		Expect(CanAutoReply(models.SentimentNegative, 0.99, IntentQuestion, models.UrgencyNormal, DefaultPolicy)).To(BeFalse())
	})

	It("blocks confidence just below the threshold", func() {
		Expect(CanAutoReply(models.SentimentPositive, 0.69, IntentPraise, models.UrgencyNormal, DefaultPolicy)).To(BeFalse())
	})

	It("allows confidence exactly at the threshold", func() {
		Expect(CanAutoReply(models.SentimentPositive, 0.7, IntentPraise, models.UrgencyNormal, DefaultPolicy)).To(BeTrue())
	})

	It("blocks complaints even when positive and confident", func() {
		Expect(CanAutoReply(models.SentimentPositive, 0.95, IntentComplaint, models.UrgencyNormal, DefaultPolicy)).To(BeFalse())
	})

	It("blocks high urgency", func() {
		Expect(CanAutoReply(models.SentimentPositive, 0.9, IntentPraise, models.UrgencyHigh, DefaultPolicy)).To(BeFalse())
	})

	It("blocks urgent urgency", func() {
		Expect(CanAutoReply(models.SentimentPositive, 0.9, IntentPraise, models.UrgencyUrgent, DefaultPolicy)).To(BeFalse())
	})

	It("blocks low urgency never, only high and urgent", func() {
		Expect(CanAutoReply(models.SentimentPositive, 0.9, IntentPraise, models.UrgencyLow, DefaultPolicy)).To(BeTrue())
	})

	It("respects a stricter custom policy threshold", func() {
		strict := Policy{ConfidenceThreshold: 0.95}
		Expect(CanAutoReply(models.SentimentPositive, 0.9, IntentPraise, models.UrgencyNormal, strict)).To(BeFalse())
	})
})
