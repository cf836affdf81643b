package enrich

import (
	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
)

// IntentComplaint is the intent label that always blocks auto-reply
const IntentComplaint = "complaint"

// Policy holds the auto-reply eligibility rule set. Organizations may override
// it; DefaultPolicy is the stock rule.
type Policy struct {
	ConfidenceThreshold float64
}

// DefaultPolicy matches the stock eligibility boundaries: confidence must
// reach 0.7, negative sentiment and complaints are never eligible.
var DefaultPolicy = Policy{
	ConfidenceThreshold: 0.7,
}

// CanAutoReply is a pure function of the enriched record. An interaction is
// ineligible if sentiment is negative, confidence is below the threshold, the
// intent is a complaint, or urgency is high or urgent.
func CanAutoReply(sentiment models.Sentiment, confidence float64, intent string, urgency models.Urgency, policy Policy) bool {
	if sentiment == models.SentimentNegative {
		return false
	}
	if confidence < policy.ConfidenceThreshold {
		return false
	}
	if intent == IntentComplaint {
		return false
	}
	if urgency == models.UrgencyHigh || urgency == models.UrgencyUrgent {
		return false
	}
	return true
}
