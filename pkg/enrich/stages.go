package enrich

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"
	langchainprompts "github.com/tmc/langchaingo/prompts"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
)

// Known intent labels; anything unrecognized falls back to IntentOther.
const (
	IntentQuestion       = "question"
	IntentPraise         = "praise"
	IntentPurchaseIntent = "purchase_intent"
	IntentSpam           = "spam"
	IntentOther          = "other"
)

var knownIntents = []string{
	IntentPurchaseIntent, // checked before shorter labels it could shadow
	IntentQuestion,
	IntentComplaint,
	IntentPraise,
	IntentSpam,
}

const maxTopics = 5

// SentimentResult is the output of the sentiment stage
type SentimentResult struct {
	Label      models.Sentiment
	Score      float64
	Confidence float64
}

var sentimentPrompt = langchainprompts.NewPromptTemplate(
	`You are a customer-interaction sentiment analyzer. Classify the message below.

Message: {{.content}}

Respond on a single line in the form:
label score confidence
where label is positive, negative or neutral, score is between -1 and 1, and confidence is between 0 and 1.`,
	[]string{"content"},
)

func (p *Pipeline) scoreSentiment(ctx context.Context, content string) (SentimentResult, error) {
	prompt, err := sentimentPrompt.Format(map[string]any{"content": content})
	if err != nil {
		return SentimentResult{}, &EnrichmentError{Stage: "sentiment", Err: err}
	}

	completion, err := p.llm.Call(ctx, prompt,
		llms.WithTemperature(0),
		llms.WithMaxTokens(32),
	)
	if err != nil {
		return SentimentResult{}, &EnrichmentError{Stage: "sentiment", Err: err}
	}

	result, ok := parseSentiment(completion)
	if !ok {
		return SentimentResult{}, &EnrichmentError{Stage: "sentiment", Err: fmt.Errorf("unparseable response: %q", completion)}
	}
	return result, nil
}

// parseSentiment reads the model output loosely: case-insensitive substring
// match for the label, any two parseable numbers for score and confidence.
func parseSentiment(response string) (SentimentResult, bool) {
	lower := strings.ToLower(response)

	var label models.Sentiment
	switch {
	case strings.Contains(lower, "positive"):
		label = models.SentimentPositive
	case strings.Contains(lower, "negative"):
		label = models.SentimentNegative
	case strings.Contains(lower, "neutral"):
		label = models.SentimentNeutral
	default:
		return SentimentResult{}, false
	}

	result := SentimentResult{Label: label}
	switch label {
	case models.SentimentPositive:
		result.Score = 0.5
	case models.SentimentNegative:
		result.Score = -0.5
	}
	result.Confidence = 0.8

	var numbers []float64
	for _, field := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '|' || r == '\n' || r == '\t'
	}) {
		if n, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err == nil {
			numbers = append(numbers, n)
		}
	}
	if len(numbers) >= 1 {
		result.Score = clamp(numbers[0], -1, 1)
	}
	if len(numbers) >= 2 {
		result.Confidence = clamp(numbers[1], 0, 1)
	}

	return result, true
}

var intentPrompt = langchainprompts.NewPromptTemplate(
	`Classify the intent of this customer message as exactly one of:
question, complaint, praise, purchase_intent, spam, other.

Message: {{.content}}

Respond with the single intent label only.`,
	[]string{"content"},
)

func (p *Pipeline) classifyIntent(ctx context.Context, content string) (string, error) {
	prompt, err := intentPrompt.Format(map[string]any{"content": content})
	if err != nil {
		return IntentOther, &EnrichmentError{Stage: "intent", Err: err}
	}

	completion, err := p.llm.Call(ctx, prompt,
		llms.WithTemperature(0),
		llms.WithMaxTokens(16),
	)
	if err != nil {
		return IntentOther, &EnrichmentError{Stage: "intent", Err: err}
	}

	return parseIntent(completion), nil
}

func parseIntent(response string) string {
	lower := strings.ToLower(response)
	for _, intent := range knownIntents {
		if strings.Contains(lower, intent) {
			return intent
		}
	}
	return IntentOther
}

var topicsPrompt = langchainprompts.NewPromptTemplate(
	`Extract up to {{.max}} short topic keywords from this customer message.

Message: {{.content}}

Respond with a comma-separated list of topics, nothing else.`,
	[]string{"content", "max"},
)

func (p *Pipeline) extractTopics(ctx context.Context, content string) ([]string, error) {
	prompt, err := topicsPrompt.Format(map[string]any{
		"content": content,
		"max":     maxTopics,
	})
	if err != nil {
		return nil, &EnrichmentError{Stage: "topics", Err: err}
	}

	completion, err := p.llm.Call(ctx, prompt,
		llms.WithTemperature(0),
		llms.WithMaxTokens(64),
	)
	if err != nil {
		return nil, &EnrichmentError{Stage: "topics", Err: err}
	}

	return parseTopics(completion), nil
}

func parseTopics(response string) []string {
	var topics []string
	for _, part := range strings.Split(response, ",") {
		topic := strings.ToLower(strings.Trim(strings.TrimSpace(part), `."`))
		if topic == "" || topic == "none" {
			continue
		}
		topics = append(topics, topic)
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}

var draftPrompt = langchainprompts.NewPromptTemplate(
	`You are drafting a reply to a customer on behalf of a business. Be concise,
helpful and polite.
{{.knowledge}}
Customer message: {{.content}}

Draft reply:`,
	[]string{"knowledge", "content"},
)

func (p *Pipeline) draftReply(ctx context.Context, content, knowledge string) (string, error) {
	knowledgeSection := ""
	if knowledge != "" {
		knowledgeSection = fmt.Sprintf("\nUse this business context when relevant:\n%s", knowledge)
	}

	prompt, err := draftPrompt.Format(map[string]any{
		"knowledge": knowledgeSection,
		"content":   content,
	})
	if err != nil {
		return "", &EnrichmentError{Stage: "draft", Err: err}
	}

	completion, err := p.llm.Call(ctx, prompt,
		llms.WithTemperature(p.config.DraftTemperature),
		llms.WithMaxTokens(p.config.DraftMaxTokens),
	)
	if err != nil {
		return "", &EnrichmentError{Stage: "draft", Err: err}
	}

	return strings.TrimSpace(completion), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
