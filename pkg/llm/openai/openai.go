package openai

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIClient wraps the langchaingo OpenAI backend used by the enrichment
// pipeline.
type OpenAIClient struct {
	logger *logrus.Logger
	llm    llms.Model
	config *OpenAIConfig
}

func NewOpenAIClient(config *OpenAIConfig) (*OpenAIClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	llm, err := openai.New(
		openai.WithToken(config.APIKey),
		openai.WithModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI: %w", err)
	}

	return &OpenAIClient{
		logger: config.Logger,
		llm:    llm,
		config: config,
	}, nil
}

// GetLLM returns the underlying model for packages that take llms.Model
func (c *OpenAIClient) GetLLM() llms.Model {
	return c.llm
}
