// Package llm wraps langchaingo chat models behind the two logical tiers the
// engine's planners and writers use: Fast (cheap, for planners) and Strong
// (supervisor classification, response writing).
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/tuannvm/multiagent-rag/internal/config"
	"github.com/tuannvm/multiagent-rag/internal/logging"
)

// Client is the interface every component that calls an LLM depends on.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Tier names the two logical model tiers the engine wires from a single
// LLMConfig: planners use Fast, the supervisor and response writer use Strong.
type Tier int

const (
	Fast Tier = iota
	Strong
)

// chatClient implements Client over a single langchaingo model.
type chatClient struct {
	llm       llms.Model
	maxTokens int
	timeout   time.Duration
	tier      string
}

// NewTiers builds both logical tiers from a single LLMConfig, selecting the
// fast/strong model names but sharing provider, key, and base URL.
func NewTiers(cfg config.LLMConfig) (fast Client, strong Client, err error) {
	fast, err = newClient(cfg, cfg.FastModel, "fast")
	if err != nil {
		return nil, nil, err
	}
	strong, err = newClient(cfg, cfg.StrongModel, "strong")
	if err != nil {
		return nil, nil, err
	}
	return fast, strong, nil
}

func newClient(cfg config.LLMConfig, model, tierName string) (Client, error) {
	var llmModel llms.Model
	var err error

	switch cfg.Provider {
	case "openai":
		llmModel, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(model),
		)
	case "azure":
		llmModel, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(model),
			openai.WithBaseURL(cfg.ServiceURL),
		)
	default:
		return nil, fmt.Errorf("llm: unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: failed to initialize %s tier: %w", tierName, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &chatClient{llm: llmModel, maxTokens: cfg.MaxTokens, timeout: timeout, tier: tierName}, nil
}

func (c *chatClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.llm == nil {
		return "", errors.New("llm: client not initialized")
	}

	log := logging.Named("llm." + c.tier)
	log.Debugf("sending prompt: %s", truncateForLogging(prompt))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithMaxTokens(c.maxTokens))
	if err != nil {
		return "", fmt.Errorf("llm: generation failed on %s tier: %w", c.tier, err)
	}

	log.Debugf("received response: %s", truncateForLogging(completion))
	return completion, nil
}

func truncateForLogging(s string) string {
	const maxLength = 500
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength] + "... [truncated]"
}
