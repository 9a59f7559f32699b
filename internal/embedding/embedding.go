// Package embedding provides a retrying client around an OpenAI-compatible
// embeddings endpoint, wired through langchaingo so the same provider
// configuration used for chat completion also drives vector generation.
package embedding

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/tuannvm/multiagent-rag/internal/logging"
	"github.com/tuannvm/multiagent-rag/internal/metrics"
	"github.com/tuannvm/multiagent-rag/internal/ragerr"
)

// Vector is a fixed-dimension embedding.
type Vector []float32

// Embedder produces embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
	Dim() int
}

const (
	retryBase    = 250 * time.Millisecond
	retryCap     = 4 * time.Second
	maxAttempts  = 3
	maxInputSize = 32000 // characters; matches the embeddings endpoint's practical ceiling
)

// Client implements Embedder against an OpenAI-compatible embeddings API.
// backend is the narrow slice of langchaingo's embeddings.Embedder interface
// this client actually calls; kept local so tests can stub it without
// depending on the full upstream interface shape.
type backend interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

type Client struct {
	embedder backend
	dim      int
	metrics  *metrics.Registry
	log      interface {
		Warnf(string, ...interface{})
	}
}

// Config configures Client construction.
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	ServiceURL string
	Dim        int
}

// New builds an OpenAI-compatible embeddings Client, pointed at ServiceURL
// when one is set. cfg.Provider is not consulted.
func New(cfg Config, reg *metrics.Registry) (*Client, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.Model))
	}
	if cfg.ServiceURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.ServiceURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Fatal, "embedding: construct openai client", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Fatal, "embedding: construct embedder", err)
	}

	dim := cfg.Dim
	if dim <= 0 {
		dim = 1536
	}

	return &Client{embedder: embedder, dim: dim, metrics: reg, log: logging.Named("embedding")}, nil
}

// Dim returns the configured embedding dimension.
func (c *Client) Dim() int { return c.dim }

// Embed produces a single embedding, retrying transient upstream failures
// with exponential backoff and full jitter (base 250ms, cap 4s, 3 attempts).
func (c *Client) Embed(ctx context.Context, text string) (Vector, error) {
	if err := validateInput(text); err != nil {
		c.observe("invalid_input", 0)
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := time.Now()
		vecs, err := c.embedder.EmbedDocuments(ctx, []string{text})
		elapsed := time.Since(start)

		if err == nil && len(vecs) > 0 {
			c.observe("success", elapsed)
			return toVector(vecs[0]), nil
		}

		kind := classifyError(err)
		if kind != ragerr.UpstreamTransient {
			c.observe("error", elapsed)
			return nil, ragerr.Wrap(kind, "embedding: embed call failed", err)
		}

		lastErr = err
		c.observe("retry", elapsed)
		if attempt == maxAttempts-1 {
			break
		}
		if waitErr := sleepBackoff(ctx, attempt); waitErr != nil {
			return nil, waitErr
		}
		c.log.Warnf("embedding: transient failure, retrying (attempt %d/%d): %v", attempt+1, maxAttempts, err)
	}

	return nil, ragerr.Wrap(ragerr.UpstreamTransient, "embedding: exhausted retries", lastErr)
}

// EmbedBatch embeds multiple texts. Each is independently retried; a single
// failing text fails the whole batch, matching the all-or-nothing contract
// callers (ticket store ingestion, multi-query expansion) expect.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		v, err := c.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *Client) observe(outcome string, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.EmbeddingRequests.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		c.metrics.EmbeddingLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

func validateInput(text string) error {
	if text == "" {
		return ragerr.Wrap(ragerr.InvalidInput, "embedding: empty text", nil)
	}
	if len(text) > maxInputSize {
		return ragerr.Wrap(ragerr.InvalidInput, fmt.Sprintf("embedding: text exceeds %d characters", maxInputSize), nil)
	}
	return nil
}

// classifyError maps a provider error to ragerr.UpstreamPermanent or
// ragerr.UpstreamTransient.
// Without a structured error type from langchaingo's OpenAI backend, this
// inspects the error text for auth/quota signatures; anything else is
// treated as transient and retried, matching the "retry unless provably
// permanent" posture the embedding contract calls for.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, needle := range []string{"401", "403", "invalid_api_key", "authentication"} {
		if strings.Contains(msg, needle) {
			return ragerr.UpstreamPermanent
		}
	}
	return ragerr.UpstreamTransient
}

func toVector(f []float32) Vector {
	v := make(Vector, len(f))
	copy(v, f)
	return v
}

// sleepBackoff waits base*2^attempt capped at retryCap, with full jitter, or
// returns ctx.Err() if the context is cancelled first.
func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := retryBase * time.Duration(1<<uint(attempt))
	if backoff > retryCap {
		backoff = retryCap
	}
	jittered := time.Duration(rand.Int63n(int64(backoff) + 1))

	t := time.NewTimer(jittered)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
