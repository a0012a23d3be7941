// Package openai implements an embedding encoder for OpenAI-compatible /embeddings APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/encoder/tokencount"
	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-resume-matcher/internal/config"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	obsctx "github.com/fairyhunter13/ai-resume-matcher/internal/observability"
	"github.com/fairyhunter13/ai-resume-matcher/internal/service/ratelimiter"
)

const provider = "openai"

// Client implements domain.Encoder against an OpenAI-compatible embeddings endpoint.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	backoff   config.BackoffConfig
	hc        *http.Client
	counter   *tokencount.Counter
	limiter   ratelimiter.Limiter
}

// RateKey is the limiter bucket consulted before every embeddings request.
const RateKey = "embed:" + provider

// New constructs a client from configuration.
func New(cfg config.Config) *Client {
	return &Client{
		baseURL:   cfg.OpenAIBaseURL,
		apiKey:    cfg.OpenAIAPIKey,
		model:     cfg.EmbeddingModel,
		maxTokens: cfg.EmbedMaxTokens,
		backoff:   cfg.GetEmbedBackoffConfig(),
		hc:        &http.Client{Timeout: 30 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		counter:   tokencount.DefaultCounter,
	}
}

// WithLimiter throttles requests through l, one token per input text.
func (c *Client) WithLimiter(l ratelimiter.Limiter) *Client {
	c.limiter = l
	return c
}

// Model returns the embedding model identifier.
func (c *Client) Model() string { return c.model }

// readSnippet reads up to n bytes from r for logging.
func readSnippet(r io.Reader, n int64) string {
	b, _ := io.ReadAll(io.LimitReader(r, n))
	return string(b)
}

// Embed calls the embeddings endpoint and returns one vector per input, in input order.
func (c *Client) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	if c.apiKey == "" || c.model == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY or EMBEDDING_MODEL missing", domain.ErrInvalidArgument)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	lg := obsctx.LoggerFromContext(ctx)
	inputs := make([]string, len(texts))
	for i, t := range texts {
		cut, truncated, err := c.counter.Truncate(t, c.model, c.maxTokens)
		if err != nil {
			lg.Warn("token counting failed; sending text as is", slog.String("provider", provider), slog.Any("error", err))
			cut = t
		}
		if truncated {
			lg.Debug("embedding input truncated", slog.String("provider", provider), slog.Int("max_tokens", c.maxTokens))
		}
		inputs[i] = cut
	}
	b, err := json.Marshal(map[string]any{"model": c.model, "input": inputs})
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	endpoint := c.baseURL + "/embeddings"
	op := func() error {
		if err := c.acquire(ctx, int64(len(inputs))); err != nil {
			return err
		}
		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		if err != nil {
			observability.ObserveEmbed(provider, start, err)
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lg.Warn("embedding provider rate limited", slog.String("provider", provider), slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			err = fmt.Errorf("embed status %d", resp.StatusCode)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			lg.Warn("embedding provider 4xx", slog.String("provider", provider), slog.Int("status", resp.StatusCode),
				slog.String("model", c.model), slog.String("endpoint", endpoint), slog.String("body", readSnippet(resp.Body, 512)))
			err = backoff.Permanent(fmt.Errorf("%w: embed status %d", domain.ErrInvalidArgument, resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			lg.Error("embedding provider non-2xx", slog.String("provider", provider), slog.Int("status", resp.StatusCode),
				slog.String("model", c.model), slog.String("endpoint", endpoint), slog.String("body", readSnippet(resp.Body, 512)))
			err = fmt.Errorf("embed status %d", resp.StatusCode)
		default:
			err = json.NewDecoder(resp.Body).Decode(&out)
		}
		observability.ObserveEmbed(provider, start, err)
		return err
	}
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = c.backoff.MaxElapsedTime
	expo.InitialInterval = c.backoff.InitialInterval
	expo.MaxInterval = c.backoff.MaxInterval
	expo.Multiplier = c.backoff.Multiplier
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		lg.Error("embedding request failed after retries", slog.String("provider", provider), slog.Any("error", err))
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("op=openai.Embed: %w", err)
		}
		return nil, fmt.Errorf("op=openai.Embed: %w: %v", domain.ErrUpstreamTimeout, err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("op=openai.Embed: %w: got %d embeddings for %d inputs", domain.ErrInternal, len(out.Data), len(texts))
	}
	res := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(res) || res[d.Index] != nil {
			return nil, fmt.Errorf("op=openai.Embed: %w: bad embedding index %d", domain.ErrInternal, d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for j := range d.Embedding {
			v[j] = float32(d.Embedding[j])
		}
		res[d.Index] = v
	}
	return res, nil
}

// acquire waits out a denied limiter decision once, then reports the call as
// retryable so the backoff loop tries again.
func (c *Client) acquire(ctx domain.Context, cost int64) error {
	if c.limiter == nil {
		return nil
	}
	ok, wait, err := c.limiter.Allow(ctx, RateKey, cost)
	if err != nil || ok {
		return nil
	}
	if wait > c.backoff.MaxInterval && c.backoff.MaxInterval > 0 {
		wait = c.backoff.MaxInterval
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return backoff.Permanent(ctx.Err())
	case <-t.C:
	}
	return fmt.Errorf("%w: embedding rate limit", domain.ErrRetryable)
}
