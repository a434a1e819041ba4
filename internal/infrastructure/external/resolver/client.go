// Package resolver classifies a free-text module phrase against a list of
// candidates by asking an OpenAI-compatible chat completion endpoint.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/shared"
	"github.com/brainamp/planner-engine/pkg/circuitbreaker"
	"github.com/brainamp/planner-engine/pkg/logger"
	"github.com/brainamp/planner-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the resolver client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	APIKey string
	Model  string

	// HTTPTimeout caps one HTTP exchange. The caller's context usually
	// expires first.
	HTTPTimeout time.Duration

	// RatePerSecond and Burst bound outgoing calls across all users.
	RatePerSecond float64
	Burst         int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:       baseURL,
		APIKey:        apiKey,
		Model:         "gpt-4o-mini",
		HTTPTimeout:   15 * time.Second,
		RatePerSecond: 5,
		Burst:         5,
	}
}

var (
	// ErrInvalidReply is returned when the model's reply breaks the contract.
	ErrInvalidReply = errors.New("resolver: invalid reply")

	// ErrUpstream is returned for non-success HTTP statuses.
	ErrUpstream = errors.New("resolver: upstream error")

	errTooManyRequests = errors.New("too many requests")
)

const systemPrompt = `You match a user's phrase to at most one course module.
You receive JSON {"phrase": string, "candidates": [{"id", "title", "task_date"?}]}.
Reply with a JSON object of exactly this shape and nothing else: {"id": "<candidate id>"} or {"id": null}.
Choose an id only when one candidate clearly matches the phrase. Never invent an id.`

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements course.SemanticResolver.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	schema     *jsonschema.Schema
	log        *logger.Logger
}

// NewClient creates a resolver client.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("resolver: base URL is required")
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	schema, err := compileClassificationSchema()
	if err != nil {
		return nil, err
	}

	log = log.With(logger.Component("semantic_resolver"))
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker: circuitbreaker.ResolverBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		retrier: retry.ResolverRetrier(),
		schema:  schema,
		log:     log,
	}, nil
}

// Classify implements course.SemanticResolver.
func (c *Client) Classify(ctx context.Context, phrase string, candidates []course.Candidate) (*course.Classification, error) {
	if len(candidates) == 0 {
		return &course.Classification{}, nil
	}

	input, err := json.Marshal(classifyInput{Phrase: phrase, Candidates: candidates})
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}

	body := ChatRequest{
		Model: c.config.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(input)},
		},
		Temperature:    0,
		MaxTokens:      60,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}

	var out *course.Classification
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
			}
			content, err := c.complete(ctx, body)
			if err != nil {
				return err
			}
			out, err = decodeClassification(c.schema, content)
			if err != nil {
				return retry.Permanent(err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, classifyFailure(err)
	}
	return out, nil
}

// classifyFailure tags err with the shared external-service kind it belongs to.
func classifyFailure(err error) error {
	var kind error
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		kind = shared.ErrServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		kind = shared.ErrTimeout
	case errors.Is(err, errTooManyRequests):
		kind = shared.ErrRateLimited
	case errors.Is(err, ErrInvalidReply):
		kind = shared.ErrInvalidFormat
	case errors.Is(err, context.Canceled):
		return err
	default:
		kind = shared.ErrExternalService
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// complete performs one chat completion and returns the first choice's content.
// 429 and 5xx responses are marked retryable.
func (c *Client) complete(ctx context.Context, body ChatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal body: %w", err))
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", retry.Permanent(ctx.Err())
		}
		return "", retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	c.log.Debug("resolver call",
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		var apiErr APIErrorDTO
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			msg += ": " + apiErr.Error.Message
		}
		err := fmt.Errorf("%w: %s", ErrUpstream, msg)
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", retry.Retryable(fmt.Errorf("%w: %w", errTooManyRequests, err))
		}
		if resp.StatusCode >= 500 {
			return "", retry.Retryable(err)
		}
		return "", retry.Permanent(err)
	}

	var chat ChatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return "", retry.Permanent(fmt.Errorf("%w: %v", ErrInvalidReply, err))
	}
	if len(chat.Choices) == 0 {
		return "", retry.Permanent(fmt.Errorf("%w: no choices", ErrInvalidReply))
	}
	return chat.Choices[0].Message.Content, nil
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// ══════════════════════════════════════════════════════════════════════════════
// DISABLED RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

// Disabled returns a resolver that never matches. Module references then
// always resolve to not-found.
func Disabled() course.SemanticResolver {
	return course.SemanticResolverFunc(func(context.Context, string, []course.Candidate) (*course.Classification, error) {
		return &course.Classification{}, nil
	})
}
