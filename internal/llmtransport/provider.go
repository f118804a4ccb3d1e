// Package llmtransport wraps the external LLM provider contract (spec §6):
// a synchronous call taking {model, prompt, temperature, max_tokens} and
// returning either ok+content or an error. All resilience against a flaky
// provider — retry, circuit breaking, and rate limiting — lives here
// so DepthExpert, Interviewer, and Coordinator share one hardened client
// instead of each reimplementing it.
package llmtransport

import (
	"context"
	"errors"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultModel is the model identifier spec §6 names as the default.
const DefaultModel = "claude-3-5-haiku-20241022"

// ErrProviderUnavailable describes a provider with no API key configured.
// Client.Complete does not return it: a Client is built for whatever key New
// is given, and callers without a key pass a nil Provider instead.
var ErrProviderUnavailable = errors.New("llmtransport: provider unavailable (no API key configured)")

// Request is the Go-side representation of one LLM call.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int32
}

// Response is the successful result of an LLM call.
type Response struct {
	Content string
}

// Provider is the external LLM provider contract.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Client is the Anthropic-backed Provider, hardened with a bounded retry, a
// circuit breaker, and a rate limiter so a flaky or overloaded provider
// degrades to fallbacks quickly instead of stalling callers.
type Client struct {
	sdk     anthropic.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// New creates a Client. apiKey must be non-empty; callers should check for an
// empty key themselves and skip constructing a Client entirely (spec §6: "if
// absent or empty, all LLM agents
// transparently use their deterministic fallbacks").
func New(apiKey string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}

	settings := gobreaker.Settings{
		Name:        "llm-provider",
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: tripOnConsecutiveOrHighFailureRate,
	}

	return &Client{
		sdk:     anthropic.NewClient(opts...),
		breaker: gobreaker.NewCircuitBreaker(settings),
		// At most 4 calls per second sustained, bursts of 4: generous for one
		// interview's handful of concurrent observer agents, tight enough to
		// protect the provider from a burst of rapid student responses.
		limiter: rate.NewLimiter(4, 4),
	}
}

func tripOnConsecutiveOrHighFailureRate(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= 3 {
		return true
	}
	if counts.Requests < 10 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
}

// Complete calls the LLM with one bounded retry for transient errors, behind
// a rate limiter and a circuit breaker. It never blocks indefinitely: ctx
// governs the whole call including the retry.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.completeWithRetry(ctx, req)
	})
	if err != nil {
		return Response{}, err
	}
	return result.(Response), nil
}

func (c *Client) completeWithRetry(ctx context.Context, req Request) (Response, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)

	var resp Response
	err := backoff.Retry(func() error {
		r, err := c.call(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, policy)
	return resp, err
}

func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(float64(req.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return Response{}, err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return Response{Content: sb.String()}, nil
}
