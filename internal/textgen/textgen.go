// Package textgen wraps the Anthropic client with rate limiting, retries and
// a circuit breaker, and parses labeled-section replies.
package textgen

import (
	"context"
	"errors"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/evidence-cli/internal/resilience"
	"github.com/sells-group/evidence-cli/pkg/anthropic"
)

// Completer produces a completion for one system + user message pair.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Request is one text-generation call. Zero-valued overrides fall back to the
// generator defaults.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature *float64
	MaxTokens   int64
	// Phase labels the call in cost logs.
	Phase string
}

// Completion is the generated text and its token usage.
type Completion struct {
	Text  string
	Model string
	Usage anthropic.TokenUsage
}

// UpstreamError reports a failed completion after retries.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "textgen: complete: " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err came from a failed completion.
func IsUpstream(err error) bool {
	var up *UpstreamError
	return errors.As(err, &up)
}

// Options configures a Generator.
type Options struct {
	Model             string
	MaxTokens         int64
	Temperature       float64
	RequestsPerMinute int
	Retry             resilience.RetryConfig
	Breaker           resilience.CircuitBreakerConfig
}

// Generator implements Completer over an anthropic.Client.
type Generator struct {
	client  anthropic.Client
	opts    Options
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// New creates a Generator. A non-positive RequestsPerMinute disables rate
// limiting.
func New(client anthropic.Client, opts Options) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Retry.ShouldRetry == nil {
		opts.Retry.ShouldRetry = shouldRetry
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	}
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = "anthropic"
	}
	if opts.Breaker.ShouldTrip == nil {
		opts.Breaker.ShouldTrip = shouldRetry
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &Generator{
		client:  client,
		opts:    opts,
		limiter: limiter,
		breaker: resilience.NewCircuitBreaker(opts.Breaker),
	}
}

// Complete sends exactly one system message and one user message.
func (g *Generator) Complete(ctx context.Context, req Request) (*Completion, error) {
	msgReq := anthropic.MessageRequest{
		Model:     g.opts.Model,
		MaxTokens: g.opts.MaxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: req.User}},
	}
	if req.Model != "" {
		msgReq.Model = req.Model
	}
	if req.MaxTokens > 0 {
		msgReq.MaxTokens = req.MaxTokens
	}
	temp := g.opts.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	msgReq.Temperature = &temp
	if req.System != "" {
		msgReq.System = []anthropic.SystemBlock{{Text: req.System}}
	}

	resp, err := resilience.DoVal(ctx, g.opts.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "textgen: rate limiter wait")
		}
		return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return g.client.CreateMessage(ctx, msgReq)
		})
	})
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	phase := req.Phase
	if phase == "" {
		phase = "textgen"
	}
	model := resp.Model
	if model == "" {
		model = msgReq.Model
	}
	resp.Usage.LogCost(model, phase)

	zap.L().Debug("textgen: completion",
		zap.String("phase", phase),
		zap.String("stop_reason", resp.StopReason),
	)

	return &Completion{
		Text:  resp.Text(),
		Model: model,
		Usage: resp.Usage,
	}, nil
}

// shouldRetry treats API errors with transient status codes and network
// failures as retryable.
func shouldRetry(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}
