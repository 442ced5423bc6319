// Package backend is the HTTP client that sends the dialect-converted
// request to the configured upstream and returns either a unary body or
// a streaming response body. Grounded on the teacher's
// pkg/internal/http.Client (Do/DoStream/Post shape) and
// pkg/internal/retry (exponential-backoff Config/Do shape), reparameterized
// to the proxy's exact retry rules: 5xx/transport always retried up to
// maxRetries with base/cap backoff, 429 retried only with a parseable
// Retry-After, everything else not retried at all.
package backend

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/relaybridge/toolbridge/pkg/ir"
	"github.com/relaybridge/toolbridge/pkg/logging"
	"github.com/relaybridge/toolbridge/pkg/telemetry"
)

// HeaderAllowlist is the bounded set of client headers passed through to
// the upstream verbatim, beyond Authorization (handled separately so a
// caller can never slip it into this list and have it silently dropped).
var HeaderAllowlist = []string{
	"X-Request-Id",
	"X-Client-Version",
	"Accept-Language",
	"User-Agent",
}

// maxErrorBodyBytes bounds how much of an upstream error body is kept
// for propagation, so a misbehaving upstream cannot balloon memory.
const maxErrorBodyBytes = 8 * 1024

// maxUnaryResponseBodyBytes bounds a successful unary chat-completion
// response, which can legitimately be far larger than an error body
// (long generations, many choices). 16 MiB comfortably covers any
// realistic completion while still guarding against a runaway upstream.
const maxUnaryResponseBodyBytes = 16 * 1024 * 1024

// RetryPolicy implements spec's exact retry rule set.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
}

// DefaultRetryPolicy returns {maxRetries: 2, base: 500ms, cap: 3s}.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Base: 500 * time.Millisecond, Cap: 3 * time.Second}
}

// backoffDelay returns delay_i = min(base * 2^i, cap).
func (p RetryPolicy) backoffDelay(attempt int) time.Duration {
	d := float64(p.Base) * math.Pow(2, float64(attempt))
	if d > float64(p.Cap) {
		d = float64(p.Cap)
	}
	return time.Duration(d)
}

// decide returns the delay to wait before retrying, and whether a retry
// should happen at all, given the outcome of attempt (0-indexed).
func (p RetryPolicy) decide(attempt int, statusCode int, retryAfterHeader string, transportErr bool) (time.Duration, bool) {
	if attempt >= p.MaxRetries {
		return 0, false
	}
	if transportErr || (statusCode >= 500 && statusCode < 600) {
		return p.backoffDelay(attempt), true
	}
	if statusCode == http.StatusTooManyRequests {
		secs, ok := parseRetryAfter(retryAfterHeader)
		if !ok {
			return 0, false
		}
		d := time.Duration(secs) * time.Second
		if d > p.Cap {
			d = p.Cap
		}
		return d, true
	}
	return 0, false
}

func parseRetryAfter(header string) (int, bool) {
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return secs, true
}

// Config configures a Client.
type Config struct {
	BaseURL string

	// UnaryHTTPClient is used for non-streaming calls; its Timeout bounds
	// each attempt on its own (default 30s), not the retries as a whole.
	UnaryHTTPClient *http.Client

	// StreamHTTPClient is used for streaming calls. It carries no
	// request timeout: the call is bounded only by upstream EOF.
	StreamHTTPClient *http.Client

	Retry RetryPolicy

	// Logger receives retry/backoff diagnostics. Defaults to a no-op
	// logger (zerolog.Logger's zero value carries a nil writer and must
	// not be used directly).
	Logger  *zerolog.Logger
	Tracer  trace.Tracer
	Limiter *rate.Limiter
}

// Client sends dialect-converted requests to a single upstream.
type Client struct {
	baseURL      string
	unaryClient  *http.Client
	streamClient *http.Client
	retry        RetryPolicy
	logger       zerolog.Logger
	tracer       trace.Tracer
	limiter      *rate.Limiter
}

// New builds a Client from cfg, filling in unset fields with defaults.
func New(cfg Config) *Client {
	unary := cfg.UnaryHTTPClient
	if unary == nil {
		unary = &http.Client{Timeout: 30 * time.Second}
	}
	stream := cfg.StreamHTTPClient
	if stream == nil {
		stream = &http.Client{}
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.Base == 0 {
		retry = DefaultRetryPolicy()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.GetTracer(telemetry.DefaultSettings())
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		unaryClient:  unary,
		streamClient: stream,
		retry:        retry,
		logger:       logger,
		tracer:       tracer,
		limiter:      cfg.Limiter,
	}
}

// CallOptions carries the per-call inputs that vary by request: the
// dialect-target path, body, and the caller's auth/header passthrough.
type CallOptions struct {
	Path          string
	Body          []byte
	AuthHeader    string
	ClientHeaders http.Header
	Dialect       string
	Model         string
}

// Response is a fully-buffered unary upstream response.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func buildRequest(ctx context.Context, method, url string, body []byte, opts CallOptions) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.AuthHeader != "" {
		req.Header.Set("Authorization", opts.AuthHeader)
	}
	for _, name := range HeaderAllowlist {
		if v := opts.ClientHeaders.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}
	return req, nil
}

// Unary performs the POST, retrying per RetryPolicy, and returns the
// fully-buffered response body. On final failure it returns an *ir.Error:
// upstream_transient or upstream_fatal for upstream failures, and
// stream_cancelled or client_invalid for the other failure paths.
func (c *Client) Unary(ctx context.Context, opts CallOptions) (*Response, error) {
	return telemetry.RecordSpan(ctx, c.tracer, telemetry.SpanOptions{
		Name:       "toolbridge.backend.call",
		Attributes: telemetry.BackendCallAttributes(opts.Dialect, opts.Model, false),
	}, func(ctx context.Context, _ trace.Span) (*Response, error) {
		return c.doUnaryWithRetry(ctx, opts)
	})
}

func (c *Client) doUnaryWithRetry(ctx context.Context, opts CallOptions) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, ir.NewUpstreamTransient(0, "rate limiter wait cancelled", "", err)
		}
	}

	url := c.baseURL + opts.Path

	for attempt := 0; ; attempt++ {
		req, err := buildRequest(ctx, http.MethodPost, url, opts.Body, opts)
		if err != nil {
			return nil, ir.NewClientInvalid("failed to build upstream request", err)
		}

		resp, err := c.unaryClient.Do(req)
		if err != nil {
			c.logAttempt(attempt, 0, err)
			delay, retry := c.retry.decide(attempt, 0, "", true)
			if !retry {
				return nil, ir.NewUpstreamTransient(0, "upstream request failed", "", err)
			}
			if !c.sleep(ctx, delay) {
				return nil, ir.NewStreamCancelled(ctx.Err())
			}
			continue
		}

		bodyLimit := int64(maxErrorBodyBytes)
		if resp.StatusCode < 400 {
			bodyLimit = maxUnaryResponseBodyBytes
		}
		body, readErr := readBounded(resp.Body, bodyLimit)
		resp.Body.Close()
		if readErr != nil {
			return nil, ir.NewUpstreamTransient(resp.StatusCode, "failed to read upstream body", "", readErr)
		}

		if resp.StatusCode < 400 {
			return &Response{StatusCode: resp.StatusCode, Body: body, Header: resp.Header}, nil
		}

		c.logAttempt(attempt, resp.StatusCode, nil)
		delay, retry := c.retry.decide(attempt, resp.StatusCode, resp.Header.Get("Retry-After"), false)
		if !retry {
			redacted := logging.Redact(string(body))
			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, ir.NewUpstreamFatal(resp.StatusCode, "rate limited without retryable Retry-After", redacted, nil)
			}
			if resp.StatusCode >= 500 {
				return nil, ir.NewUpstreamTransient(resp.StatusCode, "upstream exhausted retries", redacted, nil)
			}
			return nil, ir.NewUpstreamFatal(resp.StatusCode, "upstream returned non-retryable status", redacted, nil)
		}
		if !c.sleep(ctx, delay) {
			return nil, ir.NewStreamCancelled(ctx.Err())
		}
	}
}

// Stream performs the POST and returns the live *http.Response for the
// caller to read frames from. Retries apply to the initial connection
// attempt only: once bytes start flowing, a mid-stream failure is
// reported to the caller rather than retried (a partial stream cannot be
// safely replayed to a client that has already received some frames).
func (c *Client) Stream(ctx context.Context, opts CallOptions) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, ir.NewUpstreamTransient(0, "rate limiter wait cancelled", "", err)
		}
	}

	url := c.baseURL + opts.Path

	for attempt := 0; ; attempt++ {
		req, err := buildRequest(ctx, http.MethodPost, url, opts.Body, opts)
		if err != nil {
			return nil, ir.NewClientInvalid("failed to build upstream request", err)
		}

		resp, err := c.streamClient.Do(req)
		if err != nil {
			c.logAttempt(attempt, 0, err)
			delay, retry := c.retry.decide(attempt, 0, "", true)
			if !retry {
				return nil, ir.NewUpstreamTransient(0, "upstream request failed", "", err)
			}
			if !c.sleep(ctx, delay) {
				return nil, ir.NewStreamCancelled(ctx.Err())
			}
			continue
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		body, _ := readBounded(resp.Body, maxErrorBodyBytes)
		resp.Body.Close()
		c.logAttempt(attempt, resp.StatusCode, nil)
		delay, retry := c.retry.decide(attempt, resp.StatusCode, resp.Header.Get("Retry-After"), false)
		if !retry {
			redacted := logging.Redact(string(body))
			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, ir.NewUpstreamFatal(resp.StatusCode, "rate limited without retryable Retry-After", redacted, nil)
			}
			if resp.StatusCode >= 500 {
				return nil, ir.NewUpstreamTransient(resp.StatusCode, "upstream exhausted retries", redacted, nil)
			}
			return nil, ir.NewUpstreamFatal(resp.StatusCode, "upstream returned non-retryable status", redacted, nil)
		}
		if !c.sleep(ctx, delay) {
			return nil, ir.NewStreamCancelled(ctx.Err())
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) logAttempt(attempt, statusCode int, err error) {
	ev := c.logger.Warn().Int("attempt", attempt)
	if statusCode != 0 {
		ev = ev.Int("status", statusCode)
	}
	if err != nil {
		ev = ev.Str("error", logging.Redact(err.Error()))
	}
	ev.Msg("backend call retrying")
}

func readBounded(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}
