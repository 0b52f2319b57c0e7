// HTTP client construction for calls to external services (reputation service and similar).
package robusthttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Adapts slog to retryablehttp's leveled logger. Intermediate request failures are logged at WARN, since they will usually be retried.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (l leveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type config struct {
	retry     *retryablehttp.Client
	timeout   time.Duration
	userAgent string
}

type Option func(*config)

func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.retry.RetryMax = n
	}
}

func WithRetryWait(min, max time.Duration) Option {
	return func(c *config) {
		c.retry.RetryWaitMin = min
		c.retry.RetryWaitMax = max
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.retry.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: logger})
	}
}

// Replaces the pooled, traced transport. Mostly useful for tests.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.retry.HTTPClient.Transport = transport
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

func WithUserAgent(ua string) Option {
	return func(c *config) {
		c.userAgent = ua
	}
}

// Returns a stdlib *http.Client which retries connection errors and 5xx responses (except 501) with backoff, using a pooled transport instrumented with OpenTelemetry.
//
// 429 responses are not retried; see RetryPolicy.
func NewClient(options ...Option) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: slog.Default().With("system", "robusthttp")})
	retryClient.CheckRetry = RetryPolicy

	cfg := &config{retry: retryClient, timeout: 30 * time.Second}
	for _, option := range options {
		option(cfg)
	}

	client := retryClient.StandardClient()
	client.Timeout = cfg.timeout
	if cfg.userAgent != "" {
		client.Transport = &userAgentTransport{inner: client.Transport, ua: cfg.userAgent}
	}
	return client
}

type userAgentTransport struct {
	inner http.RoundTripper
	ua    string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.ua)
	return t.inner.RoundTrip(req)
}

// Wraps retryablehttp.DefaultRetryPolicy, but treats 429 as final: callers pace themselves with a rate limiter, and the service reports how long to back off in the response body.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
